// Package testutil provides shared test environment helpers for E2E tests.
// It depends only on stdlib so that E2E tests (which drive the built binary
// and cannot import internal/) can use it.
package testutil

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadDotEnv reads KEY=VALUE pairs from a .env file at the given path.
// Missing file is not an error (CI sets env vars directly).
// Existing env vars take precedence over .env values.
func LoadDotEnv(envPath string) {
	f, err := os.Open(envPath)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = strings.Trim(value, "\"'")

		// Env vars take precedence over .env file.
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// MissingEnv returns the names among keys that are unset or empty.
func MissingEnv(keys ...string) []string {
	var missing []string

	for _, k := range keys {
		if os.Getenv(k) == "" {
			missing = append(missing, k)
		}
	}

	return missing
}

// ValidateAllowlist crashes the process if SCRIBEMI_ALLOWED_TEST_USERS is
// not set or if the user named by userEnvVar is not in it. E2E tests delete
// tasks and archives, so they must never run against a real account by
// accident.
func ValidateAllowlist(userEnvVar string) {
	allowlist := os.Getenv("SCRIBEMI_ALLOWED_TEST_USERS")
	if allowlist == "" {
		fmt.Fprintln(os.Stderr, "FATAL: SCRIBEMI_ALLOWED_TEST_USERS not set")
		fmt.Fprintln(os.Stderr, "Set it in .env or as an environment variable.")
		fmt.Fprintln(os.Stderr, "Example: SCRIBEMI_ALLOWED_TEST_USERS=e2e-bot@example.com")
		os.Exit(1)
	}

	user := os.Getenv(userEnvVar)
	if user == "" {
		fmt.Fprintf(os.Stderr, "FATAL: %s not set\n", userEnvVar)
		os.Exit(1)
	}

	for _, a := range strings.Split(allowlist, ",") {
		if strings.TrimSpace(a) == user {
			return
		}
	}

	fmt.Fprintf(os.Stderr, "FATAL: %s=%q is not in SCRIBEMI_ALLOWED_TEST_USERS=%q\n",
		userEnvVar, user, allowlist)
	os.Exit(1)
}

// FindModuleRoot walks up from the current directory to find go.mod.
// Returns the fallback if the root is not found.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}
