package config

import (
	"fmt"
	"io"
)

// RenderEffective writes the resolved configuration as TOML-like text to w.
// This powers "config show": the effective values after every override
// layer has been applied. Nothing in Config is secret.
func RenderEffective(cfg *Config, path string, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", displayPath(path))

	ew.printf("[api]\n")
	ew.printf("  url    = %q\n", cfg.API.URL)
	ew.printf("  region = %q\n\n", cfg.API.Region)

	ew.printf("[auth]\n")
	ew.printf("  client_id        = %q\n", cfg.Auth.ClientID)
	ew.printf("  user_pool_id     = %q\n", cfg.Auth.UserPoolID)
	ew.printf("  identity_pool_id = %q\n\n", cfg.Auth.IdentityPoolID)

	ew.printf("[logging]\n")
	ew.printf("  log_level  = %q\n", cfg.Logging.LogLevel)
	ew.printf("  log_format = %q\n\n", cfg.Logging.LogFormat)

	ew.printf("[network]\n")
	ew.printf("  timeout = %q\n", cfg.Network.Timeout)

	return ew.err
}

func displayPath(path string) string {
	if path == "" {
		return "none"
	}

	return path
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
