package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Validation range constants.
const (
	minTimeout = 1 * time.Second
	maxTimeout = 10 * time.Minute
)

// regionPattern matches AWS region names such as eu-west-2.
var regionPattern = regexp.MustCompile(`^[a-z]{2}(-[a-z]+)+-\d$`)

// Validate checks all configuration values present in cfg and returns all
// errors found. Empty connection settings are allowed here because they
// may still arrive from the environment; ValidateResolved checks those.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateAPI(&cfg.API)...)
	errs = append(errs, validateAuth(&cfg.Auth)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)

	return errors.Join(errs...)
}

// ValidateResolved checks a fully resolved config: the value checks of
// Validate plus presence of every setting needed to reach the API.
func ValidateResolved(cfg *Config) error {
	errs := []error{Validate(cfg)}

	required := []struct {
		key, value, env string
	}{
		{"api.url", cfg.API.URL, EnvAPIURL},
		{"api.region", cfg.API.Region, EnvRegion},
		{"auth.client_id", cfg.Auth.ClientID, EnvClientID},
		{"auth.user_pool_id", cfg.Auth.UserPoolID, EnvUserPoolID},
		{"auth.identity_pool_id", cfg.Auth.IdentityPoolID, EnvIdentityPoolID},
	}

	for _, r := range required {
		if r.value == "" {
			errs = append(errs, fmt.Errorf("%s: required (set it in the config file or %s)", r.key, r.env))
		}
	}

	return errors.Join(errs...)
}

func validateAPI(a *APIConfig) []error {
	var errs []error

	if a.Region != "" && !regionPattern.MatchString(a.Region) {
		errs = append(errs, fmt.Errorf("api.region: %q is not an AWS region name", a.Region))
	}

	if strings.ContainsAny(a.URL, " \t?#") {
		errs = append(errs, fmt.Errorf("api.url: %q must be a host with optional path", a.URL))
	}

	return errs
}

func validateAuth(a *AuthConfig) []error {
	var errs []error

	if a.IdentityPoolID != "" {
		if err := validateIdentityPoolID(a.IdentityPoolID); err != nil {
			errs = append(errs, err)
		}
	}

	if a.UserPoolID != "" {
		region, id, ok := strings.Cut(a.UserPoolID, "_")
		if !ok || id == "" || !regionPattern.MatchString(region) {
			errs = append(errs, fmt.Errorf("auth.user_pool_id: %q must look like <region>_<id>", a.UserPoolID))
		}
	}

	return errs
}

// validateIdentityPoolID checks the <region>:<uuid> identity pool format.
func validateIdentityPoolID(id string) error {
	region, rest, ok := strings.Cut(id, ":")
	if !ok || !regionPattern.MatchString(region) {
		return fmt.Errorf("auth.identity_pool_id: %q must look like <region>:<uuid>", id)
	}

	if _, err := uuid.Parse(rest); err != nil {
		return fmt.Errorf("auth.identity_pool_id: %q: %w", id, err)
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, validateLogLevel(l.LogLevel)...)
	errs = append(errs, validateLogFormat(l.LogFormat)...)

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("logging.log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogFormat(format string) []error {
	if !validLogFormats[format] {
		return []error{fmt.Errorf("logging.log_format: must be one of auto, text, json; got %q", format)}
	}

	return nil
}

func validateNetwork(n *NetworkConfig) []error {
	d, err := time.ParseDuration(n.Timeout)
	if err != nil {
		return []error{fmt.Errorf("network.timeout: invalid duration %q: %w", n.Timeout, err)}
	}

	if d < minTimeout || d > maxTimeout {
		return []error{fmt.Errorf("network.timeout: must be between %s and %s, got %s", minTimeout, maxTimeout, d)}
	}

	return nil
}
