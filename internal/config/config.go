// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for scribemi. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags).
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	API     APIConfig     `toml:"api"`
	Auth    AuthConfig    `toml:"auth"`
	Logging LoggingConfig `toml:"logging"`
	Network NetworkConfig `toml:"network"`
}

// APIConfig locates the MI API. URL is a host plus optional path prefix;
// https is assumed when it carries no scheme.
type APIConfig struct {
	URL    string `toml:"url"`
	Region string `toml:"region"`
}

// AuthConfig identifies the Cognito user pool app client and identity pool.
type AuthConfig struct {
	ClientID       string `toml:"client_id"`
	UserPoolID     string `toml:"user_pool_id"`
	IdentityPoolID string `toml:"identity_pool_id"`
}

// LoggingConfig controls log output: level and format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// NetworkConfig controls HTTP client behavior.
type NetworkConfig struct {
	Timeout string `toml:"timeout"`
}

// HTTPTimeout returns the parsed network timeout. Validation guarantees the
// value parses, so a parse failure falls back to the default.
func (n NetworkConfig) HTTPTimeout() time.Duration {
	d, err := time.ParseDuration(n.Timeout)
	if err != nil {
		d, _ = time.ParseDuration(defaultTimeout)
	}

	return d
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings.
type CLIOverrides struct {
	ConfigPath string // --config flag (empty = use default)
}
