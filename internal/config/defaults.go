package config

// Default values for configuration options. These are "layer 0" of the
// override chain. The API URL and Cognito identifiers have no defaults:
// they are deployment specific.
const (
	defaultRegion    = "eu-west-2"
	defaultLogLevel  = "info"
	defaultLogFormat = "auto"
	defaultTimeout   = "60s"
)

// DefaultConfig returns a Config populated with all default values.
// It is the starting point for TOML decoding, so unset fields keep their
// defaults.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Region: defaultRegion,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Network: NetworkConfig{
			Timeout: defaultTimeout,
		},
	}
}
