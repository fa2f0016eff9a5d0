package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig         = "SCRIBEMI_CONFIG"
	EnvAPIURL         = "SCRIBEMI_API_URL"
	EnvRegion         = "SCRIBEMI_REGION"
	EnvClientID       = "SCRIBEMI_CLIENT_ID"
	EnvUserPoolID     = "SCRIBEMI_USER_POOL_ID"
	EnvIdentityPoolID = "SCRIBEMI_IDENTITY_POOL_ID"
)

// EnvOverrides holds values derived from environment variables. Empty
// fields mean "not set".
type EnvOverrides struct {
	ConfigPath     string
	APIURL         string
	Region         string
	ClientID       string
	UserPoolID     string
	IdentityPoolID string
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:     os.Getenv(EnvConfig),
		APIURL:         os.Getenv(EnvAPIURL),
		Region:         os.Getenv(EnvRegion),
		ClientID:       os.Getenv(EnvClientID),
		UserPoolID:     os.Getenv(EnvUserPoolID),
		IdentityPoolID: os.Getenv(EnvIdentityPoolID),
	}
}

// apply copies every set override onto cfg.
func (e EnvOverrides) apply(cfg *Config) {
	setIf(&cfg.API.URL, e.APIURL)
	setIf(&cfg.API.Region, e.Region)
	setIf(&cfg.Auth.ClientID, e.ClientID)
	setIf(&cfg.Auth.UserPoolID, e.UserPoolID)
	setIf(&cfg.Auth.IdentityPoolID, e.IdentityPoolID)
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
