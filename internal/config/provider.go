package config

import (
	"errors"
	"os"
)

// TokenEnv is the environment variable holding the Cloudflare API token.
const TokenEnv = "CF_API_TOKEN"

// ErrMissingToken is returned when no API token is configured.
var ErrMissingToken = errors.New(TokenEnv + " is not set")

// ProviderConfig holds the DNS provider type and provider-specific
// connection settings.
type ProviderConfig struct {
	Provider string            `yaml:"provider"`
	Settings map[string]string `yaml:"settings"`
}

func (p *ProviderConfig) applyDefaults() {
	if p.Provider == "" {
		p.Provider = "cloudflare"
	}
	if p.Settings == nil {
		p.Settings = make(map[string]string)
	}
	if p.Provider == "cloudflare" {
		if _, ok := p.Settings["api_token"]; !ok {
			p.Settings["api_token"] = "${" + TokenEnv + "}"
		}
	}
}

// expandEnv expands ${ENV_VAR} references in setting values.
func (p *ProviderConfig) expandEnv() {
	for k, v := range p.Settings {
		p.Settings[k] = os.ExpandEnv(v)
	}
}

func (p *ProviderConfig) validate() error {
	if p.Provider == "cloudflare" && p.Settings["api_token"] == "" {
		return ErrMissingToken
	}
	return nil
}
