package secrets

import (
	"fmt"
	"strings"
)

// OracleConfig is stored at {env}/{network}/oracle as {"rpc_url": "..."}.
type OracleConfig struct {
	RPCURL string
}

func ParseOracleConfig(m map[string]string) (OracleConfig, error) {
	cfg := OracleConfig{RPCURL: strings.TrimSpace(m["rpc_url"])}
	if cfg.RPCURL == "" {
		return OracleConfig{}, fmt.Errorf("missing required field 'rpc_url'")
	}
	return cfg, nil
}

// VenueConfig is stored at {env}/{venue}/venue as
// {"base_url": "...", "api_key": "..."}.
type VenueConfig struct {
	BaseURL string
	APIKey  string
}

func ParseVenueConfig(m map[string]string) (VenueConfig, error) {
	cfg := VenueConfig{
		BaseURL: strings.TrimRight(m["base_url"], "/"),
		APIKey:  m["api_key"],
	}
	if cfg.BaseURL == "" {
		return VenueConfig{}, fmt.Errorf("missing required field 'base_url'")
	}
	if cfg.APIKey == "" {
		return VenueConfig{}, fmt.Errorf("missing required field 'api_key'")
	}
	return cfg, nil
}
