package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoad_Defaults(t *testing.T) {
	// Clear any env vars that would override defaults
	envVars := []string{
		"SERVICE_NAME", "ENV", "LOG_LEVEL", "FXO_PORT", "NATS_URL", "REDIS_ADDR",
		"ORACLE_POLL_INTERVAL", "QUOTE_WINDOW_SECONDS", "QUOTE_TICK_INTERVAL",
		"SIM_QUOTE_DELAY", "SIM_SIGN_DELAY", "SIM_CONFIRM_DELAY", "INDICATIVE_RATE",
		"QUOTE_PROVIDER", "EXECUTION_MODE", "SIM_MAKERS", "ORACLE_FEED_USDC_KES_INVERT",
	}
	for _, key := range envVars {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.ServiceName != "fxo-desk" {
		t.Errorf("expected ServiceName=fxo-desk, got %s", cfg.ServiceName)
	}
	if cfg.Env != "dev" {
		t.Errorf("expected Env=dev, got %s", cfg.Env)
	}
	if cfg.Port != 9040 {
		t.Errorf("expected Port=9040, got %d", cfg.Port)
	}
	if cfg.OraclePollInterval != 30*time.Second {
		t.Errorf("expected OraclePollInterval=30s, got %v", cfg.OraclePollInterval)
	}
	if cfg.QuoteWindowSeconds != 30 {
		t.Errorf("expected QuoteWindowSeconds=30, got %d", cfg.QuoteWindowSeconds)
	}
	if cfg.QuoteTickInterval != time.Second {
		t.Errorf("expected QuoteTickInterval=1s, got %v", cfg.QuoteTickInterval)
	}
	if cfg.QuoteDelay != 1400*time.Millisecond {
		t.Errorf("expected QuoteDelay=1400ms, got %v", cfg.QuoteDelay)
	}
	if cfg.SignDelay+cfg.ConfirmDelay != 2800*time.Millisecond {
		t.Errorf("expected sign+confirm=2800ms, got %v", cfg.SignDelay+cfg.ConfirmDelay)
	}
	if !cfg.IndicativeRate.Equal(decimal.RequireFromString("13.33")) {
		t.Errorf("expected IndicativeRate=13.33, got %s", cfg.IndicativeRate)
	}
	if cfg.QuoteProvider != "sim" || cfg.ExecutionMode != "sim" {
		t.Errorf("expected simulated collaborators, got %s/%s", cfg.QuoteProvider, cfg.ExecutionMode)
	}
	if len(cfg.SimMakers) != 0 {
		t.Errorf("expected no simulated makers, got %v", cfg.SimMakers)
	}
	if !cfg.FeedUSDCKESInvert {
		t.Errorf("expected KES feed to be inverted by default")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVICE_NAME", "test-desk")
	t.Setenv("ENV", "prod")
	t.Setenv("FXO_PORT", "8080")
	t.Setenv("QUOTE_WINDOW_SECONDS", "45")
	t.Setenv("ORACLE_POLL_INTERVAL", "1m")
	t.Setenv("SIM_MAKERS", "maker-a:12, maker-b:30 ,")
	t.Setenv("LP_VENUES", "XFX,RIO")
	t.Setenv("INDICATIVE_RATE", "10.5")
	t.Setenv("ORACLE_RPC_SECRET", "true")
	t.Setenv("ORACLE_FEED_USDC_KES_INVERT", "false")

	cfg := Load()

	if cfg.ServiceName != "test-desk" {
		t.Errorf("expected ServiceName=test-desk, got %s", cfg.ServiceName)
	}
	if cfg.Env != "prod" {
		t.Errorf("expected Env=prod, got %s", cfg.Env)
	}
	if cfg.Port != 8080 {
		t.Errorf("expected Port=8080, got %d", cfg.Port)
	}
	if cfg.QuoteWindowSeconds != 45 {
		t.Errorf("expected QuoteWindowSeconds=45, got %d", cfg.QuoteWindowSeconds)
	}
	if cfg.OraclePollInterval != time.Minute {
		t.Errorf("expected OraclePollInterval=1m, got %v", cfg.OraclePollInterval)
	}
	if len(cfg.SimMakers) != 2 || cfg.SimMakers[0] != "maker-a:12" || cfg.SimMakers[1] != "maker-b:30" {
		t.Errorf("unexpected SimMakers: %v", cfg.SimMakers)
	}
	if len(cfg.LPVenues) != 2 {
		t.Errorf("expected 2 LP venues, got %v", cfg.LPVenues)
	}
	if !cfg.IndicativeRate.Equal(decimal.RequireFromString("10.5")) {
		t.Errorf("expected IndicativeRate=10.5, got %s", cfg.IndicativeRate)
	}
	if !cfg.OracleRPCSecret {
		t.Errorf("expected OracleRPCSecret=true")
	}
	if cfg.FeedUSDCKESInvert {
		t.Errorf("expected KES feed invert override to false")
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("FXO_PORT", "not-a-number")
	t.Setenv("ORACLE_POLL_INTERVAL", "soon")
	t.Setenv("INDICATIVE_RATE", "abc")
	t.Setenv("ORACLE_RPC_SECRET", "maybe")

	cfg := Load()

	if cfg.Port != 9040 {
		t.Errorf("expected Port fallback 9040, got %d", cfg.Port)
	}
	if cfg.OraclePollInterval != 30*time.Second {
		t.Errorf("expected OraclePollInterval fallback 30s, got %v", cfg.OraclePollInterval)
	}
	if !cfg.IndicativeRate.Equal(decimal.RequireFromString("13.33")) {
		t.Errorf("expected IndicativeRate fallback 13.33, got %s", cfg.IndicativeRate)
	}
	if cfg.OracleRPCSecret {
		t.Errorf("expected OracleRPCSecret fallback false")
	}
}
