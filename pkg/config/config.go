package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds the runtime configuration for fxo-desk.
type Config struct {
	ServiceName string
	Env         string
	LogLevel    string
	AWSRegion   string

	Port             int
	StreamPort       int
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	HTTPBodyLimit    int

	NATSURL    string
	NATSStream string
	AMQPURL    string

	RedisAddr    string
	RedisDB      int
	RedisPass    string
	SpotCacheTTL time.Duration

	CacheTTL    time.Duration
	CleanupFreq time.Duration

	// Oracle (on-chain spot price feeds)
	OracleNetwork      string
	OracleRPCURL       string
	OracleRPCSecret    bool // resolve the RPC URL from AWS Secrets Manager instead of OracleRPCURL
	OraclePollInterval time.Duration
	OracleReadTimeout  time.Duration
	FeedUSDCcNGN       string
	FeedUSDCcNGNInvert bool
	FeedUSDCKES        string
	FeedUSDCKESInvert  bool

	// RFQ lifecycle
	QuoteWindowSeconds int
	QuoteTickInterval  time.Duration
	QuoteTimeout       time.Duration
	SignTimeout        time.Duration
	ConfirmTimeout     time.Duration

	// Quote provider: "sim", "http" or "nats"
	QuoteProvider string
	QuoteDelay    time.Duration
	SimMakers     []string
	LPBaseURL     string
	LPVenues      []string

	// Trade execution: "sim" or "venue"
	ExecutionMode    string
	SignDelay        time.Duration
	ConfirmDelay     time.Duration
	VenueBaseURL     string
	VenueAPIKey      string
	VenueConfirmWait time.Duration

	// Placeholder pricing
	IndicativeRate decimal.Decimal
	ATMBand        decimal.Decimal

	SessionIdleTTL      time.Duration
	SessionReapInterval time.Duration
}

// Load loads configuration from environment variables and optional .env file.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServiceName: GetEnv("SERVICE_NAME", "fxo-desk"),
		Env:         GetEnv("ENV", "dev"),
		LogLevel:    GetEnv("LOG_LEVEL", "info"),
		AWSRegion:   GetEnv("AWS_REGION", "us-east-2"),

		Port:             GetEnvInt("FXO_PORT", 9040),
		StreamPort:       GetEnvInt("FXO_STREAM_PORT", 9041),
		HTTPReadTimeout:  GetEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second),
		HTTPWriteTimeout: GetEnvDuration("HTTP_WRITE_TIMEOUT", 10*time.Second),
		HTTPIdleTimeout:  GetEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		HTTPBodyLimit:    GetEnvInt("HTTP_BODY_LIMIT", 1*1024*1024),

		NATSURL:    GetEnv("NATS_URL", "nats://localhost:4222"),
		NATSStream: GetEnv("NATS_STREAM", "FXO_EVENTS"),
		AMQPURL:    GetEnv("AMQP_URL", ""),

		RedisAddr:    GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:      GetEnvInt("REDIS_DB", 0),
		RedisPass:    GetEnv("REDIS_PASS", ""),
		SpotCacheTTL: GetEnvDuration("SPOT_CACHE_TTL", 90*time.Second),

		CacheTTL:    GetEnvDuration("CACHE_TTL", 24*time.Hour),
		CleanupFreq: GetEnvDuration("CACHE_CLEANUP_FREQ", 10*time.Minute),

		OracleNetwork:      GetEnv("ORACLE_NETWORK", "celo"),
		OracleRPCURL:       GetEnv("ORACLE_RPC_URL", "https://forno.celo.org"),
		OracleRPCSecret:    GetEnvBool("ORACLE_RPC_SECRET", false),
		OraclePollInterval: GetEnvDuration("ORACLE_POLL_INTERVAL", 30*time.Second),
		OracleReadTimeout:  GetEnvDuration("ORACLE_READ_TIMEOUT", 10*time.Second),
		FeedUSDCcNGN:       GetEnv("ORACLE_FEED_USDC_CNGN", ""),
		FeedUSDCcNGNInvert: GetEnvBool("ORACLE_FEED_USDC_CNGN_INVERT", true),
		FeedUSDCKES:        GetEnv("ORACLE_FEED_USDC_KES", ""),
		FeedUSDCKESInvert:  GetEnvBool("ORACLE_FEED_USDC_KES_INVERT", true),

		QuoteWindowSeconds: GetEnvInt("QUOTE_WINDOW_SECONDS", 30),
		QuoteTickInterval:  GetEnvDuration("QUOTE_TICK_INTERVAL", 1*time.Second),
		QuoteTimeout:       GetEnvDuration("QUOTE_TIMEOUT", 10*time.Second),
		SignTimeout:        GetEnvDuration("SIGN_TIMEOUT", 60*time.Second),
		ConfirmTimeout:     GetEnvDuration("CONFIRM_TIMEOUT", 5*time.Minute),

		QuoteProvider: GetEnv("QUOTE_PROVIDER", "sim"),
		QuoteDelay:    GetEnvDuration("SIM_QUOTE_DELAY", 1400*time.Millisecond),
		SimMakers:     GetEnvList("SIM_MAKERS", nil),
		LPBaseURL:     GetEnv("LP_BASE_URL", ""),
		LPVenues:      GetEnvList("LP_VENUES", nil),

		ExecutionMode:    GetEnv("EXECUTION_MODE", "sim"),
		SignDelay:        GetEnvDuration("SIM_SIGN_DELAY", 1200*time.Millisecond),
		ConfirmDelay:     GetEnvDuration("SIM_CONFIRM_DELAY", 1600*time.Millisecond),
		VenueBaseURL:     GetEnv("VENUE_BASE_URL", ""),
		VenueAPIKey:      GetEnv("VENUE_API_KEY", ""),
		VenueConfirmWait: GetEnvDuration("VENUE_CONFIRM_WAIT", 2*time.Minute),

		IndicativeRate: GetEnvDecimal("INDICATIVE_RATE", decimal.RequireFromString("13.33")),
		ATMBand:        GetEnvDecimal("ATM_BAND", decimal.RequireFromString("0.01")),

		SessionIdleTTL:      GetEnvDuration("SESSION_IDLE_TTL", 30*time.Minute),
		SessionReapInterval: GetEnvDuration("SESSION_REAP_INTERVAL", 1*time.Minute),
	}
}
