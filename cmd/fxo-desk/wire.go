package main

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/Checker-Finance/fxo-desk/internal/execution"
	"github.com/Checker-Finance/fxo-desk/internal/httpclient"
	"github.com/Checker-Finance/fxo-desk/internal/pricing"
	"github.com/Checker-Finance/fxo-desk/internal/quotes"
	"github.com/Checker-Finance/fxo-desk/internal/rate"
	"github.com/Checker-Finance/fxo-desk/internal/rfq"
	"github.com/Checker-Finance/fxo-desk/internal/sched"
	"github.com/Checker-Finance/fxo-desk/internal/secrets"
	"github.com/Checker-Finance/fxo-desk/pkg/config"
	"github.com/Checker-Finance/fxo-desk/pkg/logger"
	pkgsecrets "github.com/Checker-Finance/fxo-desk/pkg/secrets"
)

const httpRetryMax = 3

var outboundRate = rate.Config{RequestsPerSecond: 5, Burst: 10}

// endpointSecrets resolves oracle and venue endpoints from AWS Secrets Manager.
// The AWS client is only built when some endpoint actually needs it.
type endpointSecrets struct {
	oracle *secrets.Resolver[secrets.OracleConfig]
	venue  *secrets.Resolver[secrets.VenueConfig]
}

func newSecrets(ctx context.Context, cfg *config.Config) (*endpointSecrets, chan struct{}) {
	stop := make(chan struct{})
	needVenue := cfg.ExecutionMode == "venue" && cfg.VenueBaseURL == ""
	if !cfg.OracleRPCSecret && !needVenue {
		return &endpointSecrets{}, stop
	}

	provider, err := pkgsecrets.NewAWSProvider(ctx, cfg.AWSRegion)
	if err != nil {
		logger.S().Fatalw("failed to init AWS secrets provider", "error", err)
	}
	log := logger.Component("secrets")

	oracleCache := pkgsecrets.NewCache[secrets.OracleConfig](cfg.CacheTTL)
	venueCache := pkgsecrets.NewCache[secrets.VenueConfig](cfg.CacheTTL)
	oracleCache.StartCleaner(cfg.CleanupFreq, stop)
	venueCache.StartCleaner(cfg.CleanupFreq, stop)

	return &endpointSecrets{
		oracle: secrets.NewResolver(log, cfg.Env, "oracle", provider, oracleCache, secrets.ParseOracleConfig),
		venue:  secrets.NewResolver(log, cfg.Env, "venue", provider, venueCache, secrets.ParseVenueConfig),
	}, stop
}

func (s *endpointSecrets) oracleRPCURL(ctx context.Context, cfg *config.Config) (string, error) {
	if !cfg.OracleRPCSecret || s.oracle == nil {
		return cfg.OracleRPCURL, nil
	}
	oc, err := s.oracle.Resolve(ctx, cfg.OracleNetwork)
	if err != nil {
		return "", err
	}
	return oc.RPCURL, nil
}

func (s *endpointSecrets) venueConfig(ctx context.Context, cfg *config.Config) (secrets.VenueConfig, error) {
	if cfg.VenueBaseURL != "" || s.venue == nil {
		return secrets.VenueConfig{BaseURL: cfg.VenueBaseURL, APIKey: cfg.VenueAPIKey}, nil
	}
	return s.venue.Resolve(ctx, cfg.ServiceName)
}

func newQuoteProvider(cfg *config.Config, clk sched.Scheduler, pm pricing.Model, nc *nats.Conn) (rfq.QuoteProvider, error) {
	switch cfg.QuoteProvider {
	case "sim":
		makers, err := quotes.ParseMakers(cfg.SimMakers)
		if err != nil {
			return nil, err
		}
		return quotes.NewSimulated(clk, cfg.QuoteDelay, makers, pm), nil
	case "http":
		if cfg.LPBaseURL == "" {
			return nil, fmt.Errorf("LP_BASE_URL is required for QUOTE_PROVIDER=http")
		}
		exec := httpclient.New(logger.Component("lp"), rate.NewManager(outboundRate), nil, httpRetryMax, "lp", nil)
		return quotes.NewHTTPProvider(logger.Component("lp"), exec, cfg.LPBaseURL), nil
	case "nats":
		if nc == nil {
			return nil, fmt.Errorf("NATS_URL is required for QUOTE_PROVIDER=nats")
		}
		return quotes.NewNATSProvider(logger.Component("lp"), nc, cfg.LPVenues, cfg.ServiceName), nil
	}
	return nil, fmt.Errorf("unknown QUOTE_PROVIDER %q", cfg.QuoteProvider)
}

func newExecutor(ctx context.Context, cfg *config.Config, clk sched.Scheduler, sec *endpointSecrets) (rfq.TradeExecutor, error) {
	switch cfg.ExecutionMode {
	case "sim":
		return execution.NewSimulated(clk, cfg.SignDelay, cfg.ConfirmDelay), nil
	case "venue":
		vc, err := sec.venueConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		log := logger.Component("venue")
		exec := httpclient.New(log, rate.NewManager(outboundRate), nil, httpRetryMax, "venue", execution.VenueErrorHandler(log))
		return execution.NewVenueExecutor(log, exec, vc.BaseURL, vc.APIKey, cfg.VenueConfirmWait), nil
	}
	return nil, fmt.Errorf("unknown EXECUTION_MODE %q", cfg.ExecutionMode)
}
