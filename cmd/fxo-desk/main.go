package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"

	"github.com/Checker-Finance/fxo-desk/internal/api"
	"github.com/Checker-Finance/fxo-desk/internal/desk"
	"github.com/Checker-Finance/fxo-desk/internal/jobs"
	"github.com/Checker-Finance/fxo-desk/internal/metrics"
	"github.com/Checker-Finance/fxo-desk/internal/oracle"
	"github.com/Checker-Finance/fxo-desk/internal/pricing"
	"github.com/Checker-Finance/fxo-desk/internal/publisher"
	"github.com/Checker-Finance/fxo-desk/internal/rabbitmq"
	"github.com/Checker-Finance/fxo-desk/internal/rfq"
	"github.com/Checker-Finance/fxo-desk/internal/sched"
	"github.com/Checker-Finance/fxo-desk/internal/store"
	"github.com/Checker-Finance/fxo-desk/internal/stream"
	"github.com/Checker-Finance/fxo-desk/pkg/config"
	"github.com/Checker-Finance/fxo-desk/pkg/eventbus"
	"github.com/Checker-Finance/fxo-desk/pkg/logger"
	"github.com/Checker-Finance/fxo-desk/pkg/model"
	"github.com/Checker-Finance/fxo-desk/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	logg := logger.S()
	logg.Infof("starting [%s]...", cfg.ServiceName)

	clk := sched.New(nil)

	// --- Secrets (only touched when a secret-backed endpoint is configured) ---
	sec, stopCleaner := newSecrets(ctx, cfg)

	// --- NATS ---
	var nc *nats.Conn
	var pub *publisher.Publisher
	if cfg.NATSURL != "" {
		var err error
		nc, err = nats.Connect(cfg.NATSURL, nats.Name(cfg.ServiceName))
		if err != nil {
			logg.Fatalw("failed to connect to NATS", "error", err)
		}
		pub, err = publisher.Connect(nc, cfg.NATSStream, logger.Component("publisher"), cfg.ServiceName)
		if err != nil {
			logg.Fatalw("failed to init publisher", "error", err)
		}
	}

	// --- RabbitMQ (optional) ---
	var amqpPub *rabbitmq.Publisher
	if cfg.AMQPURL != "" {
		var err error
		amqpPub, err = rabbitmq.Dial(cfg.AMQPURL, logger.Component("rabbitmq"))
		if err != nil {
			logg.Fatalw("failed to connect to RabbitMQ", "error", err, "url", utils.MaskDSN(cfg.AMQPURL))
		}
	}

	// --- Redis spot mirror (optional) ---
	var st *store.RedisStore
	if cfg.RedisAddr != "" {
		var err error
		st, err = store.NewRedis(cfg.RedisAddr, cfg.RedisDB, cfg.RedisPass, cfg.SpotCacheTTL, logger.Component("store"))
		if err != nil {
			logg.Fatalw("failed to init store", "error", err)
		}
	}

	// --- Oracle poller ---
	rpcURL, err := sec.oracleRPCURL(ctx, cfg)
	if err != nil {
		logg.Fatalw("failed to resolve oracle RPC endpoint", "error", err)
	}
	logg.Infow("oracle endpoint", "network", cfg.OracleNetwork, "rpc", utils.MaskURL(rpcURL))

	dialCtx, cancelDial := context.WithTimeout(ctx, 10*time.Second)
	eth, err := ethclient.DialContext(dialCtx, rpcURL)
	cancelDial()
	if err != nil {
		logg.Fatalw("failed to dial oracle RPC", "error", err)
	}

	feeds, err := oracle.BuildFeeds(eth, []oracle.FeedSpec{
		{Pair: model.PairUSDCcNGN, Address: cfg.FeedUSDCcNGN, Invert: cfg.FeedUSDCcNGNInvert},
		{Pair: model.PairUSDCKES, Address: cfg.FeedUSDCKES, Invert: cfg.FeedUSDCKESInvert},
	})
	if err != nil {
		logg.Fatalw("invalid oracle feed configuration", "error", err)
	}
	if len(feeds) == 0 {
		logg.Warn("no oracle feeds configured; spot prices will be unavailable")
	}

	spotBus := eventbus.New[model.SpotObservation]()
	spotEvents := eventbus.NewDispatcher(spotBus, 256, func(model.SpotObservation) {
		metrics.IncDroppedEvent("spot")
	})
	if st != nil {
		spotBus.Subscribe(func(obs model.SpotObservation) {
			_ = st.SaveSpot(ctx, obs)
		})
	}
	if pub != nil {
		spotBus.Subscribe(func(obs model.SpotObservation) {
			_ = pub.PublishSpot(ctx, obs)
		})
	}

	poller := oracle.NewPoller(logger.Component("oracle"), clk, feeds, oracle.PollerConfig{
		Interval:    cfg.OraclePollInterval,
		ReadTimeout: cfg.OracleReadTimeout,
		Source:      cfg.OracleNetwork,
	}, func(obs model.SpotObservation) { spotEvents.Enqueue(obs) })

	// --- Collaborators ---
	pm := pricing.NewLinear(cfg.IndicativeRate, cfg.ATMBand)

	quotes, err := newQuoteProvider(cfg, clk, pm, nc)
	if err != nil {
		logg.Fatalw("failed to init quote provider", "error", err)
	}
	executor, err := newExecutor(ctx, cfg, clk, sec)
	if err != nil {
		logg.Fatalw("failed to init trade executor", "error", err)
	}

	// --- Session events ---
	sessionBus := eventbus.New[model.SessionEvent]()
	sessionEvents := eventbus.NewDispatcher(sessionBus, 1024, func(model.SessionEvent) {
		metrics.IncDroppedEvent("session")
	})

	d := desk.New(logger.Component("desk"), rfq.Config{
		WindowSeconds:  cfg.QuoteWindowSeconds,
		TickInterval:   cfg.QuoteTickInterval,
		QuoteTimeout:   cfg.QuoteTimeout,
		SignTimeout:    cfg.SignTimeout,
		ConfirmTimeout: cfg.ConfirmTimeout,
	}, rfq.Deps{
		Scheduler: clk,
		Quotes:    quotes,
		Executor:  executor,
		Spot:      poller,
		Pricing:   pm,
		Notify:    func(ev model.SessionEvent) { sessionEvents.Enqueue(ev) },
		Logger:    logger.Component("rfq"),
	})

	hub := stream.NewHub(logger.Component("stream"), d.Snapshot)
	d.OnClose(hub.CloseSession)
	sessionBus.Subscribe(hub.Broadcast)
	if pub != nil {
		sessionBus.Subscribe(func(ev model.SessionEvent) {
			_ = pub.PublishSessionEvent(ctx, ev)
		})
	}
	if amqpPub != nil {
		sessionBus.Subscribe(func(ev model.SessionEvent) {
			_ = amqpPub.HandleSessionEvent(ctx, ev)
		})
	}

	poller.Start()

	reaper := jobs.NewSessionReaper(logger.Component("jobs"), d, cfg.SessionIdleTTL, cfg.SessionReapInterval)
	if err := reaper.Start(ctx); err != nil {
		logg.Fatalw("failed to start session reaper", "error", err)
	}

	// --- Fiber HTTP Server ---
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
		BodyLimit:    cfg.HTTPBodyLimit,
	})

	var health api.HealthChecker
	if st != nil {
		health = st
	}
	handler := api.NewSessionHandler(logger.Component("api"), d, poller)
	api.RegisterRoutes(app, nc, health, handler)

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	// --- Websocket stream server ---
	streamSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.StreamPort),
		Handler:           hub.Handler(),
		ReadHeaderTimeout: cfg.HTTPReadTimeout,
	}
	go func() {
		logg.Infof("session stream listening on :%d", cfg.StreamPort)
		if err := streamSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Fatalw("stream.listen_failed", "error", err)
		}
	}()

	logg.Infow(fmt.Sprintf("[%s] running", cfg.ServiceName),
		"env", cfg.Env,
		"quote_provider", cfg.QuoteProvider,
		"execution_mode", cfg.ExecutionMode,
		"feeds", len(feeds),
		"poll_interval", cfg.OraclePollInterval)

	<-ctx.Done()
	logg.Infof("shutting down [%s]...", cfg.ServiceName)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Warnw("fiber.shutdown_failed", "error", err)
	}
	if err := streamSrv.Shutdown(shutdownCtx); err != nil {
		logg.Warnw("stream.shutdown_failed", "error", err)
	}

	reaper.Stop()
	d.Shutdown()
	poller.Stop()
	sessionEvents.Close()
	spotEvents.Close()
	close(stopCleaner)
	eth.Close()

	if amqpPub != nil {
		if err := amqpPub.Close(); err != nil {
			logg.Warnw("rabbitmq.close_failed", "error", err)
		}
	}
	if nc != nil {
		if err := nc.Drain(); err != nil {
			logg.Warnw("nats.drain_failed", "error", err)
		}
	}
	if st != nil {
		if err := st.Close(); err != nil {
			logg.Warnw("store.close_failed", "error", err)
		}
	}
}
