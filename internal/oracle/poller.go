package oracle

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Checker-Finance/fxo-desk/internal/metrics"
	"github.com/Checker-Finance/fxo-desk/internal/sched"
	"github.com/Checker-Finance/fxo-desk/pkg/model"
)

// PollerConfig controls read cadence.
type PollerConfig struct {
	Interval    time.Duration
	ReadTimeout time.Duration
	Source      string
}

type cell struct {
	mu      sync.RWMutex
	obs     model.SpotObservation
	reading atomic.Bool
	feed    Feed
}

func (c *cell) get() model.SpotObservation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.obs
}

func (c *cell) set(obs model.SpotObservation) {
	c.mu.Lock()
	c.obs = obs
	c.mu.Unlock()
}

// Poller keeps the latest observation for each pair. Every pair is polled by
// its own scheduled task; a failing feed never affects another pair.
//
// A failed read clears the pair's rate rather than keeping the last good
// one, so a displayed rate is never older than one interval.
type Poller struct {
	logger   *zap.Logger
	sch      sched.Scheduler
	cfg      PollerConfig
	cells    map[model.Pair]*cell
	onUpdate func(model.SpotObservation)

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	tasks   []sched.Task
	started bool
	stopped bool
}

// NewPoller builds a poller for feeds. onUpdate, if set, receives every
// observation, successful or not, after it is stored.
func NewPoller(
	logger *zap.Logger,
	sch sched.Scheduler,
	feeds map[model.Pair]Feed,
	cfg PollerConfig,
	onUpdate func(model.SpotObservation),
) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Poller{
		logger:   logger,
		sch:      sch,
		cfg:      cfg,
		cells:    make(map[model.Pair]*cell, len(feeds)),
		onUpdate: onUpdate,
		ctx:      ctx,
		cancel:   cancel,
	}
	for pair, feed := range feeds {
		p.cells[pair] = &cell{feed: feed, obs: model.SpotObservation{Pair: pair, Source: cfg.Source}}
	}
	return p
}

// Start reads every pair immediately and then once per interval.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	for pair := range p.cells {
		pair := pair
		p.tasks = append(p.tasks,
			p.sch.After(0, func() { p.poll(pair) }),
			p.sch.Every(p.cfg.Interval, func() { p.poll(pair) }),
		)
	}
	p.logger.Info("oracle.poller_started",
		zap.Int("pairs", len(p.cells)),
		zap.Duration("interval", p.cfg.Interval))
}

// Stop cancels all polling and in-flight reads. Results that land after
// Stop are discarded.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.stopped = true
	for _, t := range p.tasks {
		t.Stop()
	}
	p.tasks = nil
	p.cancel()
	p.logger.Info("oracle.poller_stopped")
}

func (p *Poller) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

func (p *Poller) poll(pair model.Pair) {
	c := p.cells[pair]
	if c == nil || p.isStopped() {
		return
	}
	// skip a tick while the previous read is still running
	if !c.reading.CompareAndSwap(false, true) {
		return
	}
	defer c.reading.Store(false)

	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.ReadTimeout)
	defer cancel()

	start := time.Now()
	rate, err := safeRate(ctx, c.feed)
	metrics.ObserveDuration(metrics.OracleReadDuration, start, string(pair))
	if err == nil && !rate.IsPositive() {
		err = fmt.Errorf("%w: %s", ErrNonPositiveAnswer, rate)
	}

	obs := model.SpotObservation{Pair: pair, ObservedAt: p.sch.Now().UTC(), Source: p.cfg.Source}
	if err != nil {
		obs.LastError = err.Error()
		metrics.IncOracleRead(string(pair), "error")
		p.logger.Warn("oracle.read_failed", zap.String("pair", string(pair)), zap.Error(err))
	} else {
		obs.Rate = &rate
		metrics.IncOracleRead(string(pair), "ok")
		p.logger.Debug("oracle.read_ok", zap.String("pair", string(pair)), zap.String("rate", rate.String()))
	}

	if p.isStopped() {
		return
	}
	c.set(obs)
	f, _ := rate.Float64()
	metrics.SetSpotRate(string(pair), f, obs.Available())
	if p.onUpdate != nil {
		p.onUpdate(obs)
	}
}

func safeRate(ctx context.Context, feed Feed) (rate decimal.Decimal, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("oracle: feed panic: %v", r)
		}
	}()
	return feed.Rate(ctx)
}

// Spot returns the latest observation for pair. Pairs without a feed are
// always unavailable.
func (p *Poller) Spot(pair model.Pair) model.SpotObservation {
	c := p.cells[pair]
	if c == nil {
		return model.SpotObservation{Pair: pair}
	}
	return c.get()
}

// Snapshot returns one observation per supported pair, in display order.
func (p *Poller) Snapshot() []model.SpotObservation {
	out := make([]model.SpotObservation, 0, len(model.SupportedPairs))
	for _, pair := range model.SupportedPairs {
		out = append(out, p.Spot(pair))
	}
	return out
}
