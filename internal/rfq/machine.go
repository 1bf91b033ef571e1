// Package rfq implements the RFQ session lifecycle: a timed quote window,
// quote selection, expiry and two-step trade execution.
package rfq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Checker-Finance/fxo-desk/internal/metrics"
	"github.com/Checker-Finance/fxo-desk/internal/pricing"
	"github.com/Checker-Finance/fxo-desk/internal/sched"
	"github.com/Checker-Finance/fxo-desk/pkg/model"
)

// QuoteProvider returns one batch of quotes per call. An empty batch is valid.
type QuoteProvider interface {
	RequestQuotes(ctx context.Context, req model.RFQRequest) ([]model.Quote, error)
}

// TradeExecutor signs a quote and confirms the resulting commitment.
type TradeExecutor interface {
	Sign(ctx context.Context, quote model.Quote) (model.Commitment, error)
	Confirm(ctx context.Context, c model.Commitment) (model.Settlement, error)
}

// SpotReader exposes the latest oracle observation for a pair.
type SpotReader interface {
	Spot(pair model.Pair) model.SpotObservation
}

// Notifier receives every session event. It is called with the session lock
// held and must neither block nor call back into the Machine.
type Notifier func(model.SessionEvent)

// Config holds lifecycle timings. Zero timeouts disable the bound.
type Config struct {
	WindowSeconds  int
	TickInterval   time.Duration
	QuoteTimeout   time.Duration
	SignTimeout    time.Duration
	ConfirmTimeout time.Duration
}

// DefaultConfig is a 30 second window ticking once per second.
func DefaultConfig() Config {
	return Config{WindowSeconds: 30, TickInterval: time.Second}
}

// Deps are the collaborators of a Machine. Spot, Pricing and Notify are optional.
type Deps struct {
	Scheduler sched.Scheduler
	Quotes    QuoteProvider
	Executor  TradeExecutor
	Spot      SpotReader
	Pricing   pricing.Model
	Notify    Notifier
	Logger    *zap.Logger
}

type session struct {
	state      model.State
	request    model.RFQRequest
	quotes     []model.Quote // arrival order
	selectedID string
	window     int
	errMsg     string
	listOpen   bool
	commitment *model.Commitment
	settlement *model.Settlement
}

// Machine owns one RFQ session. All commands, timer ticks and collaborator
// results are serialised on mu. Every reset bumps gen; callbacks scheduled
// for an older generation are ignored.
type Machine struct {
	id   string
	cfg  Config
	deps Deps
	log  *zap.Logger

	mu           sync.Mutex
	gen          uint64
	seq          uint64
	closed       bool
	s            session
	ticker       sched.Task
	cancelOps    context.CancelFunc
	opsCtx       context.Context
	lastActivity time.Time
}

// NewMachine returns a machine holding a fresh IDLE session.
func NewMachine(id string, cfg Config, deps Deps) *Machine {
	if cfg.WindowSeconds <= 0 {
		cfg.WindowSeconds = 30
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if deps.Scheduler == nil {
		deps.Scheduler = sched.New(nil)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	m := &Machine{
		id:   id,
		cfg:  cfg,
		deps: deps,
		log:  deps.Logger.With(zap.String("session_id", id)),
	}
	m.s = m.freshSession()
	m.lastActivity = m.now()
	return m
}

func (m *Machine) ID() string { return m.id }

func (m *Machine) now() time.Time { return m.deps.Scheduler.Now() }

func (m *Machine) freshSession() session {
	return session{state: model.StateIdle, request: model.DefaultRequest(m.now())}
}

// RequestQuotes validates req, discards the current session's quotes,
// selection and in-flight work, and submits req to the quote provider.
// It is valid from any state. A validation error leaves the session untouched.
func (m *Machine) RequestQuotes(req model.RFQRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if err := req.Validate(m.now()); err != nil {
		return err
	}
	m.lastActivity = m.now()

	from := m.s.state
	m.resetLocked()
	m.s = session{
		state:    model.StateRequesting,
		request:  req,
		window:   m.cfg.WindowSeconds,
		listOpen: true,
	}
	m.opsCtx, m.cancelOps = context.WithCancel(context.Background())
	m.startTickerLocked()
	m.emitLocked(from, "quotes_requested")

	m.log.Info("rfq.request_quotes",
		zap.String("pair", string(req.Pair)),
		zap.String("option_type", string(req.OptionType)),
		zap.String("notional", req.Notional.String()),
		zap.String("strike", req.Strike.String()),
		zap.String("expiry", req.ExpiryDate.Format(model.DateLayout)))

	go m.fetchQuotes(m.opsCtx, m.gen, req)
	return nil
}

func (m *Machine) fetchQuotes(ctx context.Context, gen uint64, req model.RFQRequest) {
	qctx, cancel := withTimeout(ctx, m.cfg.QuoteTimeout)
	defer cancel()

	batch, err := guard(func() ([]model.Quote, error) {
		return m.deps.Quotes.RequestQuotes(qctx, req)
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.s.state != model.StateRequesting {
		m.log.Debug("rfq.stale_quote_batch_dropped", zap.Int("size", len(batch)))
		return
	}
	if err != nil {
		m.log.Warn("rfq.quote_request_failed", zap.Error(err))
		m.failLocked(fmt.Sprintf("Quote request failed: %v", err), "quote_failed")
		return
	}

	m.s.quotes = m.acceptBatch(batch)
	m.s.state = model.StateQuotesLive
	metrics.ObserveQuoteBatch(len(m.s.quotes))
	m.emitLocked(model.StateRequesting, "quotes_received")
}

// acceptBatch drops quotes without an ID and repeated IDs (first arrival wins).
func (m *Machine) acceptBatch(batch []model.Quote) []model.Quote {
	now := m.now()
	seen := make(map[string]struct{}, len(batch))
	out := make([]model.Quote, 0, len(batch))
	for _, q := range batch {
		if q.ID == "" {
			m.log.Warn("rfq.quote_without_id_dropped", zap.String("maker", q.Maker))
			continue
		}
		if _, dup := seen[q.ID]; dup {
			m.log.Warn("rfq.duplicate_quote_dropped", zap.String("quote_id", q.ID))
			continue
		}
		seen[q.ID] = struct{}{}
		if q.ReceivedAt.IsZero() {
			q.ReceivedAt = now
		}
		out = append(out, q)
	}
	return out
}

// SelectQuote picks a quote from the live batch. It is rejected without
// side effects when the state does not allow selection, the window has
// expired or id is not in the batch.
func (m *Machine) SelectQuote(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.s.state != model.StateQuotesLive && m.s.state != model.StateQuoteSelected {
		return fmt.Errorf("%w: cannot select a quote in %s", ErrInvalidTransition, m.s.state)
	}
	if m.s.window == 0 {
		return ErrWindowExpired
	}
	if _, ok := m.findQuote(id); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownQuote, id)
	}
	m.lastActivity = m.now()

	from := m.s.state
	m.s.selectedID = id
	m.s.state = model.StateQuoteSelected
	m.s.listOpen = false
	m.s.errMsg = ""
	m.emitLocked(from, "quote_selected")
	return nil
}

// ExecuteTrade starts signing the selected quote. Without a selection, or
// once the window has expired, the session moves to ERROR and the cause is
// returned. Calls while a trade is in flight or done change nothing.
func (m *Machine) ExecuteTrade() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.s.state.Executing() {
		return fmt.Errorf("%w: session is %s", ErrExecutionInFlight, m.s.state)
	}
	m.lastActivity = m.now()

	quote, selected := m.findQuote(m.s.selectedID)
	if m.s.state != model.StateQuoteSelected || !selected {
		m.failLocked(MsgNoQuoteSelected, "execute_without_selection")
		return ErrNoQuoteSelected
	}
	if m.s.window == 0 {
		m.failLocked(MsgWindowExpired, "execute_after_expiry")
		return ErrWindowExpired
	}

	m.stopTickerLocked()
	m.s.state = model.StateSigning
	m.s.errMsg = ""
	m.emitLocked(model.StateQuoteSelected, "execute_requested")

	m.log.Info("rfq.execute_trade",
		zap.String("quote_id", quote.ID),
		zap.String("maker", quote.Maker),
		zap.String("premium", quote.Premium.String()))

	go m.execute(m.opsCtx, m.gen, quote)
	return nil
}

func (m *Machine) execute(ctx context.Context, gen uint64, quote model.Quote) {
	sctx, cancel := withTimeout(ctx, m.cfg.SignTimeout)
	commitment, err := guard(func() (model.Commitment, error) {
		return m.deps.Executor.Sign(sctx, quote)
	})
	cancel()

	if !m.applySigned(gen, commitment, err) {
		return
	}

	cctx, cancel := withTimeout(ctx, m.cfg.ConfirmTimeout)
	settlement, err := guard(func() (model.Settlement, error) {
		return m.deps.Executor.Confirm(cctx, commitment)
	})
	cancel()

	m.applyConfirmed(gen, settlement, err)
}

func (m *Machine) applySigned(gen uint64, c model.Commitment, err error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.s.state != model.StateSigning {
		return false
	}
	if err != nil {
		m.log.Warn("rfq.sign_failed", zap.Error(err))
		m.failLocked(fmt.Sprintf("Signing failed: %v", err), "sign_failed")
		return false
	}
	m.s.commitment = &c
	m.s.state = model.StatePending
	m.emitLocked(model.StateSigning, "signed")
	return true
}

func (m *Machine) applyConfirmed(gen uint64, st model.Settlement, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.s.state != model.StatePending {
		return
	}
	if err != nil {
		m.log.Warn("rfq.confirm_failed", zap.Error(err))
		m.failLocked(fmt.Sprintf("Confirmation failed: %v", err), "confirm_failed")
		return
	}
	m.s.settlement = &st
	m.s.state = model.StateDone
	m.emitLocked(model.StatePending, "confirmed")
	m.log.Info("rfq.trade_done",
		zap.String("settlement_id", st.ID),
		zap.String("status", st.Status))
}

// Clear cancels everything the session owns and resets it to a fresh IDLE
// session with the default request.
func (m *Machine) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.lastActivity = m.now()
	from := m.s.state
	m.resetLocked()
	m.s = m.freshSession()
	m.emitLocked(from, "cleared")
	return nil
}

// Close tears the session down. Further commands return ErrClosed.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.resetLocked()
	m.closed = true
	m.log.Debug("rfq.session_closed")
}

func (m *Machine) tick(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.closed {
		return
	}
	if !m.s.state.Live() || m.s.window <= 0 {
		m.stopTickerLocked()
		return
	}

	m.s.window--
	reason := "tick"
	if m.s.window == 0 {
		m.stopTickerLocked()
		reason = "window_closed"
		if m.s.state == model.StateQuoteSelected {
			m.s.errMsg = MsgWindowExpired
			reason = "window_expired"
			metrics.IncWindowExpired()
			m.log.Info("rfq.window_expired", zap.String("quote_id", m.s.selectedID))
		}
	}
	m.emitLocked(m.s.state, reason)
}

func (m *Machine) startTickerLocked() {
	gen := m.gen
	m.ticker = m.deps.Scheduler.Every(m.cfg.TickInterval, func() { m.tick(gen) })
}

func (m *Machine) stopTickerLocked() {
	if m.ticker != nil {
		m.ticker.Stop()
		m.ticker = nil
	}
}

// resetLocked invalidates every callback and operation of the current generation.
func (m *Machine) resetLocked() {
	m.gen++
	m.stopTickerLocked()
	if m.cancelOps != nil {
		m.cancelOps()
		m.cancelOps = nil
	}
	m.opsCtx = nil
}

func (m *Machine) failLocked(msg, reason string) {
	from := m.s.state
	m.stopTickerLocked()
	if m.cancelOps != nil {
		m.cancelOps()
		m.cancelOps = nil
	}
	m.s.state = model.StateError
	m.s.errMsg = msg
	m.s.listOpen = false
	m.emitLocked(from, reason)
}

func (m *Machine) findQuote(id string) (model.Quote, bool) {
	if id == "" {
		return model.Quote{}, false
	}
	for _, q := range m.s.quotes {
		if q.ID == id {
			return q, true
		}
	}
	return model.Quote{}, false
}

func (m *Machine) emitLocked(from model.State, reason string) {
	m.seq++
	to := m.s.state
	if from != to {
		metrics.IncTransition(string(from), string(to))
		m.log.Info("rfq.transition",
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.String("reason", reason))
	}
	if m.deps.Notify == nil {
		return
	}
	m.deps.Notify(model.SessionEvent{
		ID:        uuid.New(),
		SessionID: m.id,
		Seq:       m.seq,
		From:      from,
		To:        to,
		Reason:    reason,
		Timestamp: m.now().UTC(),
		Snapshot:  m.snapshotLocked(),
	})
}

// Snapshot returns a copy of the session for display.
func (m *Machine) Snapshot() model.SessionSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() model.SessionSnapshot {
	snap := model.SessionSnapshot{
		ID:                     m.id,
		Seq:                    m.seq,
		State:                  m.s.state,
		Request:                m.s.request,
		Quotes:                 Rank(m.s.quotes),
		SelectedQuoteID:        m.s.selectedID,
		WindowRemainingSeconds: m.s.window,
		Expired:                m.s.state.Live() && m.s.window == 0,
		ErrorMessage:           m.s.errMsg,
		QuoteListOpen:          m.s.listOpen,
		UpdatedAt:              m.now().UTC(),
	}
	if m.s.commitment != nil {
		c := *m.s.commitment
		snap.Commitment = &c
	}
	if m.s.settlement != nil {
		st := *m.s.settlement
		snap.Settlement = &st
	}
	if m.deps.Pricing != nil && m.s.state != model.StateIdle {
		snap.Indicative = m.deps.Pricing.Indicative(m.s.request)
	}
	if m.deps.Spot != nil {
		obs := m.deps.Spot.Spot(m.s.request.Pair)
		snap.Spot = &obs
		if m.deps.Pricing != nil {
			snap.Moneyness = m.deps.Pricing.Moneyness(m.s.request, obs.Rate)
		}
	}
	return snap
}

// State returns the current lifecycle state.
func (m *Machine) State() model.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.state
}

// LastActivity is the time of the last accepted command.
func (m *Machine) LastActivity() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActivity
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// guard converts a collaborator panic into an error.
func guard[T any](fn func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
