package rfq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Checker-Finance/fxo-desk/internal/pricing"
	"github.com/Checker-Finance/fxo-desk/internal/sched"
	"github.com/Checker-Finance/fxo-desk/pkg/model"
)

var epoch = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

// ─── Test doubles ────────────────────────────────────────────────────────────

// gatedProvider blocks every call until the test releases it.
type gatedProvider struct {
	mu    sync.Mutex
	gates []chan reply
	reqs  []model.RFQRequest
}

type reply struct {
	quotes []model.Quote
	err    error
}

func (p *gatedProvider) RequestQuotes(ctx context.Context, req model.RFQRequest) ([]model.Quote, error) {
	gate := make(chan reply, 1)
	p.mu.Lock()
	p.gates = append(p.gates, gate)
	p.reqs = append(p.reqs, req)
	p.mu.Unlock()

	select {
	case r := <-gate:
		return r.quotes, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *gatedProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.gates)
}

func (p *gatedProvider) release(t *testing.T, call int, quotes []model.Quote, err error) {
	t.Helper()
	require.Eventually(t, func() bool { return p.calls() > call }, time.Second, time.Millisecond)
	p.mu.Lock()
	gate := p.gates[call]
	p.mu.Unlock()
	gate <- reply{quotes: quotes, err: err}
}

// delayProvider waits on the scheduler like the simulated provider does.
type delayProvider struct {
	sch   sched.Scheduler
	delay time.Duration
}

func (p *delayProvider) RequestQuotes(ctx context.Context, _ model.RFQRequest) ([]model.Quote, error) {
	done := make(chan struct{})
	p.sch.After(p.delay, func() { close(done) })
	select {
	case <-done:
		return []model.Quote{}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type panicProvider struct{}

func (panicProvider) RequestQuotes(context.Context, model.RFQRequest) ([]model.Quote, error) {
	panic("provider exploded")
}

type gatedExecutor struct {
	sign    chan error
	confirm chan error
}

func newGatedExecutor() *gatedExecutor {
	return &gatedExecutor{sign: make(chan error, 1), confirm: make(chan error, 1)}
}

func (e *gatedExecutor) Sign(ctx context.Context, q model.Quote) (model.Commitment, error) {
	select {
	case err := <-e.sign:
		if err != nil {
			return model.Commitment{}, err
		}
		return model.Commitment{ID: "cm-" + q.ID, QuoteID: q.ID, Maker: q.Maker, SignedAt: epoch}, nil
	case <-ctx.Done():
		return model.Commitment{}, ctx.Err()
	}
}

func (e *gatedExecutor) Confirm(ctx context.Context, c model.Commitment) (model.Settlement, error) {
	select {
	case err := <-e.confirm:
		if err != nil {
			return model.Settlement{}, err
		}
		return model.Settlement{ID: "st-" + c.ID, CommitmentID: c.ID, Status: "filled", SettledAt: epoch}, nil
	case <-ctx.Done():
		return model.Settlement{}, ctx.Err()
	}
}

type fixedSpot map[model.Pair]*decimal.Decimal

func (f fixedSpot) Spot(p model.Pair) model.SpotObservation {
	return model.SpotObservation{Pair: p, Rate: f[p]}
}

type recorder struct {
	mu     sync.Mutex
	events []model.SessionEvent
}

func (r *recorder) notify(e model.SessionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) transitions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e.Transition() {
			out = append(out, fmt.Sprintf("%s>%s", e.From, e.To))
		}
	}
	return out
}

type harness struct {
	m    *Machine
	sch  *sched.Manual
	lp   *gatedProvider
	exec *gatedExecutor
	rec  *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		sch:  sched.NewManual(epoch),
		lp:   &gatedProvider{},
		exec: newGatedExecutor(),
		rec:  &recorder{},
	}
	h.m = NewMachine("s-1", DefaultConfig(), Deps{
		Scheduler: h.sch,
		Quotes:    h.lp,
		Executor:  h.exec,
		Pricing:   pricing.NewLinear(decimal.Zero, decimal.Zero),
		Notify:    h.rec.notify,
	})
	t.Cleanup(h.m.Close)
	return h
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func request() model.RFQRequest {
	return model.RFQRequest{
		Pair:       model.PairUSDCcNGN,
		OptionType: model.OptionCall,
		Notional:   dec("10000"),
		Strike:     dec("2200"),
		ExpiryDate: epoch.AddDate(0, 0, 14),
	}
}

func batch() []model.Quote {
	return []model.Quote{
		{ID: "q-a", Maker: "maker-a", Premium: dec("61.20"), Fees: dec("0.5"), SpreadBps: 12},
		{ID: "q-b", Maker: "maker-b", Premium: dec("59.90"), Fees: dec("0.7"), SpreadBps: 9},
	}
}

func (h *harness) waitState(t *testing.T, want model.State) {
	t.Helper()
	require.Eventually(t, func() bool { return h.m.State() == want }, time.Second, time.Millisecond,
		"expected state %s, have %s", want, h.m.State())
}

// live brings the session to QUOTES_LIVE with batch().
func (h *harness) live(t *testing.T) {
	t.Helper()
	call := h.lp.calls()
	require.NoError(t, h.m.RequestQuotes(request()))
	h.lp.release(t, call, batch(), nil)
	h.waitState(t, model.StateQuotesLive)
}

// ─── Initial state & validation ──────────────────────────────────────────────

func TestMachine_StartsIdle(t *testing.T) {
	h := newHarness(t)
	snap := h.m.Snapshot()
	assert.Equal(t, model.StateIdle, snap.State)
	assert.Empty(t, snap.Quotes)
	assert.Empty(t, snap.SelectedQuoteID)
	assert.Zero(t, snap.WindowRemainingSeconds)
	assert.Nil(t, snap.Indicative, "indicative block is hidden while IDLE")
	assert.Equal(t, model.PairUSDCKES, snap.Request.Pair)
}

func TestRequestQuotes_ValidationBlocksTransition(t *testing.T) {
	h := newHarness(t)
	req := request()
	req.Notional = decimal.Zero

	err := h.m.RequestQuotes(req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInvalidRequest))
	assert.Equal(t, model.StateIdle, h.m.State())
	assert.Equal(t, 0, h.lp.calls(), "no submission on validation failure")
	assert.Empty(t, h.rec.transitions())
}

// ─── Indicative premium ──────────────────────────────────────────────────────

func TestRequestQuotes_IndicativePremiumOnceActive(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.RequestQuotes(request()))

	snap := h.m.Snapshot()
	assert.Equal(t, model.StateRequesting, snap.State)
	assert.True(t, snap.QuoteListOpen)
	assert.Equal(t, 30, snap.WindowRemainingSeconds)
	require.NotNil(t, snap.Indicative)
	want := dec("10000").Div(dec("2200")).Mul(dec("13.33"))
	assert.True(t, snap.Indicative.Premium.Equal(want))
}

// ─── Quote arrival ───────────────────────────────────────────────────────────

func TestRequestQuotes_QuotesLiveAfterDelay(t *testing.T) {
	sch := sched.NewManual(epoch)
	m := NewMachine("s-2", DefaultConfig(), Deps{
		Scheduler: sch,
		Quotes:    &delayProvider{sch: sch, delay: 1400 * time.Millisecond},
		Executor:  newGatedExecutor(),
	})
	defer m.Close()

	require.NoError(t, m.RequestQuotes(request()))
	// countdown ticker + provider delay
	require.Eventually(t, func() bool { return sch.Pending() == 2 }, time.Second, time.Millisecond)

	sch.Advance(1399 * time.Millisecond)
	assert.Equal(t, model.StateRequesting, m.State())

	sch.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return m.State() == model.StateQuotesLive }, time.Second, time.Millisecond)

	snap := m.Snapshot()
	assert.Empty(t, snap.Quotes, "simulated batch is empty")
	assert.Equal(t, 29, snap.WindowRemainingSeconds)
}

func TestRequestQuotes_ProviderErrorMovesToError(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.RequestQuotes(request()))
	h.lp.release(t, 0, nil, errors.New("lp unavailable"))

	h.waitState(t, model.StateError)
	assert.Contains(t, h.m.Snapshot().ErrorMessage, "lp unavailable")
	assert.Equal(t, 0, h.sch.Pending(), "countdown stops outside live states")
}

func TestRequestQuotes_ProviderPanicIsContained(t *testing.T) {
	sch := sched.NewManual(epoch)
	m := NewMachine("s-3", DefaultConfig(), Deps{Scheduler: sch, Quotes: panicProvider{}, Executor: newGatedExecutor()})
	defer m.Close()

	require.NoError(t, m.RequestQuotes(request()))
	require.Eventually(t, func() bool { return m.State() == model.StateError }, time.Second, time.Millisecond)
	assert.Contains(t, m.Snapshot().ErrorMessage, "provider exploded")
}

func TestRequestQuotes_StaleBatchDropped(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.RequestQuotes(request()))
	require.NoError(t, h.m.RequestQuotes(request()))

	stale := []model.Quote{{ID: "old", Maker: "x", Premium: dec("1")}}
	h.lp.release(t, 0, stale, nil)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, model.StateRequesting, h.m.State(), "superseded delivery must not apply")

	h.lp.release(t, 1, batch(), nil)
	h.waitState(t, model.StateQuotesLive)
	snap := h.m.Snapshot()
	require.Len(t, snap.Quotes, 2)
	for _, q := range snap.Quotes {
		assert.NotEqual(t, "old", q.ID)
	}
}

func TestRequestQuotes_DuplicateIDsKeepFirst(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.RequestQuotes(request()))
	h.lp.release(t, 0, []model.Quote{
		{ID: "q-1", Maker: "first", Premium: dec("10")},
		{ID: "q-1", Maker: "second", Premium: dec("5")},
		{ID: "", Maker: "anon", Premium: dec("1")},
		{ID: "q-2", Maker: "other", Premium: dec("12")},
	}, nil)
	h.waitState(t, model.StateQuotesLive)

	snap := h.m.Snapshot()
	require.Len(t, snap.Quotes, 2)
	assert.Equal(t, "first", snap.Quotes[0].Maker)
	assert.False(t, snap.Quotes[0].ReceivedAt.IsZero())
}

func TestRequestQuotes_RankedBestPremiumFirst(t *testing.T) {
	h := newHarness(t)
	h.live(t)
	snap := h.m.Snapshot()
	require.Len(t, snap.Quotes, 2)
	assert.Equal(t, "q-b", snap.Quotes[0].ID)
	assert.Equal(t, "q-a", snap.Quotes[1].ID)
}

// ─── Quote window ────────────────────────────────────────────────────────────

func TestWindow_ReachesZeroAfterExactlyWindowTicks(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.RequestQuotes(request()))

	for i := 1; i < 30; i++ {
		h.sch.Advance(time.Second)
		require.Equal(t, 30-i, h.m.Snapshot().WindowRemainingSeconds)
	}
	h.sch.Advance(time.Second)
	assert.Equal(t, 0, h.m.Snapshot().WindowRemainingSeconds)

	h.sch.Advance(time.Minute)
	assert.Equal(t, 0, h.m.Snapshot().WindowRemainingSeconds, "never negative")
	assert.Equal(t, 0, h.sch.Pending(), "countdown released at zero")
}

func TestWindow_ResetSessionIgnoresOldTicker(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.RequestQuotes(request()))
	h.sch.Advance(5 * time.Second)
	require.Equal(t, 25, h.m.Snapshot().WindowRemainingSeconds)

	require.NoError(t, h.m.RequestQuotes(request()))
	h.sch.Advance(time.Second)
	assert.Equal(t, 29, h.m.Snapshot().WindowRemainingSeconds)
	assert.Equal(t, 1, h.sch.Pending())
}

// ─── Selection ───────────────────────────────────────────────────────────────

func TestSelectQuote_Success(t *testing.T) {
	h := newHarness(t)
	h.live(t)

	require.NoError(t, h.m.SelectQuote("q-a"))
	snap := h.m.Snapshot()
	assert.Equal(t, model.StateQuoteSelected, snap.State)
	assert.Equal(t, "q-a", snap.SelectedQuoteID)
	assert.False(t, snap.QuoteListOpen)

	require.NoError(t, h.m.SelectQuote("q-b"), "reselect while QUOTE_SELECTED")
	assert.Equal(t, "q-b", h.m.Snapshot().SelectedQuoteID)
}

func TestSelectQuote_Rejections(t *testing.T) {
	h := newHarness(t)

	err := h.m.SelectQuote("q-a")
	assert.True(t, errors.Is(err, ErrInvalidTransition), "IDLE")

	h.live(t)
	err = h.m.SelectQuote("nope")
	assert.True(t, errors.Is(err, ErrUnknownQuote))
	assert.Equal(t, model.StateQuotesLive, h.m.State())
}

func TestSelectQuote_NoOpAfterExpiry(t *testing.T) {
	h := newHarness(t)
	h.live(t)
	h.sch.Advance(30 * time.Second)

	before := h.m.Snapshot()
	require.Equal(t, 0, before.WindowRemainingSeconds)
	require.True(t, before.Expired)

	err := h.m.SelectQuote("q-a")
	assert.True(t, errors.Is(err, ErrWindowExpired))

	after := h.m.Snapshot()
	assert.Equal(t, before.Seq, after.Seq, "no event emitted")
	assert.Equal(t, before.State, after.State)
	assert.Empty(t, after.SelectedQuoteID)
	assert.Equal(t, before.QuoteListOpen, after.QuoteListOpen)
}

// ─── Expiry while selected ───────────────────────────────────────────────────

func TestExpiry_WhileSelectedBlocksExecution(t *testing.T) {
	h := newHarness(t)
	h.live(t)
	require.NoError(t, h.m.SelectQuote("q-b"))

	h.sch.Advance(30 * time.Second)
	snap := h.m.Snapshot()
	assert.Equal(t, model.StateQuoteSelected, snap.State, "expiry does not force a transition")
	assert.Equal(t, MsgWindowExpired, snap.ErrorMessage)
	assert.True(t, snap.Expired)

	err := h.m.ExecuteTrade()
	assert.True(t, errors.Is(err, ErrWindowExpired))
	snap = h.m.Snapshot()
	assert.Equal(t, model.StateError, snap.State)
	assert.Equal(t, MsgWindowExpired, snap.ErrorMessage)
}

// ─── Execution ───────────────────────────────────────────────────────────────

func TestExecuteTrade_WithoutSelectionErrors(t *testing.T) {
	for _, setup := range []struct {
		name string
		prep func(*testing.T, *harness)
	}{
		{"idle", func(*testing.T, *harness) {}},
		{"requesting", func(t *testing.T, h *harness) { require.NoError(t, h.m.RequestQuotes(request())) }},
		{"quotes live", func(t *testing.T, h *harness) { h.live(t) }},
	} {
		t.Run(setup.name, func(t *testing.T) {
			h := newHarness(t)
			setup.prep(t, h)

			err := h.m.ExecuteTrade()
			assert.True(t, errors.Is(err, ErrNoQuoteSelected))
			snap := h.m.Snapshot()
			assert.Equal(t, model.StateError, snap.State)
			assert.Equal(t, MsgNoQuoteSelected, snap.ErrorMessage)
			assert.Equal(t, 0, h.sch.Pending())
		})
	}
}

func TestExecuteTrade_SigningPendingDone(t *testing.T) {
	h := newHarness(t)
	h.live(t)
	require.NoError(t, h.m.SelectQuote("q-b"))

	require.NoError(t, h.m.ExecuteTrade())
	assert.Equal(t, model.StateSigning, h.m.State())
	assert.Equal(t, 0, h.sch.Pending(), "countdown stops once signing starts")

	h.exec.sign <- nil
	h.waitState(t, model.StatePending)
	require.NotNil(t, h.m.Snapshot().Commitment)

	h.exec.confirm <- nil
	h.waitState(t, model.StateDone)

	snap := h.m.Snapshot()
	require.NotNil(t, snap.Settlement)
	assert.Equal(t, "st-cm-q-b", snap.Settlement.ID)
	assert.Equal(t, []string{
		"IDLE>REQUESTING",
		"REQUESTING>QUOTES_LIVE",
		"QUOTES_LIVE>QUOTE_SELECTED",
		"QUOTE_SELECTED>SIGNING",
		"SIGNING>PENDING",
		"PENDING>DONE",
	}, h.rec.transitions())
}

func TestExecuteTrade_RejectedWhileInFlight(t *testing.T) {
	h := newHarness(t)
	h.live(t)
	require.NoError(t, h.m.SelectQuote("q-a"))
	require.NoError(t, h.m.ExecuteTrade())

	seq := h.m.Snapshot().Seq
	err := h.m.ExecuteTrade()
	assert.True(t, errors.Is(err, ErrExecutionInFlight))
	assert.Equal(t, model.StateSigning, h.m.State())
	assert.Equal(t, seq, h.m.Snapshot().Seq)

	h.exec.sign <- nil
	h.exec.confirm <- nil
	h.waitState(t, model.StateDone)
	assert.True(t, errors.Is(h.m.ExecuteTrade(), ErrExecutionInFlight))
	assert.Equal(t, model.StateDone, h.m.State())
}

func TestExecuteTrade_SignFailure(t *testing.T) {
	h := newHarness(t)
	h.live(t)
	require.NoError(t, h.m.SelectQuote("q-a"))
	require.NoError(t, h.m.ExecuteTrade())

	h.exec.sign <- errors.New("user rejected signature")
	h.waitState(t, model.StateError)
	assert.Contains(t, h.m.Snapshot().ErrorMessage, "user rejected signature")
}

func TestExecuteTrade_ConfirmFailure(t *testing.T) {
	h := newHarness(t)
	h.live(t)
	require.NoError(t, h.m.SelectQuote("q-a"))
	require.NoError(t, h.m.ExecuteTrade())

	h.exec.sign <- nil
	h.waitState(t, model.StatePending)
	h.exec.confirm <- errors.New("reverted")
	h.waitState(t, model.StateError)
	assert.Contains(t, h.m.Snapshot().ErrorMessage, "reverted")
}

func TestExecuteTrade_ClearDuringSigningDiscardsResult(t *testing.T) {
	h := newHarness(t)
	h.live(t)
	require.NoError(t, h.m.SelectQuote("q-a"))
	require.NoError(t, h.m.ExecuteTrade())

	require.NoError(t, h.m.Clear())
	// the canceled sign call returns ctx.Err(); it must not surface as ERROR
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, model.StateIdle, h.m.State())
}

// ─── Clear / Close ───────────────────────────────────────────────────────────

func TestClear_FromAnyState(t *testing.T) {
	preps := map[string]func(*testing.T, *harness){
		"idle":       func(*testing.T, *harness) {},
		"requesting": func(t *testing.T, h *harness) { require.NoError(t, h.m.RequestQuotes(request())) },
		"selected": func(t *testing.T, h *harness) {
			h.live(t)
			require.NoError(t, h.m.SelectQuote("q-a"))
		},
		"done": func(t *testing.T, h *harness) {
			h.live(t)
			require.NoError(t, h.m.SelectQuote("q-a"))
			require.NoError(t, h.m.ExecuteTrade())
			h.exec.sign <- nil
			h.exec.confirm <- nil
			h.waitState(t, model.StateDone)
		},
		"error": func(t *testing.T, h *harness) { _ = h.m.ExecuteTrade() },
	}

	for name, prep := range preps {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			prep(t, h)

			require.NoError(t, h.m.Clear())
			snap := h.m.Snapshot()
			assert.Equal(t, model.StateIdle, snap.State)
			assert.Empty(t, snap.Quotes)
			assert.Empty(t, snap.SelectedQuoteID)
			assert.Zero(t, snap.WindowRemainingSeconds)
			assert.Empty(t, snap.ErrorMessage)
			assert.Nil(t, snap.Commitment)

			h.sch.Advance(time.Minute)
			assert.Zero(t, h.m.Snapshot().WindowRemainingSeconds)
			assert.Equal(t, 0, h.sch.Pending())
		})
	}
}

func TestClose_RejectsCommands(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.RequestQuotes(request()))
	h.m.Close()

	assert.ErrorIs(t, h.m.RequestQuotes(request()), ErrClosed)
	assert.ErrorIs(t, h.m.SelectQuote("q-a"), ErrClosed)
	assert.ErrorIs(t, h.m.ExecuteTrade(), ErrClosed)
	assert.ErrorIs(t, h.m.Clear(), ErrClosed)
	assert.Equal(t, 0, h.sch.Pending())
}

// ─── Spot & moneyness ────────────────────────────────────────────────────────

func TestSnapshot_SpotAndMoneyness(t *testing.T) {
	rate := dec("2400")
	sch := sched.NewManual(epoch)
	m := NewMachine("s-4", DefaultConfig(), Deps{
		Scheduler: sch,
		Quotes:    &gatedProvider{},
		Executor:  newGatedExecutor(),
		Spot:      fixedSpot{model.PairUSDCcNGN: &rate},
		Pricing:   pricing.NewLinear(decimal.Zero, decimal.Zero),
	})
	defer m.Close()

	require.NoError(t, m.RequestQuotes(request()))
	snap := m.Snapshot()
	require.NotNil(t, snap.Spot)
	assert.True(t, snap.Spot.Available())
	assert.Equal(t, model.MoneynessITM, snap.Moneyness)

	req := request()
	req.Pair = model.PairUSDCKES
	require.NoError(t, m.RequestQuotes(req))
	snap = m.Snapshot()
	assert.False(t, snap.Spot.Available())
	assert.Equal(t, model.MoneynessUnknown, snap.Moneyness)
}
