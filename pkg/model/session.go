package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// State is the lifecycle state of an RFQ session.
type State string

const (
	StateIdle          State = "IDLE"
	StateRequesting    State = "REQUESTING"
	StateQuotesLive    State = "QUOTES_LIVE"
	StateQuoteSelected State = "QUOTE_SELECTED"
	StateSigning       State = "SIGNING"
	StatePending       State = "PENDING"
	StateDone          State = "DONE"
	StateError         State = "ERROR"
)

// Live reports whether the quote window counts down in this state.
func (s State) Live() bool {
	switch s {
	case StateRequesting, StateQuotesLive, StateQuoteSelected:
		return true
	}
	return false
}

// Executing reports whether a trade is in flight or complete.
func (s State) Executing() bool {
	switch s {
	case StateSigning, StatePending, StateDone:
		return true
	}
	return false
}

// Moneyness of the strike relative to live spot.
type Moneyness string

const (
	MoneynessUnknown Moneyness = ""
	MoneynessITM     Moneyness = "ITM"
	MoneynessATM     Moneyness = "ATM"
	MoneynessOTM     Moneyness = "OTM"
)

// Scenario is one row of the payout preview.
type Scenario struct {
	Label  string          `json:"label"`
	Spot   decimal.Decimal `json:"spot"`
	Payout decimal.Decimal `json:"payout"`
}

// Indicative is the placeholder pricing block shown before quotes arrive.
type Indicative struct {
	Contracts  decimal.Decimal `json:"contracts"`
	Premium    decimal.Decimal `json:"premium"`
	PremiumPct decimal.Decimal `json:"premium_pct"`
	MaxPayout  string          `json:"max_payout"`
	Scenarios  []Scenario      `json:"scenarios"`
}

// SessionSnapshot is a read-only view of a session.
type SessionSnapshot struct {
	ID                     string           `json:"id"`
	Seq                    uint64           `json:"seq"`
	State                  State            `json:"state"`
	Request                RFQRequest       `json:"request"`
	Quotes                 []Quote          `json:"quotes"` // ranked, best premium first
	SelectedQuoteID        string           `json:"selected_quote_id,omitempty"`
	WindowRemainingSeconds int              `json:"window_remaining_seconds"`
	Expired                bool             `json:"expired"`
	ErrorMessage           string           `json:"error_message,omitempty"`
	QuoteListOpen          bool             `json:"quote_list_open"`
	Commitment             *Commitment      `json:"commitment,omitempty"`
	Settlement             *Settlement      `json:"settlement,omitempty"`
	Indicative             *Indicative      `json:"indicative,omitempty"`
	Spot                   *SpotObservation `json:"spot,omitempty"`
	Moneyness              Moneyness        `json:"moneyness,omitempty"`
	UpdatedAt              time.Time        `json:"updated_at"`
}

// SessionEvent is emitted on every session mutation.
type SessionEvent struct {
	ID        uuid.UUID       `json:"id"`
	SessionID string          `json:"session_id"`
	Seq       uint64          `json:"seq"`
	From      State           `json:"from"`
	To        State           `json:"to"`
	Reason    string          `json:"reason"`
	Timestamp time.Time       `json:"timestamp"`
	Snapshot  SessionSnapshot `json:"snapshot"`
}

// Transition reports whether the event changed state.
func (e SessionEvent) Transition() bool {
	return e.From != e.To
}

// Final reports whether the event entered DONE or ERROR.
func (e SessionEvent) Final() bool {
	return e.Transition() && (e.To == StateDone || e.To == StateError)
}
