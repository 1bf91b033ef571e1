package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a liquidity provider's offer for an outstanding request.
// Quotes are never mutated after they are received.
type Quote struct {
	ID         string          `json:"id"`
	Maker      string          `json:"maker"`
	Premium    decimal.Decimal `json:"premium"` // quote currency
	Fees       decimal.Decimal `json:"fees"`
	SpreadBps  int             `json:"spread_bps"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Commitment is the result of the signing step ("wallet signature obtained").
type Commitment struct {
	ID       string    `json:"id"`
	QuoteID  string    `json:"quote_id"`
	Maker    string    `json:"maker"`
	SignedAt time.Time `json:"signed_at"`
}

// Settlement is the result of the confirmation step ("transaction confirmed").
type Settlement struct {
	ID           string    `json:"id"`
	CommitmentID string    `json:"commitment_id"`
	Status       string    `json:"status"`
	Reference    string    `json:"reference,omitempty"`
	SettledAt    time.Time `json:"settled_at"`
}

// SpotObservation is the latest oracle reading for a pair.
// A nil Rate means the price is unavailable.
type SpotObservation struct {
	Pair       Pair             `json:"pair"`
	Rate       *decimal.Decimal `json:"rate"`
	ObservedAt time.Time        `json:"observed_at"`
	Source     string           `json:"source,omitempty"`
	LastError  string           `json:"last_error,omitempty"`
}

func (s SpotObservation) Available() bool {
	return s.Rate != nil
}
