package quotes

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Checker-Finance/fxo-desk/pkg/model"
)

// QuoteRequest is the wire form of an RFQ sent to liquidity providers.
type QuoteRequest struct {
	RequestID  string          `json:"request_id"`
	Pair       string          `json:"pair"`
	OptionType string          `json:"option_type"`
	Notional   decimal.Decimal `json:"notional"`
	Strike     decimal.Decimal `json:"strike"`
	ExpiryDate string          `json:"expiry_date"` // YYYY-MM-DD
}

// QuoteResponse is a provider's reply.
type QuoteResponse struct {
	Quotes []WireQuote `json:"quotes"`
	Error  string      `json:"error,omitempty"`
}

type WireQuote struct {
	ID        string          `json:"id"`
	Maker     string          `json:"maker"`
	Premium   decimal.Decimal `json:"premium"`
	Fees      decimal.Decimal `json:"fees"`
	SpreadBps int             `json:"spread_bps"`
}

func toWire(requestID string, req model.RFQRequest) QuoteRequest {
	return QuoteRequest{
		RequestID:  requestID,
		Pair:       string(req.Pair),
		OptionType: string(req.OptionType),
		Notional:   req.Notional,
		Strike:     req.Strike,
		ExpiryDate: req.ExpiryDate.Format(model.DateLayout),
	}
}

// fromWire converts a reply, stamping arrival time and a fallback maker name.
func fromWire(resp QuoteResponse, maker string, at time.Time) []model.Quote {
	out := make([]model.Quote, 0, len(resp.Quotes))
	for _, q := range resp.Quotes {
		name := q.Maker
		if name == "" {
			name = maker
		}
		out = append(out, model.Quote{
			ID:         q.ID,
			Maker:      name,
			Premium:    q.Premium,
			Fees:       q.Fees,
			SpreadBps:  q.SpreadBps,
			ReceivedAt: at,
		})
	}
	return out
}
