package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidRequest wraps every RFQ request validation failure.
var ErrInvalidRequest = errors.New("invalid rfq request")

// Pair is a supported base/quote currency pair.
type Pair string

const (
	PairUSDCcNGN Pair = "USDC/cNGN"
	PairUSDCKES  Pair = "USDC/KES"
)

// DefaultPair is the pair a fresh session starts with.
const DefaultPair = PairUSDCKES

// SupportedPairs lists pairs in display order.
var SupportedPairs = []Pair{PairUSDCcNGN, PairUSDCKES}

func (p Pair) Valid() bool {
	for _, s := range SupportedPairs {
		if p == s {
			return true
		}
	}
	return false
}

// Base returns the base currency ("USDC" for "USDC/KES").
func (p Pair) Base() string {
	base, _, _ := strings.Cut(string(p), "/")
	return base
}

// Quote returns the quote currency ("KES" for "USDC/KES").
func (p Pair) Quote() string {
	_, quote, _ := strings.Cut(string(p), "/")
	return quote
}

// OptionType is call or put.
type OptionType string

const (
	OptionCall OptionType = "call"
	OptionPut  OptionType = "put"
)

func (o OptionType) Valid() bool {
	return o == OptionCall || o == OptionPut
}

// DateLayout is the wire format of expiry dates.
const DateLayout = "2006-01-02"

// RFQRequest carries the trade parameters a taker submits for quoting.
type RFQRequest struct {
	Pair       Pair            `json:"pair"`
	OptionType OptionType      `json:"option_type"`
	Notional   decimal.Decimal `json:"notional"` // base currency
	Strike     decimal.Decimal `json:"strike"`   // quote currency per base
	ExpiryDate time.Time       `json:"expiry_date"`
}

// DefaultRequest returns the parameters of a freshly cleared session.
func DefaultRequest(now time.Time) RFQRequest {
	return RFQRequest{
		Pair:       DefaultPair,
		OptionType: OptionCall,
		Notional:   decimal.Zero,
		Strike:     decimal.NewFromInt(2200),
		ExpiryDate: DateOf(now).AddDate(0, 0, 30),
	}
}

// Amount bounds for notional and strike.
const (
	MaxAmountExponent = 15  // at most 1e15
	MinAmountExponent = -18 // at most 18 decimal places
)

var maxAmount = decimal.New(1, MaxAmountExponent)

// checkAmount rejects non-positive amounts and amounts outside the bounds.
// The exponent is checked before any comparison that would rescale d.
func checkAmount(name string, d decimal.Decimal) error {
	if !d.IsPositive() {
		return fmt.Errorf("%w: %s must be positive", ErrInvalidRequest, name)
	}
	if d.Exponent() < MinAmountExponent {
		return fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidRequest, name, -MinAmountExponent)
	}
	if d.Exponent() > MaxAmountExponent || d.GreaterThan(maxAmount) {
		return fmt.Errorf("%w: %s exceeds %s", ErrInvalidRequest, name, maxAmount.String())
	}
	return nil
}

// Validate checks the request against the calendar date of today.
func (r RFQRequest) Validate(today time.Time) error {
	if !r.Pair.Valid() {
		return fmt.Errorf("%w: unsupported pair %q", ErrInvalidRequest, r.Pair)
	}
	if !r.OptionType.Valid() {
		return fmt.Errorf("%w: unknown option type %q", ErrInvalidRequest, r.OptionType)
	}
	if err := checkAmount("notional", r.Notional); err != nil {
		return err
	}
	if err := checkAmount("strike", r.Strike); err != nil {
		return err
	}
	if r.ExpiryDate.IsZero() {
		return fmt.Errorf("%w: expiry date is required", ErrInvalidRequest)
	}
	if DateOf(r.ExpiryDate).Before(DateOf(today)) {
		return fmt.Errorf("%w: expiry date %s is in the past", ErrInvalidRequest, r.ExpiryDate.Format(DateLayout))
	}
	return nil
}

// DateOf truncates t to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
