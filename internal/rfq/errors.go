package rfq

import "errors"

var (
	ErrClosed            = errors.New("rfq: session closed")
	ErrInvalidTransition = errors.New("rfq: invalid transition")
	ErrWindowExpired     = errors.New("rfq: quote window expired")
	ErrUnknownQuote      = errors.New("rfq: unknown quote")
	ErrNoQuoteSelected   = errors.New("rfq: no quote selected")
	ErrExecutionInFlight = errors.New("rfq: trade already in flight")
)

// Messages surfaced through the session's ErrorMessage.
const (
	MsgWindowExpired   = "Quote window expired. Request new quotes to continue."
	MsgNoQuoteSelected = "Select a quote before executing."
)
