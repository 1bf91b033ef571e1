package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/Checker-Finance/fxo-desk/pkg/model"
)

// QuoteRequestBody is the payload of POST /api/v1/sessions/:id/quotes.
// Amounts are strings so "2,200.00" is accepted.
type QuoteRequestBody struct {
	Pair       string `json:"pair" validate:"required,oneof=USDC/cNGN USDC/KES"`
	OptionType string `json:"option_type" validate:"required,oneof=call put"`
	Notional   string `json:"notional" validate:"required"`
	Strike     string `json:"strike" validate:"required"`
	ExpiryDate string `json:"expiry_date" validate:"required,datetime=2006-01-02"`
}

// SelectQuoteBody is the payload of POST /api/v1/sessions/:id/select.
type SelectQuoteBody struct {
	QuoteID string `json:"quote_id" validate:"required"`
}

var validate = validator.New()

// validationMessage flattens validator errors into one line.
func validationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of [%s]", field, fe.Param()))
		case "datetime":
			parts = append(parts, field+" must be a date (YYYY-MM-DD)")
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

// ParseAmount parses a plain decimal amount that may contain thousands
// separators. Exponent notation is rejected.
func ParseAmount(s string) (decimal.Decimal, error) {
	clean := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if clean == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	if strings.ContainsAny(clean, "eE") {
		return decimal.Zero, fmt.Errorf("amount %q: exponent notation not accepted", s)
	}
	return decimal.NewFromString(clean)
}

// toRFQRequest converts the body into a domain request. Range checks are
// left to RFQRequest.Validate.
func (b QuoteRequestBody) toRFQRequest() (model.RFQRequest, error) {
	if err := validate.Struct(b); err != nil {
		return model.RFQRequest{}, fmt.Errorf("%w: %s", model.ErrInvalidRequest, validationMessage(err))
	}
	notional, err := ParseAmount(b.Notional)
	if err != nil {
		return model.RFQRequest{}, fmt.Errorf("%w: notional %q is not a number", model.ErrInvalidRequest, b.Notional)
	}
	strike, err := ParseAmount(b.Strike)
	if err != nil {
		return model.RFQRequest{}, fmt.Errorf("%w: strike %q is not a number", model.ErrInvalidRequest, b.Strike)
	}
	expiry, err := time.Parse(model.DateLayout, b.ExpiryDate)
	if err != nil {
		return model.RFQRequest{}, fmt.Errorf("%w: expiry date %q", model.ErrInvalidRequest, b.ExpiryDate)
	}
	return model.RFQRequest{
		Pair:       model.Pair(b.Pair),
		OptionType: model.OptionType(b.OptionType),
		Notional:   notional,
		Strike:     strike,
		ExpiryDate: expiry,
	}, nil
}
