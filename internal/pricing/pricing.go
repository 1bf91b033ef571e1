// Package pricing holds the placeholder premium and moneyness logic.
// It is not an options pricing model; Model lets a real one replace it.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/Checker-Finance/fxo-desk/pkg/model"
)

// Model prices a request for display.
type Model interface {
	// Indicative returns nil when the premium is undefined (notional or strike not positive).
	Indicative(req model.RFQRequest) *model.Indicative
	// Moneyness returns MoneynessUnknown when spot is unavailable.
	Moneyness(req model.RFQRequest, spot *decimal.Decimal) model.Moneyness
}

var hundred = decimal.NewFromInt(100)

// scenarioSpots are the fixed preview spot levels per pair.
var scenarioSpots = map[model.Pair][]model.Scenario{
	model.PairUSDCcNGN: {
		{Label: "up", Spot: decimal.NewFromInt(2600)},
		{Label: "flat", Spot: decimal.NewFromInt(1500)},
	},
	model.PairUSDCKES: {
		{Label: "up", Spot: decimal.NewFromInt(160)},
		{Label: "flat", Spot: decimal.NewFromInt(130)},
	},
}

// Linear prices premium as contracts × a fixed rate, contracts = notional / strike.
type Linear struct {
	Rate    decimal.Decimal
	ATMBand decimal.Decimal // fraction of strike
}

// NewLinear returns a Linear model; zero arguments fall back to 13.33 and 1%.
func NewLinear(rate, atmBand decimal.Decimal) *Linear {
	if !rate.IsPositive() {
		rate = decimal.RequireFromString("13.33")
	}
	if !atmBand.IsPositive() {
		atmBand = decimal.RequireFromString("0.01")
	}
	return &Linear{Rate: rate, ATMBand: atmBand}
}

func (l *Linear) Indicative(req model.RFQRequest) *model.Indicative {
	if !req.Notional.IsPositive() || !req.Strike.IsPositive() {
		return nil
	}
	contracts := req.Notional.Div(req.Strike)
	premium := contracts.Mul(l.Rate)

	out := &model.Indicative{
		Contracts:  contracts,
		Premium:    premium,
		PremiumPct: premium.Div(req.Notional).Mul(hundred),
		MaxPayout:  maxPayout(req),
	}
	for _, sc := range scenarioSpots[req.Pair] {
		out.Scenarios = append(out.Scenarios, model.Scenario{
			Label:  sc.Label,
			Spot:   sc.Spot,
			Payout: payout(req.OptionType, sc.Spot, req.Strike).Mul(contracts),
		})
	}
	return out
}

func maxPayout(req model.RFQRequest) string {
	if req.OptionType == model.OptionPut {
		return "Unlimited below " + req.Strike.String()
	}
	return "Unlimited above " + req.Strike.String()
}

// payout is the intrinsic value per contract at spot.
func payout(opt model.OptionType, spot, strike decimal.Decimal) decimal.Decimal {
	var v decimal.Decimal
	if opt == model.OptionPut {
		v = strike.Sub(spot)
	} else {
		v = spot.Sub(strike)
	}
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

func (l *Linear) Moneyness(req model.RFQRequest, spot *decimal.Decimal) model.Moneyness {
	if spot == nil || !spot.IsPositive() || !req.Strike.IsPositive() {
		return model.MoneynessUnknown
	}
	band := req.Strike.Mul(l.ATMBand)
	if spot.Sub(req.Strike).Abs().LessThanOrEqual(band) {
		return model.MoneynessATM
	}
	above := spot.GreaterThan(req.Strike)
	if (req.OptionType == model.OptionCall) == above {
		return model.MoneynessITM
	}
	return model.MoneynessOTM
}
