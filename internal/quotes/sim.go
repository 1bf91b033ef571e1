// Package quotes contains the liquidity provider adapters that answer an RFQ
// with a batch of option quotes.
package quotes

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Checker-Finance/fxo-desk/internal/pricing"
	"github.com/Checker-Finance/fxo-desk/internal/sched"
	"github.com/Checker-Finance/fxo-desk/pkg/model"
)

var bpsDivisor = decimal.NewFromInt(10_000)

// Maker is a simulated liquidity provider quoting at a fixed spread over the
// indicative premium.
type Maker struct {
	Name      string
	SpreadBps int
}

// ParseMakers reads "name:spreadBps" entries, e.g. "Alpha LP:35".
func ParseMakers(entries []string) ([]Maker, error) {
	out := make([]Maker, 0, len(entries))
	for _, e := range entries {
		name, bps, ok := strings.Cut(e, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("quotes: maker %q: expected name:spreadBps", e)
		}
		n, err := strconv.Atoi(strings.TrimSpace(bps))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("quotes: maker %q: invalid spread", e)
		}
		out = append(out, Maker{Name: name, SpreadBps: n})
	}
	return out, nil
}

// Simulated answers after a fixed delay. Without makers it returns an empty
// batch, which leaves the session live with nothing to select.
type Simulated struct {
	sch     sched.Scheduler
	delay   time.Duration
	makers  []Maker
	pricing pricing.Model
}

func NewSimulated(sch sched.Scheduler, delay time.Duration, makers []Maker, pm pricing.Model) *Simulated {
	if pm == nil {
		pm = pricing.NewLinear(decimal.Zero, decimal.Zero)
	}
	return &Simulated{sch: sch, delay: delay, makers: makers, pricing: pm}
}

func (s *Simulated) RequestQuotes(ctx context.Context, req model.RFQRequest) ([]model.Quote, error) {
	if err := sched.Sleep(ctx, s.sch, s.delay); err != nil {
		return nil, err
	}

	ind := s.pricing.Indicative(req)
	if ind == nil || len(s.makers) == 0 {
		return []model.Quote{}, nil
	}

	out := make([]model.Quote, 0, len(s.makers))
	for _, m := range s.makers {
		markup := decimal.NewFromInt(int64(m.SpreadBps)).Div(bpsDivisor)
		out = append(out, model.Quote{
			ID:         uuid.NewString(),
			Maker:      m.Name,
			Premium:    ind.Premium.Mul(decimal.NewFromInt(1).Add(markup)).Round(2),
			Fees:       decimal.Zero,
			SpreadBps:  m.SpreadBps,
			ReceivedAt: s.sch.Now(),
		})
	}
	return out, nil
}
