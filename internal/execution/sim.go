// Package execution signs a selected quote and confirms the resulting trade.
package execution

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Checker-Finance/fxo-desk/internal/sched"
	"github.com/Checker-Finance/fxo-desk/pkg/model"
)

// StatusFilled is the settlement status of a confirmed trade.
const StatusFilled = "filled"

// Simulated stands in for the wallet and chain: each step succeeds after a
// fixed delay.
type Simulated struct {
	sch          sched.Scheduler
	signDelay    time.Duration
	confirmDelay time.Duration
}

func NewSimulated(sch sched.Scheduler, signDelay, confirmDelay time.Duration) *Simulated {
	return &Simulated{sch: sch, signDelay: signDelay, confirmDelay: confirmDelay}
}

func (s *Simulated) Sign(ctx context.Context, q model.Quote) (model.Commitment, error) {
	if err := sched.Sleep(ctx, s.sch, s.signDelay); err != nil {
		return model.Commitment{}, err
	}
	return model.Commitment{
		ID:       uuid.NewString(),
		QuoteID:  q.ID,
		Maker:    q.Maker,
		SignedAt: s.sch.Now(),
	}, nil
}

func (s *Simulated) Confirm(ctx context.Context, c model.Commitment) (model.Settlement, error) {
	if err := sched.Sleep(ctx, s.sch, s.confirmDelay); err != nil {
		return model.Settlement{}, err
	}
	return model.Settlement{
		ID:           uuid.NewString(),
		CommitmentID: c.ID,
		Status:       StatusFilled,
		Reference:    "sim-" + c.ID[:8],
		SettledAt:    s.sch.Now(),
	}, nil
}
