// Package jobs holds the desk's periodic background work.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Reaper closes idle sessions.
type Reaper interface {
	ReapIdle(now time.Time, ttl time.Duration) int
}

// SessionReaper periodically closes sessions that have been idle longer than ttl.
type SessionReaper struct {
	logger   *zap.Logger
	desk     Reaper
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
	cron     *cron.Cron
}

// NewSessionReaper constructs a background job that runs every interval.
func NewSessionReaper(logger *zap.Logger, desk Reaper, ttl, interval time.Duration) *SessionReaper {
	return &SessionReaper{
		logger:   logger,
		desk:     desk,
		ttl:      ttl,
		interval: interval,
		now:      time.Now,
		cron:     cron.New(),
	}
}

// Start schedules the reaper. It stops on Stop or when ctx is done.
func (r *SessionReaper) Start(ctx context.Context) error {
	if r.interval <= 0 {
		return fmt.Errorf("session_reaper: interval must be positive, got %s", r.interval)
	}
	expr := fmt.Sprintf("@every %s", r.interval)
	if _, err := r.cron.AddFunc(expr, r.RunOnce); err != nil {
		return fmt.Errorf("session_reaper: schedule %q: %w", expr, err)
	}
	r.cron.Start()
	r.logger.Info("session_reaper.started",
		zap.Duration("interval", r.interval),
		zap.Duration("ttl", r.ttl))

	go func() {
		<-ctx.Done()
		r.Stop()
	}()
	return nil
}

// Stop halts the schedule and waits for a running pass to finish.
func (r *SessionReaper) Stop() {
	<-r.cron.Stop().Done()
}

// RunOnce executes one reaping pass.
func (r *SessionReaper) RunOnce() {
	start := time.Now()
	n := r.desk.ReapIdle(r.now(), r.ttl)
	if n > 0 {
		r.logger.Info("session_reaper.reaped",
			zap.Int("sessions", n),
			zap.Duration("duration", time.Since(start)))
	}
}
