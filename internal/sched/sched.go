// Package sched provides cancellable delayed and periodic tasks.
//
// Every timer in the desk (quote window countdown, simulated collaborator
// latency, oracle polling) is registered through a Scheduler so its owner can
// cancel it on reset or teardown.
package sched

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// Task is a handle to a scheduled callback.
type Task interface {
	// Stop cancels future runs. It is idempotent and does not wait for a run
	// already in progress.
	Stop()
}

// Scheduler runs callbacks after a delay or on a fixed period.
type Scheduler interface {
	After(d time.Duration, fn func()) Task
	Every(d time.Duration, fn func()) Task
	Now() time.Time
}

// Clock schedules on a benbjohnson clock.
type Clock struct {
	clk clock.Clock
}

// New returns a Scheduler backed by clk; nil means the wall clock.
func New(clk clock.Clock) *Clock {
	if clk == nil {
		clk = clock.New()
	}
	return &Clock{clk: clk}
}

func (c *Clock) Now() time.Time { return c.clk.Now() }

type timerTask struct {
	stopped atomic.Bool
	timer   *clock.Timer
}

func (t *timerTask) Stop() {
	if t.stopped.CompareAndSwap(false, true) {
		t.timer.Stop()
	}
}

// After runs fn once, d from now.
func (c *Clock) After(d time.Duration, fn func()) Task {
	t := &timerTask{}
	// The callback checks stopped because Timer.Stop cannot recall a timer
	// that has already fired.
	t.timer = c.clk.AfterFunc(d, func() {
		if t.stopped.Load() {
			return
		}
		fn()
	})
	return t
}

type tickerTask struct {
	stopped atomic.Bool
	once    sync.Once
	done    chan struct{}
}

func (t *tickerTask) Stop() {
	t.once.Do(func() {
		t.stopped.Store(true)
		close(t.done)
	})
}

// Every runs fn each d until stopped. Runs never overlap.
func (c *Clock) Every(d time.Duration, fn func()) Task {
	t := &tickerTask{done: make(chan struct{})}
	ticker := c.clk.Ticker(d)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if t.stopped.Load() {
					return
				}
				fn()
			case <-t.done:
				return
			}
		}
	}()
	return t
}

// Sleep blocks for d on s, returning early with ctx's error.
func Sleep(ctx context.Context, s Scheduler, d time.Duration) error {
	done := make(chan struct{})
	task := s.After(d, func() { close(done) })
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		task.Stop()
		return ctx.Err()
	}
}
