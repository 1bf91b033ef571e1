// Package desk owns the live RFQ sessions of the service.
package desk

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Checker-Finance/fxo-desk/internal/metrics"
	"github.com/Checker-Finance/fxo-desk/internal/rfq"
	"github.com/Checker-Finance/fxo-desk/pkg/model"
)

// ErrSessionNotFound is returned for unknown or closed session ids.
var ErrSessionNotFound = errors.New("session not found")

// Desk creates sessions that share one set of collaborators and routes
// their events to a single Notifier.
type Desk struct {
	logger *zap.Logger
	cfg    rfq.Config
	deps   rfq.Deps

	mu       sync.RWMutex
	sessions map[string]*rfq.Machine
	onClose  []func(id string)
}

// New builds a Desk. deps.Notify receives the events of every session.
func New(logger *zap.Logger, cfg rfq.Config, deps rfq.Deps) *Desk {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Logger == nil {
		deps.Logger = logger
	}
	return &Desk{
		logger:   logger,
		cfg:      cfg,
		deps:     deps,
		sessions: make(map[string]*rfq.Machine),
	}
}

// OnClose registers a hook run after a session is closed.
func (d *Desk) OnClose(fn func(id string)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onClose = append(d.onClose, fn)
}

// Open creates a session in IDLE.
func (d *Desk) Open() *rfq.Machine {
	id := uuid.NewString()
	m := rfq.NewMachine(id, d.cfg, d.deps)

	d.mu.Lock()
	d.sessions[id] = m
	n := len(d.sessions)
	d.mu.Unlock()

	metrics.SetActiveSessions(n)
	d.logger.Info("desk.session_opened", zap.String("session_id", id))
	return m
}

func (d *Desk) Get(id string) (*rfq.Machine, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return m, nil
}

// Snapshot returns the snapshot of a session, or false if it does not exist.
func (d *Desk) Snapshot(id string) (model.SessionSnapshot, bool) {
	m, err := d.Get(id)
	if err != nil {
		return model.SessionSnapshot{}, false
	}
	return m.Snapshot(), true
}

// CloseSession tears a session down and forgets it.
func (d *Desk) CloseSession(id string) error {
	d.mu.Lock()
	m, ok := d.sessions[id]
	if ok {
		delete(d.sessions, id)
	}
	n := len(d.sessions)
	hooks := d.onClose
	d.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	m.Close()
	for _, fn := range hooks {
		fn(id)
	}
	metrics.SetActiveSessions(n)
	d.logger.Info("desk.session_closed", zap.String("session_id", id))
	return nil
}

// ReapIdle closes sessions with no command for longer than ttl. Sessions
// waiting on signing or confirmation are kept.
func (d *Desk) ReapIdle(now time.Time, ttl time.Duration) int {
	cutoff := now.Add(-ttl)

	d.mu.RLock()
	var stale []string
	for id, m := range d.sessions {
		st := m.State()
		if st == model.StateSigning || st == model.StatePending {
			continue
		}
		if m.LastActivity().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	d.mu.RUnlock()

	reaped := 0
	for _, id := range stale {
		if d.CloseSession(id) == nil {
			reaped++
		}
	}
	if reaped > 0 {
		d.logger.Info("desk.sessions_reaped", zap.Int("count", reaped))
	}
	return reaped
}

// IDs lists open session ids in lexical order.
func (d *Desk) IDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]string, 0, len(d.sessions))
	for id := range d.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (d *Desk) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.sessions)
}

// Shutdown closes every session.
func (d *Desk) Shutdown() {
	for _, id := range d.IDs() {
		_ = d.CloseSession(id)
	}
}
