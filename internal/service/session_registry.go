package service

import (
	"context"
	"sync"
	"time"

	"payment-reconciliation/internal/reconcile"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SessionRegistry holds the ledgers of in-flight reconciliation sessions.
// The registry lock only guards the map; ledger calls happen outside it.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*reconcile.Ledger
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[uuid.UUID]*reconcile.Ledger)}
}

// Put registers a ledger under its id.
func (r *SessionRegistry) Put(l *reconcile.Ledger) {
	r.mu.Lock()
	r.sessions[l.ID()] = l
	r.mu.Unlock()
}

// Get returns the ledger for id, or nil.
func (r *SessionRegistry) Get(id uuid.UUID) *reconcile.Ledger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Len returns the number of registered sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep evicts terminal sessions and sessions idle since before idleBefore.
// Returns the number of evicted sessions.
func (r *SessionRegistry) Sweep(idleBefore time.Time) int {
	r.mu.RLock()
	ledgers := make([]*reconcile.Ledger, 0, len(r.sessions))
	for _, l := range r.sessions {
		ledgers = append(ledgers, l)
	}
	r.mu.RUnlock()

	var stale []*reconcile.Ledger
	for _, l := range ledgers {
		if l.Status().IsTerminal() || l.LastActivity().Before(idleBefore) {
			stale = append(stale, l)
		}
	}
	if len(stale) == 0 {
		return 0
	}

	evicted := 0
	r.mu.Lock()
	for _, l := range stale {
		if r.sessions[l.ID()] == l {
			delete(r.sessions, l.ID())
			evicted++
		}
	}
	r.mu.Unlock()
	return evicted
}

// RunSweeper sweeps every interval until ctx is cancelled.
func (r *SessionRegistry) RunSweeper(ctx context.Context, interval, ttl time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("session sweeper stopped")
			return
		case now := <-ticker.C:
			if n := r.Sweep(now.Add(-ttl)); n > 0 {
				log.Info().Int("evicted", n).Int("open", r.Len()).Msg("swept reconciliation sessions")
			}
		}
	}
}
