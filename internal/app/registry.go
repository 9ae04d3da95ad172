package app

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/growsmart/internal/domain"
)

// signedOutIdle bounds how long an unused signed-out shell is kept.
const signedOutIdle = 15 * time.Minute

type entry struct {
	shell    *Shell
	lastSeen time.Time
}

// Registry holds one Shell per device, up to maxShells of them.
type Registry struct {
	deps      Deps
	maxIdle   time.Duration
	maxShells int
	now       func() time.Time

	mu     sync.Mutex
	shells map[string]*entry
}

// NewRegistry returns a registry evicting shells idle for maxIdle. A
// maxShells of zero or less leaves the registry unbounded.
func NewRegistry(deps Deps, maxIdle time.Duration, maxShells int) *Registry {
	return &Registry{
		deps:      deps,
		maxIdle:   maxIdle,
		maxShells: maxShells,
		now:       time.Now,
		shells:    make(map[string]*entry),
	}
}

// Shell returns the shell for deviceID, creating it on first use. When the
// registry is full the least recently seen signed-out shell makes room; if
// every shell is in use the call fails with ErrUnavailable.
func (r *Registry) Shell(deviceID string) (*Shell, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	e, ok := r.shells[deviceID]
	if !ok {
		if r.maxShells > 0 && len(r.shells) >= r.maxShells && !r.evictSignedOutLocked() {
			return nil, fmt.Errorf("%d device sessions open: %w", len(r.shells), domain.ErrUnavailable)
		}
		e = &entry{shell: NewShell(r.deps)}
		r.shells[deviceID] = e
	}
	e.lastSeen = now
	return e.shell, nil
}

// evictSignedOutLocked must be called with mu held.
func (r *Registry) evictSignedOutLocked() bool {
	var (
		victim string
		oldest time.Time
	)
	for id, e := range r.shells {
		if e.shell.signedOut() && (victim == "" || e.lastSeen.Before(oldest)) {
			victim, oldest = id, e.lastSeen
		}
	}
	if victim == "" {
		return false
	}
	r.shells[victim].shell.Close()
	delete(r.shells, victim)
	slog.Debug("evicted signed-out app session to make room", "device_id", victim)
	return true
}

// Len returns the number of live shells.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.shells)
}

// Sweep drops shells idle for longer than maxIdle, and signed-out shells idle
// for longer than signedOutIdle. It returns how many were dropped.
func (r *Registry) Sweep() int {
	now := r.now()
	r.mu.Lock()
	var stale []*Shell
	for id, e := range r.shells {
		idle := now.Sub(e.lastSeen)
		expired := r.maxIdle > 0 && idle > r.maxIdle
		if expired || (idle > signedOutIdle && e.shell.signedOut()) {
			stale = append(stale, e.shell)
			delete(r.shells, id)
		}
	}
	r.mu.Unlock()

	for _, s := range stale {
		s.Close()
	}
	if len(stale) > 0 {
		slog.Info("evicted idle app sessions", "count", len(stale))
	}
	return len(stale)
}

// Run sweeps on every tick until stop is closed.
func (r *Registry) Run(interval time.Duration, stop <-chan struct{}) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			r.Sweep()
		case <-stop:
			return
		}
	}
}
