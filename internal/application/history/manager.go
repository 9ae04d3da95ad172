package history

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/growsmart/internal/domain"
)

type profileStore interface {
	Get(ctx context.Context, userID string) (*domain.Profile, error)
	ReplaceEntries(ctx context.Context, userID string, entries []domain.PredictionEntry) error
}

// Snapshot is a copy of the local history view.
type Snapshot struct {
	Entries  []domain.PredictionEntry `json:"entries"`
	Username string                   `json:"username,omitempty"`
	Loaded   bool                     `json:"loaded"`
	Loading  bool                     `json:"loading"`
}

// Manager owns the local copy of one profile's prediction entries and keeps
// it in step with the profile repository. Append and Remove are serialized
// and persist the whole list they produced. Every mutation advances a
// generation counter; a load that observed an older generation is dropped
// instead of overwriting the newer local list.
type Manager struct {
	repo    profileStore
	timeout time.Duration

	mu sync.Mutex

	state    sync.RWMutex
	userID   string
	username string
	entries  []domain.PredictionEntry
	loaded   bool
	gen      uint64
	writing  bool

	loading atomic.Bool
}

func NewManager(repo profileStore, timeout time.Duration) *Manager {
	return &Manager{repo: repo, timeout: timeout}
}

// Snapshot returns the current local view.
func (m *Manager) Snapshot() Snapshot {
	m.state.RLock()
	defer m.state.RUnlock()
	return Snapshot{
		Entries:  clone(m.entries),
		Username: m.username,
		Loaded:   m.loaded,
		Loading:  m.loading.Load(),
	}
}

// Loading reports whether a load or refresh is in flight.
func (m *Manager) Loading() bool { return m.loading.Load() }

// Username is the display name from the last loaded profile.
func (m *Manager) Username() string {
	m.state.RLock()
	defer m.state.RUnlock()
	return m.username
}

// Load fetches the profile of userID and replaces the local list with its
// entries. On failure the local list is left unchanged.
func (m *Manager) Load(ctx context.Context, userID string) ([]domain.PredictionEntry, error) {
	if userID == "" {
		return nil, fmt.Errorf("load history: %w", domain.ErrSignedOut)
	}
	if !m.loading.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("load history: %w", domain.ErrBusy)
	}
	defer m.loading.Store(false)
	return m.load(ctx, userID)
}

// Refresh reloads the current user's history. The loading indicator is
// cleared on every exit path.
func (m *Manager) Refresh(ctx context.Context) ([]domain.PredictionEntry, error) {
	m.state.RLock()
	userID := m.userID
	m.state.RUnlock()
	return m.Load(ctx, userID)
}

// Append adds e at the tail of userID's list and persists the result. It
// fails with ErrSignedOut when userID no longer owns the local list.
func (m *Manager) Append(ctx context.Context, userID string, e domain.PredictionEntry) ([]domain.PredictionEntry, error) {
	if userID == "" {
		return nil, fmt.Errorf("append entry: %w", domain.ErrSignedOut)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, err := m.ensureLoaded(ctx, userID)
	if err != nil {
		return nil, err
	}
	next := append(clone(prev), e)
	if err := m.commit(ctx, userID, prev, next); err != nil {
		return clone(prev), err
	}
	return clone(next), nil
}

// Remove deletes the entry at index, provided it still carries entryID, and
// persists the list captured at that moment. A stale index or a repeated
// call fails with ErrOutOfRange and leaves the list untouched.
func (m *Manager) Remove(ctx context.Context, index int, entryID string) ([]domain.PredictionEntry, error) {
	if entryID == "" {
		return nil, domain.NewValidationError("history", "entry id is required", "id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.RLock()
	userID, prev, loaded := m.userID, clone(m.entries), m.loaded
	m.state.RUnlock()
	if userID == "" {
		return nil, fmt.Errorf("remove entry: %w", domain.ErrSignedOut)
	}
	if !loaded || index < 0 || index >= len(prev) {
		return prev, fmt.Errorf("remove index %d of %d: %w", index, len(prev), domain.ErrOutOfRange)
	}
	if prev[index].ID != entryID {
		return prev, fmt.Errorf("entry %s is no longer at index %d: %w", entryID, index, domain.ErrOutOfRange)
	}

	next := make([]domain.PredictionEntry, 0, len(prev)-1)
	next = append(next, prev[:index]...)
	next = append(next, prev[index+1:]...)
	if err := m.commit(ctx, userID, prev, next); err != nil {
		return prev, err
	}
	return clone(next), nil
}

// Reset drops all local state. In-flight loads are discarded when they land.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Lock()
	m.userID = ""
	m.username = ""
	m.entries = nil
	m.loaded = false
	m.gen++
	m.state.Unlock()
}

func (m *Manager) load(ctx context.Context, userID string) ([]domain.PredictionEntry, error) {
	m.state.Lock()
	if m.userID != userID {
		m.userID = userID
		m.username = ""
		m.entries = nil
		m.loaded = false
		m.gen++
	}
	gen := m.gen
	m.state.Unlock()

	p, err := m.fetch(ctx, userID)
	if err != nil {
		return nil, err
	}

	m.state.Lock()
	defer m.state.Unlock()
	if m.gen != gen || m.userID != userID || m.writing {
		slog.Debug("discarding stale history load", "user_id", userID)
		return clone(m.entries), nil
	}
	m.apply(p)
	return clone(m.entries), nil
}

// ensureLoaded must be called with mu held.
func (m *Manager) ensureLoaded(ctx context.Context, userID string) ([]domain.PredictionEntry, error) {
	m.state.RLock()
	owner, entries, loaded := m.userID, clone(m.entries), m.loaded
	m.state.RUnlock()
	if owner != userID {
		return nil, fmt.Errorf("history belongs to another session: %w", domain.ErrSignedOut)
	}
	if loaded {
		return entries, nil
	}

	p, err := m.fetch(ctx, userID)
	if err != nil {
		return nil, err
	}
	m.state.Lock()
	defer m.state.Unlock()
	if m.userID != userID {
		return nil, fmt.Errorf("history belongs to another session: %w", domain.ErrSignedOut)
	}
	m.apply(p)
	m.gen++
	return clone(m.entries), nil
}

// commit must be called with mu held. The local list shows next while the
// write is in flight and reverts to prev if it fails. Loads landing during
// the write are dropped.
func (m *Manager) commit(ctx context.Context, userID string, prev, next []domain.PredictionEntry) error {
	m.setEntries(userID, next)
	m.state.Lock()
	m.writing = true
	m.state.Unlock()
	defer func() {
		m.state.Lock()
		m.writing = false
		m.state.Unlock()
	}()

	ctx, cancel := m.bound(ctx)
	defer cancel()
	if err := m.repo.ReplaceEntries(ctx, userID, next); err != nil {
		m.setEntries(userID, prev)
		return fmt.Errorf("save history: %w", err)
	}
	m.setEntries(userID, next)
	return nil
}

func (m *Manager) setEntries(userID string, entries []domain.PredictionEntry) {
	m.state.Lock()
	defer m.state.Unlock()
	if m.userID != userID {
		return
	}
	m.entries = clone(entries)
	m.gen++
}

// apply must be called with state held for writing.
func (m *Manager) apply(p *domain.Profile) {
	m.entries = clone(p.Predictions)
	m.username = p.Username
	m.loaded = true
}

func (m *Manager) fetch(ctx context.Context, userID string) (*domain.Profile, error) {
	ctx, cancel := m.bound(ctx)
	defer cancel()
	p, err := m.repo.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return p, nil
}

func (m *Manager) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.timeout)
}

func clone(entries []domain.PredictionEntry) []domain.PredictionEntry {
	out := make([]domain.PredictionEntry, len(entries))
	copy(out, entries)
	return out
}
