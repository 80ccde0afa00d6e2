package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/tutorgraph/internal/logging"
	"github.com/aretw0/tutorgraph/pkg/domain"
	"github.com/aretw0/tutorgraph/pkg/ports"
)

// DefaultLockTTL bounds how long a crashed holder keeps a session locked.
const DefaultLockTTL = 2 * time.Minute

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager serializes loads and saves per session ID.
// A session's local mutex is dropped as soon as no caller holds or waits for it.
type Manager struct {
	store ports.StateStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.SessionLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables cross-process locking.
func WithLocker(locker ports.SessionLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the expiry of cross-process locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a Manager over store.
func NewManager(store ports.StateStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// lockLocal takes the in-process mutex for sessionID and returns its release.
func (m *Manager) lockLocal(sessionID string) (release func()) {
	m.mu.Lock()
	e, ok := m.locks[sessionID]
	if !ok {
		e = &lockEntry{}
		m.locks[sessionID] = e
	}
	e.refs++
	m.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		m.mu.Lock()
		if e.refs--; e.refs == 0 {
			delete(m.locks, sessionID)
		}
		m.mu.Unlock()
	}
}

// Load retrieves an existing session.
func (m *Manager) Load(ctx context.Context, sessionID string) (domain.State, error) {
	var state domain.State
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		state, err = m.store.Load(ctx, sessionID)
		return err
	})
	return state, err
}

// LoadOrStart loads a session or creates and persists a new one for role.
// A new session's RunID is the session ID. The boolean reports whether it already existed.
func (m *Manager) LoadOrStart(ctx context.Context, sessionID string, role domain.Role) (domain.State, bool, error) {
	var (
		state   domain.State
		existed bool
	)
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		state, existed, err = m.loadOrStart(ctx, sessionID, role)
		return err
	})
	return state, existed, err
}

func (m *Manager) loadOrStart(ctx context.Context, sessionID string, role domain.Role) (domain.State, bool, error) {
	state, err := m.store.Load(ctx, sessionID)
	if err == nil {
		return state, true, nil
	}
	if !errors.Is(err, domain.ErrSessionNotFound) {
		return domain.State{}, false, fmt.Errorf("failed to check session existence: %w", err)
	}

	state, err = domain.NewState(role)
	if err != nil {
		return domain.State{}, false, err
	}
	state.RunID = sessionID
	if err := m.store.Save(ctx, sessionID, state); err != nil {
		return domain.State{}, false, fmt.Errorf("failed to initialize session: %w", err)
	}
	return state, false, nil
}

// Save persists the session state.
func (m *Manager) Save(ctx context.Context, sessionID string, state domain.State) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return m.store.Save(ctx, sessionID, state)
	})
}

// Update runs fn on the latest saved state and saves what it returns, all under the session lock.
// A new session is started for role when none exists. When fn fails nothing is saved.
func (m *Manager) Update(ctx context.Context, sessionID string, role domain.Role, fn func(context.Context, domain.State) (domain.State, error)) (domain.State, error) {
	var out domain.State
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		state, _, err := m.loadOrStart(ctx, sessionID, role)
		if err != nil {
			return err
		}
		next, err := fn(ctx, state)
		if err != nil {
			return err
		}
		if err := m.store.Save(ctx, sessionID, next); err != nil {
			return fmt.Errorf("failed to save session %s: %w", sessionID, err)
		}
		out = next
		return nil
	})
	return out, err
}

// Delete removes the session.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return m.store.Delete(ctx, sessionID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying state store.
func (m *Manager) Store() ports.StateStore {
	return m.store
}

// WithLock runs fn while holding the session's local lock and, if configured, its distributed lock.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	release := m.lockLocal(sessionID)
	defer release()

	if m.locker == nil {
		return fn(ctx)
	}
	unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
	if err != nil {
		return fmt.Errorf("failed to lock session %s: %w", sessionID, err)
	}
	defer func() {
		// ctx may already be cancelled by the time the turn ends.
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			m.logger.Warn("session lock not released, waiting for expiry",
				"session_id", sessionID,
				"ttl", m.lockTTL,
				"err", err,
			)
		}
	}()
	return fn(ctx)
}
