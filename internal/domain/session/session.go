// Package session holds the per-till state that survives between requests:
// the cart being rung up and the voice order awaiting confirmation.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"github.com/morita/pos/internal/domain/cart"
)

// ErrNotFound is returned by a Store for an unknown session ID.
var ErrNotFound = errors.New("session not found")

// Session is the state of one cashier.
type Session struct {
	ID   string    `json:"id"`
	Cart cart.Cart `json:"cart"`
	// Transcript is the last dictation, kept for display.
	Transcript string `json:"transcript,omitempty"`
	// PendingOrder is the extractor output waiting to be accepted into
	// the cart.
	PendingOrder string    `json:"pending_order,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ClearPending drops the dictation and its extracted order.
func (s *Session) ClearPending() {
	s.Transcript = ""
	s.PendingOrder = ""
}

func (s *Session) clone() *Session {
	c := *s
	c.Cart = s.Cart.Clone()
	return &c
}

// Store persists sessions.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
}

// Manager serializes read-modify-write cycles on sessions.
type Manager struct {
	store Store
	now   func() time.Time

	mu sync.Mutex
}

// NewManager creates a Manager over store.
func NewManager(store Store) *Manager {
	return &Manager{store: store, now: time.Now}
}

// Get returns the session with id, or a fresh empty one if none is stored.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	s, err := m.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return &Session{ID: id}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get session")
	}
	return s, nil
}

// Update loads the session, applies fn and saves the result. If fn fails
// nothing is saved.
func (m *Manager) Update(ctx context.Context, id string, fn func(s *Session) error) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(s); err != nil {
		return nil, err
	}

	s.UpdatedAt = m.now()
	if err := m.store.Save(ctx, s); err != nil {
		return nil, errors.Wrap(err, "save session")
	}
	return s, nil
}

// MemoryStore keeps sessions in process memory. It is the default store for
// a single till.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess.clone(), nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.ID] = sess.clone()
	return nil
}
