package store

import (
	"context"
	"sync"

	"saga-server/internal/models"
)

// Compile-time check
var _ SessionStore = (*MemoryStore)(nil)

// MemoryStore is an in-process SessionStore. It backs single-node
// deployments without Redis and the test suite. Snapshots handed out are
// deep copies, so callers can never mutate the stored document in place.
type MemoryStore struct {
	mu          sync.RWMutex
	sessions    map[string]*models.Session
	subscribers map[string][]chan *models.Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:    make(map[string]*models.Session),
		subscribers: make(map[string][]chan *models.Session),
	}
}

func (s *MemoryStore) Create(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	if _, ok := s.sessions[session.ID]; ok {
		s.mu.Unlock()
		return models.ErrSessionExists
	}
	s.sessions[session.ID] = session.Clone()
	s.mu.Unlock()

	s.broadcast(session)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	return session.Clone(), nil
}

func (s *MemoryStore) Put(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	s.sessions[session.ID] = session.Clone()
	s.mu.Unlock()

	s.broadcast(session)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, fn func(*models.Session) error) (*models.Session, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(session); err != nil {
		return nil, err
	}
	if err := s.Put(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, id string) (<-chan *models.Session, error) {
	ch := make(chan *models.Session, 8)

	s.mu.Lock()
	s.subscribers[id] = append(s.subscribers[id], ch)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		// Removal and close happen under the same lock broadcast holds
		// while sending, so a send on a closed channel is impossible.
		s.mu.Lock()
		subs := s.subscribers[id]
		for i, sub := range subs {
			if sub == ch {
				s.subscribers[id] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
		s.mu.Unlock()
	}()

	return ch, nil
}

// broadcast delivers a fresh copy of the snapshot to every subscriber.
// Subscribers that fall behind lose intermediate snapshots rather than
// blocking the writer.
func (s *MemoryStore) broadcast(session *models.Session) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subscribers[session.ID] {
		select {
		case ch <- session.Clone():
		default:
		}
	}
}
