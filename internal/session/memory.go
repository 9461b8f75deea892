package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/billscan/internal/model"
)

// MemoryStore implements Store with an in-process map guarded by a mutex.
// Sessions do not survive a restart; use the sqlite or postgres backend
// when durability matters.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*memSession
	ttl      time.Duration
	now      func() time.Time
}

type memSession struct {
	state     model.SessionState
	createdAt time.Time
	touchedAt time.Time
	pages     []model.PageRecord
}

// NewMemory creates an in-memory store. A non-positive TTL falls back to
// DefaultTTL.
func NewMemory(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		sessions: make(map[string]*memSession),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context) (string, error) {
	token := uuid.New().String()
	now := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[token] = &memSession{
		state:     model.SessionOpen,
		createdAt: now,
		touchedAt: now,
	}
	return token, nil
}

func (s *MemoryStore) Append(ctx context.Context, token string, pages []model.PageRecord) error {
	if err := ValidateToken(token); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return ErrUnknownSession
	}
	if sess.state != model.SessionOpen {
		return ErrSessionFinalizing
	}
	sess.pages = append(sess.pages, pages...)
	sess.touchedAt = s.now().UTC()
	return nil
}

func (s *MemoryStore) ReadAll(ctx context.Context, token string) ([]model.PageRecord, error) {
	if err := ValidateToken(token); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return nil, ErrUnknownSession
	}

	// Copy so callers never observe a torn collection while appends race.
	out := make([]model.PageRecord, len(sess.pages))
	copy(out, sess.pages)
	return out, nil
}

func (s *MemoryStore) Finalize(ctx context.Context, token string) error {
	if err := ValidateToken(token); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return ErrUnknownSession
	}
	sess.state = model.SessionFinalizing
	return nil
}

func (s *MemoryStore) Destroy(ctx context.Context, token string) error {
	if err := ValidateToken(token); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Session, 0, len(s.sessions))
	for token, sess := range s.sessions {
		out = append(out, model.Session{
			Token:     token,
			State:     sess.state,
			CreatedAt: sess.createdAt,
		})
	}
	return out, nil
}

func (s *MemoryStore) DeleteExpired(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for token, sess := range s.sessions {
		if sess.touchedAt.Before(cutoff) {
			delete(s.sessions, token)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
