package memory

import (
	"context"
	"sync"
	"time"

	"accessmap/internal/domain"
)

type Sessions struct {
	mu  sync.Mutex
	m   map[string]sessionEntry
	now func() time.Time
}

type sessionEntry struct {
	s       domain.Session
	expires time.Time
}

func NewSessions() *Sessions {
	return &Sessions{m: map[string]sessionEntry{}, now: time.Now}
}

func (ss *Sessions) Put(ctx context.Context, s domain.Session, ttl time.Duration) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.m[s.ID] = sessionEntry{s: s, expires: ss.now().Add(ttl)}
	return nil
}

func (ss *Sessions) Get(ctx context.Context, id string) (domain.Session, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	e, ok := ss.m[id]
	if !ok || !ss.now().Before(e.expires) {
		delete(ss.m, id)
		return domain.Session{}, domain.ErrNotFound
	}
	return e.s, nil
}

func (ss *Sessions) Delete(ctx context.Context, id string) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	delete(ss.m, id)
	return nil
}
