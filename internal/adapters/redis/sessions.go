package redisad

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"accessmap/internal/domain"
)

// Sessions stores signed-in sessions with a TTL; signing out deletes the key.
type Sessions struct {
	c      *redis.Client
	prefix string
}

func NewSessions(c *redis.Client, prefix string) *Sessions {
	return &Sessions{c: c, prefix: prefix + "session:"}
}

func (s *Sessions) Put(ctx context.Context, sess domain.Session, ttl time.Duration) error {
	b, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.c.Set(ctx, s.prefix+sess.ID, b, ttl).Err()
}

func (s *Sessions) Get(ctx context.Context, id string) (domain.Session, error) {
	b, err := s.c.Get(ctx, s.prefix+id).Bytes()
	if err == redis.Nil {
		return domain.Session{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Session{}, err
	}
	var sess domain.Session
	if err := json.Unmarshal(b, &sess); err != nil {
		return domain.Session{}, err
	}
	return sess, nil
}

func (s *Sessions) Delete(ctx context.Context, id string) error {
	return s.c.Del(ctx, s.prefix+id).Err()
}
