// Package memory is an in-process ReviewStore and UserRepository used for
// local runs and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"accessmap/internal/domain"
)

type Store struct {
	mu      sync.Mutex
	aggs    map[string]domain.PlaceAggregate
	reviews map[string][]domain.AccessibilityReview
	users   map[string]domain.UserRecord // keyed by lower-cased email
	now     func() time.Time
	last    time.Time
}

func New() *Store {
	return &Store{
		aggs:    map[string]domain.PlaceAggregate{},
		reviews: map[string][]domain.AccessibilityReview{},
		users:   map[string]domain.UserRecord{},
		now:     time.Now,
	}
}

// WithClock replaces the time source. Timestamps stay strictly increasing
// regardless of what the clock returns.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// tick must be called with mu held.
func (s *Store) tick() time.Time {
	t := s.now().UTC()
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

func (s *Store) CreateReview(ctx context.Context, r domain.AccessibilityReview) (domain.AccessibilityReview, domain.PlaceAggregate, error) {
	if err := ctx.Err(); err != nil {
		return domain.AccessibilityReview{}, domain.PlaceAggregate{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.tick()
	r.ID = uuid.NewString()
	r.CreatedAt, r.UpdatedAt = ts, ts
	r.Photos = append([]string(nil), r.Photos...)

	agg := s.aggs[r.PlaceID].Apply(r.PlaceID, r.PlaceName, r.Ratings, ts)
	s.reviews[r.PlaceID] = append(s.reviews[r.PlaceID], r)
	s.aggs[r.PlaceID] = agg
	return r, agg, nil
}

func (s *Store) RecomputeAggregate(ctx context.Context, placeID string) (domain.PlaceAggregate, error) {
	if err := ctx.Err(); err != nil {
		return domain.PlaceAggregate{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.aggs[placeID]
	revs := s.reviews[placeID]
	if !ok && len(revs) == 0 {
		return domain.PlaceAggregate{}, domain.ErrNotFound
	}
	agg := domain.Recompute(placeID, old.Name, revs, s.tick())
	s.aggs[placeID] = agg
	return agg, nil
}

func (s *Store) GetPlaceAggregate(ctx context.Context, placeID string) (domain.PlaceAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agg, ok := s.aggs[placeID]
	if !ok {
		return domain.PlaceAggregate{}, domain.ErrNotFound
	}
	return agg, nil
}

func (s *Store) ListReviews(ctx context.Context, placeID string) ([]domain.AccessibilityReview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AccessibilityReview, len(s.reviews[placeID]))
	copy(out, s.reviews[placeID])
	return out, nil
}

func (s *Store) ListUserReviews(ctx context.Context, userID string) ([]domain.AccessibilityReview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AccessibilityReview
	for _, rs := range s.reviews {
		for _, r := range rs {
			if r.UserID == userID {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (s *Store) ListPlaceIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.aggs))
	for id := range s.aggs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// PutAggregate overwrites a stored aggregate as-is. It exists to seed legacy
// or drifted data.
func (s *Store) PutAggregate(a domain.PlaceAggregate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aggs[a.PlaceID] = a
}

func (s *Store) CreateUser(ctx context.Context, u domain.UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := strings.ToLower(u.Email)
	if _, ok := s.users[k]; ok {
		return domain.ErrAccountExists
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.tick()
	}
	s.users[k] = u
	return nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (domain.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[strings.ToLower(email)]
	if !ok {
		return domain.UserRecord{}, domain.ErrNotFound
	}
	return u, nil
}
