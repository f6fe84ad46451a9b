package app

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"accessmap/internal/domain"
)

// SearchDefaults fill in what a search request leaves out.
type SearchDefaults struct {
	RadiusMeters  uint
	PhotoMaxWidth int
	// Concurrency bounds aggregate lookups per search.
	Concurrency int
}

type QueryService struct {
	places   domain.PlacesClient
	store    domain.ReviewStore
	cache    domain.Cache
	cacheTTL time.Duration
	defaults SearchDefaults
}

func NewQueryService(p domain.PlacesClient, st domain.ReviewStore, c domain.Cache, ttl time.Duration, d SearchDefaults) *QueryService {
	if d.RadiusMeters == 0 {
		d.RadiusMeters = 5000
	}
	if d.PhotoMaxWidth <= 0 {
		d.PhotoMaxWidth = 400
	}
	if d.Concurrency <= 0 {
		d.Concurrency = 8
	}
	return &QueryService{places: p, store: st, cache: c, cacheTTL: ttl, defaults: d}
}

// SearchPlaces runs a text search and merges each hit with its accessibility
// aggregate, when one exists.
func (s *QueryService) SearchPlaces(ctx context.Context, q domain.SearchQuery) ([]domain.Place, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return nil, &domain.ValidationError{Field: "query", Reason: "search text is required"}
	}
	if q.Near != nil && q.Radius == 0 {
		q.Radius = s.defaults.RadiusMeters
	}

	key := searchKey(q)
	var cands []domain.PlaceCandidate
	if ok, _ := s.cacheGet(ctx, key, &cands); !ok {
		var err error
		cands, err = s.places.TextSearch(ctx, q)
		if err != nil {
			return nil, domain.Remote("textSearch", err)
		}
		s.cacheSet(ctx, key, cands)
	}

	out := make([]domain.Place, len(cands))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.defaults.Concurrency)
	for i, c := range cands {
		i, c := i, c
		g.Go(func() error {
			agg, err := s.GetAggregate(gctx, c.ID)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			out[i] = toPlace(c, agg, s.photoURLs(c.PhotoRefs))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// GoogleReviews returns the provider's reviews for a place, newest first.
func (s *QueryService) GoogleReviews(ctx context.Context, placeID string) ([]domain.ThirdPartyReview, error) {
	key := googleReviewsKey(placeID)
	var out []domain.ThirdPartyReview
	if ok, _ := s.cacheGet(ctx, key, &out); ok {
		return out, nil
	}
	rs, err := s.places.PlaceReviews(ctx, placeID)
	if err != nil {
		return nil, domain.Remote("placeDetails", err)
	}
	sortThirdParty(rs)
	s.cacheSet(ctx, key, rs)
	return rs, nil
}

// GetAggregate returns domain.ErrNotFound for places nobody has reviewed.
func (s *QueryService) GetAggregate(ctx context.Context, placeID string) (domain.PlaceAggregate, error) {
	key := aggregateKey(placeID)
	var agg domain.PlaceAggregate
	if ok, _ := s.cacheGet(ctx, key, &agg); ok {
		return agg, nil
	}
	gen := s.generation(ctx, key)
	agg, err := s.store.GetPlaceAggregate(ctx, placeID)
	if err != nil {
		return domain.PlaceAggregate{}, domain.Remote("getPlaceAggregate", err)
	}
	s.cacheFill(ctx, key, gen, agg)
	return agg, nil
}

// ListReviews returns every accessibility review of a place, newest first.
func (s *QueryService) ListReviews(ctx context.Context, placeID string) ([]domain.AccessibilityReview, error) {
	return s.listCached(ctx, reviewsKey(placeID), func() ([]domain.AccessibilityReview, error) {
		return s.store.ListReviews(ctx, placeID)
	})
}

// ListUserReviews returns the reviews a user wrote, newest first.
func (s *QueryService) ListUserReviews(ctx context.Context, sess *domain.Session) ([]domain.AccessibilityReview, error) {
	if sess == nil {
		return nil, domain.ErrAuthRequired
	}
	return s.listCached(ctx, userReviewsKey(sess.UserID), func() ([]domain.AccessibilityReview, error) {
		return s.store.ListUserReviews(ctx, sess.UserID)
	})
}

func (s *QueryService) listCached(ctx context.Context, key string, load func() ([]domain.AccessibilityReview, error)) ([]domain.AccessibilityReview, error) {
	var out []domain.AccessibilityReview
	if ok, _ := s.cacheGet(ctx, key, &out); ok {
		return out, nil
	}
	gen := s.generation(ctx, key)
	rs, err := load()
	if err != nil {
		return nil, domain.Remote("listReviews", err)
	}
	// copy so sorting never touches the store's backing array
	out = make([]domain.AccessibilityReview, len(rs))
	copy(out, rs)
	sortNewestFirst(out)

	if b, _ := json.Marshal(out); len(b) < 1_000_000 {
		s.cacheFill(ctx, key, gen, out)
	}
	return out, nil
}

func (s *QueryService) photoURLs(refs []string) []string {
	if len(refs) == 0 {
		return nil
	}
	urls := make([]string, 0, len(refs))
	for _, ref := range refs {
		urls = append(urls, s.places.PhotoURL(ref, s.defaults.PhotoMaxWidth))
	}
	return urls
}

func (s *QueryService) cacheGet(ctx context.Context, key string, dst any) (bool, error) {
	if s.cache == nil {
		return false, nil
	}
	ok, err := s.cache.Get(ctx, key, dst)
	if err != nil {
		log.Debug().Err(err).Str("key", key).Msg("cache get failed")
		return false, err
	}
	return ok, nil
}

func (s *QueryService) cacheSet(ctx context.Context, key string, v any) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	_ = s.cache.Set(ctx, key, v, int(s.cacheTTL.Seconds()))
}

// generation is read before loading a value that writers invalidate. A
// negative result disables the fill.
func (s *QueryService) generation(ctx context.Context, key string) int64 {
	if s.cache == nil || s.cacheTTL <= 0 {
		return -1
	}
	gen, err := s.cache.Generation(ctx, key)
	if err != nil {
		log.Debug().Err(err).Str("key", key).Msg("cache generation failed")
		return -1
	}
	return gen
}

// cacheFill stores v unless a writer invalidated key after gen was read.
func (s *QueryService) cacheFill(ctx context.Context, key string, gen int64, v any) {
	if gen < 0 {
		return
	}
	_, _ = s.cache.SetIfGeneration(ctx, key, v, gen, int(s.cacheTTL.Seconds()))
}
