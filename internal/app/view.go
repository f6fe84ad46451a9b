package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"accessmap/internal/domain"
)

// ErrSuperseded is returned by an activation whose fetch was overtaken by a
// newer activation of the same view. Its result is discarded.
var ErrSuperseded = errors.New("view: superseded by a newer activation")

type ViewState[T any] struct {
	Data      T
	Err       error
	Loading   bool
	Loaded    bool
	UpdatedAt time.Time
}

// View holds the state of one screen instance. Every Activate issues exactly
// one fetch; starting a new one cancels the previous in-flight fetch so two
// fetches for the same view never both land.
type View[T any] struct {
	fetch func(ctx context.Context) (T, error)

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	state  ViewState[T]
}

func NewView[T any](fetch func(ctx context.Context) (T, error)) *View[T] {
	return &View[T]{fetch: fetch}
}

func (v *View[T]) Activate(ctx context.Context) (T, error) {
	v.mu.Lock()
	if v.cancel != nil {
		v.cancel()
	}
	v.gen++
	gen := v.gen
	fctx, cancel := context.WithCancel(ctx)
	v.cancel = cancel
	v.state.Loading = true
	v.mu.Unlock()

	data, err := v.fetch(fctx)

	v.mu.Lock()
	defer v.mu.Unlock()
	cancel()
	if gen != v.gen {
		var zero T
		return zero, ErrSuperseded
	}
	v.cancel = nil
	v.state.Loading = false
	v.state.Err = err
	if err == nil {
		v.state.Data = data
		v.state.Loaded = true
		v.state.UpdatedAt = time.Now()
	}
	return data, err
}

// Deactivate cancels the in-flight fetch, if any. State is kept.
func (v *View[T]) Deactivate() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
		v.gen++
		v.state.Loading = false
	}
}

func (v *View[T]) State() ViewState[T] {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// SearchView re-runs the last submitted search every time it is activated.
type SearchView struct {
	*View[[]domain.Place]

	mu    sync.Mutex
	query domain.SearchQuery
}

func NewSearchView(q *QueryService) *SearchView {
	sv := &SearchView{}
	sv.View = NewView(func(ctx context.Context) ([]domain.Place, error) {
		sv.mu.Lock()
		query := sv.query
		sv.mu.Unlock()
		if strings.TrimSpace(query.Text) == "" {
			return nil, nil
		}
		return q.SearchPlaces(ctx, query)
	})
	return sv
}

func (sv *SearchView) Search(ctx context.Context, query domain.SearchQuery) ([]domain.Place, error) {
	sv.mu.Lock()
	sv.query = query
	sv.mu.Unlock()
	return sv.Activate(ctx)
}

func NewPlaceView(q *QueryService, placeID string) *View[domain.PlaceAggregate] {
	return NewView(func(ctx context.Context) (domain.PlaceAggregate, error) {
		agg, err := q.GetAggregate(ctx, placeID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.PlaceAggregate{PlaceID: placeID}, nil
		}
		return agg, err
	})
}

func NewAccessibilityReviewsView(q *QueryService, placeID string) *View[[]domain.AccessibilityReview] {
	return NewView(func(ctx context.Context) ([]domain.AccessibilityReview, error) {
		return q.ListReviews(ctx, placeID)
	})
}

func NewGoogleReviewsView(q *QueryService, placeID string) *View[[]domain.ThirdPartyReview] {
	return NewView(func(ctx context.Context) ([]domain.ThirdPartyReview, error) {
		return q.GoogleReviews(ctx, placeID)
	})
}
