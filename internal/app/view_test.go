package app_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"accessmap/internal/app"
	"accessmap/internal/domain"
	"accessmap/internal/storage/memory"
)

func TestView_NewerActivationSupersedesOlder(t *testing.T) {
	started := make(chan struct{})
	var calls int32
	v := app.NewView(func(ctx context.Context) (int, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			close(started)
			<-ctx.Done()
			return 1, ctx.Err()
		}
		return int(n), nil
	})

	firstErr := make(chan error, 1)
	go func() {
		_, err := v.Activate(context.Background())
		firstErr <- err
	}()
	<-started

	got, err := v.Activate(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, got)

	select {
	case err := <-firstErr:
		require.ErrorIs(t, err, app.ErrSuperseded)
	case <-time.After(2 * time.Second):
		t.Fatal("stale fetch was not cancelled")
	}

	st := v.State()
	require.Equal(t, 2, st.Data)
	require.True(t, st.Loaded)
	require.False(t, st.Loading)
}

func TestView_ErrorKeepsLastData(t *testing.T) {
	fail := false
	v := app.NewView(func(ctx context.Context) (string, error) {
		if fail {
			return "", errors.New("offline")
		}
		return "ok", nil
	})

	_, err := v.Activate(context.Background())
	require.NoError(t, err)
	fail = true
	_, err = v.Activate(context.Background())
	require.Error(t, err)

	st := v.State()
	require.Equal(t, "ok", st.Data)
	require.EqualError(t, st.Err, "offline")
}

func TestSearchView_RerunsLastQueryOnActivate(t *testing.T) {
	places := &fakePlaces{cands: []domain.PlaceCandidate{{ID: "a", Name: "Museum"}}}
	q := newQueries(places, memory.New(), nil)
	sv := app.NewSearchView(q)
	ctx := context.Background()

	out, err := sv.Activate(ctx)
	require.NoError(t, err)
	require.Empty(t, out)
	require.Zero(t, atomic.LoadInt32(&places.searches))

	_, err = sv.Search(ctx, domain.SearchQuery{Text: "museum"})
	require.NoError(t, err)
	out, err = sv.Activate(ctx)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, int32(2), atomic.LoadInt32(&places.searches))
}

func TestPlaceView_UnreviewedPlaceIsEmptyAggregate(t *testing.T) {
	q := newQueries(&fakePlaces{}, memory.New(), nil)
	agg, err := app.NewPlaceView(q, "p1").Activate(context.Background())
	require.NoError(t, err)
	require.Equal(t, "p1", agg.PlaceID)
	require.Zero(t, agg.ReviewCount)
}

func TestAccessibilityReviewsView(t *testing.T) {
	st := memory.New()
	seedReview(t, st, "p1", 2, 2, 2)
	q := newQueries(&fakePlaces{}, st, nil)

	rs, err := app.NewAccessibilityReviewsView(q, "p1").Activate(context.Background())
	require.NoError(t, err)
	require.Len(t, rs, 1)
}

func TestView_DeactivateDiscardsInFlightFetch(t *testing.T) {
	started := make(chan struct{})
	v := app.NewView(func(ctx context.Context) (string, error) {
		close(started)
		<-ctx.Done()
		return "late", nil
	})

	res := make(chan error, 1)
	go func() {
		_, err := v.Activate(context.Background())
		res <- err
	}()
	<-started
	v.Deactivate()

	select {
	case err := <-res:
		require.ErrorIs(t, err, app.ErrSuperseded)
	case <-time.After(2 * time.Second):
		t.Fatal("fetch was not cancelled by Deactivate")
	}

	st := v.State()
	require.False(t, st.Loading)
	require.False(t, st.Loaded)
	require.Empty(t, st.Data)

	// idle views stay as they are
	v.Deactivate()
	require.False(t, v.State().Loading)
}

func TestGoogleReviewsView_NewestFirst(t *testing.T) {
	now := time.Now()
	places := &fakePlaces{reviews: []domain.ThirdPartyReview{
		{ID: "old", Author: "old", Rating: 3, Time: now.Add(-48 * time.Hour)},
		{ID: "new", Author: "new", Rating: 5, Time: now},
	}}
	q := newQueries(places, memory.New(), nil)

	rs, err := app.NewGoogleReviewsView(q, "p1").Activate(context.Background())
	require.NoError(t, err)
	require.Len(t, rs, 2)
	require.Equal(t, "new", rs[0].Author)

	places.err = errors.New("upstream down")
	_, err = app.NewGoogleReviewsView(q, "p2").Activate(context.Background())
	require.Error(t, err)
}
