package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"accessmap/internal/app"
	"accessmap/internal/domain"
	"accessmap/internal/storage/memory"
)

func TestReconcileAll_CountsDriftAndFailures(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	rs := app.NewReviewService(st, nil)
	sess := &domain.Session{ID: "s1", UserID: "u1"}

	for _, place := range []string{"clean", "drifted"} {
		_, err := rs.SubmitReview(ctx, sess, app.SubmitReviewInput{
			PlaceID: place,
			Ratings: domain.Ratings{Physical: 4, Sensory: 4, Cognitive: 4},
			Text:    "Level entrance.",
		})
		require.NoError(t, err)
	}
	st.PutAggregate(domain.PlaceAggregate{PlaceID: "drifted", Physical: 4, Sensory: 4, Cognitive: 4, ReviewCount: 3})

	drifted, failed := reconcileAll(ctx, rs, []string{"clean", "drifted", "missing"}, 2)
	require.Equal(t, int64(1), drifted)
	require.Equal(t, int64(1), failed)

	agg, err := st.GetPlaceAggregate(ctx, "drifted")
	require.NoError(t, err)
	require.Equal(t, 1, agg.ReviewCount)
}

func TestReconcileAll_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	drifted, failed := reconcileAll(ctx, app.NewReviewService(memory.New(), nil), []string{"a", "b"}, 0)
	require.Zero(t, drifted)
	require.Zero(t, failed)
}
