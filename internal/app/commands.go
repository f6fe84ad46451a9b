package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"accessmap/internal/adapters/observability"
	"accessmap/internal/domain"
)

type ReviewService struct {
	store domain.ReviewStore
	cache domain.Cache
}

func NewReviewService(st domain.ReviewStore, cache domain.Cache) *ReviewService {
	return &ReviewService{store: st, cache: cache}
}

type SubmitReviewInput struct {
	PlaceID   string
	PlaceName string
	Ratings   domain.Ratings
	Text      string
	Photos    []string
}

// SubmitReview validates the input, then creates the review and folds it into
// the place aggregate in one atomic store operation. Nothing is written when
// the session is missing or validation fails.
func (s *ReviewService) SubmitReview(ctx context.Context, sess *domain.Session, in SubmitReviewInput) (string, error) {
	if sess == nil {
		observability.ObserveReviewSubmission("unauthenticated")
		return "", domain.ErrAuthRequired
	}
	placeID := strings.TrimSpace(in.PlaceID)
	if placeID == "" {
		observability.ObserveReviewSubmission("invalid")
		return "", &domain.ValidationError{Field: "placeId", Reason: "place is required"}
	}
	if err := domain.ValidateSubmission(in.Ratings, in.Text); err != nil {
		observability.ObserveReviewSubmission("invalid")
		return "", err
	}

	created, agg, err := s.store.CreateReview(ctx, domain.AccessibilityReview{
		UserID:    sess.UserID,
		PlaceID:   placeID,
		PlaceName: strings.TrimSpace(in.PlaceName),
		Ratings:   in.Ratings,
		Text:      strings.TrimSpace(in.Text),
		Photos:    in.Photos,
	})
	if err != nil {
		observability.ObserveReviewSubmission("error")
		log.Warn().Err(err).Str("place", placeID).Str("user", sess.UserID).Msg("review submission failed")
		return "", domain.Remote("createReview", err)
	}
	observability.ObserveReviewSubmission("ok")

	if s.cache != nil {
		s.invalidatePlace(ctx, placeID, sess.UserID)
	}

	log.Info().
		Str("place", placeID).
		Str("review", created.ID).
		Int("count", agg.ReviewCount).
		Msg("accessibility review stored")
	return created.ID, nil
}

// RecomputeAggregate rebuilds the aggregate of a place from its full review
// set. Applying it repeatedly yields the same aggregate.
func (s *ReviewService) RecomputeAggregate(ctx context.Context, placeID string) (domain.PlaceAggregate, error) {
	agg, err := s.store.RecomputeAggregate(ctx, placeID)
	if err != nil {
		return domain.PlaceAggregate{}, domain.Remote("recomputeAggregate", err)
	}
	if s.cache != nil {
		s.invalidatePlace(ctx, placeID, "")
	}
	return agg, nil
}

// Reconcile recomputes the aggregate of a place and reports whether the stored
// value had drifted from its review set.
func (s *ReviewService) Reconcile(ctx context.Context, placeID string) (bool, error) {
	before, err := s.store.GetPlaceAggregate(ctx, placeID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		observability.ObserveReconcile("error")
		return false, domain.Remote("getPlaceAggregate", err)
	}
	after, err := s.RecomputeAggregate(ctx, placeID)
	if err != nil {
		observability.ObserveReconcile("error")
		return false, err
	}
	if before.SameTotals(after) {
		observability.ObserveReconcile("clean")
		return false, nil
	}
	observability.ObserveReconcile("drift")
	log.Warn().
		Str("place", placeID).
		Int("stored_count", before.ReviewCount).
		Int("actual_count", after.ReviewCount).
		Msg("aggregate drift repaired")
	return true, nil
}

// invalidatePlace runs after the store commit. Each Del also advances the
// key's generation, so a reader that loaded the old value cannot cache it.
func (s *ReviewService) invalidatePlace(ctx context.Context, placeID, userID string) {
	_ = s.cache.Del(ctx, aggregateKey(placeID))
	_ = s.cache.Del(ctx, reviewsKey(placeID))
	if userID != "" {
		_ = s.cache.Del(ctx, userReviewsKey(userID))
	}
}

func aggregateKey(placeID string) string { return fmt.Sprintf("aggregate:%s", placeID) }
func reviewsKey(placeID string) string { return fmt.Sprintf("accessreviews:%s", placeID) }
func userReviewsKey(userID string) string { return fmt.Sprintf("userreviews:%s", userID) }
func googleReviewsKey(placeID string) string { return fmt.Sprintf("googlereviews:%s", placeID) }
