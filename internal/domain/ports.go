package domain

import (
	"context"
	"time"
)

type PlacesClient interface {
	TextSearch(ctx context.Context, q SearchQuery) ([]PlaceCandidate, error)
	PlaceReviews(ctx context.Context, placeID string) ([]ThirdPartyReview, error)
	PhotoURL(ref string, maxWidth int) string
}

// ReviewStore persists accessibility reviews and their per-place aggregate.
// CreateReview and RecomputeAggregate are atomic: a concurrent submission can
// never be lost from the aggregate.
type ReviewStore interface {
	// Write paths
	CreateReview(ctx context.Context, r AccessibilityReview) (AccessibilityReview, PlaceAggregate, error)
	RecomputeAggregate(ctx context.Context, placeID string) (PlaceAggregate, error)

	// Read paths
	GetPlaceAggregate(ctx context.Context, placeID string) (PlaceAggregate, error)
	ListReviews(ctx context.Context, placeID string) ([]AccessibilityReview, error)
	ListUserReviews(ctx context.Context, userID string) ([]AccessibilityReview, error)
	ListPlaceIDs(ctx context.Context) ([]string, error)
}

type UserRepository interface {
	CreateUser(ctx context.Context, u UserRecord) error
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
}

type IdentityProvider interface {
	CreateAccount(ctx context.Context, email, password, displayName string) (User, error)
	VerifyPassword(ctx context.Context, email, password string) (User, error)
}

type SessionStore interface {
	Put(ctx context.Context, s Session, ttl time.Duration) error
	Get(ctx context.Context, id string) (Session, error)
	Delete(ctx context.Context, id string) error
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	// Del removes key and advances its generation.
	Del(ctx context.Context, key string) error
	// Generation is the number of Dels key has seen.
	Generation(ctx context.Context, key string) (int64, error)
	// SetIfGeneration stores v only while key is still at gen and reports
	// whether it did.
	SetIfGeneration(ctx context.Context, key string, v any, gen int64, ttlSec int) (bool, error)
}
