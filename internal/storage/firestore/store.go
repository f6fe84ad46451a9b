// Package firestore stores places, accessibility reviews and user profiles in
// Cloud Firestore using the document layout of the mobile client.
package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	gfs "cloud.google.com/go/firestore"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"accessmap/internal/domain"
)

type Store struct{ c *gfs.Client }

func New(c *gfs.Client) *Store { return &Store{c: c} }

func (s *Store) place(id string) *gfs.DocumentRef {
	return s.c.Collection(placesCollection).Doc(id)
}

func isNotFound(err error) bool { return status.Code(err) == codes.NotFound }

// CreateReview writes the review and the updated aggregate in one
// transaction. Firestore retries the closure when a concurrent writer touched
// the place document, so the read-modify-write never loses an update.
func (s *Store) CreateReview(ctx context.Context, r domain.AccessibilityReview) (domain.AccessibilityReview, domain.PlaceAggregate, error) {
	placeRef := s.place(r.PlaceID)
	reviewRef := placeRef.Collection(reviewsCollection).NewDoc()

	var agg domain.PlaceAggregate
	err := s.c.RunTransaction(ctx, func(ctx context.Context, tx *gfs.Transaction) error {
		cur := domain.PlaceAggregate{PlaceID: r.PlaceID}
		snap, err := tx.Get(placeRef)
		switch {
		case err == nil:
			var d placeDoc
			if err := snap.DataTo(&d); err != nil {
				return err
			}
			cur = d.toDomain(r.PlaceID)
		case !isNotFound(err):
			return err
		}

		agg = cur.Apply(r.PlaceID, r.PlaceName, r.Ratings, time.Now().UTC())
		if err := tx.Create(reviewRef, fromReview(r)); err != nil {
			return err
		}
		if err := tx.Set(placeRef, fromAggregate(agg)); err != nil {
			return err
		}
		if r.UserID != "" {
			userRef := s.c.Collection(usersCollection).Doc(r.UserID)
			return tx.Set(userRef, map[string]any{"reviews": gfs.ArrayUnion(reviewRef.ID)}, gfs.MergeAll)
		}
		return nil
	})
	if err != nil {
		return domain.AccessibilityReview{}, domain.PlaceAggregate{}, err
	}

	// read back for the server-assigned timestamps
	out := committedReview(r, reviewRef.ID, time.Now().UTC(), func() (reviewDoc, error) {
		var d reviewDoc
		snap, err := reviewRef.Get(ctx)
		if err != nil {
			return d, err
		}
		err = snap.DataTo(&d)
		return d, err
	})
	return out, agg, nil
}

// committedReview returns the stored review, or the submitted one stamped
// with now when the read-back fails. The write has committed either way.
func committedReview(r domain.AccessibilityReview, id string, now time.Time, read func() (reviewDoc, error)) domain.AccessibilityReview {
	d, err := read()
	if err == nil {
		return d.toDomain(id)
	}
	log.Warn().Err(err).Str("place", r.PlaceID).Str("review", id).Msg("review read-back failed after commit")
	r.ID = id
	r.CreatedAt, r.UpdatedAt = now, now
	if r.Photos == nil {
		r.Photos = []string{}
	}
	return r
}

// RecomputeAggregate rebuilds the aggregate from the review sub-collection
// inside a transaction, so it cannot interleave with CreateReview.
func (s *Store) RecomputeAggregate(ctx context.Context, placeID string) (domain.PlaceAggregate, error) {
	placeRef := s.place(placeID)

	var agg domain.PlaceAggregate
	err := s.c.RunTransaction(ctx, func(ctx context.Context, tx *gfs.Transaction) error {
		var name string
		exists := true
		snap, err := tx.Get(placeRef)
		switch {
		case err == nil:
			var d placeDoc
			if err := snap.DataTo(&d); err != nil {
				return err
			}
			name = d.Name
		case isNotFound(err):
			exists = false
		default:
			return err
		}

		snaps, err := tx.Documents(placeRef.Collection(reviewsCollection)).GetAll()
		if err != nil {
			return err
		}
		if !exists && len(snaps) == 0 {
			return domain.ErrNotFound
		}
		reviews, err := decodeReviews(snaps)
		if err != nil {
			return err
		}
		agg = domain.Recompute(placeID, name, reviews, time.Now().UTC())
		return tx.Set(placeRef, fromAggregate(agg))
	})
	if err != nil {
		return domain.PlaceAggregate{}, err
	}
	return agg, nil
}

func (s *Store) GetPlaceAggregate(ctx context.Context, placeID string) (domain.PlaceAggregate, error) {
	snap, err := s.place(placeID).Get(ctx)
	if isNotFound(err) {
		return domain.PlaceAggregate{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.PlaceAggregate{}, err
	}
	var d placeDoc
	if err := snap.DataTo(&d); err != nil {
		return domain.PlaceAggregate{}, err
	}
	return d.toDomain(placeID), nil
}

func (s *Store) ListReviews(ctx context.Context, placeID string) ([]domain.AccessibilityReview, error) {
	snaps, err := s.place(placeID).Collection(reviewsCollection).Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	return decodeReviews(snaps)
}

// ListUserReviews needs a single-field collection group index on userId.
func (s *Store) ListUserReviews(ctx context.Context, userID string) ([]domain.AccessibilityReview, error) {
	snaps, err := s.c.CollectionGroup(reviewsCollection).Where("userId", "==", userID).Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	return decodeReviews(snaps)
}

func (s *Store) ListPlaceIDs(ctx context.Context) ([]string, error) {
	it := s.c.Collection(placesCollection).DocumentRefs(ctx)
	var ids []string
	for {
		ref, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		ids = append(ids, ref.ID)
	}
	return ids, nil
}

func decodeReviews(snaps []*gfs.DocumentSnapshot) ([]domain.AccessibilityReview, error) {
	out := make([]domain.AccessibilityReview, 0, len(snaps))
	for _, snap := range snaps {
		var d reviewDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, err
		}
		out = append(out, d.toDomain(snap.Ref.ID))
	}
	return out, nil
}

// ---- users ----

// CreateUser writes users/{uid}. The email check and the write share a
// transaction so two sign-ups with one address cannot both succeed.
func (s *Store) CreateUser(ctx context.Context, u domain.UserRecord) error {
	users := s.c.Collection(usersCollection)
	email := strings.ToLower(u.Email)
	err := s.c.RunTransaction(ctx, func(ctx context.Context, tx *gfs.Transaction) error {
		existing, err := tx.Documents(users.Where("email", "==", email).Limit(1)).GetAll()
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return domain.ErrAccountExists
		}
		return tx.Create(users.Doc(u.ID), userDoc{
			Email:        email,
			DisplayName:  u.DisplayName,
			PasswordHash: u.PasswordHash,
			Reviews:      []string{},
		})
	})
	if status.Code(err) == codes.AlreadyExists {
		return domain.ErrAccountExists
	}
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (domain.UserRecord, error) {
	snaps, err := s.c.Collection(usersCollection).
		Where("email", "==", strings.ToLower(email)).
		Limit(1).
		Documents(ctx).GetAll()
	if err != nil {
		return domain.UserRecord{}, err
	}
	if len(snaps) == 0 {
		return domain.UserRecord{}, domain.ErrNotFound
	}
	var d userDoc
	if err := snaps[0].DataTo(&d); err != nil {
		return domain.UserRecord{}, err
	}
	return domain.UserRecord{
		User: domain.User{
			ID:          snaps[0].Ref.ID,
			Email:       d.Email,
			DisplayName: d.DisplayName,
			CreatedAt:   d.CreatedAt,
		},
		PasswordHash: d.PasswordHash,
	}, nil
}
