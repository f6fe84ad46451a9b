package firestore

import (
	"time"

	"accessmap/internal/domain"
)

const (
	placesCollection  = "places"
	reviewsCollection = "accessibilityReviews"
	usersCollection   = "users"
)

// placeDoc is places/{placeId}. Field names match documents written by the
// mobile client; the *Sum fields are ours and absent on older documents.
type placeDoc struct {
	PlaceID                  string    `firestore:"placeId"`
	Name                     string    `firestore:"name"`
	AccessibilityReviewCount int64     `firestore:"accessibilityReviewCount"`
	AggregatePhysicalRating  float64   `firestore:"aggregatePhysicalRating"`
	AggregateSensoryRating   float64   `firestore:"aggregateSensoryRating"`
	AggregateCognitiveRating float64   `firestore:"aggregateCognitiveRating"`
	PhysicalSum              int64     `firestore:"physicalSum"`
	SensorySum               int64     `firestore:"sensorySum"`
	CognitiveSum             int64     `firestore:"cognitiveSum"`
	LastUpdated              time.Time `firestore:"lastUpdated,serverTimestamp"`
}

func (d placeDoc) toDomain(id string) domain.PlaceAggregate {
	if d.PlaceID == "" {
		d.PlaceID = id
	}
	return domain.PlaceAggregate{
		PlaceID:      d.PlaceID,
		Name:         d.Name,
		Physical:     d.AggregatePhysicalRating,
		Sensory:      d.AggregateSensoryRating,
		Cognitive:    d.AggregateCognitiveRating,
		PhysicalSum:  d.PhysicalSum,
		SensorySum:   d.SensorySum,
		CognitiveSum: d.CognitiveSum,
		ReviewCount:  int(d.AccessibilityReviewCount),
		LastUpdated:  d.LastUpdated,
	}.Normalize()
}

// fromAggregate leaves LastUpdated zero so the server stamps it.
func fromAggregate(a domain.PlaceAggregate) placeDoc {
	return placeDoc{
		PlaceID:                  a.PlaceID,
		Name:                     a.Name,
		AccessibilityReviewCount: int64(a.ReviewCount),
		AggregatePhysicalRating:  a.Physical,
		AggregateSensoryRating:   a.Sensory,
		AggregateCognitiveRating: a.Cognitive,
		PhysicalSum:              a.PhysicalSum,
		SensorySum:               a.SensorySum,
		CognitiveSum:             a.CognitiveSum,
	}
}

// reviewDoc is places/{placeId}/accessibilityReviews/{auto}.
type reviewDoc struct {
	UserID          string    `firestore:"userId"`
	PlaceID         string    `firestore:"placeId"`
	PlaceName       string    `firestore:"placeName"`
	PhysicalRating  int64     `firestore:"physicalRating"`
	SensoryRating   int64     `firestore:"sensoryRating"`
	CognitiveRating int64     `firestore:"cognitiveRating"`
	ReviewText      string    `firestore:"reviewText"`
	Photos          []string  `firestore:"photos"`
	CreatedAt       time.Time `firestore:"createdAt,serverTimestamp"`
	UpdatedAt       time.Time `firestore:"updatedAt,serverTimestamp"`
}

func fromReview(r domain.AccessibilityReview) reviewDoc {
	photos := r.Photos
	if photos == nil {
		photos = []string{}
	}
	return reviewDoc{
		UserID:          r.UserID,
		PlaceID:         r.PlaceID,
		PlaceName:       r.PlaceName,
		PhysicalRating:  int64(r.Ratings.Physical),
		SensoryRating:   int64(r.Ratings.Sensory),
		CognitiveRating: int64(r.Ratings.Cognitive),
		ReviewText:      r.Text,
		Photos:          photos,
	}
}

func (d reviewDoc) toDomain(id string) domain.AccessibilityReview {
	return domain.AccessibilityReview{
		ID:        id,
		UserID:    d.UserID,
		PlaceID:   d.PlaceID,
		PlaceName: d.PlaceName,
		Ratings: domain.Ratings{
			Physical:  int(d.PhysicalRating),
			Sensory:   int(d.SensoryRating),
			Cognitive: int(d.CognitiveRating),
		},
		Text:      d.ReviewText,
		Photos:    d.Photos,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// userDoc is users/{uid}. Reviews lists the ids of reviews the user wrote.
type userDoc struct {
	Email        string    `firestore:"email"`
	DisplayName  string    `firestore:"displayName"`
	PasswordHash string    `firestore:"passwordHash,omitempty"`
	CreatedAt    time.Time `firestore:"createdAt,serverTimestamp"`
	Reviews      []string  `firestore:"reviews"`
}
