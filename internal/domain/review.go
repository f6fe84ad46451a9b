package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MinRating     = 1
	MaxRating     = 5
	MinTextLength = 10
)

// Ratings are the three user-supplied category scores, each 1..5.
type Ratings struct {
	Physical  int `json:"physical"`
	Sensory   int `json:"sensory"`
	Cognitive int `json:"cognitive"`
}

// Validate reports the first rating that is unset or out of range.
func (r Ratings) Validate() error {
	for _, f := range []struct {
		name string
		v    int
	}{
		{"physicalRating", r.Physical},
		{"sensoryRating", r.Sensory},
		{"cognitiveRating", r.Cognitive},
	} {
		if f.v == 0 {
			return &ValidationError{Field: f.name, Reason: "rating is required"}
		}
		if f.v < MinRating || f.v > MaxRating {
			return &ValidationError{Field: f.name, Reason: "rating must be between 1 and 5"}
		}
	}
	return nil
}

// ValidateSubmission checks everything a review must satisfy before any write.
func ValidateSubmission(r Ratings, text string) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if utf8.RuneCountInString(strings.TrimSpace(text)) < MinTextLength {
		return &ValidationError{Field: "reviewText", Reason: "review must be at least 10 characters"}
	}
	return nil
}

// AccessibilityReview is append-only: stores assign ID and timestamps on
// creation and nothing mutates it afterwards.
type AccessibilityReview struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	PlaceID   string    `json:"placeId"`
	PlaceName string    `json:"placeName"`
	Ratings   Ratings   `json:"ratings"`
	Text      string    `json:"reviewText"`
	Photos    []string  `json:"photos"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ThirdPartyReview is a read-only review fetched from the places provider.
type ThirdPartyReview struct {
	ID       string    `json:"id"`
	Author   string    `json:"author"`
	Rating   int       `json:"rating"`
	Text     string    `json:"text"`
	Time     time.Time `json:"time"`
	PhotoURL string    `json:"photoUrl,omitempty"`
}
