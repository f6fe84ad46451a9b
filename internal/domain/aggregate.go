package domain

import (
	"math"
	"time"
)

// PlaceAggregate is the persisted accessibility summary of a place.
//
// Averages are always derived from the integer sums, so folding reviews one
// at a time and recomputing from the full review set give identical results.
// ReviewCount == 0 implies every average is 0.
type PlaceAggregate struct {
	PlaceID      string    `json:"placeId"`
	Name         string    `json:"name"`
	Physical     float64   `json:"aggregatePhysicalRating"`
	Sensory      float64   `json:"aggregateSensoryRating"`
	Cognitive    float64   `json:"aggregateCognitiveRating"`
	PhysicalSum  int64     `json:"physicalSum"`
	SensorySum   int64     `json:"sensorySum"`
	CognitiveSum int64     `json:"cognitiveSum"`
	ReviewCount  int       `json:"accessibilityReviewCount"`
	LastUpdated  time.Time `json:"lastUpdated"`
}

// IncrementalMean folds one sample into a running average over oldCount samples.
func IncrementalMean(oldAvg float64, oldCount int, sample int) float64 {
	if oldCount <= 0 {
		return float64(sample)
	}
	return (oldAvg*float64(oldCount) + float64(sample)) / float64(oldCount+1)
}

// Ratings returns the category averages, or nil when no review exists yet.
func (a PlaceAggregate) Ratings() *CategoryRatings {
	if a.ReviewCount == 0 {
		return nil
	}
	return &CategoryRatings{Physical: a.Physical, Sensory: a.Sensory, Cognitive: a.Cognitive}
}

// sumDriftTolerance bounds how far a stored average may sit from sum/count
// before the sums are treated as stale.
const sumDriftTolerance = 1e-6

// Normalize enforces the zero-count invariant and rebuilds the sums of
// aggregates whose averages were written without them: documents that never
// had sums, and documents whose count and averages were later updated by a
// client that leaves the sums alone.
func (a PlaceAggregate) Normalize() PlaceAggregate {
	if a.ReviewCount <= 0 {
		a.ReviewCount = 0
		a.PhysicalSum, a.SensorySum, a.CognitiveSum = 0, 0, 0
		a.Physical, a.Sensory, a.Cognitive = 0, 0, 0
		return a
	}
	if a.staleSums() {
		n := float64(a.ReviewCount)
		a.PhysicalSum = int64(math.Round(a.Physical * n))
		a.SensorySum = int64(math.Round(a.Sensory * n))
		a.CognitiveSum = int64(math.Round(a.Cognitive * n))
	}
	a.derive()
	return a
}

func (a PlaceAggregate) staleSums() bool {
	if a.PhysicalSum == 0 && a.SensorySum == 0 && a.CognitiveSum == 0 {
		return true
	}
	n := float64(a.ReviewCount)
	return math.Abs(float64(a.PhysicalSum)/n-a.Physical) > sumDriftTolerance ||
		math.Abs(float64(a.SensorySum)/n-a.Sensory) > sumDriftTolerance ||
		math.Abs(float64(a.CognitiveSum)/n-a.Cognitive) > sumDriftTolerance
}

func (a *PlaceAggregate) derive() {
	if a.ReviewCount == 0 {
		a.Physical, a.Sensory, a.Cognitive = 0, 0, 0
		return
	}
	n := float64(a.ReviewCount)
	a.Physical = float64(a.PhysicalSum) / n
	a.Sensory = float64(a.SensorySum) / n
	a.Cognitive = float64(a.CognitiveSum) / n
}

// Apply folds one new review into the aggregate. An empty aggregate becomes a
// count of one with averages equal to the ratings.
func (a PlaceAggregate) Apply(placeID, placeName string, r Ratings, now time.Time) PlaceAggregate {
	a = a.Normalize()
	a.PlaceID = placeID
	if placeName != "" {
		a.Name = placeName
	}
	a.PhysicalSum += int64(r.Physical)
	a.SensorySum += int64(r.Sensory)
	a.CognitiveSum += int64(r.Cognitive)
	a.ReviewCount++
	a.derive()
	a.LastUpdated = now
	return a
}

// FromSums builds an aggregate from stored sums and count. The sums are
// authoritative; averages are derived from them.
func FromSums(placeID, name string, physical, sensory, cognitive int64, count int, updated time.Time) PlaceAggregate {
	a := PlaceAggregate{
		PlaceID:      placeID,
		Name:         name,
		PhysicalSum:  physical,
		SensorySum:   sensory,
		CognitiveSum: cognitive,
		ReviewCount:  count,
		LastUpdated:  updated,
	}
	if a.ReviewCount <= 0 {
		return a.Normalize()
	}
	a.derive()
	return a
}

// Recompute rebuilds an aggregate from the complete review set of a place.
func Recompute(placeID, name string, reviews []AccessibilityReview, now time.Time) PlaceAggregate {
	a := PlaceAggregate{PlaceID: placeID, Name: name}
	for _, r := range reviews {
		if a.Name == "" {
			a.Name = r.PlaceName
		}
		a.PhysicalSum += int64(r.Ratings.Physical)
		a.SensorySum += int64(r.Ratings.Sensory)
		a.CognitiveSum += int64(r.Ratings.Cognitive)
		a.ReviewCount++
	}
	a.derive()
	a.LastUpdated = now
	return a
}

// SameTotals reports whether two aggregates describe the same review set.
// Names and timestamps are ignored.
func (a PlaceAggregate) SameTotals(b PlaceAggregate) bool {
	a, b = a.Normalize(), b.Normalize()
	return a.ReviewCount == b.ReviewCount &&
		a.PhysicalSum == b.PhysicalSum &&
		a.SensorySum == b.SensorySum &&
		a.CognitiveSum == b.CognitiveSum
}
