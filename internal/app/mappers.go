package app

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"accessmap/internal/domain"
)

// toPlace merges a search hit with its aggregate. A zero aggregate leaves
// Accessibility nil.
func toPlace(c domain.PlaceCandidate, agg domain.PlaceAggregate, photos []string) domain.Place {
	return domain.Place{
		ID:                       c.ID,
		Name:                     c.Name,
		Address:                  c.Address,
		Location:                 c.Location,
		GoogleRating:             c.GoogleRating,
		GoogleReviewCount:        c.GoogleReviewCount,
		Accessibility:            agg.Ratings(),
		AccessibilityReviewCount: agg.ReviewCount,
		PhotoRefs:                c.PhotoRefs,
		Photos:                   photos,
		PhoneNumber:              c.PhoneNumber,
	}
}

// searchKey hashes the normalized query so arbitrary user text never ends up
// in a cache key.
func searchKey(q domain.SearchQuery) string {
	raw := strings.ToLower(q.Text)
	if q.Near != nil {
		raw += fmt.Sprintf("|%.4f,%.4f|%d", q.Near.Lat, q.Near.Lng, q.Radius)
	}
	sum := sha1.Sum([]byte(raw))
	return "search:" + hex.EncodeToString(sum[:])
}

// sortNewestFirst orders by creation time, ties broken by id for a stable
// listing.
func sortNewestFirst(rs []domain.AccessibilityReview) {
	sort.SliceStable(rs, func(i, j int) bool {
		if !rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].CreatedAt.After(rs[j].CreatedAt)
		}
		return rs[i].ID > rs[j].ID
	})
}

func sortThirdParty(rs []domain.ThirdPartyReview) {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].Time.After(rs[j].Time) })
}
