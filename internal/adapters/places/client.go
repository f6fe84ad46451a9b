// internal/adapters/places/client.go
package places

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"googlemaps.github.io/maps"

	"accessmap/internal/adapters/observability"
	"accessmap/internal/domain"
)

const DefaultBaseURL = "https://maps.googleapis.com"

var (
	ErrUnauthorized = errors.New("places: request denied")
	ErrRateLimited  = errors.New("places: over query limit")
)

// Client talks to the Google Places web service. Calls are rate limited on
// our side and never retried: a failure surfaces to the caller at once.
type Client struct {
	mc   *maps.Client
	base string
	key  string
	lang string
	rl   *rate.Limiter
}

func New(base, key, lang string, rps int) (*Client, error) {
	if key == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if rps <= 0 {
		rps = 10
	}
	if base == "" {
		base = DefaultBaseURL
	}
	base = strings.TrimRight(base, "/")

	opts := []maps.ClientOption{
		maps.WithAPIKey(key),
		maps.WithHTTPClient(&http.Client{Timeout: 20 * time.Second}),
		// limiting happens in Client.wait so it shows up in our metrics
		maps.WithRateLimit(0),
	}
	if base != DefaultBaseURL {
		opts = append(opts, maps.WithBaseURL(base))
	}
	mc, err := maps.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	return &Client{
		mc:   mc,
		base: base,
		key:  key,
		lang: lang,
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

func (c *Client) TextSearch(ctx context.Context, q domain.SearchQuery) ([]domain.PlaceCandidate, error) {
	req := &maps.TextSearchRequest{Query: q.Text, Language: c.lang}
	if q.Near != nil {
		req.Location = &maps.LatLng{Lat: q.Near.Lat, Lng: q.Near.Lng}
		req.Radius = q.Radius
	}

	var resp maps.PlacesSearchResponse
	err := c.call(ctx, "textsearch", func(ctx context.Context) error {
		var err error
		resp, err = c.mc.TextSearch(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.PlaceCandidate, 0, len(resp.Results))
	for _, r := range resp.Results {
		out = append(out, mapCandidate(r))
	}
	return out, nil
}

// PlaceReviews returns the most recent reviews the provider exposes for a
// place.
func (c *Client) PlaceReviews(ctx context.Context, placeID string) ([]domain.ThirdPartyReview, error) {
	req := &maps.PlaceDetailsRequest{
		PlaceID:     placeID,
		Language:    c.lang,
		Fields:      []maps.PlaceDetailsFieldMask{maps.PlaceDetailsFieldMaskReviews},
		ReviewsSort: "newest",
	}

	var res maps.PlaceDetailsResult
	err := c.call(ctx, "details", func(ctx context.Context) error {
		var err error
		res, err = c.mc.PlaceDetails(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.ThirdPartyReview, 0, len(res.Reviews))
	for _, r := range res.Reviews {
		out = append(out, mapReview(r))
	}
	return out, nil
}

// PhotoURL resolves a photo reference to a fetchable image URL.
func (c *Client) PhotoURL(ref string, maxWidth int) string {
	if ref == "" {
		return ""
	}
	return fmt.Sprintf("%s/maps/api/place/photo?maxwidth=%d&photoreference=%s&key=%s",
		c.base, maxWidth, url.QueryEscape(ref), url.QueryEscape(c.key))
}

// ---- Internals ----

func (c *Client) call(ctx context.Context, endpoint string, fn func(context.Context) error) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}
	start := time.Now()
	err := classify(fn(ctx))
	observability.ObserveExternal("google_places", endpoint, statusOf(err), time.Since(start))
	return err
}

// classify maps the API status string carried in maps errors onto our
// sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "NOT_FOUND"), strings.Contains(msg, "INVALID_REQUEST"):
		return fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
	case strings.Contains(msg, "REQUEST_DENIED"):
		return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
	case strings.Contains(msg, "OVER_QUERY_LIMIT"):
		return fmt.Errorf("%w: %s", ErrRateLimited, msg)
	}
	return err
}

func statusOf(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return 499
	}
	return http.StatusBadGateway
}

func mapCandidate(r maps.PlacesSearchResult) domain.PlaceCandidate {
	refs := make([]string, 0, len(r.Photos))
	for _, p := range r.Photos {
		if p.PhotoReference != "" {
			refs = append(refs, p.PhotoReference)
		}
	}
	return domain.PlaceCandidate{
		ID:                r.PlaceID,
		Name:              r.Name,
		Address:           r.FormattedAddress,
		Location:          domain.Coords{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng},
		GoogleRating:      float64(r.Rating),
		GoogleReviewCount: r.UserRatingsTotal,
		PhotoRefs:         refs,
	}
}

func mapReview(r maps.PlaceReview) domain.ThirdPartyReview {
	return domain.ThirdPartyReview{
		ID:       fmt.Sprintf("%d-%s", r.Time, r.AuthorName),
		Author:   r.AuthorName,
		Rating:   r.Rating,
		Text:     r.Text,
		Time:     time.Unix(int64(r.Time), 0).UTC(),
		PhotoURL: r.AuthorProfilePhoto,
	}
}
