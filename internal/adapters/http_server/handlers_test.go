package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"accessmap/internal/app"
	"accessmap/internal/domain"
	"accessmap/internal/storage/memory"
)

type stubPlaces struct{ err error }

func (s stubPlaces) TextSearch(ctx context.Context, q domain.SearchQuery) ([]domain.PlaceCandidate, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []domain.PlaceCandidate{
		{ID: "p1", Name: "Museum", Address: "1 Main St", Location: domain.Coords{Lat: 1, Lng: 2}},
		{ID: "p2", Name: "Cafe"},
	}, nil
}

func (s stubPlaces) PlaceReviews(ctx context.Context, id string) ([]domain.ThirdPartyReview, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []domain.ThirdPartyReview{{ID: "g1", Author: "Sam", Rating: 4, Text: "Nice", Time: time.Unix(100, 0).UTC()}}, nil
}

func (s stubPlaces) PhotoURL(ref string, maxWidth int) string { return "https://photos.test/" + ref }

func newTestServer(t *testing.T, places domain.PlacesClient) (*httptest.Server, *memory.Store) {
	t.Helper()
	st := memory.New()
	auth := app.NewAuthService(app.NewLocalIdentity(st, bcrypt.MinCost), memory.NewSessions(), "test-secret", time.Hour)
	srv := New(auth)
	srv.MountHandlers(&Handlers{
		Q:    app.NewQueryService(places, st, nil, 0, app.SearchDefaults{}),
		R:    app.NewReviewService(st, nil),
		Auth: auth,
	})
	ts := httptest.NewServer(srv.Mux())
	t.Cleanup(ts.Close)
	return ts, st
}

func do(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func decode(t *testing.T, res *http.Response, dst any) {
	t.Helper()
	if err := json.NewDecoder(res.Body).Decode(dst); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func signIn(t *testing.T, base string) string {
	t.Helper()
	res := do(t, http.MethodPost, base+"/v1/accounts", "", map[string]string{
		"email": "ada@example.com", "password": "secret1", "displayName": "Ada",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create account status %d", res.StatusCode)
	}
	res = do(t, http.MethodPost, base+"/v1/sessions", "", map[string]string{
		"email": "ada@example.com", "password": "secret1",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("sign in status %d", res.StatusCode)
	}
	var out signInResponse
	decode(t, res, &out)
	if out.Token == "" || out.DisplayName != "Ada" {
		t.Fatalf("unexpected sign-in body %+v", out)
	}
	return out.Token
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t, stubPlaces{})
	res := do(t, http.MethodGet, ts.URL+"/healthz", "", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d", res.StatusCode)
	}
}

func TestSubmitReview_Flow(t *testing.T) {
	ts, _ := newTestServer(t, stubPlaces{})
	url := ts.URL + "/v1/places/p1/accessibility/reviews"
	review := map[string]any{
		"placeName": "Museum", "physicalRating": 5, "sensoryRating": 4, "cognitiveRating": 3,
		"reviewText": "Step-free entrance and quiet rooms.",
	}

	// anonymous
	res := do(t, http.MethodPost, url, "", review)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/problem+json" {
		t.Fatalf("unexpected content type %q", ct)
	}

	tok := signIn(t, ts.URL)

	// invalid
	bad := map[string]any{"physicalRating": 0, "sensoryRating": 4, "cognitiveRating": 3, "reviewText": "Step-free entrance."}
	res = do(t, http.MethodPost, url, tok, bad)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", res.StatusCode)
	}
	var p problem
	decode(t, res, &p)
	if p.Field != "physicalRating" {
		t.Fatalf("unexpected problem %+v", p)
	}

	// valid
	res = do(t, http.MethodPost, url, tok, review)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", res.StatusCode)
	}
	var created map[string]string
	decode(t, res, &created)
	if created["reviewId"] == "" {
		t.Fatalf("missing reviewId")
	}

	res = do(t, http.MethodGet, ts.URL+"/v1/places/p1/accessibility", "", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("aggregate status %d", res.StatusCode)
	}
	var agg domain.PlaceAggregate
	decode(t, res, &agg)
	if agg.ReviewCount != 1 || agg.Physical != 5 || agg.Name != "Museum" {
		t.Fatalf("unexpected aggregate %+v", agg)
	}

	res = do(t, http.MethodGet, ts.URL+"/v1/me/reviews", tok, nil)
	var mine []domain.AccessibilityReview
	decode(t, res, &mine)
	if len(mine) != 1 || mine[0].ID != created["reviewId"] {
		t.Fatalf("unexpected user reviews %+v", mine)
	}

	// sign out invalidates the token
	res = do(t, http.MethodDelete, ts.URL+"/v1/sessions/current", tok, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("sign out status %d", res.StatusCode)
	}
	res = do(t, http.MethodPost, url, tok, review)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after sign out, got %d", res.StatusCode)
	}
}

func TestAccounts_Errors(t *testing.T) {
	ts, _ := newTestServer(t, stubPlaces{})
	_ = signIn(t, ts.URL)

	res := do(t, http.MethodPost, ts.URL+"/v1/accounts", "", map[string]string{
		"email": "ADA@example.com", "password": "secret1", "displayName": "Ada",
	})
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", res.StatusCode)
	}

	res = do(t, http.MethodPost, ts.URL+"/v1/sessions", "", map[string]string{
		"email": "ada@example.com", "password": "wrong-pass",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/sessions", strings.NewReader("{nope"))
	raw, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer raw.Body.Close()
	if raw.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", raw.StatusCode)
	}
}

func TestSearch_AndETag(t *testing.T) {
	ts, st := newTestServer(t, stubPlaces{})
	if _, _, err := st.CreateReview(context.Background(), domain.AccessibilityReview{
		PlaceID: "p1", PlaceName: "Museum", Ratings: domain.Ratings{Physical: 4, Sensory: 2, Cognitive: 3},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	res := do(t, http.MethodGet, ts.URL+"/v1/places/search?q=museum&lat=51.5&lng=-0.12", "", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d", res.StatusCode)
	}
	etag := res.Header.Get("ETag")
	if !strings.HasPrefix(etag, `W/"`) {
		t.Fatalf("expected weak etag, got %q", etag)
	}
	var places []domain.Place
	decode(t, res, &places)
	if len(places) != 2 || places[0].Accessibility == nil || places[0].Accessibility.Physical != 4 {
		t.Fatalf("unexpected places %+v", places)
	}
	if places[1].Accessibility != nil || places[1].AccessibilityReviewCount != 0 {
		t.Fatalf("unreviewed place should carry no ratings: %+v", places[1])
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/v1/places/search?q=museum&lat=51.5&lng=-0.12", nil)
	req.Header.Set("If-None-Match", etag)
	res2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer res2.Body.Close()
	if res2.StatusCode != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", res2.StatusCode)
	}

	for _, q := range []string{"q=museum&lat=51.5", "q=museum&radius=-1", "q=museum&lat=100&lng=0"} {
		if res := do(t, http.MethodGet, ts.URL+"/v1/places/search?"+q, "", nil); res.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", q, res.StatusCode)
		}
	}
	if res := do(t, http.MethodGet, ts.URL+"/v1/places/search?q=", "", nil); res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("empty query: expected 422, got %d", res.StatusCode)
	}
}

func TestUpstreamFailureIs502(t *testing.T) {
	ts, _ := newTestServer(t, stubPlaces{err: errors.New("connection reset")})
	res := do(t, http.MethodGet, ts.URL+"/v1/places/search?q=museum", "", nil)
	if res.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", res.StatusCode)
	}
	res = do(t, http.MethodGet, ts.URL+"/v1/places/p1/google-reviews", "", nil)
	if res.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", res.StatusCode)
	}
}

func TestReadEndpoints(t *testing.T) {
	ts, _ := newTestServer(t, stubPlaces{})

	res := do(t, http.MethodGet, ts.URL+"/v1/places/none/accessibility", "", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.StatusCode)
	}

	res = do(t, http.MethodGet, ts.URL+"/v1/places/none/accessibility/reviews", "", nil)
	var rs []domain.AccessibilityReview
	decode(t, res, &rs)
	if res.StatusCode != http.StatusOK || len(rs) != 0 {
		t.Fatalf("expected empty list, got %d %+v", res.StatusCode, rs)
	}

	res = do(t, http.MethodGet, ts.URL+"/v1/places/p1/google-reviews", "", nil)
	var g []domain.ThirdPartyReview
	decode(t, res, &g)
	if len(g) != 1 || g[0].Author != "Sam" {
		t.Fatalf("unexpected google reviews %+v", g)
	}

	if res := do(t, http.MethodPost, ts.URL+"/v1/places/p1/accessibility/recompute", "", nil); res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}
	if res := do(t, http.MethodGet, ts.URL+"/v1/me/reviews", "", nil); res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}
}

func TestRecompute_SignedIn(t *testing.T) {
	ts, st := newTestServer(t, stubPlaces{})
	tok := signIn(t, ts.URL)
	st.PutAggregate(domain.PlaceAggregate{PlaceID: "p9", ReviewCount: 4, PhysicalSum: 4, SensorySum: 4, CognitiveSum: 4})

	res := do(t, http.MethodPost, ts.URL+"/v1/places/p9/accessibility/recompute", tok, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d", res.StatusCode)
	}
	var agg domain.PlaceAggregate
	decode(t, res, &agg)
	if agg.ReviewCount != 0 || agg.Physical != 0 {
		t.Fatalf("expected drift repaired to empty, got %+v", agg)
	}
}

func TestBearer(t *testing.T) {
	cases := map[string]string{"Bearer abc": "abc", "bearer  xyz ": "xyz", "Basic abc": "", "Bearer ": ""}
	for h, want := range cases {
		got, ok := bearer(h)
		if got != want || ok != (want != "") {
			t.Fatalf("bearer(%q) = %q, %v", h, got, ok)
		}
	}
}
