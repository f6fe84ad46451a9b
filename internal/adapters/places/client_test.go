package places_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"accessmap/internal/adapters/places"
	"accessmap/internal/domain"
)

func TestClient_TextSearch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/maps/api/place/textsearch/json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("query") != "library" || q.Get("radius") != "5000" || q.Get("key") != "test-key" {
			t.Errorf("unexpected query %v", q)
		}
		if !strings.HasPrefix(q.Get("location"), "51.5") {
			t.Errorf("unexpected location %q", q.Get("location"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "OK",
			"results": []map[string]any{{
				"place_id":           "abc",
				"name":               "Central Library",
				"formatted_address":  "1 High St",
				"rating":             4.5,
				"user_ratings_total": 210,
				"geometry":           map[string]any{"location": map[string]any{"lat": 51.5, "lng": -0.12}},
				"photos":             []map[string]any{{"photo_reference": "ref-1", "width": 800, "height": 600}},
			}},
		})
	}))
	defer ts.Close()

	cl, err := places.New(ts.URL, "test-key", "", 100) // high RPS for tests
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got, err := cl.TextSearch(ctx, domain.SearchQuery{Text: "library", Near: &domain.Coords{Lat: 51.5, Lng: -0.12}, Radius: 5000})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 result, got %d", len(got))
	}
	c := got[0]
	if c.ID != "abc" || c.Name != "Central Library" || c.GoogleRating != 4.5 || c.GoogleReviewCount != 210 {
		t.Fatalf("unexpected candidate: %+v", c)
	}
	if c.Location.Lat != 51.5 || len(c.PhotoRefs) != 1 || c.PhotoRefs[0] != "ref-1" {
		t.Fatalf("unexpected candidate: %+v", c)
	}
}

func TestClient_PlaceReviews(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("placeid") != "abc" || q.Get("fields") != "reviews" || q.Get("reviews_sort") != "newest" {
			t.Errorf("unexpected query %v", q)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "OK",
			"result": map[string]any{"reviews": []map[string]any{
				{"author_name": "Ana", "rating": 5, "text": "Great", "time": 1700000000, "profile_photo_url": "https://img/ana"},
			}},
		})
	}))
	defer ts.Close()

	cl, _ := places.New(ts.URL, "test-key", "", 100)
	got, err := cl.PlaceReviews(context.Background(), "abc")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(got) != 1 || got[0].Author != "Ana" || got[0].Rating != 5 || got[0].PhotoURL != "https://img/ana" {
		t.Fatalf("unexpected reviews: %+v", got)
	}
	if !got[0].Time.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("unexpected time: %v", got[0].Time)
	}
}

func TestClient_NotFoundStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "NOT_FOUND"})
	}))
	defer ts.Close()

	cl, _ := places.New(ts.URL, "test-key", "", 100)
	_, err := cl.PlaceReviews(context.Background(), "gone")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClient_FailureIsNotRetried(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "UNKNOWN_ERROR"})
	}))
	defer ts.Close()

	cl, _ := places.New(ts.URL, "test-key", "", 100)
	if _, err := cl.TextSearch(context.Background(), domain.SearchQuery{Text: "cafe"}); err == nil {
		t.Fatalf("expected error")
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("expected exactly one call, got %d", n)
	}
}

func TestClient_PhotoURL(t *testing.T) {
	cl, _ := places.New("", "k", "", 1)
	got := cl.PhotoURL("ref/1", 400)
	want := "https://maps.googleapis.com/maps/api/place/photo?maxwidth=400&photoreference=ref%2F1&key=k"
	if got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestNew_RequiresKey(t *testing.T) {
	if _, err := places.New("", "", "", 1); err == nil {
		t.Fatalf("expected error without key")
	}
}
