// internal/adapters/http_server/handlers.go
package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"accessmap/internal/app"
	"accessmap/internal/domain"
)

const maxBodyBytes = 1 << 20

type Handlers struct {
	Q    *app.QueryService
	R    *app.ReviewService
	Auth *app.AuthService
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
	Field  string `json:"field,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Post("/v1/accounts", h.createAccount)
	s.mux.Post("/v1/sessions", h.signIn)
	s.mux.Delete("/v1/sessions/current", h.signOut)
	s.mux.Get("/v1/me/reviews", h.myReviews)

	s.mux.Route("/v1/places", func(r chi.Router) {
		r.Get("/search", h.search)
		r.Get("/{id}/google-reviews", h.googleReviews)
		r.Get("/{id}/accessibility", h.getAggregate)
		r.Get("/{id}/accessibility/reviews", h.listReviews)
		r.Post("/{id}/accessibility/reviews", h.submitReview)
		r.Post("/{id}/accessibility/recompute", h.recompute)
	})
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	writeProblemJSON(w, problem{Type: "about:blank", Title: title, Status: status, Detail: detail})
}

func writeProblemJSON(w http.ResponseWriter, p problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps service errors onto problem responses.
func writeError(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	var ne *domain.NetworkError
	switch {
	case errors.As(err, &ve):
		writeProblemJSON(w, problem{
			Type:   "about:blank",
			Title:  "Validation Failed",
			Status: http.StatusUnprocessableEntity,
			Detail: ve.Reason,
			Field:  ve.Field,
		})
	case errors.Is(err, domain.ErrAuthRequired):
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
	case errors.Is(err, domain.ErrInvalidCredentials):
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", "invalid email or password")
	case errors.Is(err, domain.ErrAccountExists):
		writeProblem(w, http.StatusConflict, "Conflict", "an account with this email already exists")
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", "resource not found")
	case errors.As(err, &ne):
		log.Warn().Err(err).Str("op", ne.Op).Msg("upstream failure")
		writeProblem(w, http.StatusBadGateway, "Bad Gateway", "an upstream service failed; try again")
	default:
		log.Error().Err(err).Msg("unhandled error")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

// writeCached writes a GET response with a weak ETag and honours
// If-None-Match.
func writeCached(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if body == nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
		return
	}
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("failed to write body")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "request body must be a JSON object")
		return false
	}
	return true
}

// ---- accounts & sessions ----

type createAccountRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

func (h *Handlers) createAccount(w http.ResponseWriter, r *http.Request) {
	var in createAccountRequest
	if !decodeBody(w, r, &in) {
		return
	}
	u, err := h.Auth.SignUp(r.Context(), in.Email, in.Password, in.DisplayName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"userId": u.ID})
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signInResponse struct {
	Token       string    `json:"token"`
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

func (h *Handlers) signIn(w http.ResponseWriter, r *http.Request) {
	var in signInRequest
	if !decodeBody(w, r, &in) {
		return
	}
	sess, tok, err := h.Auth.SignIn(r.Context(), in.Email, in.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, signInResponse{
		Token:       tok,
		UserID:      sess.UserID,
		DisplayName: sess.DisplayName,
		ExpiresAt:   sess.ExpiresAt,
	})
}

func (h *Handlers) signOut(w http.ResponseWriter, r *http.Request) {
	if err := h.Auth.SignOut(r.Context(), SessionFrom(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) myReviews(w http.ResponseWriter, r *http.Request) {
	out, err := h.Q.ListUserReviews(r.Context(), SessionFrom(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "private")
	writeCached(w, r, out)
}

// ---- places ----

func (h *Handlers) search(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	q := domain.SearchQuery{Text: qs.Get("q")}

	lat, lng := qs.Get("lat"), qs.Get("lng")
	if lat != "" || lng != "" {
		la, err1 := strconv.ParseFloat(lat, 64)
		ln, err2 := strconv.ParseFloat(lng, 64)
		if err1 != nil || err2 != nil || la < -90 || la > 90 || ln < -180 || ln > 180 {
			writeProblem(w, http.StatusBadRequest, "Invalid location", "lat and lng must be given together as valid coordinates")
			return
		}
		q.Near = &domain.Coords{Lat: la, Lng: ln}
	}
	if rs := qs.Get("radius"); rs != "" {
		rad, err := strconv.ParseUint(rs, 10, 32)
		if err != nil || rad == 0 || rad > 50000 {
			writeProblem(w, http.StatusBadRequest, "Invalid radius", "radius must be an integer between 1 and 50000 meters")
			return
		}
		q.Radius = uint(rad)
	}

	out, err := h.Q.SearchPlaces(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeCached(w, r, out)
}

func (h *Handlers) googleReviews(w http.ResponseWriter, r *http.Request) {
	out, err := h.Q.GoogleReviews(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeCached(w, r, out)
}

func (h *Handlers) getAggregate(w http.ResponseWriter, r *http.Request) {
	agg, err := h.Q.GetAggregate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeCached(w, r, agg)
}

func (h *Handlers) listReviews(w http.ResponseWriter, r *http.Request) {
	out, err := h.Q.ListReviews(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeCached(w, r, out)
}

type submitReviewRequest struct {
	PlaceName       string   `json:"placeName"`
	PhysicalRating  int      `json:"physicalRating"`
	SensoryRating   int      `json:"sensoryRating"`
	CognitiveRating int      `json:"cognitiveRating"`
	ReviewText      string   `json:"reviewText"`
	Photos          []string `json:"photos"`
}

func (h *Handlers) submitReview(w http.ResponseWriter, r *http.Request) {
	sess := SessionFrom(r.Context())
	if sess == nil {
		writeError(w, domain.ErrAuthRequired)
		return
	}
	var in submitReviewRequest
	if !decodeBody(w, r, &in) {
		return
	}
	id, err := h.R.SubmitReview(r.Context(), sess, app.SubmitReviewInput{
		PlaceID:   chi.URLParam(r, "id"),
		PlaceName: in.PlaceName,
		Ratings: domain.Ratings{
			Physical:  in.PhysicalRating,
			Sensory:   in.SensoryRating,
			Cognitive: in.CognitiveRating,
		},
		Text:   in.ReviewText,
		Photos: in.Photos,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Location", "/v1/places/"+chi.URLParam(r, "id")+"/accessibility/reviews")
	writeJSON(w, http.StatusCreated, map[string]string{"reviewId": id})
}

func (h *Handlers) recompute(w http.ResponseWriter, r *http.Request) {
	if SessionFrom(r.Context()) == nil {
		writeError(w, domain.ErrAuthRequired)
		return
	}
	agg, err := h.R.RecomputeAggregate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}
