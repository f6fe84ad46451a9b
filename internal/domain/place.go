package domain

type Coords struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// PlaceCandidate is a raw search hit from the places collaborator, before any
// accessibility data is merged in.
type PlaceCandidate struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Address           string   `json:"address"`
	Location          Coords   `json:"location"`
	GoogleRating      float64  `json:"googleRating"`
	GoogleReviewCount int      `json:"googleReviewCount"`
	PhotoRefs         []string `json:"photoRefs,omitempty"`
	PhoneNumber       string   `json:"phoneNumber,omitempty"`
}

// Place is a search result shown to the user. It is never persisted.
type Place struct {
	ID                       string           `json:"id"`
	Name                     string           `json:"name"`
	Address                  string           `json:"address"`
	Location                 Coords           `json:"location"`
	GoogleRating             float64          `json:"googleRating"`
	GoogleReviewCount        int              `json:"googleReviewCount"`
	Accessibility            *CategoryRatings `json:"accessibility,omitempty"`
	AccessibilityReviewCount int              `json:"accessibilityReviewCount"`
	PhotoRefs                []string         `json:"photoRefs,omitempty"`
	Photos                   []string         `json:"photos,omitempty"`
	PhoneNumber              string           `json:"phoneNumber,omitempty"`
}

type CategoryRatings struct {
	Physical  float64 `json:"physical"`
	Sensory   float64 `json:"sensory"`
	Cognitive float64 `json:"cognitive"`
}

// SearchQuery is a text search around a point. Radius is in meters.
type SearchQuery struct {
	Text   string
	Near   *Coords
	Radius uint
}
