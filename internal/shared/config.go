package shared

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	BackendFirestore = "firestore"
	BackendMySQL     = "mysql"
	BackendMemory    = "memory"

	AuthLocal    = "local"
	AuthFirebase = "firebase"

	DefaultSearchRadius = 5000
	MaxSearchRadius     = 50000
)

type Config struct {
	AppEnv      string
	LogLevel    string
	HTTPAddr    string
	MetricsAddr string

	StoreBackend      string
	MySQLDSN          string
	FirestoreProject  string
	GoogleCredentials string

	RedisAddr    string
	RedisDB      int
	RedisPass    string
	CachePrefix  string
	CacheEnabled bool
	CacheTTL     time.Duration

	PlacesBase     string
	PlacesKey      string
	PlacesRPS      int
	PlacesLanguage string
	SearchRadius   uint
	PhotoMaxWidth  int

	AuthProvider        string
	FirebaseWebAPIKey   string
	IdentityToolkitBase string
	JWTSecret           string
	SessionTTL          time.Duration

	ReconcileWorkers int
	// PushgatewayURL receives the reconciler's metrics when set.
	PushgatewayURL   string
}

// Load reads the environment. An optional .env file in the working directory
// is applied first; variables already set take precedence over it.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg(".env could not be parsed")
	}

	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
			log.Warn().Str("key", k).Str("value", v).Msg("not an integer, using default")
		}
		return def
	}
	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		LogLevel:    env("LOG_LEVEL", "info"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ":9100"),

		StoreBackend:      strings.ToLower(env("STORE_BACKEND", BackendFirestore)),
		MySQLDSN:          env("MYSQL_DSN", "root:root@tcp(localhost:3306)/accessmap?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		FirestoreProject:  env("FIRESTORE_PROJECT_ID", ""),
		GoogleCredentials: env("GOOGLE_APPLICATION_CREDENTIALS", ""),

		RedisAddr:    env("REDIS_ADDR", "localhost:6379"),
		RedisPass:    env("REDIS_PASSWORD", ""),
		RedisDB:      atoi("REDIS_DB", 0),
		CachePrefix:  env("CACHE_PREFIX", "accessmap:"),
		CacheEnabled: env("CACHE_ENABLED", "true") == "true",
		CacheTTL:     time.Duration(atoi("CACHE_TTL_SECONDS", 300)) * time.Second,

		PlacesBase:     env("PLACES_BASE_URL", "https://maps.googleapis.com"),
		PlacesKey:      env("PLACES_API_KEY", ""),
		PlacesRPS:      atoi("PLACES_RPS", 10),
		PlacesLanguage: env("PLACES_LANGUAGE", "en"),
		SearchRadius:   radius(atoi("SEARCH_RADIUS_METERS", DefaultSearchRadius)),
		PhotoMaxWidth:  atoi("PHOTO_MAX_WIDTH", 400),

		AuthProvider:        strings.ToLower(env("AUTH_PROVIDER", AuthLocal)),
		FirebaseWebAPIKey:   env("FIREBASE_WEB_API_KEY", ""),
		IdentityToolkitBase: env("IDENTITY_TOOLKIT_BASE_URL", "https://identitytoolkit.googleapis.com"),
		JWTSecret:           env("JWT_SECRET", ""),
		SessionTTL:          time.Duration(atoi("SESSION_TTL_SECONDS", 86400)) * time.Second,

		ReconcileWorkers: atoi("RECONCILE_WORKERS", 8),
		PushgatewayURL:   env("PUSHGATEWAY_URL", ""),
	}
	if c.PlacesKey == "" {
		log.Warn().Msg("PLACES_API_KEY is empty")
	}
	if c.JWTSecret == "" {
		log.Warn().Msg("JWT_SECRET is empty")
	}
	if c.StoreBackend == BackendFirestore && c.FirestoreProject == "" {
		log.Warn().Msg("FIRESTORE_PROJECT_ID is empty")
	}
	if c.AuthProvider == AuthFirebase && c.FirebaseWebAPIKey == "" {
		log.Warn().Msg("FIREBASE_WEB_API_KEY is empty")
	}
	return c
}

// Validate reports settings that make the process unable to start.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendFirestore, BackendMySQL, BackendMemory:
	default:
		return errors.New("STORE_BACKEND must be firestore, mysql or memory")
	}
	switch c.AuthProvider {
	case AuthLocal, AuthFirebase:
	default:
		return errors.New("AUTH_PROVIDER must be local or firebase")
	}
	if c.StoreBackend == BackendMemory && c.AppEnv != "dev" {
		return errors.New("memory store is only for APP_ENV=dev")
	}
	if c.SearchRadius > MaxSearchRadius {
		return fmt.Errorf("SEARCH_RADIUS_METERS must be at most %d", MaxSearchRadius)
	}
	if len(c.JWTSecret) < 16 {
		return errors.New("JWT_SECRET must be at least 16 characters")
	}
	return nil
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// radius keeps SEARCH_RADIUS_METERS inside what the Places API accepts.
func radius(m int) uint {
	if m < 1 || m > MaxSearchRadius {
		log.Warn().Int("value", m).Int("default", DefaultSearchRadius).Msg("SEARCH_RADIUS_METERS out of range, using default")
		return DefaultSearchRadius
	}
	return uint(m)
}
