package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"accessmap/internal/adapters/firebaseauth"
	server "accessmap/internal/adapters/http_server"
	"accessmap/internal/adapters/observability"
	"accessmap/internal/adapters/places"
	redisad "accessmap/internal/adapters/redis"
	"accessmap/internal/app"
	"accessmap/internal/domain"
	"accessmap/internal/shared"
	"accessmap/internal/storage"
	"accessmap/internal/storage/memory"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, "api", cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	// store
	st, closeStore, err := storage.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("store init failed")
	}
	defer closeStore()

	// cache & sessions
	var cache domain.Cache
	var sessions domain.SessionStore = memory.NewSessions()
	if cfg.RedisAddr != "" {
		rc := redisad.NewClient(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		defer rc.Close()
		if err := rc.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("redis ping failed")
		}
		sessions = redisad.NewSessions(rc, cfg.CachePrefix)
		if cfg.CacheEnabled {
			cache = redisad.New(rc, cfg.CachePrefix)
		}
	} else {
		log.Warn().Msg("REDIS_ADDR is empty; sessions are kept in memory and caching is off")
	}

	// identity
	var idp domain.IdentityProvider
	switch cfg.AuthProvider {
	case shared.AuthFirebase:
		admin, err := firebaseauth.NewAdmin(ctx, cfg.FirestoreProject, cfg.GoogleCredentials)
		if err != nil {
			log.Fatal().Err(err).Msg("firebase auth init failed")
		}
		idp, err = firebaseauth.New(admin, st, cfg.IdentityToolkitBase, cfg.FirebaseWebAPIKey)
		if err != nil {
			log.Fatal().Err(err).Msg("firebase auth init failed")
		}
	default:
		idp = app.NewLocalIdentity(st, 0)
	}

	// places
	pc, err := places.New(cfg.PlacesBase, cfg.PlacesKey, cfg.PlacesLanguage, cfg.PlacesRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize places client")
	}

	// services
	auth := app.NewAuthService(idp, sessions, cfg.JWTSecret, cfg.SessionTTL)
	q := app.NewQueryService(pc, st, cache, cfg.CacheTTL, app.SearchDefaults{
		RadiusMeters:  cfg.SearchRadius,
		PhotoMaxWidth: cfg.PhotoMaxWidth,
	})
	rs := app.NewReviewService(st, cache)

	// http
	srv := server.New(auth)
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{Q: q, R: rs, Auth: auth})

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http shutdown failed")
		}
	}()

	log.Info().
		Str("addr", cfg.HTTPAddr).
		Str("store", cfg.StoreBackend).
		Str("auth", cfg.AuthProvider).
		Msg("API listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server failed")
	}
	log.Info().Msg("API stopped")
}
