package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"accessmap/internal/adapters/observability"
	redisad "accessmap/internal/adapters/redis"
	"accessmap/internal/app"
	"accessmap/internal/domain"
	"accessmap/internal/shared"
	"accessmap/internal/storage"
)

// reconciler recomputes every place aggregate from its reviews and repairs
// the ones that drifted. It is meant to run on a schedule.
func main() {
	os.Exit(run())
}

// run returns the exit code so deferred cleanup happens before os.Exit.
func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := shared.Load()

	// 1) initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, "reconciler", cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return 2
	}

	// counters are pushed once the run ends; a batch job is gone before any scrape
	reg := observability.InitRegistry()
	defer func() {
		pctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := observability.Push(pctx, cfg.PushgatewayURL, "accessmap_reconciler", reg); err != nil {
			log.Warn().Err(err).Str("gateway", cfg.PushgatewayURL).Msg("metrics push failed")
		}
	}()

	log.Info().
		Str("store", cfg.StoreBackend).
		Int("workers", cfg.ReconcileWorkers).
		Msg("reconciler starting")

	st, closeStore, err := storage.Open(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("store init failed")
		return 1
	}
	defer closeStore()

	// evict repaired entries so readers see the fix right away
	var cache domain.Cache
	if cfg.RedisAddr != "" && cfg.CacheEnabled {
		rc := redisad.NewClient(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		defer rc.Close()
		cache = redisad.New(rc, cfg.CachePrefix)
	}
	rs := app.NewReviewService(st, cache)

	ids, err := st.ListPlaceIDs(ctx)
	if err != nil {
		log.Error().Err(err).Msg("list places failed")
		return 1
	}

	drifted, failed := reconcileAll(ctx, rs, ids, cfg.ReconcileWorkers)

	log.Info().
		Int("places", len(ids)).
		Int64("drifted", drifted).
		Int64("failed", failed).
		Msg("reconciliation completed")
	if failed > 0 || ctx.Err() != nil {
		return 1
	}
	return 0
}

// reconcileAll runs Reconcile for every id with at most workers in flight and
// counts repaired and failed places.
func reconcileAll(ctx context.Context, rs *app.ReviewService, ids []string, workers int) (drifted, failed int64) {
	if workers <= 0 {
		workers = 1
	}
	sem := semaphore.NewWeighted(int64(workers))
	var wg sync.WaitGroup

	for _, id := range ids {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Warn().Err(err).Msg("reconcile interrupted")
			break
		}

		wg.Add(1)
		go func(placeID string) {
			defer wg.Done()
			defer sem.Release(1)

			d, err := rs.Reconcile(ctx, placeID)
			if err != nil {
				atomic.AddInt64(&failed, 1)
				log.Warn().Str("place", placeID).Err(err).Msg("reconcile failed")
				return
			}
			if d {
				atomic.AddInt64(&drifted, 1)
			}
		}(id)
	}
	wg.Wait()
	return drifted, failed
}
