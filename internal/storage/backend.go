// Package storage selects the persistence backend named in the config.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"accessmap/internal/domain"
	"accessmap/internal/shared"
	fsstore "accessmap/internal/storage/firestore"
	"accessmap/internal/storage/memory"
	mysqlrepo "accessmap/internal/storage/mysql"
)

// Store is what every backend provides.
type Store interface {
	domain.ReviewStore
	domain.UserRepository
}

// Open connects to the configured backend. The returned close func is never
// nil.
func Open(ctx context.Context, cfg shared.Config) (Store, func(), error) {
	switch cfg.StoreBackend {
	case shared.BackendMySQL:
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("sql.Open: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("db.Ping: %w", err)
		}
		log.Info().Msg("database connection ok")
		return mysqlrepo.New(db), func() { _ = db.Close() }, nil

	case shared.BackendFirestore:
		client, err := fsstore.NewClient(ctx, cfg.FirestoreProject, cfg.GoogleCredentials)
		if err != nil {
			return nil, nil, err
		}
		return fsstore.New(client), func() { _ = client.Close() }, nil

	case shared.BackendMemory:
		log.Warn().Msg("using in-memory store; data is lost on exit")
		return memory.New(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}
