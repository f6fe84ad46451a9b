package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"accessmap/internal/domain"
)

const (
	errDuplicateEntry = 1062
	errLockWait       = 1205
	errDeadlock       = 1213
	txAttempts        = 3
)

func valJSON(v []string) any {
	if len(v) == 0 {
		return nil
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func mysqlCode(err error) uint16 {
	var me *mysqldriver.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

type Repo struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Repo { return &Repo{db: db, now: time.Now} }

// inTx runs fn in a transaction, starting over when InnoDB picks it as a
// deadlock victim. Two first reviews of one place can deadlock on the
// insert-or-update of the same new row.
func (r *Repo) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	var err error
	for i := 0; i < txAttempts; i++ {
		err = r.tryTx(ctx, fn)
		if c := mysqlCode(err); c != errDeadlock && c != errLockWait {
			return err
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("mysql transaction aborted, restarting")
	}
	return err
}

func (r *Repo) tryTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (r *Repo) CreateReview(ctx context.Context, rv domain.AccessibilityReview) (domain.AccessibilityReview, domain.PlaceAggregate, error) {
	var agg domain.PlaceAggregate
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		// DATETIME(6) keeps microseconds
		ts := r.now().UTC().Truncate(time.Microsecond)
		rv.ID = uuid.NewString()
		rv.CreatedAt, rv.UpdatedAt = ts, ts

		if _, err := tx.ExecContext(ctx, insertReviewSQL,
			rv.ID,
			rv.PlaceID,
			rv.PlaceName,
			rv.UserID,
			rv.Ratings.Physical,
			rv.Ratings.Sensory,
			rv.Ratings.Cognitive,
			rv.Text,
			valJSON(rv.Photos),
			ts, ts,
		); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, applyReviewSQL,
			rv.PlaceID,
			rv.PlaceName,
			rv.Ratings.Physical,
			rv.Ratings.Sensory,
			rv.Ratings.Cognitive,
			ts,
		); err != nil {
			return err
		}
		var err error
		agg, err = scanAggregate(tx.QueryRowContext(ctx, getAggregateSQL, rv.PlaceID))
		return err
	})
	if err != nil {
		return domain.AccessibilityReview{}, domain.PlaceAggregate{}, err
	}
	return rv, agg, nil
}

// RecomputeAggregate locks the place row and its reviews, so no submission
// can land between the read and the write.
func (r *Repo) RecomputeAggregate(ctx context.Context, placeID string) (domain.PlaceAggregate, error) {
	var agg domain.PlaceAggregate
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var name string
		exists := true
		if err := tx.QueryRowContext(ctx, lockPlaceSQL, placeID).Scan(&name); err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return err
			}
			exists = false
		}
		rows, err := tx.QueryContext(ctx, listReviewsForUpdateSQL, placeID)
		if err != nil {
			return err
		}
		reviews, err := scanReviews(rows)
		if err != nil {
			return err
		}
		if !exists && len(reviews) == 0 {
			return domain.ErrNotFound
		}

		agg = domain.Recompute(placeID, name, reviews, r.now().UTC().Truncate(time.Microsecond))
		_, err = tx.ExecContext(ctx, replaceAggregateSQL,
			agg.PlaceID,
			agg.Name,
			agg.ReviewCount,
			agg.PhysicalSum,
			agg.SensorySum,
			agg.CognitiveSum,
			agg.LastUpdated,
		)
		return err
	})
	if err != nil {
		return domain.PlaceAggregate{}, err
	}
	return agg, nil
}

func (r *Repo) GetPlaceAggregate(ctx context.Context, placeID string) (domain.PlaceAggregate, error) {
	return scanAggregate(r.db.QueryRowContext(ctx, getAggregateSQL, placeID))
}

func (r *Repo) ListReviews(ctx context.Context, placeID string) ([]domain.AccessibilityReview, error) {
	rows, err := r.db.QueryContext(ctx, listReviewsSQL, placeID)
	if err != nil {
		return nil, err
	}
	return scanReviews(rows)
}

func (r *Repo) ListUserReviews(ctx context.Context, userID string) ([]domain.AccessibilityReview, error) {
	rows, err := r.db.QueryContext(ctx, listUserReviewsSQL, userID)
	if err != nil {
		return nil, err
	}
	return scanReviews(rows)
}

func (r *Repo) ListPlaceIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, listPlaceIDsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Repo) CreateUser(ctx context.Context, u domain.UserRecord) error {
	created := u.CreatedAt
	if created.IsZero() {
		created = r.now()
	}
	_, err := r.db.ExecContext(ctx, insertUserSQL,
		u.ID,
		strings.ToLower(u.Email),
		u.DisplayName,
		u.PasswordHash,
		created.UTC(),
	)
	if mysqlCode(err) == errDuplicateEntry {
		return domain.ErrAccountExists
	}
	return err
}

func (r *Repo) GetUserByEmail(ctx context.Context, email string) (domain.UserRecord, error) {
	var u domain.UserRecord
	err := r.db.QueryRowContext(ctx, getUserByEmailSQL, strings.ToLower(email)).
		Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.UserRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.UserRecord{}, err
	}
	return u, nil
}

type rowScanner interface{ Scan(dest ...any) error }

func scanAggregate(row rowScanner) (domain.PlaceAggregate, error) {
	var (
		id, name                     string
		count                        int
		physical, sensory, cognitive int64
		updated                      time.Time
	)
	if err := row.Scan(&id, &name, &count, &physical, &sensory, &cognitive, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PlaceAggregate{}, domain.ErrNotFound
		}
		return domain.PlaceAggregate{}, err
	}
	return domain.FromSums(id, name, physical, sensory, cognitive, count, updated), nil
}

func scanReviews(rows *sql.Rows) ([]domain.AccessibilityReview, error) {
	defer rows.Close()

	out := []domain.AccessibilityReview{}
	for rows.Next() {
		var rv domain.AccessibilityReview
		var photos sql.NullString
		if err := rows.Scan(
			&rv.ID,
			&rv.PlaceID,
			&rv.PlaceName,
			&rv.UserID,
			&rv.Ratings.Physical,
			&rv.Ratings.Sensory,
			&rv.Ratings.Cognitive,
			&rv.Text,
			&photos,
			&rv.CreatedAt,
			&rv.UpdatedAt,
		); err != nil {
			return nil, err
		}
		ph, err := decodePhotos(photos)
		if err != nil {
			return nil, fmt.Errorf("review %s: %w", rv.ID, err)
		}
		rv.Photos = ph
		out = append(out, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// decodePhotos reads the JSON photos column. NULL and empty mean no photos.
func decodePhotos(ns sql.NullString) ([]string, error) {
	out := []string{}
	if !ns.Valid || ns.String == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		return nil, fmt.Errorf("decode photos: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}
