package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/lib/pq"

	"clasutil/models"
	"clasutil/utils"
)

var tableNameRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PostgresStore reads and writes room observations in PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	table  string
	retry  *utils.RetryConfig
	logger *utils.Logger
}

// OpenPostgresStore opens a connection to PostgreSQL, waits for it to accept
// pings, runs schema migrations and returns a ready-to-use PostgresStore.
func OpenPostgresStore(ctx context.Context, dsn, table string, retry *utils.RetryConfig, logger *utils.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		logger.Warn("[postgres] Ping failed (attempt %d/10): %v", i+1, err)
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, fmt.Errorf("postgres: ping: %w", ctx.Err())
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	ps, err := NewPostgresStore(db, table, retry, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ps.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return ps, nil
}

// NewPostgresStore wraps an existing connection pool.
func NewPostgresStore(db *sql.DB, table string, retry *utils.RetryConfig, logger *utils.Logger) (*PostgresStore, error) {
	if !tableNameRegexp.MatchString(table) {
		return nil, fmt.Errorf("postgres: invalid table name %q", table)
	}
	if retry == nil {
		retry = &utils.RetryConfig{MaxAttempts: 1, Logger: logger}
	}
	return &PostgresStore{db: db, table: pq.QuoteIdentifier(table), retry: retry, logger: logger}, nil
}

// Migrate creates the observation table and its recency index if missing.
func (ps *PostgresStore) Migrate(ctx context.Context) error {
	_, err := ps.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id          UUID         PRIMARY KEY DEFAULT gen_random_uuid(),
			room_name   TEXT         NOT NULL,
			status      TEXT         NOT NULL,
			timestamp   TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			building    TEXT,
			floor       TEXT,
			class_type  TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_observations_timestamp ON %[1]s(timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_observations_room      ON %[1]s(room_name);
	`, ps.table))
	return err
}

// FetchRecentObservations returns up to limit observations across all rooms,
// newest timestamp first. Rows without a room name or timestamp are returned
// with zero values so the aggregator can drop them.
func (ps *PostgresStore) FetchRecentObservations(ctx context.Context, limit int) ([]*models.Observation, error) {
	if limit <= 0 {
		limit = DefaultFetchLimit
	}

	query := fmt.Sprintf(`
		SELECT id, room_name, status, timestamp, building, floor, class_type
		FROM %s
		ORDER BY timestamp DESC
		LIMIT $1
	`, ps.table)

	var batch []*models.Observation
	err := ps.retry.Do(ctx, "fetch-recent-observations", isTransient, func() error {
		var err error
		batch, err = ps.queryObservations(ctx, query, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch recent observations: %w: %w", ErrStoreUnavailable, err)
	}

	ps.logger.Debug("[postgres] Fetched %d observations (limit %d)", len(batch), limit)
	return batch, nil
}

func (ps *PostgresStore) queryObservations(ctx context.Context, query string, limit int) ([]*models.Observation, error) {
	rows, err := ps.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batch := make([]*models.Observation, 0, limit)
	for rows.Next() {
		var (
			id, room, status          sql.NullString
			building, floor, classTyp sql.NullString
			ts                        sql.NullTime
		)
		if err := rows.Scan(&id, &room, &status, &ts, &building, &floor, &classTyp); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		obs := &models.Observation{
			ID:        id.String,
			RoomName:  room.String,
			Status:    status.String,
			Building:  building.String,
			Floor:     floor.String,
			ClassType: classTyp.String,
		}
		if ts.Valid {
			obs.Timestamp = ts.Time.UTC()
		}
		batch = append(batch, obs)
	}
	return batch, rows.Err()
}

// Insert stores a single observation. Empty optional fields are written as NULL.
func (ps *PostgresStore) Insert(ctx context.Context, obs *models.Observation) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, room_name, status, timestamp, building, floor, class_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ps.table)

	_, err := ps.db.ExecContext(ctx, query,
		obs.ID, obs.RoomName, obs.Status, obs.Timestamp.UTC(),
		nullString(obs.Building), nullString(obs.Floor), nullString(obs.ClassType))
	if err != nil {
		return fmt.Errorf("postgres: insert observation: %w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// Ping checks that the database is reachable.
func (ps *PostgresStore) Ping(ctx context.Context) error {
	if err := ps.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

func (ps *PostgresStore) Close() error {
	return ps.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isTransient(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
