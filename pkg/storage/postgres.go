package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ttharvest/pkg/config"
	"ttharvest/pkg/logger"
	"ttharvest/pkg/models"
)

// DefaultRecordTable is the table acquisition records are written to
const DefaultRecordTable = "yt_post"

// Querier is the subset of a pgx pool the stores use
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// OpenPool connects a pgx pool from the shared Postgres settings
func OpenPool(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return pool, nil
}

// PostgresStore writes records to a table with a unique url column
type PostgresStore struct {
	db     Querier
	pool   *pgxpool.Pool
	table  string
	logger logger.Logger
}

// NewPostgresStore connects and makes sure the record table exists
func NewPostgresStore(ctx context.Context, cfg config.PostgresConfig, log logger.Logger) (*PostgresStore, error) {
	pool, err := OpenPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s := NewPostgresStoreWith(pool, cfg.Table, log)
	s.pool = pool
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreWith wraps an existing connection
func NewPostgresStoreWith(db Querier, table string, log logger.Logger) *PostgresStore {
	if table == "" {
		table = DefaultRecordTable
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &PostgresStore{
		db:     db,
		table:  pgx.Identifier{table}.Sanitize(),
		logger: log.WithField("component", "storage"),
	}
}

// EnsureSchema creates the record table when it is missing
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  video_id text PRIMARY KEY,
  title text,
  url text NOT NULL UNIQUE,
  audio_path text
)`, s.table)
	if _, err := s.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create %s: %w", s.table, err)
	}
	return nil
}

func (s *PostgresStore) IsNew(ctx context.Context, url string) (bool, error) {
	var exists bool
	q := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE url = $1)`, s.table)
	if err := s.db.QueryRow(ctx, q, url).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to look up %s: %w", url, err)
	}
	return !exists, nil
}

func (s *PostgresStore) Insert(ctx context.Context, r models.AcquisitionRecord) (bool, error) {
	q := fmt.Sprintf(`INSERT INTO %s (video_id, title, url, audio_path) VALUES ($1, $2, $3, $4) ON CONFLICT (url) DO NOTHING`, s.table)
	tag, err := s.db.Exec(ctx, q, r.ID, r.Title, r.URL, r.AudioPath)
	if err != nil {
		return false, fmt.Errorf("failed to insert %s: %w", r.URL, err)
	}

	inserted := tag.RowsAffected() == 1
	s.logger.DebugWithFields("Record insert", map[string]interface{}{
		"id":       r.ID,
		"url":      r.URL,
		"inserted": inserted,
	})
	return inserted, nil
}

func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
