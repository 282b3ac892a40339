// Package catalog supplies the list of tracked sources for a run.
package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ttharvest/pkg/config"
	"ttharvest/pkg/logger"
	"ttharvest/pkg/models"
	"ttharvest/pkg/storage"
)

// DefaultTable holds the tracked sources
const DefaultTable = "tt_group"

// Catalog returns the sources to process
type Catalog interface {
	Sources(ctx context.Context) ([]models.TrackedSource, error)
}

// Static is a fixed list of sources from configuration
type Static struct {
	sources []models.TrackedSource
}

// NewStatic creates a Static catalog
func NewStatic(sources []config.SourceConfig) *Static {
	out := make([]models.TrackedSource, 0, len(sources))
	for _, s := range sources {
		out = append(out, models.TrackedSource{Handle: s.Handle, DisplayName: s.Name})
	}
	return &Static{sources: out}
}

func (s *Static) Sources(ctx context.Context) ([]models.TrackedSource, error) {
	return normalize(s.sources), nil
}

// Querier runs a row query
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Postgres reads sources from the (tt_link, tt_name) table
type Postgres struct {
	db     Querier
	pool   *pgxpool.Pool
	table  string
	logger logger.Logger
}

// NewPostgres connects to the catalog database
func NewPostgres(ctx context.Context, cfg config.PostgresConfig, table string, log logger.Logger) (*Postgres, error) {
	pool, err := storage.OpenPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	p := NewPostgresWith(pool, table, log)
	p.pool = pool
	return p, nil
}

// NewPostgresWith wraps an existing connection
func NewPostgresWith(db Querier, table string, log logger.Logger) *Postgres {
	if table == "" {
		table = DefaultTable
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Postgres{
		db:     db,
		table:  pgx.Identifier{table}.Sanitize(),
		logger: log.WithField("component", "catalog"),
	}
}

func (p *Postgres) Sources(ctx context.Context) ([]models.TrackedSource, error) {
	rows, err := p.db.Query(ctx, fmt.Sprintf(`SELECT tt_link, tt_name FROM %s`, p.table))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", p.table, err)
	}
	defer rows.Close()

	var sources []models.TrackedSource
	for rows.Next() {
		var link, name *string
		if err := rows.Scan(&link, &name); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", p.table, err)
		}
		s := models.TrackedSource{}
		if link != nil {
			s.Handle = *link
		}
		if name != nil {
			s.DisplayName = *name
		}
		sources = append(sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p.table, err)
	}

	out := normalize(sources)
	p.logger.WithField("sources", len(out)).Debug("Catalog loaded")
	return out, nil
}

// Close releases the connection pool
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// normalize cleans handles, dropping empty ones and repeats
func normalize(in []models.TrackedSource) []models.TrackedSource {
	seen := make(map[string]bool, len(in))
	out := make([]models.TrackedSource, 0, len(in))
	for _, s := range in {
		h := models.NormalizeHandle(s.Handle)
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		if s.DisplayName == "" {
			s.DisplayName = h
		}
		s.Handle = h
		out = append(out, s)
	}
	return out
}
