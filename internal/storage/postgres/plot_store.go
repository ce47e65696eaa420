// Package postgres mirrors found plots into a Postgres table.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/cadastral-crawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PlotStoreConfig controls the Postgres connection pool used for plot rows.
type PlotStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type txPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// PlotStore upserts plot rows keyed by (village, plot_no).
type PlotStore struct {
	pool  txPool
	table string
}

var _ crawler.PlotIndex = (*PlotStore)(nil)

// NewPlotStore creates a Postgres-backed PlotStore using the provided config.
func NewPlotStore(ctx context.Context, cfg PlotStoreConfig) (*PlotStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PlotStore{
		pool:  pool,
		table: table,
	}, nil
}

// NewPlotStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewPlotStoreWithPool(pool txPool, table string) (*PlotStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &PlotStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = "plots"
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *PlotStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the plot table when it does not exist.
func (s *PlotStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	village    TEXT NOT NULL,
	plot_no    INTEGER NOT NULL,
	sheet      TEXT NOT NULL,
	gis_code   TEXT NOT NULL,
	xmin       DOUBLE PRECISION NOT NULL,
	ymin       DOUBLE PRECISION NOT NULL,
	xmax       DOUBLE PRECISION NOT NULL,
	ymax       DOUBLE PRECISION NOT NULL,
	center_x   DOUBLE PRECISION NOT NULL,
	center_y   DOUBLE PRECISION NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (village, plot_no)
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create plot table: %w", err)
	}
	return nil
}

// UpsertPlots writes plots for village in one transaction, ordered by plot number.
func (s *PlotStore) UpsertPlots(ctx context.Context, village string, plots []crawler.PlotRecord) (err error) {
	if s == nil || s.pool == nil {
		return fmt.Errorf("plot store is not configured")
	}
	if len(plots) == 0 {
		return nil
	}
	ordered := append([]crawler.PlotRecord(nil), plots...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].PlotNo < ordered[j].PlotNo })

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin plot upsert: %w", crawler.ErrPersistence, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	query := fmt.Sprintf(`
INSERT INTO %s (
	village,
	plot_no,
	sheet,
	gis_code,
	xmin,
	ymin,
	xmax,
	ymax,
	center_x,
	center_y
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
ON CONFLICT (village, plot_no) DO UPDATE SET
	sheet = EXCLUDED.sheet,
	gis_code = EXCLUDED.gis_code,
	xmin = EXCLUDED.xmin,
	ymin = EXCLUDED.ymin,
	xmax = EXCLUDED.xmax,
	ymax = EXCLUDED.ymax,
	center_x = EXCLUDED.center_x,
	center_y = EXCLUDED.center_y,
	updated_at = now()`, s.table)

	for _, p := range ordered {
		if _, err = tx.Exec(ctx, query,
			village,
			p.PlotNo,
			p.SheetNumber(),
			p.GISCode,
			p.XMin,
			p.YMin,
			p.XMax,
			p.YMax,
			p.CenterX,
			p.CenterY,
		); err != nil {
			return fmt.Errorf("%w: upsert plot %d: %w", crawler.ErrPersistence, p.PlotNo, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit plot upsert: %w", crawler.ErrPersistence, err)
	}
	return nil
}
