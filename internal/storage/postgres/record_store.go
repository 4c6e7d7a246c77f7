// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/loan-rate-crawler/internal/loan"
)

const defaultTable = "loan_records"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// RecordStoreConfig controls the Postgres connection pool used for loan rows.
type RecordStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Ping(context.Context) error
	Close()
}

// RecordStore writes scraped loan records into Postgres.
type RecordStore struct {
	pool  execCloser
	table string
	ids   loan.IDGenerator
	loc   *time.Location
}

// NewRecordStore creates a Postgres-backed RecordStore using the provided config.
func NewRecordStore(ctx context.Context, cfg RecordStoreConfig, ids loan.IDGenerator) (*RecordStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewRecordStoreWithPool(pool, cfg.Table, ids)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewRecordStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRecordStoreWithPool(pool execCloser, table string, ids loan.IDGenerator) (*RecordStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if ids == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RecordStore{pool: pool, table: table, ids: ids, loc: time.UTC}, nil
}

// WithLocation sets the zone ScrapedAt strings are interpreted in.
func (s *RecordStore) WithLocation(loc *time.Location) *RecordStore {
	if loc != nil {
		s.loc = loc
	}
	return s
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping verifies the database is reachable.
func (s *RecordStore) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("record store is not configured")
	}
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// EnsureSchema creates the records table when it does not exist.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("record store is not configured")
	}
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id UUID PRIMARY KEY,
	source TEXT NOT NULL,
	bank_name TEXT NOT NULL,
	product_name TEXT NOT NULL,
	min_credit_score INTEGER NOT NULL,
	min_income_monthly INTEGER NOT NULL,
	scraped_at TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// StoreRecords inserts one row per record and reports how many were written.
// It stops at the first failing row.
func (s *RecordStore) StoreRecords(ctx context.Context, records []loan.Record) (int, error) {
	if s == nil || s.pool == nil {
		return 0, fmt.Errorf("record store is not configured")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	source,
	bank_name,
	product_name,
	min_credit_score,
	min_income_monthly,
	scraped_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
)`, s.table)

	written := 0
	for _, rec := range records {
		scrapedAt, err := time.ParseInLocation(loan.TimestampLayout, rec.ScrapedAt, s.loc)
		if err != nil {
			return written, fmt.Errorf("parse scraped_at %q: %w", rec.ScrapedAt, err)
		}
		id, err := s.ids.NewID()
		if err != nil {
			return written, fmt.Errorf("generate record id: %w", err)
		}
		args := []any{
			id,
			rec.Source,
			rec.BankName,
			rec.ProductName,
			rec.MinCreditScore,
			rec.MinIncomeMonthly,
			scrapedAt,
		}
		if _, err := s.pool.Exec(ctx, query, args...); err != nil {
			return written, fmt.Errorf("insert loan record for %s: %w", rec.BankName, err)
		}
		written++
	}
	return written, nil
}
