// Package postgres stores visit entries in Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/resort-relay/internal/entries"
	"github.com/JakeFAU/resort-relay/internal/relay"
)

const defaultTable = "visit_entries"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for entries.
type Config struct {
	DSN             string        `mapstructure:"dsn" yaml:"dsn"`
	Table           string        `mapstructure:"table" yaml:"table"`
	MaxConns        int32         `mapstructure:"max_conns" yaml:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns" yaml:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime" yaml:"max_conn_lifetime"`
}

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements entries.Store on a pgx pool.
type Store struct {
	pool  pool
	table string
	ids   relay.IDGenerator
	clock relay.Clock
}

// New connects to Postgres using cfg.
func New(ctx context.Context, cfg Config, ids relay.IDGenerator, clock relay.Clock) (*Store, error) {
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
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewWithPool(p, cfg.Table, ids, clock)
	if err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table string, ids relay.IDGenerator, clock relay.Clock) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if ids == nil || clock == nil {
		return nil, fmt.Errorf("id generator and clock are required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: p, table: table, ids: ids, clock: clock}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the entries table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id         TEXT PRIMARY KEY,
	location   VARCHAR(%d) NOT NULL,
	visited    INTEGER NOT NULL DEFAULT 0,
	ranking    INTEGER NOT NULL DEFAULT 0,
	content    VARCHAR(%d) NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
)`, s.table, entries.MaxLocationLen, entries.MaxContentLen)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create entries table: %w", err)
	}
	return nil
}

// Create inserts a new entry.
func (s *Store) Create(ctx context.Context, d entries.Draft) (entries.Entry, error) {
	d, err := d.Normalize()
	if err != nil {
		return entries.Entry{}, err
	}
	id, err := s.ids.NewID()
	if err != nil {
		return entries.Entry{}, fmt.Errorf("generate id: %w", err)
	}
	e := entries.Entry{
		ID:        id,
		Location:  d.Location,
		Visited:   d.Visited,
		Ranking:   d.Ranking,
		Content:   d.Content,
		CreatedAt: s.clock.Now(),
	}
	query := fmt.Sprintf(
		`INSERT INTO %s (id, location, visited, ranking, content, created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		s.table)
	if _, err := s.pool.Exec(ctx, query, e.ID, e.Location, e.Visited, e.Ranking, e.Content, e.CreatedAt); err != nil {
		return entries.Entry{}, fmt.Errorf("insert entry: %w", err)
	}
	return e, nil
}

// List returns all entries ordered by creation time.
func (s *Store) List(ctx context.Context) ([]entries.Entry, error) {
	query := fmt.Sprintf(
		`SELECT id, location, visited, ranking, content, created_at FROM %s ORDER BY created_at, id`,
		s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	out := []entries.Entry{}
	for rows.Next() {
		var e entries.Entry
		if err := rows.Scan(&e.ID, &e.Location, &e.Visited, &e.Ranking, &e.Content, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return out, nil
}

// Get returns one entry.
func (s *Store) Get(ctx context.Context, id string) (entries.Entry, error) {
	query := fmt.Sprintf(
		`SELECT id, location, visited, ranking, content, created_at FROM %s WHERE id = $1`,
		s.table)
	return scanOne(s.pool.QueryRow(ctx, query, id))
}

// Update replaces the editable fields of an entry.
func (s *Store) Update(ctx context.Context, id string, d entries.Draft) (entries.Entry, error) {
	d, err := d.Normalize()
	if err != nil {
		return entries.Entry{}, err
	}
	query := fmt.Sprintf(
		`UPDATE %s SET location = $2, visited = $3, ranking = $4, content = $5 WHERE id = $1 `+
			`RETURNING id, location, visited, ranking, content, created_at`,
		s.table)
	return scanOne(s.pool.QueryRow(ctx, query, id, d.Location, d.Visited, d.Ranking, d.Content))
}

// Delete removes an entry.
func (s *Store) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return entries.ErrNotFound
	}
	return nil
}

func scanOne(row pgx.Row) (entries.Entry, error) {
	var e entries.Entry
	if err := row.Scan(&e.ID, &e.Location, &e.Visited, &e.Ranking, &e.Content, &e.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return entries.Entry{}, entries.ErrNotFound
		}
		return entries.Entry{}, fmt.Errorf("scan entry: %w", err)
	}
	return e, nil
}
