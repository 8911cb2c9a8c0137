package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/orreryhq/orrery/internal/widget"
)

// Schema is the SQL DDL for the widget_generations table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS widget_generations (
    id         BIGINT PRIMARY KEY,
    created_at TIMESTAMPTZ NOT NULL,
    widgets    JSONB NOT NULL DEFAULT '[]'
);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by PostgreSQL. Generations are append
// mostly: each committed generation is one row, and Load returns the row
// with the highest id, so the table keeps the publish history for free.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a PostgresStore over the given connection or
// pool. Call [PostgresStore.Migrate] once before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL, creating the widget_generations table
// if it does not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("registry: migrate: %w", err)
	}
	return nil
}

// Load implements [Store]: it returns the generation with the highest id,
// or (nil, nil) when the table is empty.
func (s *PostgresStore) Load(ctx context.Context) (*widget.Generation, error) {
	const query = `
		SELECT id, created_at, widgets
		FROM widget_generations
		ORDER BY id DESC
		LIMIT 1`

	var gen widget.Generation
	var widgetsJSON []byte
	err := s.db.QueryRow(ctx, query).Scan(&gen.ID, &gen.CreatedAt, &widgetsJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("registry: load generation: %w", err)
	}
	if err := json.Unmarshal(widgetsJSON, &gen.Widgets); err != nil {
		return nil, fmt.Errorf("registry: unmarshal widgets for generation %d: %w", gen.ID, err)
	}
	return &gen, nil
}

// Save implements [Store]. Re-saving the same generation id replaces the
// row, so a retried publish converges instead of failing on a duplicate key.
func (s *PostgresStore) Save(ctx context.Context, gen *widget.Generation) error {
	widgetsJSON, err := json.Marshal(emptyEntries(gen.Widgets))
	if err != nil {
		return fmt.Errorf("registry: marshal widgets: %w", err)
	}

	const query = `
		INSERT INTO widget_generations (id, created_at, widgets)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			created_at = EXCLUDED.created_at,
			widgets = EXCLUDED.widgets`

	if _, err := s.db.Exec(ctx, query, gen.ID, gen.CreatedAt, widgetsJSON); err != nil {
		return fmt.Errorf("registry: save generation %d: %w", gen.ID, err)
	}
	return nil
}

// emptyEntries returns s if non-nil, otherwise an empty non-nil slice. This
// ensures JSON marshalling produces "[]" instead of "null".
func emptyEntries(s []widget.Entry) []widget.Entry {
	if s == nil {
		return []widget.Entry{}
	}
	return s
}
