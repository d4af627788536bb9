package project

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore is the durable Store used in production. Dependent tables
// (briefs, options, shopping lists) declare ON DELETE CASCADE against
// projects, so deleting the row cascades to everything the project owns.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	last_interaction_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ,
	abandoned_at TIMESTAMPTZ
);
`

func (s *PostgresStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, pgSchema)
	return err
}

func (s *PostgresStore) Save(ctx context.Context, p *Project) error {
	query := `
		INSERT INTO projects (id, status, created_at, updated_at, last_interaction_at, completed_at, abandoned_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at,
			last_interaction_at = EXCLUDED.last_interaction_at,
			completed_at = EXCLUDED.completed_at,
			abandoned_at = EXCLUDED.abandoned_at
	`
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.Status, p.CreatedAt, p.UpdatedAt, p.LastInteractionAt, p.CompletedAt, p.AbandonedAt)
	if err != nil {
		return fmt.Errorf("save project %s: %w", p.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, created_at, updated_at, last_interaction_at, completed_at, abandoned_at
		 FROM projects WHERE id = $1`, id)
	return scanProject(row)
}

// Delete removes the project row. An already-absent row is success, which is
// what makes re-running purge a safe no-op.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, created_at, updated_at, last_interaction_at, completed_at, abandoned_at
		 FROM projects ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.Status, &p.CreatedAt, &p.UpdatedAt, &p.LastInteractionAt,
		&p.CompletedAt, &p.AbandonedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan project: %w", err)
	}
	return &p, nil
}
