package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// Postgres keeps blobs in a migration_options table and record fields in a
// record_meta table keyed by (scope, record_id, meta_key). Field operations
// only see rows of the store's scope, so destinations sharing a database do
// not collide. It expects a *sql.DB opened with the pgx driver.
type Postgres struct {
	db    *sql.DB
	scope string

	schemaOnce sync.Once
	schemaErr  error
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// NewPostgresFieldStore returns a store whose record fields live under scope,
// usually the destination table.
func NewPostgresFieldStore(db *sql.DB, scope string) *Postgres {
	return &Postgres{db: db, scope: scope}
}

func (s *Postgres) Scope() string {
	return s.scope
}

func (s *Postgres) ensureSchema(ctx context.Context) error {
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS migration_options (
  name TEXT PRIMARY KEY,
  value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS record_meta (
  scope TEXT NOT NULL DEFAULT '',
  record_id TEXT NOT NULL,
  meta_key TEXT NOT NULL,
  meta_value TEXT NOT NULL,
  seq BIGSERIAL,
  PRIMARY KEY (scope, record_id, meta_key)
);
CREATE INDEX IF NOT EXISTS idx_record_meta_key_value ON record_meta (scope, meta_key, meta_value);
`)
	})
	return s.schemaErr
}

func (s *Postgres) GetBlob(ctx context.Context, name string) ([]byte, bool, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, false, err
	}
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM migration_options WHERE name = $1`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read blob %s: %w", name, err)
	}
	return []byte(value), true, nil
}

func (s *Postgres) SetBlob(ctx context.Context, name string, value []byte) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO migration_options (name, value) VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value`, name, string(value))
	if err != nil {
		return fmt.Errorf("write blob %s: %w", name, err)
	}
	return nil
}

func (s *Postgres) GetField(ctx context.Context, recordID, field string) (string, bool, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return "", false, err
	}
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT meta_value FROM record_meta WHERE scope = $1 AND record_id = $2 AND meta_key = $3`,
		s.scope, recordID, field).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read field %s of %s: %w", field, recordID, err)
	}
	return value, true, nil
}

func (s *Postgres) SetField(ctx context.Context, recordID, field, value string) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO record_meta (scope, record_id, meta_key, meta_value) VALUES ($1, $2, $3, $4)
ON CONFLICT (scope, record_id, meta_key) DO UPDATE SET meta_value = EXCLUDED.meta_value`,
		s.scope, recordID, field, value)
	if err != nil {
		return fmt.Errorf("write field %s of %s: %w", field, recordID, err)
	}
	return nil
}

func (s *Postgres) ClearField(ctx context.Context, recordID, field string) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM record_meta WHERE scope = $1 AND record_id = $2 AND meta_key = $3`,
		s.scope, recordID, field)
	if err != nil {
		return fmt.Errorf("clear field %s of %s: %w", field, recordID, err)
	}
	return nil
}

func (s *Postgres) FindByField(ctx context.Context, field, value string) (string, bool, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return "", false, err
	}
	// seq survives upserts, so the first row written wins
	var recordID string
	err := s.db.QueryRowContext(ctx, `
SELECT record_id FROM record_meta
WHERE scope = $1 AND meta_key = $2 AND meta_value = $3
ORDER BY seq LIMIT 1`, s.scope, field, value).Scan(&recordID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("find by field %s: %w", field, err)
	}
	return recordID, true, nil
}

func (s *Postgres) ScanField(ctx context.Context, field string, fn func(recordID, value string) error) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT record_id, meta_value FROM record_meta WHERE scope = $1 AND meta_key = $2 ORDER BY seq`,
		s.scope, field)
	if err != nil {
		return fmt.Errorf("scan field %s: %w", field, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, value string
		if err := rows.Scan(&id, &value); err != nil {
			return fmt.Errorf("scan field %s: %w", field, err)
		}
		if err := fn(id, value); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
