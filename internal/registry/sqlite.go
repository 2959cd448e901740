package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Repository persists registrations.
type Repository interface {
	List(ctx context.Context) ([]Entry, error)
	Get(ctx context.Context, id string) (Entry, error)
	GetByUniqueID(ctx context.Context, uniqueID string) (Entry, error)
	Insert(ctx context.Context, e Entry) error
	Update(ctx context.Context, e Entry) error
	Delete(ctx context.Context, id string) error
	Close() error
}

const schema = `
CREATE TABLE IF NOT EXISTS registrations (
	id          TEXT PRIMARY KEY,
	unique_id   TEXT NOT NULL UNIQUE,
	title       TEXT NOT NULL,
	temperature TEXT NOT NULL,
	humidity    TEXT NOT NULL,
	icon        TEXT NOT NULL,
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL
);
`

const selectColumns = `id, unique_id, title, temperature, humidity, icon, created_at, updated_at`

// SQLiteRepository stores registrations in a SQLite database file.
type SQLiteRepository struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &SQLiteRepository{db: db, path: path}, nil
}

// Path returns the database file path.
func (r *SQLiteRepository) Path() string {
	return r.path
}

// Close closes the database.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// List returns all registrations ordered by creation time.
func (r *SQLiteRepository) List(ctx context.Context) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM registrations ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return out, nil
}

// Get returns the registration with the given id.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (Entry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM registrations WHERE id = ?`, id)
	return scanOne(row)
}

// GetByUniqueID returns the registration for a source pair key.
func (r *SQLiteRepository) GetByUniqueID(ctx context.Context, uniqueID string) (Entry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM registrations WHERE unique_id = ?`, uniqueID)
	return scanOne(row)
}

// Insert stores a new registration. A duplicate unique id yields
// ErrAlreadyConfigured.
func (r *SQLiteRepository) Insert(ctx context.Context, e Entry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO registrations (`+selectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UniqueID, e.Title, e.Temperature, e.Humidity, e.Icon,
		e.CreatedAt.UTC(), e.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyConfigured
		}
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

// Update replaces a stored registration.
func (r *SQLiteRepository) Update(ctx context.Context, e Entry) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE registrations SET unique_id = ?, title = ?, temperature = ?, humidity = ?, icon = ?, updated_at = ? WHERE id = ?`,
		e.UniqueID, e.Title, e.Temperature, e.Humidity, e.Icon, e.UpdatedAt.UTC(), e.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyConfigured
		}
		return fmt.Errorf("update registration: %w", err)
	}
	return checkAffected(res)
}

// Delete removes a registration.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM registrations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	return checkAffected(res)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e                    Entry
		createdAt, updatedAt time.Time
	)
	if err := s.Scan(&e.ID, &e.UniqueID, &e.Title, &e.Temperature, &e.Humidity, &e.Icon, &createdAt, &updatedAt); err != nil {
		return Entry{}, err
	}
	e.CreatedAt = createdAt.UTC()
	e.UpdatedAt = updatedAt.UTC()
	return e, nil
}

func scanOne(row *sql.Row) (Entry, error) {
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("read registration: %w", err)
	}
	return e, nil
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
