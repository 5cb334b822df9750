// Package cache is the durable, keyed, versioned local store for profiles,
// relay lists, follow lists and timeline events. Entries are addressed by
// (kind, key); each write replaces the entry atomically, so contention is
// at the granularity of a single entry, never the whole store.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"nostatus/internal/cache/migrations"
	"nostatus/internal/dbx"
	"nostatus/internal/filex"
	"nostatus/internal/logging"
)

// SchemaVersion is stamped on every entry this build writes. Readers
// refuse entries from a newer schema instead of guessing at the bytes.
const SchemaVersion = 1

// Entry kinds. Each kind is an independent namespace of keys.
const (
	KindProfile    = "profile"
	KindRelayList  = "relay_list"
	KindFollowList = "follow_list"
	KindStatus     = "status"
	KindMeta       = "meta"
)

// Entry is one cached value plus its bookkeeping fields.
type Entry struct {
	Kind          string
	Key           string
	SchemaVersion int
	RefreshedAt   time.Time
	Value         []byte
}

type Store struct {
	db  *sql.DB
	log logging.Logger
}

// Open opens (creating if needed) the sqlite-backed store at path and
// applies pending schema migrations.
func Open(ctx context.Context, path string, log logging.Logger) (*Store, error) {
	if _, err := filex.EnsureParentDir(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating cache db: %w", err)
	}

	return &Store{db: db, log: log}, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the entry for (kind, key), ErrNotFound when absent, or
// ErrUnsupportedSchema when the entry was written by a newer build.
func (s *Store) Get(ctx context.Context, kind, key string) (*Entry, error) {
	return getEntry(ctx, s.db, kind, key)
}

func getEntry(ctx context.Context, db dbx.DBTX, kind, key string) (*Entry, error) {
	row := db.QueryRowContext(ctx,
		`SELECT schema_version, refreshed_at, value FROM entries WHERE kind=? AND key=?`,
		kind, key)

	e := &Entry{Kind: kind, Key: key}
	var refreshedAt int64
	if err := row.Scan(&e.SchemaVersion, &refreshedAt, &e.Value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read entry: %w", err)
	}
	if e.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("%w: entry %s/%s has version %d, this build understands %d",
			ErrUnsupportedSchema, kind, key, e.SchemaVersion, SchemaVersion)
	}
	e.RefreshedAt = time.Unix(refreshedAt, 0)
	return e, nil
}

// Put upserts the entry for (kind, key), stamping the current schema
// version and refresh time. The single-statement upsert keeps each write
// atomic per key.
func (s *Store) Put(ctx context.Context, kind, key string, value []byte) error {
	return putEntry(ctx, s.db, kind, key, value)
}

func putEntry(ctx context.Context, db dbx.DBTX, kind, key string, value []byte) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO entries (kind, key, schema_version, refreshed_at, value)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(kind, key) DO UPDATE SET
		   schema_version = excluded.schema_version,
		   refreshed_at = excluded.refreshed_at,
		   value = excluded.value`,
		kind, key, SchemaVersion, time.Now().Unix(), value)
	if err != nil {
		return fmt.Errorf("failed to upsert entry: %w", err)
	}
	return nil
}

// Invalidate removes the entry for (kind, key). Removing an absent entry
// is not an error.
func (s *Store) Invalidate(ctx context.Context, kind, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE kind=? AND key=?`, kind, key)
	if err != nil {
		return fmt.Errorf("failed to invalidate entry: %w", err)
	}
	return nil
}

// List returns all entries of one kind. Entries with a newer schema than
// this build understands are skipped and logged, not fatal: one
// unreadable entry must not hide the rest of the namespace.
func (s *Store) List(ctx context.Context, kind string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, schema_version, refreshed_at, value FROM entries WHERE kind=?`, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to select entries: %w", err)
	}
	defer rows.Close()

	var result []Entry
	for rows.Next() {
		e := Entry{Kind: kind}
		var refreshedAt int64
		if err := rows.Scan(&e.Key, &e.SchemaVersion, &refreshedAt, &e.Value); err != nil {
			return nil, err
		}
		if e.SchemaVersion > SchemaVersion {
			s.log.Warn(ctx, "skipping entry with newer schema",
				"kind", kind, "key", e.Key, "schema_version", e.SchemaVersion)
			continue
		}
		e.RefreshedAt = time.Unix(refreshedAt, 0)
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
