package vulncache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/depscan/depscan/pkg/models"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists entries in a SQLite database so they survive between
// runs.
type SQLiteStore struct {
	// Now is the clock used for expiry; defaults to time.Now.
	Now func() time.Time

	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and applies
// the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, &Error{Op: "open", Err: err}
	}
	// a single connection serialises writers, and keeps ":memory:" databases
	// from being one-per-connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &Error{Op: "open", Err: err}
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, &Error{Op: "migrate", Err: err}
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS vuln_cache (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		expires_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS vuln_cache_expires_at ON vuln_cache (expires_at);
	`
	_, err := s.db.Exec(query)

	return err
}

func (s *SQLiteStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}

	return time.Now()
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, key models.PackageKey) ([]models.Vulnerability, bool, error) {
	k := key.String()

	var value []byte
	var expiresAt int64
	err := s.db.QueryRowContext(ctx, `SELECT value, expires_at FROM vuln_cache WHERE key = ?`, k).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &Error{Op: "get", Key: k, Err: err}
	}

	if expiresAt <= s.now().UnixNano() {
		return nil, false, nil
	}

	vulns, err := decode(value)
	if err != nil {
		return nil, false, &Error{Op: "get", Key: k, Err: err}
	}

	return vulns, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key models.PackageKey, vulns []models.Vulnerability, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	k := key.String()
	value, err := encode(vulns)
	if err != nil {
		return &Error{Op: "set", Key: k, Err: err}
	}

	query := `
	INSERT INTO vuln_cache (key, value, expires_at) VALUES (?, ?, ?)
	ON CONFLICT (key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
	`
	if _, err := s.db.ExecContext(ctx, query, k, value, s.now().Add(ttl).UnixNano()); err != nil {
		return &Error{Op: "set", Key: k, Err: err}
	}

	return nil
}

// PurgeExpired deletes every expired entry and returns how many were removed.
func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM vuln_cache WHERE expires_at <= ?`, s.now().UnixNano())
	if err != nil {
		return 0, &Error{Op: "purge", Err: err}
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, &Error{Op: "purge", Err: fmt.Errorf("counting rows: %w", err)}
	}

	return n, nil
}
