package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	reqerrors "github.com/Aman-CERP/reqfind/internal/errors"
	"github.com/Aman-CERP/reqfind/internal/urlindex"
)

// SQLiteIndexStore implements IndexStore on a single SQLite table.
// WAL mode lets CLI readers inspect the file while the daemon writes.
type SQLiteIndexStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	config IndexStoreConfig
	closed bool
}

// Verify interface implementation at compile time
var _ IndexStore = (*SQLiteIndexStore)(nil)

// validateSQLiteIntegrity checks if an index file is valid before opening.
// Returns nil if valid or missing, error describing corruption if not.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Database doesn't exist, will be created
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master
                       WHERE type='table' AND name='fragments'`).Scan(&count)
	if err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("table 'fragments' missing")
	}

	return nil
}

// NewSQLiteIndexStore opens (or creates) the fragment index at path.
// If path is empty, creates an in-memory store for testing.
// A corrupted file is removed and recreated empty; callers must reindex.
func NewSQLiteIndexStore(path string, config IndexStoreConfig) (*SQLiteIndexStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, reqerrors.StoreFatalError(reqerrors.ErrCodeStoreOpen,
				fmt.Sprintf("failed to create directory %s", dir), err)
		}

		if validErr := validateSQLiteIntegrity(path); validErr != nil {
			slog.Warn("sqlite_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))

			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, reqerrors.StoreFatalError(reqerrors.ErrCodeCorruptIndex,
					fmt.Sprintf("index corrupted at %s and cannot remove (original error: %v)", path, validErr),
					removeErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")

			slog.Info("sqlite_index_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, please reindex"))
		}

		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, reqerrors.StoreFatalError(reqerrors.ErrCodeStoreOpen, "failed to open database", err)
	}

	// modernc.org/sqlite ignores most DSN params, so pragmas are set explicitly.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, reqerrors.StoreFatalError(reqerrors.ErrCodeStoreOpen, "failed to set pragma", err)
		}
	}

	s, err := NewSQLiteIndexStoreFromDB(db, config)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.path = path
	return s, nil
}

// NewSQLiteIndexStoreFromDB wraps an already opened database.
// Any database/sql SQLite driver works; the store takes ownership of db.
func NewSQLiteIndexStoreFromDB(db *sql.DB, config IndexStoreConfig) (*SQLiteIndexStore, error) {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}

	// Single writer; also keeps ":memory:" databases on one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteIndexStore{db: db, config: config}
	if err := s.initSchema(); err != nil {
		return nil, reqerrors.StoreFatalError(reqerrors.ErrCodeStoreOpen, "failed to initialize schema", err)
	}
	return s, nil
}

// initSchema creates the fragment table and its sort indexes.
func (s *SQLiteIndexStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS fragments (
		request_id TEXT NOT NULL CHECK (request_id <> ''),
		id         TEXT NOT NULL CHECK (id <> ''),
		type       TEXT NOT NULL CHECK (type <> ''),
		value      TEXT NOT NULL,
		kind       TEXT NOT NULL,
		PRIMARY KEY (request_id, id)
	);

	-- Cursor order per type and across all types
	CREATE INDEX IF NOT EXISTS idx_fragments_type_value ON fragments(type, value, request_id, id);
	CREATE INDEX IF NOT EXISTS idx_fragments_value ON fragments(value, request_id, id);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database file path ("" for in-memory stores).
func (s *SQLiteIndexStore) Path() string {
	return s.path
}

// BulkPut inserts or replaces fragments inside one transaction.
// A failing item is recorded and skipped; a failed commit fails every item.
func (s *SQLiteIndexStore) BulkPut(ctx context.Context, fragments []urlindex.Fragment) []ItemResult {
	results := make([]ItemResult, len(fragments))
	for i, f := range fragments {
		results[i].Key = f.Key()
	}
	if len(fragments) == 0 {
		return results
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.inTx(ctx, `INSERT OR REPLACE INTO fragments(request_id, id, type, value, kind)
		VALUES (?, ?, ?, ?, ?)`, func(stmt *sql.Stmt) {
		for i, f := range fragments {
			if _, err := stmt.ExecContext(ctx, f.RequestID, f.ID, f.Type, f.Value, string(f.Kind)); err != nil {
				results[i].Err = reqerrors.StoreItemError(reqerrors.ErrCodeItemPut,
					fmt.Sprintf("failed to put fragment %s of request %s", f.ID, f.RequestID), err)
			}
		}
	})
	if err != nil {
		failAll(results, reqerrors.ErrCodeItemPut, err)
	}
	return results
}

// BulkDelete removes fragments by key inside one transaction.
func (s *SQLiteIndexStore) BulkDelete(ctx context.Context, keys []urlindex.FragmentKey) []ItemResult {
	results := make([]ItemResult, len(keys))
	for i, k := range keys {
		results[i].Key = k
	}
	if len(keys) == 0 {
		return results
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.inTx(ctx, `DELETE FROM fragments WHERE request_id = ? AND id = ?`, func(stmt *sql.Stmt) {
		for i, k := range keys {
			if _, err := stmt.ExecContext(ctx, k.RequestID, k.ID); err != nil {
				results[i].Err = reqerrors.StoreItemError(reqerrors.ErrCodeItemDelete,
					fmt.Sprintf("failed to delete fragment %s of request %s", k.ID, k.RequestID), err)
			}
		}
	})
	if err != nil {
		failAll(results, reqerrors.ErrCodeItemDelete, err)
	}
	return results
}

// inTx runs fn with a prepared statement inside a transaction and commits.
// Caller must hold s.mu.
func (s *SQLiteIndexStore) inTx(ctx context.Context, query string, fn func(*sql.Stmt)) error {
	if s.closed {
		return fmt.Errorf("index is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	fn(stmt)

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func failAll(results []ItemResult, code string, cause error) {
	for i := range results {
		results[i].Err = reqerrors.StoreItemError(code, "bulk transaction failed", cause)
	}
}

// RangeByRequestID returns every fragment owned by requestID, ordered by id.
func (s *SQLiteIndexStore) RangeByRequestID(ctx context.Context, requestID string) ([]urlindex.Fragment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("index is closed")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT request_id, id, type, value, kind
		FROM fragments
		WHERE request_id = ?
		ORDER BY id`, requestID)
	if err != nil {
		return nil, reqerrors.StoreItemError(reqerrors.ErrCodeItemRead,
			fmt.Sprintf("failed to read fragments of request %s", requestID), err)
	}
	defer rows.Close()

	return scanFragments(rows)
}

// DeleteByRequestID removes every fragment owned by requestID.
func (s *SQLiteIndexStore) DeleteByRequestID(ctx context.Context, requestID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, fmt.Errorf("index is closed")
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM fragments WHERE request_id = ?`, requestID)
	if err != nil {
		return 0, reqerrors.StoreItemError(reqerrors.ErrCodeItemDelete,
			fmt.Sprintf("failed to delete fragments of request %s", requestID), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted rows: %w", err)
	}
	return int(n), nil
}

// Clear removes every fragment in a single transaction.
// On failure the store is left unchanged.
func (s *SQLiteIndexStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return reqerrors.StoreFatalError(reqerrors.ErrCodeStoreClear, "index is closed", nil)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return reqerrors.StoreFatalError(reqerrors.ErrCodeStoreClear, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM fragments`); err != nil {
		return reqerrors.StoreFatalError(reqerrors.ErrCodeStoreClear, "failed to clear fragments", err)
	}
	if err := tx.Commit(); err != nil {
		return reqerrors.StoreFatalError(reqerrors.ErrCodeStoreClear, "failed to commit clear", err)
	}
	return nil
}

// Scan visits every fragment of typ in cursor order until fn returns false.
func (s *SQLiteIndexStore) Scan(ctx context.Context, typ string, fn func(urlindex.Fragment) bool) error {
	c := s.Cursor(typ)
	f, ok, err := c.Seek(ctx, "")
	for ; ok && err == nil; f, ok, err = c.Next(ctx) {
		if !fn(f) {
			return nil
		}
	}
	return err
}

// Stats returns fragment and request counts.
func (s *SQLiteIndexStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("index is closed")
	}

	st := &Stats{ByType: make(map[string]int)}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT request_id) FROM fragments`).Scan(&st.Fragments, &st.Requests)
	if err != nil {
		return nil, fmt.Errorf("failed to count fragments: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM fragments GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("failed to count fragments by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, fmt.Errorf("failed to scan type count: %w", err)
		}
		st.ByType[typ] = n
	}
	return st, rows.Err()
}

// Close closes the store.
// Forces a WAL checkpoint before closing.
func (s *SQLiteIndexStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	if s.db != nil {
		if s.path != "" {
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		}
		return s.db.Close()
	}
	return nil
}

func scanFragments(rows *sql.Rows) ([]urlindex.Fragment, error) {
	var out []urlindex.Fragment
	for rows.Next() {
		var f urlindex.Fragment
		var kind string
		if err := rows.Scan(&f.RequestID, &f.ID, &f.Type, &f.Value, &kind); err != nil {
			return nil, fmt.Errorf("failed to scan fragment: %w", err)
		}
		f.Kind = urlindex.FragmentKind(kind)
		out = append(out, f)
	}
	return out, rows.Err()
}
