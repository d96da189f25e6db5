package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	reqerrors "github.com/Aman-CERP/reqfind/internal/errors"
)

// LockFileName is the lock file guarding a data directory.
const LockFileName = ".index.lock"

// IndexFileName is the fragment index file inside a data directory.
const IndexFileName = "index.db"

// FileLock provides cross-process file locking using gofrs/flock.
// Only one reqfind process may own the index of a data directory.
type FileLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewFileLock creates a lock for the given data directory.
// The lock file will be created at <dir>/.index.lock
func NewFileLock(dir string) *FileLock {
	lockPath := filepath.Join(dir, LockFileName)
	return &FileLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired, false if it's held by another process.
func (l *FileLock) TryLock() (bool, error) {
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}

	if acquired {
		l.locked = true
	}
	return acquired, nil
}

// Unlock releases the file lock.
// It's safe to call Unlock multiple times or on an unlocked FileLock.
func (l *FileLock) Unlock() error {
	if !l.locked {
		return nil
	}

	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the path to the lock file.
func (l *FileLock) Path() string {
	return l.path
}

// IsLocked returns true if the lock is currently held.
func (l *FileLock) IsLocked() bool {
	return l.locked
}

// LockedStore is a SQLiteIndexStore that owns its data directory lock.
type LockedStore struct {
	*SQLiteIndexStore
	lock *FileLock
}

// OpenLocked locks dataDir and opens the index inside it.
// A directory locked by another process is a StoreFatalError.
func OpenLocked(dataDir string, config IndexStoreConfig) (*LockedStore, error) {
	lock := NewFileLock(dataDir)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, reqerrors.StoreFatalError(reqerrors.ErrCodeStoreLocked, "cannot lock data directory "+dataDir, err)
	}
	if !ok {
		return nil, reqerrors.StoreFatalError(reqerrors.ErrCodeStoreLocked,
			"data directory "+dataDir+" is in use by another process", nil).
			WithSuggestion("stop the running reqfind daemon or use a different data_dir")
	}

	s, err := NewSQLiteIndexStore(filepath.Join(dataDir, IndexFileName), config)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	return &LockedStore{SQLiteIndexStore: s, lock: lock}, nil
}

// Close closes the store and releases the directory lock.
func (s *LockedStore) Close() error {
	err := s.SQLiteIndexStore.Close()
	if unlockErr := s.lock.Unlock(); err == nil {
		err = unlockErr
	}
	return err
}
