package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// lockPath returns the lock file that guards dbPath. It sits next to the
// database directory rather than inside it.
func lockPath(dbPath string) string {
	clean := filepath.Clean(dbPath)
	return filepath.Join(filepath.Dir(clean), "."+filepath.Base(clean)+".lock")
}

// acquireLock takes the single-instance lock for dbPath without waiting.
func acquireLock(dbPath string) (func(), error) {
	path := lockPath(dbPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("cannot create lock directory: %w", err)
	}
	l := flock.New(path)
	locked, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("cannot acquire lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another knowbank instance is using %s (lock: %s)",
			strings.TrimSuffix(dbPath, string(filepath.Separator)), path)
	}
	return func() { _ = l.Unlock() }, nil
}
