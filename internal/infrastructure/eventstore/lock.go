package eventstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

const lockStaleDuration = 10 * time.Minute

// ErrJournalLocked indicates another process holds the journal writer lock.
var ErrJournalLocked = errors.New("journal is locked by another process")

// lockContents is written into the lock file for diagnostics.
type lockContents struct {
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// acquireLock creates path exclusively and returns a release function.
// A lock older than lockStaleDuration is considered abandoned and replaced.
func acquireLock(path string, now time.Time) (func(), error) {
	if existing, err := readLock(path); err == nil {
		if now.Sub(existing.AcquiredAt) <= lockStaleDuration {
			return nil, fmt.Errorf("%w: PID %d on %s since %s", ErrJournalLocked,
				existing.PID, existing.Hostname, existing.AcquiredAt.Format(time.RFC3339))
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale lock: %w", err)
		}
	}

	hostname, _ := os.Hostname()
	data, err := json.Marshal(lockContents{PID: os.Getpid(), Hostname: hostname, AcquiredAt: now})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrJournalLocked
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to close lock file: %w", err)
	}

	return func() { _ = os.Remove(path) }, nil
}

func readLock(path string) (*lockContents, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lc lockContents
	if err := json.Unmarshal(data, &lc); err != nil {
		return nil, fmt.Errorf("failed to parse lock file: %w", err)
	}
	return &lc, nil
}
