package eventstore

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/relicta-tech/notebase/internal/domain/eventsource"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Backends lists the supported backend names.
func Backends() []string {
	return []string{BackendMemory, BackendFile, BackendSQLite}
}

// Open creates the event store selected by backend. path is ignored for the
// memory backend.
func Open(backend, path string, readOnly bool, logger *slog.Logger) (eventsource.EventStore, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile, "":
		opts := []FileOption{WithFileLogger(logger)}
		if readOnly {
			opts = append(opts, WithReadOnly())
		}
		return OpenFileStore(path, opts...)
	case BackendSQLite:
		return OpenSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown event store backend %q (use %s)", backend, strings.Join(Backends(), ", "))
	}
}
