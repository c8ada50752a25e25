package storage

import (
	"errors"
	"fmt"
	"strings"
)

const (
	KindMemory = "memory"
	KindSQLite = "sqlite"
)

var ErrUnsupportedBackend = errors.New("unsupported store backend")

// NewStore opens the backend named by kind. sqlitePath is only read by
// the sqlite backend.
func NewStore(kind, sqlitePath string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindMemory:
		return NewMemoryStore(), nil
	case KindSQLite:
		if strings.TrimSpace(sqlitePath) == "" {
			return nil, errors.New("sqlite store requires a database path")
		}
		return newSQLiteStore(sqlitePath)
	default:
		return nil, fmt.Errorf("%w: %q (want %s or %s)", ErrUnsupportedBackend, kind, KindMemory, KindSQLite)
	}
}

// CloseIfSupported releases backends that hold resources. The memory store
// holds none.
func CloseIfSupported(store Store) error {
	if store == nil {
		return nil
	}
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
