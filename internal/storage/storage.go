// Package storage provides the durable key-value backends that hold the
// serialized note collection.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/loqalabs/loqa-scribe/internal/config"
)

// ErrNotFound is returned by Get when no value is stored under the key.
var ErrNotFound = errors.New("storage: key not found")

// KV is a whole-value key-value store. Put replaces the value atomically.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}

// Open builds the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StorageConfig, log *slog.Logger) (KV, error) {
	switch cfg.Backend {
	case "sqlite":
		return OpenSQLite(ctx, cfg, log)
	case "file":
		return NewFile(cfg.Path), nil
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
