// Package storage provides the key-value store implementations behind
// interfaces.KeyValueStore: a Redis client for deployments and an
// in-memory store for tests, created from location URIs by a factory.
package storage

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/routerlabs/device-cert-backend/interfaces"
)

// StorageBackendFactory creates store backends from URI strings.
type StorageBackendFactory struct {
	log *slog.Logger
}

// NewStorageBackendFactory creates a factory instance.
func NewStorageBackendFactory(log *slog.Logger) *StorageBackendFactory {
	return &StorageBackendFactory{log: log}
}

// StorageBackendFor creates a store backend from a location URI.
//
// Supported schemes:
//   - redis:// (and rediss://) - Redis, parsed by go-redis; supports
//     auth, db selection and TLS query parameters.
//   - memory:// - process-local store for tests and development.
//
// Returns interfaces.ErrInvalidLocationURI for anything else.
func (sf *StorageBackendFactory) StorageBackendFor(locationURI string) (interfaces.KeyValueStore, error) {
	u, err := url.Parse(locationURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidLocationURI, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "redis", "rediss":
		opts, err := redis.ParseURL(locationURI)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidLocationURI, err)
		}
		sf.log.Info("Using Redis store", "addr", opts.Addr, "db", opts.DB)
		return NewRedisStore(redis.NewClient(opts), sf.log), nil
	case "memory":
		sf.log.Info("Using in-memory store")
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", interfaces.ErrInvalidLocationURI, u.Scheme)
	}
}
