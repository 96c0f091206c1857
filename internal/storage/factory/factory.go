// Package factory provides functions for creating storage backends based on configuration.
package factory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/steveyegge/cutover/internal/config"
	"github.com/steveyegge/cutover/internal/storage"
	"github.com/steveyegge/cutover/internal/storage/sqlstore"
)

// BackendFactory is a function that creates a storage backend
type BackendFactory func(ctx context.Context, path string, opts Options) (storage.Storage, error)

// backendRegistry holds registered backend factories
var backendRegistry = make(map[string]BackendFactory)

// RegisterBackend registers a storage backend factory
func RegisterBackend(name string, factory BackendFactory) {
	backendRegistry[name] = factory
}

// Options configures how the storage backend is opened
type Options struct {
	LockTimeout time.Duration // bounds the initial open; 0 uses the context as-is

	// Server mode (mysql) options
	DSN        string // full DSN, overrides the fields below
	ServerHost string // default 127.0.0.1
	ServerPort int    // default 3306
	ServerUser string // default root
	Password   string
	Database   string // default cutover
}

func init() {
	RegisterBackend(sqlstore.BackendSQLite, func(ctx context.Context, path string, opts Options) (storage.Storage, error) {
		return sqlstore.OpenSQLiteWithTimeout(ctx, path, opts.LockTimeout)
	})
	RegisterBackend(sqlstore.BackendMySQL, func(ctx context.Context, _ string, opts Options) (storage.Storage, error) {
		return sqlstore.OpenMySQL(ctx, sqlstore.MySQLOptions{
			DSN:      opts.DSN,
			Host:     opts.ServerHost,
			Port:     opts.ServerPort,
			User:     opts.ServerUser,
			Password: opts.Password,
			Database: opts.Database,
		})
	})
}

// New creates a storage backend based on the backend type.
// For sqlite, path is the database file.
func New(ctx context.Context, backend, path string) (storage.Storage, error) {
	return NewWithOptions(ctx, backend, path, Options{})
}

// NewWithOptions creates a storage backend with the specified options.
func NewWithOptions(ctx context.Context, backend, path string, opts Options) (storage.Storage, error) {
	if backend == "" {
		backend = sqlstore.BackendSQLite
	}
	factory, ok := backendRegistry[backend]
	if !ok {
		return nil, fmt.Errorf("unknown storage backend: %s (supported: %s)", backend, strings.Join(Backends(), ", "))
	}
	if opts.LockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.LockTimeout)
		defer cancel()
	}
	return factory(ctx, path, opts)
}

// NewFromConfig opens the backend named by storage.backend using the
// storage.* settings of the initialised config.
func NewFromConfig(ctx context.Context) (storage.Storage, error) {
	return NewWithOptions(ctx, config.GetString(config.KeyStorageBackend), config.GetString(config.KeyStoragePath), Options{
		LockTimeout: config.GetDuration(config.KeyStorageLockTimeout),
		DSN:         config.GetString(config.KeyStorageDSN),
	})
}

// Backends lists the registered backend names.
func Backends() []string {
	names := make([]string, 0, len(backendRegistry))
	for name := range backendRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
