// Package sqlstore implements storage.Storage over database/sql.
//
// Two engines share one schema and one query set: embedded SQLite through
// the ncruces WASM driver, and a MySQL-compatible server through
// go-sql-driver/mysql.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-sql-driver/mysql"
	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/tetratelabs/wazero"

	"github.com/steveyegge/cutover/internal/storage"
)

// Backend names.
const (
	BackendSQLite = "sqlite"
	BackendMySQL  = "mysql"
)

// Verify Store implements storage.Storage at compile time
var _ storage.Storage = (*Store)(nil)

// Store implements storage.Storage.
type Store struct {
	*queries
	db      *sql.DB
	backend string
	path    string
	closed  atomic.Bool
}

// setupWASMCache points the SQLite WASM runtime at an on-disk compilation
// cache under the user cache dir, falling back to an in-memory cache.
func setupWASMCache() string {
	cacheDir := ""
	if userCache, err := os.UserCacheDir(); err == nil {
		cacheDir = filepath.Join(userCache, "cutover", "wasm")
	}

	var cache wazero.CompilationCache
	if cacheDir != "" {
		if c, err := wazero.NewCompilationCacheWithDir(cacheDir); err == nil {
			cache = c
		}
	}
	if cache == nil {
		cache = wazero.NewCompilationCache()
		cacheDir = ""
	}

	sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithCompilationCache(cache)
	return cacheDir
}

func init() {
	_ = setupWASMCache()
}

// OpenSQLite opens (creating if needed) an embedded database at path.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	return OpenSQLiteWithTimeout(ctx, path, 0)
}

// OpenSQLiteWithTimeout is OpenSQLite with an explicit busy timeout; zero
// uses storage.DefaultBusyTimeout.
func OpenSQLiteWithTimeout(ctx context.Context, path string, busy time.Duration) (*Store, error) {
	isInMemory := path == ":memory:"
	if !isInMemory {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}
	connStr := storage.SQLiteConnString(path, false, busy)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if isInMemory {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		// WAL allows one writer and many readers.
		db.SetMaxOpenConns(runtime.NumCPU() + 1)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(0)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	absPath := path
	if !isInMemory {
		if absPath, err = filepath.Abs(path); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to get absolute path: %w", err)
		}
	}
	return open(ctx, db, BackendSQLite, absPath)
}

// MySQLOptions configures a server-mode connection.
type MySQLOptions struct {
	DSN         string // full DSN; overrides the fields below when set
	Host        string
	Port        int
	User        string
	Password    string
	Database    string
	DialTimeout time.Duration
}

func (o MySQLOptions) config() (*mysql.Config, error) {
	if o.DSN != "" {
		cfg, err := mysql.ParseDSN(o.DSN)
		if err != nil {
			return nil, fmt.Errorf("invalid mysql dsn: %w", err)
		}
		return cfg, nil
	}
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	host := o.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := o.Port
	if port == 0 {
		port = 3306
	}
	cfg.Addr = fmt.Sprintf("%s:%d", host, port)
	cfg.User = o.User
	if cfg.User == "" {
		cfg.User = "root"
	}
	cfg.Passwd = o.Password
	cfg.DBName = o.Database
	if cfg.DBName == "" {
		cfg.DBName = "cutover"
	}
	cfg.Timeout = o.DialTimeout
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	return cfg, nil
}

// OpenMySQL connects to a MySQL-compatible server and applies the schema.
func OpenMySQL(ctx context.Context, opts MySQLOptions) (*Store, error) {
	cfg, err := opts.config()
	if err != nil {
		return nil, err
	}
	// Report matched rather than changed rows so no-op updates are not
	// mistaken for missing entities.
	cfg.ClientFoundRows = true
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return open(ctx, db, BackendMySQL, cfg.Addr+"/"+cfg.DBName)
}

func open(ctx context.Context, db *sql.DB, backend, path string) (*Store, error) {
	if err := withRetry(ctx, func() error { return db.PingContext(ctx) }); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := initSchema(ctx, db, backend); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{
		queries: &queries{q: db},
		db:      db,
		backend: backend,
		path:    path,
	}, nil
}

func initSchema(ctx context.Context, db *sql.DB, backend string) error {
	for _, stmt := range tables {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	for _, idx := range indexes {
		stmt := fmt.Sprintf("CREATE INDEX %s ON %s (%s)", idx.name, idx.table, idx.cols)
		if backend == BackendSQLite {
			stmt = strings.Replace(stmt, "CREATE INDEX", "CREATE INDEX IF NOT EXISTS", 1)
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil && !isDuplicateIndexError(err) {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}
	return nil
}

// Backend returns "sqlite" or "mysql".
func (s *Store) Backend() string { return s.backend }

// Path returns the database file path, or host/database for MySQL.
func (s *Store) Path() string { return s.path }

// Close closes the database. For SQLite the WAL is checkpointed first so
// writes are flushed to the main file.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.backend == BackendSQLite {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.db.Close()
}
