package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	defaultDBName      = "mission-control.db"
	defaultBusyTimeout = 5000
)

type Config struct {
	// Workspace holds the .mission-control directory; ignored when Path is set.
	Workspace string
	Path      string
	// BusyTimeoutMS bounds how long a connection waits on a held write lock.
	BusyTimeoutMS int
}

func dbPath(cfg Config) string {
	if cfg.Path != "" {
		return cfg.Path
	}
	workspace := cfg.Workspace
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".mission-control", defaultDBName)
}

// EnsureWorkspace creates the directory holding the database file.
func EnsureWorkspace(cfg Config) (string, error) {
	dir := filepath.Dir(dbPath(cfg))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// DSN builds the modernc sqlite connection string.
//
// Every connection gets foreign keys, WAL and a busy timeout. _txlock=immediate
// makes BEGIN take the write lock, so read-check-write transactions from
// different connections or processes run one after another.
func DSN(cfg Config) string {
	busy := cfg.BusyTimeoutMS
	if busy <= 0 {
		busy = defaultBusyTimeout
	}
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy))
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_txlock", "immediate")
	return "file:" + dbPath(cfg) + "?" + q.Encode()
}

// Open opens the SQLite database, creating its directory if needed.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg); err != nil {
		return nil, err
	}
	conn, err := sql.Open("sqlite", DSN(cfg))
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open %s: %w", dbPath(cfg), err)
	}
	return conn, nil
}

// Path returns the db path for the config.
func Path(cfg Config) string {
	return dbPath(cfg)
}
