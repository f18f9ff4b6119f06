package persist

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// KV is a keyed blob store backed by an embedded SQLite database. Each
// persisted partition is a single JSON blob under a fixed key, restored on
// process start.
type KV struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (or creates) the SQLite database at path and runs migrations.
func Open(path string, logger *zap.Logger) (*KV, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage at %s: %w", path, err)
	}

	// A single writer keeps partition flushes serialized at the driver level
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to verify storage at %s: %w", path, err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &KV{db: db, logger: logger}, nil
}

// migrate creates the partitions table. It is idempotent and can be run
// multiple times safely.
func migrate(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS partitions (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to migrate storage schema: %w", err)
	}
	return nil
}

// Save writes a partition blob, replacing any previous value under key.
func (k *KV) Save(key string, value []byte) error {
	_, err := k.db.Exec(
		`INSERT INTO partitions (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to save partition %s: %w", key, err)
	}
	return nil
}

// Load reads a partition blob. A missing key returns (nil, nil): a fresh
// install has nothing to restore and that is not an error.
func (k *KV) Load(key string) ([]byte, error) {
	var value []byte
	err := k.db.QueryRow(`SELECT value FROM partitions WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load partition %s: %w", key, err)
	}
	return value, nil
}

// Close closes the underlying database.
func (k *KV) Close() error {
	return k.db.Close()
}
