// backend/database/connection.go
package database

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/hwtracker/backend/config"
	_ "github.com/mattn/go-sqlite3"
)

// Open initializes the SQLite connection pool. WAL mode is required for the
// crawler: many item-processing goroutines share this pool and WAL lets
// readers proceed while one writer commits.
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	// DSN parameters apply to every pooled connection; a plain PRAGMA exec
	// would only configure whichever connection happened to run it.
	dsn := cfg.Path + "?_journal_mode=WAL&_busy_timeout=30000&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", cfg.Path, err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection opened: %s", cfg.Path)
	return db, nil
}

// Close closes the connection pool. Typically called on application shutdown.
func Close(db *sql.DB) {
	if db != nil {
		db.Close()
		log.Println("Database connection closed.")
	}
}
