// backend/database/schema.go
package database

import (
	"database/sql"
	"fmt"
)

// CreateTables creates the hardware_items and price_history tables if they
// do not exist. price_history rows belong exclusively to their product, so
// deleting a product cascades to its history.
func CreateTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS hardware_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source_url TEXT NOT NULL UNIQUE,
			source_domain TEXT,
			spider_name TEXT,
			crawl_id TEXT,
			name TEXT NOT NULL,
			brand TEXT,
			category TEXT,
			price REAL,
			currency TEXT DEFAULT 'USD',
			availability TEXT,
			description TEXT,
			specifications TEXT,
			image_urls TEXT,
			rating REAL,
			validation_errors TEXT,
			quality_score REAL,
			is_complete INTEGER,
			scraped_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS price_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			product_id INTEGER NOT NULL,
			price REAL,
			currency TEXT,
			availability TEXT,
			observed_at TIMESTAMP,
			source_url TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (product_id) REFERENCES hardware_items (id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_items_category ON hardware_items(category)`,
		`CREATE INDEX IF NOT EXISTS idx_items_brand ON hardware_items(brand)`,
		`CREATE INDEX IF NOT EXISTS idx_items_source ON hardware_items(source_domain)`,
		`CREATE INDEX IF NOT EXISTS idx_history_product ON price_history(product_id, observed_at)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}
