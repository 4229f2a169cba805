// backend/database/item_store.go
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/hwtracker/backend/models"
	"github.com/mattn/go-sqlite3"
)

// PersistenceError is the fatal failure surfaced when an item write cannot
// complete: the item must be reported as failed, never silently dropped.
type PersistenceError struct {
	SourceURL string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed for %s: %v", e.SourceURL, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ItemStore performs the transactional upsert of canonical items plus the
// conditional price-history append. The pool is injected, not package state,
// so the store stays independently testable.
type ItemStore struct {
	db           *sql.DB
	maxRetries   int
	writeTimeout time.Duration

	mu       sync.Mutex
	urlLocks map[string]*sync.Mutex
}

func NewItemStore(db *sql.DB, maxRetries int, writeTimeout time.Duration) *ItemStore {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	return &ItemStore{
		db:           db,
		maxRetries:   maxRetries,
		writeTimeout: writeTimeout,
		urlLocks:     make(map[string]*sync.Mutex),
	}
}

// urlLock returns the mutex serializing writes for one source URL. Writes for
// different URLs proceed independently; a retry racing a fresh fetch of the
// same URL runs lookup→upsert→history strictly one after the other.
func (s *ItemStore) urlLock(sourceURL string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.urlLocks[sourceURL]
	if !ok {
		lock = &sync.Mutex{}
		s.urlLocks[sourceURL] = lock
	}
	return lock
}

// SaveItem upserts the canonical item keyed by source_url and appends a
// price-history entry when (price, availability) changed versus the most
// recent entry. The whole sequence runs in one transaction; transient
// busy/locked failures are retried with backoff up to the configured bound,
// anything else comes back as a *PersistenceError. The item's ID is set on
// success. historyAdded reports whether a new history row was written.
func (s *ItemStore) SaveItem(ctx context.Context, item *models.HardwareItem) (historyAdded bool, err error) {
	lock := s.urlLock(item.SourceURL)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	for attempt := 0; ; attempt++ {
		historyAdded, err = s.saveItemTx(ctx, item)
		if err == nil {
			return historyAdded, nil
		}
		if !isTransient(err) || attempt >= s.maxRetries {
			return false, &PersistenceError{SourceURL: item.SourceURL, Err: err}
		}
		backoff := time.Duration(attempt+1) * 50 * time.Millisecond
		log.Printf("Store: WARN transient failure saving %s (attempt %d/%d), retrying in %s: %v",
			item.SourceURL, attempt+1, s.maxRetries, backoff, err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return false, &PersistenceError{SourceURL: item.SourceURL, Err: ctx.Err()}
		}
	}
}

func (s *ItemStore) saveItemTx(ctx context.Context, item *models.HardwareItem) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	specsJSON, err := marshalJSONField(item.Specifications)
	if err != nil {
		return false, err
	}
	imagesJSON, err := marshalJSONField(item.ImageURLs)
	if err != nil {
		return false, err
	}
	errorsJSON, err := marshalJSONField(item.ValidationErrors)
	if err != nil {
		return false, err
	}

	// Phase 1: lookup by the unique source_url key.
	var existingID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM hardware_items WHERE source_url = ?`, item.SourceURL,
	).Scan(&existingID)

	now := time.Now().UTC()

	// Phase 2: upsert. A re-observed URL overwrites all mutable fields.
	switch {
	case err == nil:
		_, err = tx.ExecContext(ctx, `
			UPDATE hardware_items SET
				source_domain = ?, spider_name = ?, crawl_id = ?,
				name = ?, brand = ?, category = ?, price = ?, currency = ?,
				availability = ?, description = ?, specifications = ?,
				image_urls = ?, rating = ?, validation_errors = ?,
				quality_score = ?, is_complete = ?, scraped_at = ?, updated_at = ?
			WHERE id = ?`,
			item.SourceDomain, item.SpiderName, item.CrawlID,
			item.Name, item.Brand, string(item.Category), nullableFloat(item.Price), item.Currency,
			string(item.Availability), item.Description, specsJSON,
			imagesJSON, nullableFloat(item.Rating), errorsJSON,
			item.QualityScore, item.IsComplete, item.ScrapedAt, now,
			existingID,
		)
		if err != nil {
			return false, fmt.Errorf("failed to update item %s: %w", item.SourceURL, err)
		}
		item.ID = existingID
	case errors.Is(err, sql.ErrNoRows):
		res, insertErr := tx.ExecContext(ctx, `
			INSERT INTO hardware_items (
				source_url, source_domain, spider_name, crawl_id,
				name, brand, category, price, currency, availability,
				description, specifications, image_urls, rating,
				validation_errors, quality_score, is_complete,
				scraped_at, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.SourceURL, item.SourceDomain, item.SpiderName, item.CrawlID,
			item.Name, item.Brand, string(item.Category), nullableFloat(item.Price), item.Currency,
			string(item.Availability), item.Description, specsJSON, imagesJSON,
			nullableFloat(item.Rating), errorsJSON, item.QualityScore, item.IsComplete,
			item.ScrapedAt, now, now,
		)
		if insertErr != nil {
			return false, fmt.Errorf("failed to insert item %s: %w", item.SourceURL, insertErr)
		}
		id, idErr := res.LastInsertId()
		if idErr != nil {
			return false, fmt.Errorf("failed to read inserted id for %s: %w", item.SourceURL, idErr)
		}
		item.ID = id
	default:
		return false, fmt.Errorf("failed to look up item %s: %w", item.SourceURL, err)
	}

	item.UpdatedAt = now

	// Phase 3: most recent history entry for this product, if any.
	var lastPrice sql.NullFloat64
	var lastAvailability sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT price, availability FROM price_history
		WHERE product_id = ?
		ORDER BY observed_at DESC, id DESC
		LIMIT 1`, item.ID,
	).Scan(&lastPrice, &lastAvailability)

	appendEntry := false
	switch {
	case errors.Is(err, sql.ErrNoRows):
		appendEntry = true
	case err != nil:
		return false, fmt.Errorf("failed to query price history for %s: %w", item.SourceURL, err)
	default:
		appendEntry = priceChanged(item.Price, lastPrice) ||
			string(item.Availability) != lastAvailability.String
	}

	// Phase 4: append only on observed change. A repeat observation of an
	// unchanged (price, availability) is not persisted.
	if appendEntry {
		observedAt := item.ScrapedAt
		if observedAt.IsZero() {
			observedAt = now
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO price_history (product_id, price, currency, availability, observed_at, source_url)
			VALUES (?, ?, ?, ?, ?, ?)`,
			item.ID, nullableFloat(item.Price), item.Currency, string(item.Availability),
			observedAt, item.SourceURL,
		)
		if err != nil {
			return false, fmt.Errorf("failed to append price history for %s: %w", item.SourceURL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit item %s: %w", item.SourceURL, err)
	}
	return appendEntry, nil
}

// GetItemBySourceURL fetches one canonical item, or nil if the URL has never
// been observed.
func (s *ItemStore) GetItemBySourceURL(ctx context.Context, sourceURL string) (*models.HardwareItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source_url, source_domain, spider_name, crawl_id,
		       name, brand, category, price, currency, availability,
		       description, specifications, image_urls, rating,
		       validation_errors, quality_score, is_complete,
		       scraped_at, created_at, updated_at
		FROM hardware_items WHERE source_url = ?`, sourceURL)

	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item for %s: %w", sourceURL, err)
	}
	return item, nil
}

// ListItems returns stored items, newest first, optionally filtered by
// category. A limit <= 0 means unbounded: export snapshots must cover the
// whole inventory, not the first page of it.
func (s *ItemStore) ListItems(ctx context.Context, category string, limit int) ([]models.HardwareItem, error) {
	query := `
		SELECT id, source_url, source_domain, spider_name, crawl_id,
		       name, brand, category, price, currency, availability,
		       description, specifications, image_urls, rating,
		       validation_errors, quality_score, is_complete,
		       scraped_at, created_at, updated_at
		FROM hardware_items`
	args := []interface{}{}
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY updated_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []models.HardwareItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			log.Printf("Store: ERROR failed to scan item row: %v", err)
			continue
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item rows: %w", err)
	}
	return items, nil
}

// GetPriceHistory returns the history entries for a product in observation
// order.
func (s *ItemStore) GetPriceHistory(ctx context.Context, productID int64) ([]models.PriceHistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, price, currency, availability, observed_at, source_url
		FROM price_history
		WHERE product_id = ?
		ORDER BY observed_at ASC, id ASC`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history for product %d: %w", productID, err)
	}
	defer rows.Close()

	var entries []models.PriceHistoryEntry
	for rows.Next() {
		var e models.PriceHistoryEntry
		var price sql.NullFloat64
		var availability sql.NullString
		if err := rows.Scan(&e.ID, &e.ProductID, &price, &e.Currency, &availability, &e.ObservedAt, &e.SourceURL); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		if price.Valid {
			e.Price = &price.Float64
		}
		e.Availability = models.Availability(availability.String)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history rows: %w", err)
	}
	return entries, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (*models.HardwareItem, error) {
	var item models.HardwareItem
	var brand, category, currency, availability, description sql.NullString
	var specsJSON, imagesJSON, errorsJSON sql.NullString
	var price, rating sql.NullFloat64

	err := row.Scan(
		&item.ID, &item.SourceURL, &item.SourceDomain, &item.SpiderName, &item.CrawlID,
		&item.Name, &brand, &category, &price, &currency, &availability,
		&description, &specsJSON, &imagesJSON, &rating,
		&errorsJSON, &item.QualityScore, &item.IsComplete,
		&item.ScrapedAt, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.Brand = brand.String
	item.Category = models.Category(category.String)
	item.Currency = currency.String
	item.Availability = models.Availability(availability.String)
	item.Description = description.String
	if price.Valid {
		item.Price = &price.Float64
	}
	if rating.Valid {
		item.Rating = &rating.Float64
	}
	if specsJSON.Valid && specsJSON.String != "" {
		if err := json.Unmarshal([]byte(specsJSON.String), &item.Specifications); err != nil {
			log.Printf("Store: WARN could not unmarshal specifications for %s: %v", item.SourceURL, err)
		}
	}
	if imagesJSON.Valid && imagesJSON.String != "" {
		if err := json.Unmarshal([]byte(imagesJSON.String), &item.ImageURLs); err != nil {
			log.Printf("Store: WARN could not unmarshal image urls for %s: %v", item.SourceURL, err)
		}
	}
	if errorsJSON.Valid && errorsJSON.String != "" {
		if err := json.Unmarshal([]byte(errorsJSON.String), &item.ValidationErrors); err != nil {
			log.Printf("Store: WARN could not unmarshal validation errors for %s: %v", item.SourceURL, err)
		}
	}
	return &item, nil
}

func marshalJSONField(v interface{}) (sql.NullString, error) {
	switch val := v.(type) {
	case map[string]string:
		if len(val) == 0 {
			return sql.NullString{}, nil
		}
	case []string:
		if len(val) == 0 {
			return sql.NullString{}, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal field: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullableFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// priceChanged compares the incoming price against the latest history entry.
// Both absent counts as unchanged; presence flipping counts as a change.
func priceChanged(current *float64, last sql.NullFloat64) bool {
	if current == nil {
		return last.Valid
	}
	if !last.Valid {
		return true
	}
	return *current != last.Float64
}

// isTransient reports whether the error is SQLite lock contention worth a
// local retry, as opposed to a permanent storage failure.
func isTransient(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}
