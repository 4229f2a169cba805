// backend/database/item_store_test.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hwtracker/backend/config"
	"github.com/hwtracker/backend/models"
)

func newTestStore(t *testing.T) (*sql.DB, *ItemStore) {
	t.Helper()
	db, err := Open(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := CreateTables(db); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return db, NewItemStore(db, 3, 30*time.Second)
}

func floatPtr(f float64) *float64 { return &f }

func testItem(price *float64) models.HardwareItem {
	return models.HardwareItem{
		SourceURL:    "https://newegg.com/p/rtx-4070",
		SourceDomain: "newegg.com",
		SpiderName:   "newegg",
		CrawlID:      "crawl-1",
		Name:         "NVIDIA GeForce RTX 4070",
		Brand:        "NVIDIA",
		Category:     models.CategoryGPU,
		Price:        price,
		Currency:     "USD",
		Availability: models.AvailabilityInStock,
		Specifications: map[string]string{
			"Memory": "12GB GDDR6X",
		},
		ImageURLs:    []string{"https://img.newegg.com/1.jpg"},
		QualityScore: 1.0,
		IsComplete:   true,
		ScrapedAt:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("failed to count rows in %s: %v", table, err)
	}
	return n
}

func TestSaveItemInsertsWithHistory(t *testing.T) {
	db, store := newTestStore(t)
	item := testItem(floatPtr(599.99))

	added, err := store.SaveItem(context.Background(), &item)
	if err != nil {
		t.Fatalf("SaveItem failed: %v", err)
	}
	if !added {
		t.Error("first observation must create a history entry")
	}
	if item.ID == 0 {
		t.Error("item ID was not set on insert")
	}
	if countRows(t, db, "hardware_items") != 1 {
		t.Error("expected exactly one item row")
	}

	stored, err := store.GetItemBySourceURL(context.Background(), item.SourceURL)
	if err != nil {
		t.Fatalf("GetItemBySourceURL failed: %v", err)
	}
	if stored == nil {
		t.Fatal("stored item not found")
	}
	if stored.Name != item.Name || stored.Price == nil || *stored.Price != 599.99 {
		t.Errorf("stored item mismatch: %+v", stored)
	}
	if stored.Specifications["Memory"] != "12GB GDDR6X" {
		t.Errorf("specifications not round-tripped: %v", stored.Specifications)
	}
}

func TestSaveItemUpsertIdempotent(t *testing.T) {
	db, store := newTestStore(t)

	first := testItem(floatPtr(599.99))
	if _, err := store.SaveItem(context.Background(), &first); err != nil {
		t.Fatalf("first SaveItem failed: %v", err)
	}

	// Identical re-observation: one item row, no extra history.
	second := testItem(floatPtr(599.99))
	second.ScrapedAt = first.ScrapedAt.Add(time.Hour)
	added, err := store.SaveItem(context.Background(), &second)
	if err != nil {
		t.Fatalf("second SaveItem failed: %v", err)
	}
	if added {
		t.Error("unchanged observation must not append history")
	}
	if second.ID != first.ID {
		t.Errorf("upsert created a new identity: first %d, second %d", first.ID, second.ID)
	}
	if countRows(t, db, "hardware_items") != 1 {
		t.Error("expected exactly one item row after re-observation")
	}
	if countRows(t, db, "price_history") != 1 {
		t.Error("expected exactly one history row after unchanged re-observation")
	}
}

func TestSaveItemPriceChangeAppendsHistory(t *testing.T) {
	db, store := newTestStore(t)

	first := testItem(floatPtr(599.99))
	if _, err := store.SaveItem(context.Background(), &first); err != nil {
		t.Fatalf("first SaveItem failed: %v", err)
	}

	dropped := testItem(floatPtr(549.99))
	dropped.ScrapedAt = first.ScrapedAt.Add(time.Hour)
	added, err := store.SaveItem(context.Background(), &dropped)
	if err != nil {
		t.Fatalf("second SaveItem failed: %v", err)
	}
	if !added {
		t.Error("price drop must append a history entry")
	}
	if countRows(t, db, "hardware_items") != 1 {
		t.Error("price change must not create a second item row")
	}

	history, err := store.GetPriceHistory(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("GetPriceHistory failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[1].Price == nil || *history[1].Price != 549.99 {
		t.Errorf("latest history price = %v, want 549.99", history[1].Price)
	}

	stored, err := store.GetItemBySourceURL(context.Background(), first.SourceURL)
	if err != nil {
		t.Fatalf("GetItemBySourceURL failed: %v", err)
	}
	if stored.Price == nil || *stored.Price != 549.99 {
		t.Errorf("canonical price = %v, want 549.99", stored.Price)
	}
}

func TestSaveItemAvailabilityChangeAppendsHistory(t *testing.T) {
	db, store := newTestStore(t)

	first := testItem(floatPtr(599.99))
	if _, err := store.SaveItem(context.Background(), &first); err != nil {
		t.Fatalf("first SaveItem failed: %v", err)
	}

	soldOut := testItem(floatPtr(599.99))
	soldOut.Availability = models.AvailabilityOutOfStock
	soldOut.ScrapedAt = first.ScrapedAt.Add(time.Hour)
	added, err := store.SaveItem(context.Background(), &soldOut)
	if err != nil {
		t.Fatalf("second SaveItem failed: %v", err)
	}
	if !added {
		t.Error("availability change at the same price must append history")
	}
	if countRows(t, db, "price_history") != 2 {
		t.Errorf("history rows = %d, want 2", countRows(t, db, "price_history"))
	}
}

func TestSaveItemPriceDisappearing(t *testing.T) {
	_, store := newTestStore(t)

	first := testItem(floatPtr(599.99))
	if _, err := store.SaveItem(context.Background(), &first); err != nil {
		t.Fatalf("first SaveItem failed: %v", err)
	}

	// Price no longer parseable: presence flipping counts as a change.
	noPrice := testItem(nil)
	noPrice.ScrapedAt = first.ScrapedAt.Add(time.Hour)
	added, err := store.SaveItem(context.Background(), &noPrice)
	if err != nil {
		t.Fatalf("second SaveItem failed: %v", err)
	}
	if !added {
		t.Error("price disappearing must append a history entry")
	}

	history, err := store.GetPriceHistory(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("GetPriceHistory failed: %v", err)
	}
	if len(history) != 2 || history[1].Price != nil {
		t.Errorf("latest entry = %+v, want nil price", history[len(history)-1])
	}
}

func TestDeleteCascadesToHistory(t *testing.T) {
	db, store := newTestStore(t)

	item := testItem(floatPtr(599.99))
	if _, err := store.SaveItem(context.Background(), &item); err != nil {
		t.Fatalf("SaveItem failed: %v", err)
	}
	if countRows(t, db, "price_history") != 1 {
		t.Fatal("expected one history row before delete")
	}

	if _, err := db.Exec("DELETE FROM hardware_items WHERE id = ?", item.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if countRows(t, db, "price_history") != 0 {
		t.Error("history rows survived product delete; cascade not applied")
	}
}

func TestSaveItemFatalErrorIsTyped(t *testing.T) {
	db, store := newTestStore(t)
	db.Close()

	item := testItem(floatPtr(599.99))
	_, err := store.SaveItem(context.Background(), &item)
	if err == nil {
		t.Fatal("SaveItem on closed pool succeeded")
	}
	var pErr *PersistenceError
	if !errors.As(err, &pErr) {
		t.Errorf("error type = %T, want *PersistenceError", err)
	}
	if pErr != nil && pErr.SourceURL != item.SourceURL {
		t.Errorf("PersistenceError.SourceURL = %q, want %q", pErr.SourceURL, item.SourceURL)
	}
}

func TestSaveItemSameURLConcurrentWritesSerialize(t *testing.T) {
	db, store := newTestStore(t)
	prices := []float64{599.99, 549.99}

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			item := testItem(floatPtr(prices[i%2]))
			if _, err := store.SaveItem(context.Background(), &item); err != nil {
				t.Errorf("concurrent SaveItem failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if got := countRows(t, db, "hardware_items"); got != 1 {
		t.Errorf("item rows = %d, want 1 after concurrent writes to one URL", got)
	}

	stored, err := store.GetItemBySourceURL(context.Background(), testItem(nil).SourceURL)
	if err != nil || stored == nil {
		t.Fatalf("stored item lookup failed: %v", err)
	}
	history, err := store.GetPriceHistory(context.Background(), stored.ID)
	if err != nil {
		t.Fatalf("GetPriceHistory failed: %v", err)
	}
	if len(history) == 0 {
		t.Fatal("expected at least one history entry")
	}
	// Serialized writes never produce two consecutive identical entries.
	for i := 1; i < len(history); i++ {
		prev, curr := history[i-1], history[i]
		samePrice := (prev.Price == nil && curr.Price == nil) ||
			(prev.Price != nil && curr.Price != nil && *prev.Price == *curr.Price)
		if samePrice && prev.Availability == curr.Availability {
			t.Errorf("consecutive identical history entries at %d: %+v", i, curr)
		}
	}
}

func TestListItemsUnboundedForSnapshots(t *testing.T) {
	_, store := newTestStore(t)

	const stored = 120
	for i := 0; i < stored; i++ {
		item := testItem(floatPtr(float64(100 + i)))
		item.SourceURL = fmt.Sprintf("https://newegg.com/p/item-%d", i)
		if _, err := store.SaveItem(context.Background(), &item); err != nil {
			t.Fatalf("SaveItem %d failed: %v", i, err)
		}
	}

	all, err := store.ListItems(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	if len(all) != stored {
		t.Errorf("ListItems(all, limit=0) = %d items, want %d", len(all), stored)
	}

	page, err := store.ListItems(context.Background(), "", 50)
	if err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	if len(page) != 50 {
		t.Errorf("ListItems(all, limit=50) = %d items, want 50", len(page))
	}
}

func TestListItemsFiltersByCategory(t *testing.T) {
	_, store := newTestStore(t)

	gpu := testItem(floatPtr(599.99))
	if _, err := store.SaveItem(context.Background(), &gpu); err != nil {
		t.Fatalf("SaveItem failed: %v", err)
	}
	cpu := testItem(floatPtr(329.99))
	cpu.SourceURL = "https://newegg.com/p/ryzen-7800x3d"
	cpu.Name = "AMD Ryzen 7 7800X3D"
	cpu.Category = models.CategoryCPU
	if _, err := store.SaveItem(context.Background(), &cpu); err != nil {
		t.Fatalf("SaveItem failed: %v", err)
	}

	gpus, err := store.ListItems(context.Background(), "GPU", 10)
	if err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	if len(gpus) != 1 || gpus[0].Category != models.CategoryGPU {
		t.Errorf("ListItems(GPU) = %+v, want one GPU", gpus)
	}

	all, err := store.ListItems(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("ListItems(all) length = %d, want 2", len(all))
	}
}
