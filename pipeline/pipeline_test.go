// backend/pipeline/pipeline_test.go
package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hwtracker/backend/config"
	"github.com/hwtracker/backend/database"
	"github.com/hwtracker/backend/models"
	"github.com/hwtracker/backend/validator"
)

func newTestPipeline(t *testing.T) (*database.ItemStore, *Pipeline) {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.CreateTables(db); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	store := database.NewItemStore(db, 3, 30*time.Second)
	return store, New(store, validator.DefaultWeights())
}

func rawItem(url, name, price, availability string) models.RawItem {
	return models.RawItem{
		SourceURL:           url,
		SourceDomain:        "newegg.com",
		RawName:             name,
		RawPriceText:        price,
		RawAvailabilityText: availability,
		SpiderName:          "newegg",
		CrawlID:             "crawl-1",
		ScrapedAt:           time.Now().UTC(),
	}
}

func TestProcessCleanItem(t *testing.T) {
	_, pipe := newTestPipeline(t)

	res := pipe.Process(context.Background(),
		rawItem("https://newegg.com/p/rtx-4070", "RTX 4070", "$599.99", "In Stock"))
	if res.Err != nil {
		t.Fatalf("Process failed: %v", res.Err)
	}

	item := res.Item
	if item.Price == nil || *item.Price != 599.99 {
		t.Errorf("Price = %v, want 599.99", item.Price)
	}
	if item.Currency != "USD" {
		t.Errorf("Currency = %q, want USD", item.Currency)
	}
	if item.Availability != models.AvailabilityInStock {
		t.Errorf("Availability = %q, want IN_STOCK", item.Availability)
	}
	if len(item.ValidationErrors) != 0 {
		t.Errorf("ValidationErrors = %v, want none", item.ValidationErrors)
	}
	if item.QualityScore < 0.9 {
		t.Errorf("QualityScore = %v, want >= 0.9", item.QualityScore)
	}
	if !res.HistoryAdded {
		t.Error("first observation must record history")
	}
}

func TestProcessInvalidNameStillPersisted(t *testing.T) {
	store, pipe := newTestPipeline(t)

	res := pipe.Process(context.Background(),
		rawItem("https://newegg.com/p/mystery", "X", "$10", ""))
	if res.Err != nil {
		t.Fatalf("Process failed: %v", res.Err)
	}
	if len(res.Item.ValidationErrors) != 1 || res.Item.ValidationErrors[0] != models.ErrCodeNameInvalid {
		t.Errorf("ValidationErrors = %v, want [NAME_INVALID]", res.Item.ValidationErrors)
	}
	if res.Item.IsComplete {
		t.Error("item with errors must be incomplete")
	}

	// Validation failures degrade the item; they never drop it.
	stored, err := store.GetItemBySourceURL(context.Background(), "https://newegg.com/p/mystery")
	if err != nil {
		t.Fatalf("GetItemBySourceURL failed: %v", err)
	}
	if stored == nil {
		t.Fatal("invalid-name item was not persisted")
	}
	if stored.IsComplete {
		t.Error("persisted item must carry is_complete=false")
	}
}

func TestProcessPriceDropScenario(t *testing.T) {
	store, pipe := newTestPipeline(t)
	url := "https://newegg.com/p/rtx-4070"

	if res := pipe.Process(context.Background(), rawItem(url, "RTX 4070", "$599.99", "In Stock")); res.Err != nil {
		t.Fatalf("first Process failed: %v", res.Err)
	}
	res := pipe.Process(context.Background(), rawItem(url, "RTX 4070", "$549.99", "In Stock"))
	if res.Err != nil {
		t.Fatalf("second Process failed: %v", res.Err)
	}
	if !res.HistoryAdded {
		t.Error("price drop must add a history entry")
	}

	stored, err := store.GetItemBySourceURL(context.Background(), url)
	if err != nil || stored == nil {
		t.Fatalf("stored item lookup failed: %v", err)
	}
	if stored.Price == nil || *stored.Price != 549.99 {
		t.Errorf("canonical price = %v, want 549.99", stored.Price)
	}

	history, err := store.GetPriceHistory(context.Background(), stored.ID)
	if err != nil {
		t.Fatalf("GetPriceHistory failed: %v", err)
	}
	if len(history) != 2 {
		t.Errorf("history length = %d, want 2", len(history))
	}
}

func TestFailureTrackerStopsAfterLimit(t *testing.T) {
	tracker := NewFailureTracker(3)
	failed := Result{Err: errors.New("storage down")}

	if tracker.Observe(failed) || tracker.Observe(failed) {
		t.Fatal("tracker tripped before the limit")
	}
	if !tracker.Observe(failed) {
		t.Error("tracker did not trip at the limit")
	}
	if tracker.Total() != 3 {
		t.Errorf("Total = %d, want 3", tracker.Total())
	}
}

func TestFailureTrackerResetsOnSuccess(t *testing.T) {
	tracker := NewFailureTracker(2)
	failed := Result{Err: errors.New("storage down")}

	tracker.Observe(failed)
	tracker.Observe(Result{})
	if tracker.Observe(failed) {
		t.Error("a success in between must reset the consecutive count")
	}
}
