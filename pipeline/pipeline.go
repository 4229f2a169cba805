// backend/pipeline/pipeline.go
package pipeline

import (
	"context"
	"log"
	"sync"

	"github.com/hwtracker/backend/database"
	"github.com/hwtracker/backend/models"
	"github.com/hwtracker/backend/normalizer"
	"github.com/hwtracker/backend/validator"
)

// Pipeline runs one raw extracted record through normalize → validate →
// persist. Parse and validation problems never abort an item: fields stay
// absent, error codes land on the record, and it is persisted as incomplete.
// Only persistence failures surface as errors.
type Pipeline struct {
	store   *database.ItemStore
	weights validator.Weights
}

// Result reports the outcome of processing one raw item.
type Result struct {
	Item         *models.HardwareItem
	HistoryAdded bool
	Err          error
}

func New(store *database.ItemStore, weights validator.Weights) *Pipeline {
	return &Pipeline{store: store, weights: weights}
}

// Process normalizes, validates and persists one raw item. The returned
// Result always carries the annotated item; Err is set only when the write
// failed after retries, so callers can count failures without losing sight
// of what was attempted.
func (p *Pipeline) Process(ctx context.Context, raw models.RawItem) Result {
	item := normalizer.NormalizeItem(raw)
	validator.Apply(&item, p.weights)

	if len(item.ValidationErrors) > 0 {
		log.Printf("Pipeline: WARN item %s has validation errors %v (score %.2f), persisting as incomplete",
			item.SourceURL, item.ValidationErrors, item.QualityScore)
	}

	historyAdded, err := p.store.SaveItem(ctx, &item)
	if err != nil {
		log.Printf("Pipeline: ERROR failed to persist item %s: %v", item.SourceURL, err)
		return Result{Item: &item, Err: err}
	}

	if historyAdded {
		log.Printf("Pipeline: recorded price/availability change for %s", item.SourceURL)
	}
	return Result{Item: &item, HistoryAdded: historyAdded}
}

// FailureTracker counts consecutive persistence failures so a crawl can shut
// down instead of grinding against a dead storage backend.
// It is safe for concurrent use by crawl workers.
type FailureTracker struct {
	mu          sync.Mutex
	limit       int
	consecutive int
	total       int
}

func NewFailureTracker(limit int) *FailureTracker {
	if limit <= 0 {
		limit = 5
	}
	return &FailureTracker{limit: limit}
}

// Observe records one result. It returns true when the consecutive-failure
// limit has been reached and the caller should stop.
func (t *FailureTracker) Observe(res Result) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if res.Err != nil {
		t.consecutive++
		t.total++
		return t.consecutive >= t.limit
	}
	t.consecutive = 0
	return false
}

// Total reports how many items failed over the whole run.
func (t *FailureTracker) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}
