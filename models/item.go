// backend/models/item.go
package models

import "time"

// Category is the hardware category of a tracked product.
type Category string

const (
	CategoryGPU         Category = "GPU"
	CategoryCPU         Category = "CPU"
	CategoryRAM         Category = "RAM"
	CategoryStorage     Category = "STORAGE"
	CategoryMotherboard Category = "MOTHERBOARD"
	CategoryPSU         Category = "PSU"
	CategoryOther       Category = "OTHER"
)

// Availability is a tri-state stock status. Absent or unrecognized
// availability text maps to AvailabilityUnknown, never to out-of-stock.
type Availability string

const (
	AvailabilityInStock    Availability = "IN_STOCK"
	AvailabilityOutOfStock Availability = "OUT_OF_STOCK"
	AvailabilityUnknown    Availability = "UNKNOWN"
)

// Validation error codes recorded on an item.
const (
	ErrCodeNameInvalid  = "NAME_INVALID"
	ErrCodePriceInvalid = "PRICE_INVALID"
)

// HardwareItem is the canonical, deduplicated representation of one product
// observed from one source URL. source_url is the unique key: re-observing
// the same URL updates the existing row instead of creating a new one.
type HardwareItem struct {
	ID           int64  `db:"id" json:"id"`
	SourceURL    string `db:"source_url" json:"source_url"`
	SourceDomain string `db:"source_domain" json:"source_domain"`
	SpiderName   string `db:"spider_name" json:"spider_name"`
	CrawlID      string `db:"crawl_id" json:"crawl_id"`

	Name         string       `db:"name" json:"name"`
	Brand        string       `db:"brand" json:"brand,omitempty"`
	Category     Category     `db:"category" json:"category"`
	Price        *float64     `db:"price" json:"price,omitempty"`
	Currency     string       `db:"currency" json:"currency"`
	Availability Availability `db:"availability" json:"availability"`

	Description    string            `db:"description" json:"description,omitempty"`
	Specifications map[string]string `db:"-" json:"specifications,omitempty"`
	ImageURLs      []string          `db:"-" json:"image_urls,omitempty"`
	Rating         *float64          `db:"rating" json:"rating,omitempty"`

	ValidationErrors []string `db:"-" json:"validation_errors"`
	QualityScore     float64  `db:"quality_score" json:"quality_score"`
	IsComplete       bool     `db:"is_complete" json:"is_complete"`

	ScrapedAt time.Time `db:"scraped_at" json:"scraped_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// PriceHistoryEntry is an immutable record of one observed price or
// availability change for a product. Entries are append-only: two consecutive
// entries for the same product never carry the same (price, availability).
type PriceHistoryEntry struct {
	ID           int64        `db:"id" json:"id"`
	ProductID    int64        `db:"product_id" json:"product_id"`
	Price        *float64     `db:"price" json:"price,omitempty"`
	Currency     string       `db:"currency" json:"currency"`
	Availability Availability `db:"availability" json:"availability"`
	ObservedAt   time.Time    `db:"observed_at" json:"observed_at"`
	SourceURL    string       `db:"source_url" json:"source_url"`
}

// RawItem is the untyped field record handed over by the extraction layer,
// one per fetched product page. Everything in it is as-scraped text; the
// normalizer turns it into a HardwareItem.
type RawItem struct {
	SourceURL           string
	SourceDomain        string
	RawName             string
	RawBrand            string
	RawPriceText        string
	RawAvailabilityText string
	RawRatingText       string
	RawSpecifications   map[string]string
	RawImageURLs        []string
	RawDescription      string
	SpiderName          string
	CrawlID             string
	ScrapedAt           time.Time
}
