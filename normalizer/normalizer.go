// backend/normalizer/normalizer.go
package normalizer

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/hwtracker/backend/models"
)

// All functions in this package are pure: same input, same output, no side
// effects. They are site-agnostic so every site profile shares them.

var (
	priceRegex  = regexp.MustCompile(`\d+\.?\d*`)
	ratingRegex = regexp.MustCompile(`(?i)(\d+\.?\d*)\s*out of\s*(\d+\.?\d*)`)
)

var inStockKeywords = []string{"in stock", "available", "buy"}
var outOfStockKeywords = []string{"out of stock", "sold out", "unavailable"}

// categoryKeywords is checked in order so classification is deterministic.
var categoryKeywords = []struct {
	category models.Category
	keywords []string
}{
	{models.CategoryGPU, []string{"gpu", "graphics card", "video card", "geforce", "radeon", "rtx", "gtx"}},
	{models.CategoryCPU, []string{"cpu", "processor", "ryzen", "core i"}},
	{models.CategoryRAM, []string{"ram", "memory", "ddr"}},
	{models.CategoryStorage, []string{"ssd", "hdd", "storage"}},
	{models.CategoryMotherboard, []string{"motherboard", "mainboard"}},
	{models.CategoryPSU, []string{"psu", "power supply"}},
}

// ParsePrice extracts the first decimal token from raw price text, after
// stripping thousands separators. Returns nil when nothing parses or when the
// result is not positive: a zero or negative price is a parse failure, not a
// valid free item.
func ParsePrice(text string) *float64 {
	if text == "" {
		return nil
	}
	match := priceRegex.FindString(strings.ReplaceAll(text, ",", ""))
	if match == "" {
		return nil
	}
	value, err := strconv.ParseFloat(match, 64)
	if err != nil || value <= 0 {
		return nil
	}
	return &value
}

// DetectCurrency maps a currency symbol in the price text to an ISO code.
// USD is the fallback when no symbol is present.
func DetectCurrency(text string) string {
	switch {
	case strings.Contains(text, "$"):
		return "USD"
	case strings.Contains(text, "€"):
		return "EUR"
	case strings.Contains(text, "£"):
		return "GBP"
	default:
		return "USD"
	}
}

// ClassifyAvailability matches availability text against known in-stock and
// out-of-stock phrases. Text matching neither set, or absent text, yields
// UNKNOWN rather than being inferred as out of stock.
func ClassifyAvailability(text string) models.Availability {
	if text == "" {
		return models.AvailabilityUnknown
	}
	lower := strings.ToLower(text)
	for _, kw := range inStockKeywords {
		if strings.Contains(lower, kw) {
			return models.AvailabilityInStock
		}
	}
	for _, kw := range outOfStockKeywords {
		if strings.Contains(lower, kw) {
			return models.AvailabilityOutOfStock
		}
	}
	return models.AvailabilityUnknown
}

// ParseRating parses "<number> out of <max>" rating text. The value is kept
// only when 0 <= number <= max; anything out of range is discarded, not
// clamped.
func ParseRating(text string) *float64 {
	if text == "" {
		return nil
	}
	matches := ratingRegex.FindStringSubmatch(text)
	if len(matches) < 3 {
		return nil
	}
	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return nil
	}
	max, err := strconv.ParseFloat(matches[2], 64)
	if err != nil {
		return nil
	}
	if value < 0 || value > max {
		return nil
	}
	return &value
}

// NormalizeText collapses runs of whitespace to single spaces and trims.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// DetermineCategory classifies a product from its name and description.
// Unmatched products fall into OTHER.
func DetermineCategory(name, description string) models.Category {
	text := strings.ToLower(name + " " + description)
	if strings.TrimSpace(text) == "" {
		return models.CategoryOther
	}
	for _, entry := range categoryKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(text, kw) {
				return entry.category
			}
		}
	}
	return models.CategoryOther
}

// NormalizeSpecs cleans a raw specifications table, dropping rows with an
// empty key or value after trimming.
func NormalizeSpecs(raw map[string]string) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	specs := make(map[string]string, len(raw))
	for k, v := range raw {
		key := NormalizeText(k)
		value := NormalizeText(v)
		if key == "" || value == "" {
			continue
		}
		specs[key] = value
	}
	if len(specs) == 0 {
		return nil
	}
	return specs
}

// NormalizeItem converts a raw extracted field record into a typed
// HardwareItem. Fields that fail to parse are left absent; the validator
// decides what that means for quality.
func NormalizeItem(raw models.RawItem) models.HardwareItem {
	item := models.HardwareItem{
		SourceURL:    raw.SourceURL,
		SourceDomain: raw.SourceDomain,
		SpiderName:   raw.SpiderName,
		CrawlID:      raw.CrawlID,
		ScrapedAt:    raw.ScrapedAt,
	}

	item.Name = NormalizeText(raw.RawName)
	item.Brand = NormalizeText(raw.RawBrand)
	item.Description = NormalizeText(raw.RawDescription)
	item.Price = ParsePrice(raw.RawPriceText)
	item.Currency = DetectCurrency(raw.RawPriceText)
	item.Availability = ClassifyAvailability(NormalizeText(raw.RawAvailabilityText))
	item.Rating = ParseRating(raw.RawRatingText)
	item.Category = DetermineCategory(item.Name, item.Description)
	item.Specifications = NormalizeSpecs(raw.RawSpecifications)

	for _, u := range raw.RawImageURLs {
		if trimmed := strings.TrimSpace(u); trimmed != "" {
			item.ImageURLs = append(item.ImageURLs, trimmed)
		}
	}

	// Brand often lives in the spec table rather than a dedicated element.
	if item.Brand == "" {
		if brand, ok := item.Specifications["Brand"]; ok {
			item.Brand = brand
		}
	}

	return item
}
