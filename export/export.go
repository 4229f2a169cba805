// backend/export/export.go
package export

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jszwec/csvutil"

	"github.com/hwtracker/backend/models"
)

// csvRow flattens a HardwareItem for CSV output; the map and slice fields
// are embedded as JSON strings in their cells.
type csvRow struct {
	SourceURL        string  `csv:"source_url"`
	SourceDomain     string  `csv:"source_domain"`
	Name             string  `csv:"name"`
	Brand            string  `csv:"brand"`
	Category         string  `csv:"category"`
	Price            string  `csv:"price"`
	Currency         string  `csv:"currency"`
	Availability     string  `csv:"availability"`
	Rating           string  `csv:"rating"`
	QualityScore     float64 `csv:"quality_score"`
	IsComplete       bool    `csv:"is_complete"`
	ValidationErrors string  `csv:"validation_errors"`
	Specifications   string  `csv:"specifications"`
	ImageURLs        string  `csv:"image_urls"`
	ScrapedAt        string  `csv:"scraped_at"`
}

// WriteSnapshots exports the items in each requested format and returns the
// written file paths. Formats the exporter does not know are skipped with a
// warning rather than failing the whole export.
func WriteSnapshots(items []models.HardwareItem, dir, label string, formats []string) ([]string, error) {
	if len(items) == 0 {
		log.Println("Export: no items to export.")
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory %s: %w", dir, err)
	}

	timestamp := time.Now().Format("20060102_150405")
	var written []string
	for _, format := range formats {
		var path string
		var err error
		switch strings.ToLower(format) {
		case "json":
			path, err = writeJSON(items, dir, label, timestamp)
		case "csv":
			path, err = writeCSV(items, dir, label, timestamp)
		default:
			log.Printf("Export: WARN unknown export format %q, skipping", format)
			continue
		}
		if err != nil {
			return written, err
		}
		log.Printf("Export: wrote %d items to %s", len(items), path)
		written = append(written, path)
	}
	return written, nil
}

func writeJSON(items []models.HardwareItem, dir, label, timestamp string) (string, error) {
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.json", label, timestamp))
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal items for JSON export: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write JSON export %s: %w", path, err)
	}
	return path, nil
}

func writeCSV(items []models.HardwareItem, dir, label, timestamp string) (string, error) {
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.csv", label, timestamp))

	rows := make([]csvRow, 0, len(items))
	for _, item := range items {
		rows = append(rows, toCSVRow(item))
	}
	data, err := csvutil.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("failed to marshal items for CSV export: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write CSV export %s: %w", path, err)
	}
	return path, nil
}

func toCSVRow(item models.HardwareItem) csvRow {
	row := csvRow{
		SourceURL:    item.SourceURL,
		SourceDomain: item.SourceDomain,
		Name:         item.Name,
		Brand:        item.Brand,
		Category:     string(item.Category),
		Currency:     item.Currency,
		Availability: string(item.Availability),
		QualityScore: item.QualityScore,
		IsComplete:   item.IsComplete,
		ScrapedAt:    item.ScrapedAt.Format(time.RFC3339),
	}
	if item.Price != nil {
		row.Price = fmt.Sprintf("%.2f", *item.Price)
	}
	if item.Rating != nil {
		row.Rating = fmt.Sprintf("%.1f", *item.Rating)
	}
	row.ValidationErrors = jsonCell(item.ValidationErrors)
	row.Specifications = jsonCell(item.Specifications)
	row.ImageURLs = jsonCell(item.ImageURLs)
	return row
}

func jsonCell(v interface{}) string {
	switch val := v.(type) {
	case []string:
		if len(val) == 0 {
			return ""
		}
	case map[string]string:
		if len(val) == 0 {
			return ""
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
