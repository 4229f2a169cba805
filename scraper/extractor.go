// backend/scraper/extractor.go
package scraper

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/hwtracker/backend/config"
	"github.com/hwtracker/backend/models"
)

// ExtractRawItem pulls the raw field values from a product page using the
// site's configured selector profile. It does no normalization: everything
// comes out as-scraped text, for the normalizer to type. A missing element
// just leaves its field empty; only an unparseable document is an error.
func ExtractRawItem(html, pageURL string, site config.SiteConfig, crawlID string, scrapedAt time.Time) (models.RawItem, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return models.RawItem{}, fmt.Errorf("failed to parse HTML from %s: %w", pageURL, err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return models.RawItem{}, fmt.Errorf("failed to parse page URL %s: %w", pageURL, err)
	}

	sel := site.Selectors
	raw := models.RawItem{
		SourceURL:           pageURL,
		SourceDomain:        base.Hostname(),
		SpiderName:          site.Name,
		CrawlID:             crawlID,
		ScrapedAt:           scrapedAt,
		RawName:             firstText(doc, sel.Title),
		RawBrand:            firstText(doc, sel.Brand),
		RawPriceText:        firstText(doc, sel.Price),
		RawAvailabilityText: firstText(doc, sel.Availability),
		RawRatingText:       firstText(doc, sel.Rating),
		RawDescription:      firstText(doc, sel.Description),
		RawSpecifications:   extractSpecs(doc, sel.SpecRows),
		RawImageURLs:        extractImageURLs(doc, sel.Image, base),
	}
	return raw, nil
}

func firstText(doc *goquery.Document, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(doc.Find(selector).First().Text())
}

// extractSpecs reads a key/value specification table: each matched row is
// expected to hold at least two cells.
func extractSpecs(doc *goquery.Document, rowSelector string) map[string]string {
	if rowSelector == "" {
		return nil
	}
	specs := make(map[string]string)
	doc.Find(rowSelector).Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td, th")
		if cells.Length() < 2 {
			return
		}
		key := strings.TrimSpace(cells.Eq(0).Text())
		value := strings.TrimSpace(cells.Eq(1).Text())
		if key != "" && value != "" {
			specs[key] = value
		}
	})
	if len(specs) == 0 {
		return nil
	}
	return specs
}

// extractImageURLs collects image sources and resolves them against the page
// URL, so relative srcs come out absolute.
func extractImageURLs(doc *goquery.Document, selector string, base *url.URL) []string {
	if selector == "" {
		return nil
	}
	var urls []string
	doc.Find(selector).Each(func(i int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok || strings.TrimSpace(src) == "" {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(src))
		if err != nil {
			return
		}
		urls = append(urls, base.ResolveReference(ref).String())
	})
	return urls
}
