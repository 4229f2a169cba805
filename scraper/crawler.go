// backend/scraper/crawler.go
package scraper

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/hwtracker/backend/config"
	"github.com/hwtracker/backend/pipeline"
	"github.com/hwtracker/backend/ratelimit"
)

// Crawler walks the configured item URLs of every site profile with a worker
// pool. Two throttles apply to each fetch: the per-domain rate controller
// (minimum inter-request spacing) and a global requests-per-second ceiling
// shared by all workers.
type Crawler struct {
	cfg        config.CrawlerConfig
	sites      []config.SiteConfig
	controller *ratelimit.Controller
	pipe       *pipeline.Pipeline
	fetcher    *Fetcher
	global     *rate.Limiter
	penalty    time.Duration
	stopAfter  int
	crawlID    string
}

// CrawlStats summarizes one crawl session.
type CrawlStats struct {
	CrawlID      string `json:"crawl_id"`
	PagesFetched int    `json:"pages_fetched"`
	ItemsStored  int    `json:"items_stored"`
	PriceChanges int    `json:"price_changes"`
	RateLimited  int    `json:"rate_limited"`
	Failures     int    `json:"failures"`
}

func NewCrawler(cfg *config.Config, controller *ratelimit.Controller, pipe *pipeline.Pipeline) *Crawler {
	return &Crawler{
		cfg:        cfg.Crawler,
		sites:      cfg.Sites,
		controller: controller,
		pipe:       pipe,
		fetcher:    NewFetcher(cfg.Crawler.FetchTimeout),
		global:     rate.NewLimiter(rate.Limit(cfg.Crawler.GlobalRatePerSec), cfg.Crawler.GlobalBurst),
		penalty:    cfg.RateLimit.PenaltyDelay,
		stopAfter:  cfg.Pipeline.StopAfterFailures,
		crawlID:    uuid.NewString(),
	}
}

type crawlJob struct {
	site config.SiteConfig
	url  string
}

// Run processes every configured item URL and blocks until done. The crawl
// stops early when the context is cancelled or the consecutive-failure limit
// is hit; in both cases the stats gathered so far are returned.
func (c *Crawler) Run(ctx context.Context) CrawlStats {
	start := time.Now()
	log.Printf("Crawler: starting crawl %s with %d workers", c.crawlID, c.cfg.Workers)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan crawlJob)
	var mu sync.Mutex
	stats := CrawlStats{CrawlID: c.crawlID}
	failures := pipeline.NewFailureTracker(c.stopAfter)

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				c.processURL(ctx, job, &mu, &stats, failures, cancel)
			}
		}()
	}

	for _, site := range c.sites {
		for _, u := range site.ItemURLs {
			select {
			case jobs <- crawlJob{site: site, url: u}:
			case <-ctx.Done():
				close(jobs)
				wg.Wait()
				log.Printf("Crawler: crawl %s aborted after %s", c.crawlID, time.Since(start))
				return stats
			}
		}
	}
	close(jobs)
	wg.Wait()

	log.Printf("Crawler: crawl %s completed in %s: %d pages, %d items, %d price changes, %d failures",
		c.crawlID, time.Since(start), stats.PagesFetched, stats.ItemsStored, stats.PriceChanges, stats.Failures)
	return stats
}

func (c *Crawler) processURL(ctx context.Context, job crawlJob, mu *sync.Mutex, stats *CrawlStats, failures *pipeline.FailureTracker, cancel context.CancelFunc) {
	domain := job.site.Domain

	// Global ceiling first, then the per-domain slot. Before the fetch
	// starts the task can be abandoned freely; nothing has side effects yet.
	if err := c.global.Wait(ctx); err != nil {
		return
	}
	wait := c.controller.Admit(domain)
	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
	}

	c.controller.Record(domain)
	body, status, err := c.fetcher.FetchPage(job.url)
	c.controller.Done(domain)
	if err != nil {
		log.Printf("Crawler: ERROR fetch failed for %s: %v", job.url, err)
		return
	}

	if status == http.StatusTooManyRequests {
		c.controller.Penalize(domain, c.penalty)
		mu.Lock()
		stats.RateLimited++
		mu.Unlock()
		return
	}
	if status != http.StatusOK {
		log.Printf("Crawler: WARN unexpected status %d for %s", status, job.url)
		return
	}

	mu.Lock()
	stats.PagesFetched++
	mu.Unlock()

	raw, err := ExtractRawItem(body, job.url, job.site, c.crawlID, time.Now().UTC())
	if err != nil {
		log.Printf("Crawler: ERROR extraction failed for %s: %v", job.url, err)
		return
	}

	res := c.pipe.Process(ctx, raw)
	mu.Lock()
	if res.Err != nil {
		stats.Failures++
	} else {
		stats.ItemsStored++
		if res.HistoryAdded {
			stats.PriceChanges++
		}
	}
	mu.Unlock()

	if failures.Observe(res) {
		log.Printf("Crawler: ERROR %d consecutive persistence failures, stopping crawl %s", c.stopAfter, c.crawlID)
		cancel()
	}
}
