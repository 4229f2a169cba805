// backend/main.go
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/hwtracker/backend/config"
	"github.com/hwtracker/backend/database"
	"github.com/hwtracker/backend/export"
	"github.com/hwtracker/backend/handlers"
	"github.com/hwtracker/backend/pipeline"
	"github.com/hwtracker/backend/ratelimit"
	"github.com/hwtracker/backend/scraper"
	"github.com/hwtracker/backend/validator"
)

func main() {
	log.Println("Starting Hardware Tracker backend...")

	// .env is optional; env vars override config values either way.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment overrides from .env")
	}

	configPath := flag.String("config", "", "path to config.yaml")
	crawlOnce := flag.Bool("crawl", false, "run one crawl of the configured sites and exit")
	exportAfter := flag.Bool("export", false, "write export snapshots after a -crawl run")
	flag.Parse()

	path := *configPath
	if path == "" {
		path = "config/config.yaml"
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = "backend/config/config.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}
	log.Printf("Configuration loaded. Server port: %s, DB path: %s, %d site profiles",
		cfg.Server.Port, cfg.Database.Path, len(cfg.Sites))

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Error initializing database: %v", err)
	}
	defer database.Close(db)

	if err := database.CreateTables(db); err != nil {
		log.Fatalf("Error creating database schema: %v", err)
	}

	store := database.NewItemStore(db, cfg.Pipeline.MaxRetries, cfg.Pipeline.WriteTimeout)
	controller := ratelimit.New(cfg.RateLimit.DomainDelays, cfg.RateLimit.DefaultDelay)
	weights := validator.Weights{
		ErrorPenalty:       cfg.Pipeline.ErrorPenalty,
		CompletenessWeight: cfg.Pipeline.CompletenessWeight,
	}
	pipe := pipeline.New(store, weights)

	if *crawlOnce {
		crawler := scraper.NewCrawler(cfg, controller, pipe)
		stats := crawler.Run(context.Background())
		log.Printf("Crawl %s finished: %d items stored, %d price changes, %d failures",
			stats.CrawlID, stats.ItemsStored, stats.PriceChanges, stats.Failures)

		if *exportAfter {
			items, err := store.ListItems(context.Background(), "", 0)
			if err != nil {
				log.Fatalf("Error loading items for export: %v", err)
			}
			if _, err := export.WriteSnapshots(items, cfg.Export.Dir, "hardware", cfg.Export.Formats); err != nil {
				log.Fatalf("Error writing export snapshots: %v", err)
			}
		}
		if stats.Failures > 0 {
			os.Exit(1)
		}
		return
	}

	// --- Setup HTTP routes ---
	h := handlers.NewHandler(db, store)
	admin := handlers.NewAdminHandler(cfg, store, controller, pipe)

	http.HandleFunc("/api/health", h.HealthHandler)
	http.HandleFunc("/api/items", h.ListItemsHandler)
	http.HandleFunc("/api/items/history", h.PriceHistoryHandler)
	http.HandleFunc("/api/admin/crawl", admin.CrawlHandler)
	http.HandleFunc("/api/admin/export", admin.ExportHandler)

	serverAddr := ":" + cfg.Server.Port
	log.Printf("Server starting on http://localhost%s\n", serverAddr)
	if err := http.ListenAndServe(serverAddr, nil); err != nil {
		log.Fatalf("Error starting server: %v", err)
	}
}
