// backend/handlers/admin_handler.go
package handlers

import (
	"fmt"
	"net/http"

	"github.com/hwtracker/backend/config"
	"github.com/hwtracker/backend/database"
	"github.com/hwtracker/backend/export"
	"github.com/hwtracker/backend/pipeline"
	"github.com/hwtracker/backend/ratelimit"
	"github.com/hwtracker/backend/scraper"
)

// AdminHandler triggers crawls and exports on demand.
type AdminHandler struct {
	Cfg        *config.Config
	Store      *database.ItemStore
	Controller *ratelimit.Controller
	Pipe       *pipeline.Pipeline
}

func NewAdminHandler(cfg *config.Config, store *database.ItemStore, controller *ratelimit.Controller, pipe *pipeline.Pipeline) *AdminHandler {
	return &AdminHandler{Cfg: cfg, Store: store, Controller: controller, Pipe: pipe}
}

// CrawlHandler handles POST /api/admin/crawl. It runs a full crawl of the
// configured sites synchronously and returns the session stats. Each request
// gets a fresh crawler so crawl IDs never repeat.
func (a *AdminHandler) CrawlHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondWithError(w, http.StatusMethodNotAllowed, "Only POST method is allowed")
		return
	}

	crawler := scraper.NewCrawler(a.Cfg, a.Controller, a.Pipe)
	stats := crawler.Run(r.Context())
	respondWithJSON(w, http.StatusOK, stats)
}

// ExportHandler handles POST /api/admin/export and writes snapshot files in
// the configured formats.
func (a *AdminHandler) ExportHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondWithError(w, http.StatusMethodNotAllowed, "Only POST method is allowed")
		return
	}

	items, err := a.Store.ListItems(r.Context(), "", 0)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load items for export: %v", err))
		return
	}

	files, err := export.WriteSnapshots(items, a.Cfg.Export.Dir, "hardware", a.Cfg.Export.Formats)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Export failed: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"exported": len(items),
		"files":    files,
	})
}
