// backend/handlers/item_handler.go
package handlers

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/hwtracker/backend/database"
)

// Handler serves the read API over the item store. The store and DB handle
// are injected so the handlers stay testable without package globals.
type Handler struct {
	DB    *sql.DB
	Store *database.ItemStore
}

func NewHandler(db *sql.DB, store *database.ItemStore) *Handler {
	return &Handler{DB: db, Store: store}
}

// Helper to respond with JSON
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Error marshalling JSON response: %v", err)
		http.Error(w, `{"error":"Failed to marshal JSON response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// Helper to respond with an error
func respondWithError(w http.ResponseWriter, code int, message string) {
	log.Printf("API Error %d: %s", code, message)
	respondWithJSON(w, code, map[string]string{"error": message})
}

// HealthHandler reports service and database health.
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.DB.Ping(); err != nil {
		log.Printf("Health check failed: DB ping error: %v", err)
		respondWithError(w, http.StatusInternalServerError, "database connection error")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListItemsHandler handles GET /api/items?category=GPU&limit=50
func (h *Handler) ListItemsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondWithError(w, http.StatusMethodNotAllowed, "Only GET method is allowed")
		return
	}

	category := r.URL.Query().Get("category")
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid limit %q", l))
			return
		}
		limit = parsed
	}

	items, err := h.Store.ListItems(r.Context(), category, limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list items: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, items)
}

// PriceHistoryHandler handles GET /api/items/history?url=<source_url>
// and returns the product's history entries in observation order.
func (h *Handler) PriceHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondWithError(w, http.StatusMethodNotAllowed, "Only GET method is allowed")
		return
	}

	sourceURL := r.URL.Query().Get("url")
	if sourceURL == "" {
		respondWithError(w, http.StatusBadRequest, "Missing required query parameter 'url'")
		return
	}

	item, err := h.Store.GetItemBySourceURL(r.Context(), sourceURL)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to look up item: %v", err))
		return
	}
	if item == nil {
		respondWithError(w, http.StatusNotFound, fmt.Sprintf("No item found for source url %s", sourceURL))
		return
	}

	history, err := h.Store.GetPriceHistory(r.Context(), item.ID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to fetch price history: %v", err))
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"item":    item,
		"history": history,
	})
}
