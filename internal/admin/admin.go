package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/HanTheDev/relationship-coach-api/internal/models"
	"github.com/HanTheDev/relationship-coach-api/internal/ratelimit"
)

type UsageInspector interface {
	Peek(key string) ratelimit.Usage
	Sweep(now time.Time) int
	Len() int
}

type HistoryReader interface {
	Recent(key string, n int) []models.HistoryEntry
	Capacity() int
}

type StatsSource interface {
	AccessStats(ctx context.Context, clientKey string) (*models.AccessStats, error)
}

type AdminHandler struct {
	usage   UsageInspector
	history HistoryReader
	// stats is nil when no access log database is configured.
	stats  StatsSource
	logger *zap.Logger
	now    func() time.Time
}

func NewAdminHandler(usage UsageInspector, history HistoryReader, stats StatsSource, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{usage: usage, history: history, stats: stats, logger: logger, now: time.Now}
}

func (h *AdminHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/admin/usage/{key}", h.GetUsage).Methods("GET")
	router.HandleFunc("/admin/history/{key}", h.GetHistory).Methods("GET")
	router.HandleFunc("/admin/sweep", h.Sweep).Methods("POST")
	router.HandleFunc("/admin/stats/{key}", h.GetStats).Methods("GET")
}

func (h *AdminHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	writeJSON(w, http.StatusOK, struct {
		Key string `json:"key"`
		ratelimit.Usage
	}{key, h.usage.Peek(key)})
}

func (h *AdminHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	limit := h.history.Capacity()
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries := h.history.Recent(key, limit)
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"key":     key,
		"entries": entries,
	})
}

func (h *AdminHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	removed := h.usage.Sweep(h.now())
	h.logger.Info("manual usage sweep", zap.Int("removed", removed), zap.Int("remaining_windows", h.usage.Len()))
	writeJSON(w, http.StatusOK, map[string]int{
		"removed":           removed,
		"remaining_windows": h.usage.Len(),
	})
}

func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		http.Error(w, "Access log is not configured", http.StatusNotImplemented)
		return
	}
	key := mux.Vars(r)["key"]

	stats, err := h.stats.AccessStats(r.Context(), key)
	if err != nil {
		h.logger.Error("failed to load access stats", zap.String("key", key), zap.Error(err))
		http.Error(w, "Failed to get stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
