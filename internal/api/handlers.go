package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/ASMdeS/smart-impulse-portfolio/internal/models"
	"github.com/ASMdeS/smart-impulse-portfolio/internal/redis"
	"github.com/ASMdeS/smart-impulse-portfolio/internal/screener"
)

// LedgerReader is the slice of the database the dashboard needs.
type LedgerReader interface {
	LoadLedger() (*models.Ledger, error)
	GetPosition(ticker string) (*models.Position, error)
	GetGrowthReport(limit int) (*models.GrowthReport, error)
	Ping() error
}

// CycleRunner drives one reconciliation from an uploaded snapshot.
type CycleRunner interface {
	RunCycle(ctx context.Context, snap *models.Snapshot) (*models.Ledger, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	store  LedgerReader
	runner CycleRunner
	cache  *redis.Client
}

// NewHandler creates a new Handler. cache may be nil.
func NewHandler(store LedgerReader, runner CycleRunner, cache *redis.Client) *Handler {
	return &Handler{
		store:  store,
		runner: runner,
		cache:  cache,
	}
}

// GetPortfolio handles GET /api/v1/portfolio
func (h *Handler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	ledger, err := h.store.LoadLedger()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if ledger == nil {
		http.Error(w, "no portfolio yet: upload the first snapshot", http.StatusNotFound)
		return
	}

	positions := make([]*models.Position, 0, len(ledger.Positions))
	for _, ticker := range ledger.Tickers() {
		positions = append(positions, ledger.Positions[ticker])
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"cycle_date":   ledger.CycleDate,
		"capital_base": ledger.CapitalBase,
		"overdraft":    ledger.Overdraft,
		"positions":    positions,
	})
}

// GetPosition handles GET /api/v1/portfolio/{ticker}
func (h *Handler) GetPosition(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ticker := vars["ticker"]

	position, err := h.store.GetPosition(ticker)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	respondJSON(w, http.StatusOK, position)
}

// GetSummary handles GET /api/v1/portfolio/summary. It prefers the cache
// and falls back to recomputing from the persisted ledger.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	if h.cache != nil {
		if summary, err := h.cache.GetPortfolioSummary(r.Context()); err == nil {
			respondJSON(w, http.StatusOK, summary)
			return
		}
	}

	ledger, err := h.store.LoadLedger()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if ledger == nil {
		http.Error(w, "no portfolio yet", http.StatusNotFound)
		return
	}

	respondJSON(w, http.StatusOK, ledger.Summary())
}

// GetDistribution handles GET /api/v1/portfolio/distribution
func (h *Handler) GetDistribution(w http.ResponseWriter, r *http.Request) {
	ledger, err := h.store.LoadLedger()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if ledger == nil {
		http.Error(w, "no portfolio yet", http.StatusNotFound)
		return
	}

	dist := models.AllocationDistribution{
		BySector: ledger.AllocationBreakdown(func(p *models.Position) string {
			return p.Sector
		}),
		ByMarketCap: ledger.AllocationBreakdown(func(p *models.Position) string {
			return string(p.MarketCapCategory)
		}),
	}
	respondJSON(w, http.StatusOK, dist)
}

// GetGrowth handles GET /api/v1/portfolio/growth
func (h *Handler) GetGrowth(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	report, err := h.store.GetGrowthReport(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// UploadSnapshot handles POST /api/v1/snapshot: the request body is a raw
// screener CSV export; a valid one drives a full reconciliation cycle.
// The snapshot date comes from the X-Snapshot-Date header (YYYY-MM-DD),
// defaulting to today.
func (h *Handler) UploadSnapshot(w http.ResponseWriter, r *http.Request) {
	date := time.Now().UTC().Truncate(24 * time.Hour)
	if raw := r.Header.Get("X-Snapshot-Date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			http.Error(w, "invalid X-Snapshot-Date, want YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		date = parsed
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 10<<20))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	snap, err := screener.ParseCSV(bytes.NewReader(body), date)
	if err != nil {
		status := http.StatusBadRequest
		var malformed *models.MalformedRecordError
		if errors.As(err, &malformed) {
			status = http.StatusUnprocessableEntity
		}
		http.Error(w, err.Error(), status)
		return
	}

	ledger, err := h.runner.RunCycle(r.Context(), snap)
	if err != nil {
		// The prior ledger is untouched; the dashboard keeps serving it.
		var malformed *models.MalformedRecordError
		if errors.As(err, &malformed) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, ledger.Summary())
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"services":  map[string]string{},
	}
	services := health["services"].(map[string]string)
	allHealthy := true

	// Check database
	if h.store != nil {
		if err := h.store.Ping(); err != nil {
			services["postgres"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			services["postgres"] = "healthy"
		}
	} else {
		services["postgres"] = "not configured"
		allHealthy = false
	}

	// Check Redis
	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			services["redis"] = "unhealthy: " + err.Error()
		} else {
			services["redis"] = "healthy"
		}
	} else {
		services["redis"] = "not configured"
	}

	if !allHealthy {
		health["status"] = "degraded"
	}

	respondJSON(w, http.StatusOK, health)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
