package api

import (
	"github.com/gorilla/mux"

	"github.com/ASMdeS/smart-impulse-portfolio/internal/metrics"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(metrics.Middleware)

	// Health check and metrics
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	// Portfolio routes
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/portfolio", handler.GetPortfolio).Methods("GET")
	api.HandleFunc("/portfolio/summary", handler.GetSummary).Methods("GET")
	api.HandleFunc("/portfolio/distribution", handler.GetDistribution).Methods("GET")
	api.HandleFunc("/portfolio/growth", handler.GetGrowth).Methods("GET")
	api.HandleFunc("/portfolio/{ticker}", handler.GetPosition).Methods("GET")

	// Snapshot ingestion
	api.HandleFunc("/snapshot", handler.UploadSnapshot).Methods("POST")

	return r
}
