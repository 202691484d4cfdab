package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/shopspring/decimal"

	"github.com/ASMdeS/smart-impulse-portfolio/internal/api"
	"github.com/ASMdeS/smart-impulse-portfolio/internal/config"
	"github.com/ASMdeS/smart-impulse-portfolio/internal/cycle"
	"github.com/ASMdeS/smart-impulse-portfolio/internal/database"
	"github.com/ASMdeS/smart-impulse-portfolio/internal/kafka"
	"github.com/ASMdeS/smart-impulse-portfolio/internal/portfolio"
	"github.com/ASMdeS/smart-impulse-portfolio/internal/redis"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Connect to database
	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := runMigrations(cfg.Database.ConnectionString()); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	defer db.Close()
	log.Println("Connected to PostgreSQL database")

	// Connect to Redis
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis: %v (continuing without cache)", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
		log.Println("Connected to Redis cache")
	}

	// Create Kafka producer for trade notifications
	producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TradesTopic)
	defer producer.Close()
	log.Printf("Kafka producer initialized (brokers: %v, topic: %s)",
		cfg.Kafka.Brokers, cfg.Kafka.TradesTopic)

	// Build the cycle runner around the engine policy
	policy := policyFromConfig(cfg.Portfolio)
	var cache cycle.Cache
	if redisClient != nil {
		cache = redisClient
	}
	runner := cycle.NewRunner(db, producer, cache, policy)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create and start Kafka consumer for screener snapshots
	consumer := kafka.NewSnapshotConsumer(
		cfg.Kafka.Brokers,
		cfg.Kafka.SnapshotsTopic,
		cfg.Kafka.ConsumerGroup,
		runner,
	)
	go func() {
		log.Printf("Starting Kafka snapshot consumer for topic: %s (group: %s-snapshots)",
			cfg.Kafka.SnapshotsTopic, cfg.Kafka.ConsumerGroup)
		if err := consumer.Start(ctx); err != nil {
			log.Printf("Kafka snapshot consumer error: %v", err)
		}
	}()

	// Set up HTTP handler and routes
	handler := api.NewHandler(db, runner, redisClient)
	router := api.SetupRoutes(handler)

	// Create HTTP server
	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Starting server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Cancel context to stop the Kafka consumer
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	// Close Kafka consumer
	if err := consumer.Close(); err != nil {
		log.Printf("Error closing Kafka snapshot consumer: %v", err)
	}

	log.Println("Server stopped")
}

// policyFromConfig parses the strategy knobs, falling back to the spec'd
// defaults on unparseable values.
func policyFromConfig(cfg config.PortfolioConfig) portfolio.Policy {
	policy := portfolio.DefaultPolicy()
	if v, err := decimal.NewFromString(cfg.CapitalBase); err == nil && v.IsPositive() {
		policy.CapitalBase = v
	}
	if v, err := decimal.NewFromString(cfg.NewTickerAllocation); err == nil && v.IsPositive() {
		policy.NewTickerAllocation = v
	}
	if v, err := decimal.NewFromString(cfg.StageIncrement); err == nil && v.IsPositive() {
		policy.StageIncrement = v
	}
	if v, err := decimal.NewFromString(cfg.StagePriceFactor); err == nil && v.IsPositive() {
		policy.StagePriceFactor = v
	}
	if cfg.StageDays > 0 {
		policy.StageDays = cfg.StageDays
	}
	if cfg.ReentryPolicy == string(portfolio.ReentryOverwrite) {
		policy.Reentry = portfolio.ReentryOverwrite
	}
	return policy
}

func runMigrations(databaseUrl string) error {
	// The "file://" prefix tells the migrate library to use the file driver
	m, err := migrate.New(
		"file://./db/migrations",
		databaseUrl)
	if err != nil {
		return err
	}

	// Apply all available migrations up to the latest version
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}

	return nil
}
