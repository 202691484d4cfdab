// Package cycle orchestrates one daily reconciliation: load the prior
// ledger, run the engine, persist atomically, then fan out notifications
// and cache updates. The engine itself stays pure; all I/O lives here.
package cycle

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ASMdeS/smart-impulse-portfolio/internal/metrics"
	"github.com/ASMdeS/smart-impulse-portfolio/internal/models"
	"github.com/ASMdeS/smart-impulse-portfolio/internal/portfolio"
)

// LedgerStore is the durable home of the ledger and its price history.
type LedgerStore interface {
	LoadLedger() (*models.Ledger, error)
	SaveLedger(*models.Ledger) error
	AppendPrices(date time.Time, snap *models.Snapshot) error
}

// Notifier receives the cycle's buy/sell batches as plain data.
type Notifier interface {
	PublishStocksSold(ctx context.Context, cycleDate time.Time, trades []models.Trade) error
	PublishStocksBought(ctx context.Context, cycleDate time.Time, trades []models.Trade) error
}

// Cache holds the dashboard's hot reads. It is optional: a nil cache
// disables caching without affecting the cycle.
type Cache interface {
	SetPortfolioSummary(ctx context.Context, summary models.PortfolioSummary, ttl time.Duration) error
	SetClosePrice(ctx context.Context, ticker string, close decimal.Decimal, ttl time.Duration) error
	PublishCycleUpdate(ctx context.Context, summary models.PortfolioSummary) error
}

// Runner serializes reconciliation cycles. Cycles are strictly
// sequential: day N+1 only ever reconciles against the persisted result
// of day N, so the runner holds a single lock across load, reconcile and
// save.
type Runner struct {
	mu       sync.Mutex
	store    LedgerStore
	notifier Notifier
	cache    Cache
	policy   portfolio.Policy
	cacheTTL time.Duration
}

// NewRunner creates a cycle runner. notifier and cache may be nil.
func NewRunner(store LedgerStore, notifier Notifier, cache Cache, policy portfolio.Policy) *Runner {
	return &Runner{
		store:    store,
		notifier: notifier,
		cache:    cache,
		policy:   policy,
		cacheTTL: 48 * time.Hour,
	}
}

// RunCycle applies one snapshot: it initializes the ledger on the very
// first snapshot, otherwise reconciles against the persisted prior. On
// any engine or store error the persisted ledger is left untouched.
func (r *Runner) RunCycle(ctx context.Context, snap *models.Snapshot) (*models.Ledger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prior, err := r.store.LoadLedger()
	if err != nil {
		metrics.CyclesTotal.WithLabelValues("failure").Inc()
		return nil, fmt.Errorf("failed to load prior ledger: %w", err)
	}

	var next *models.Ledger
	var batch *models.TradeBatch
	if prior == nil {
		next, err = portfolio.NewLedger(snap, r.policy)
	} else {
		next, batch, err = portfolio.Reconcile(prior, snap, r.policy)
	}
	if err != nil {
		metrics.CyclesTotal.WithLabelValues("failure").Inc()
		return nil, err
	}

	if err := r.store.SaveLedger(next); err != nil {
		metrics.CyclesTotal.WithLabelValues("failure").Inc()
		return nil, fmt.Errorf("failed to persist ledger: %w", err)
	}

	// Everything below is best-effort: the cycle is already durable and
	// collaborator failures must not roll it back.
	if err := r.store.AppendPrices(next.CycleDate, snap); err != nil {
		log.Printf("Warning: failed to append price history: %v", err)
	}
	r.notify(ctx, batch)
	r.refreshCache(ctx, next)

	metrics.CyclesTotal.WithLabelValues("success").Inc()
	return next, nil
}

func (r *Runner) notify(ctx context.Context, batch *models.TradeBatch) {
	if r.notifier == nil || batch.Empty() {
		return
	}
	if len(batch.Sold) > 0 {
		if err := r.notifier.PublishStocksSold(ctx, batch.CycleDate, batch.Sold); err != nil {
			log.Printf("Warning: failed to publish sold batch: %v", err)
		} else {
			metrics.TradesTotal.WithLabelValues("sell").Add(float64(len(batch.Sold)))
		}
	}
	if len(batch.Bought) > 0 {
		if err := r.notifier.PublishStocksBought(ctx, batch.CycleDate, batch.Bought); err != nil {
			log.Printf("Warning: failed to publish bought batch: %v", err)
		} else {
			metrics.TradesTotal.WithLabelValues("buy").Add(float64(len(batch.Bought)))
		}
	}
}

func (r *Runner) refreshCache(ctx context.Context, ledger *models.Ledger) {
	summary := ledger.Summary()
	metrics.PortfolioValue.Set(summary.TotalValue.InexactFloat64())
	metrics.PortfolioOverdraft.Set(summary.TotalOverdraft.InexactFloat64())
	metrics.ActivePositions.Set(float64(summary.ActivePositions))

	if r.cache == nil {
		return
	}
	if err := r.cache.SetPortfolioSummary(ctx, summary, r.cacheTTL); err != nil {
		log.Printf("Warning: failed to cache portfolio summary: %v", err)
	}
	for _, ticker := range ledger.Tickers() {
		pos := ledger.Positions[ticker]
		if !pos.Active || pos.TodayPrice == nil {
			continue
		}
		if err := r.cache.SetClosePrice(ctx, ticker, *pos.TodayPrice, r.cacheTTL); err != nil {
			log.Printf("Warning: failed to cache close for %s: %v", ticker, err)
		}
	}
	if err := r.cache.PublishCycleUpdate(ctx, summary); err != nil {
		log.Printf("Warning: failed to publish cycle update: %v", err)
	}
}
