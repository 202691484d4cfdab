package cycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ASMdeS/smart-impulse-portfolio/internal/models"
	"github.com/ASMdeS/smart-impulse-portfolio/internal/portfolio"
	"github.com/ASMdeS/smart-impulse-portfolio/internal/screener"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type mockStore struct {
	mu        sync.Mutex
	ledger    *models.Ledger
	loadErr   error
	saveErr   error
	saveCalls int
	prices    []time.Time
}

func (m *mockStore) LoadLedger() (*models.Ledger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.ledger == nil {
		return nil, nil
	}
	return m.ledger.Clone(), nil
}

func (m *mockStore) SaveLedger(ledger *models.Ledger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.ledger = ledger.Clone()
	return nil
}

func (m *mockStore) AppendPrices(date time.Time, snap *models.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices = append(m.prices, date)
	return nil
}

type mockNotifier struct {
	mu     sync.Mutex
	sold   []models.Trade
	bought []models.Trade
}

func (m *mockNotifier) PublishStocksSold(ctx context.Context, cycleDate time.Time, trades []models.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sold = append(m.sold, trades...)
	return nil
}

func (m *mockNotifier) PublishStocksBought(ctx context.Context, cycleDate time.Time, trades []models.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bought = append(m.bought, trades...)
	return nil
}

type mockCache struct {
	mu        sync.Mutex
	summaries []models.PortfolioSummary
	closes    map[string]decimal.Decimal
	published int
}

func (m *mockCache) SetPortfolioSummary(ctx context.Context, summary models.PortfolioSummary, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries = append(m.summaries, summary)
	return nil
}

func (m *mockCache) SetClosePrice(ctx context.Context, ticker string, close decimal.Decimal, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closes == nil {
		m.closes = make(map[string]decimal.Decimal)
	}
	m.closes[ticker] = close
	return nil
}

func (m *mockCache) PublishCycleUpdate(ctx context.Context, summary models.PortfolioSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published++
	return nil
}

func testSnapshot(t *testing.T, dateStr string, rows ...screener.RawRow) *models.Snapshot {
	t.Helper()
	date, err := time.Parse("2006-01-02", dateStr)
	require.NoError(t, err)
	snap, err := screener.ParseRows(date, rows)
	require.NoError(t, err)
	return snap
}

// ---------------------------------------------------------------------------
// RunCycle
// ---------------------------------------------------------------------------

func TestRunCycle_FirstSnapshotInitializesLedger(t *testing.T) {
	store := &mockStore{}
	runner := NewRunner(store, nil, nil, portfolio.DefaultPolicy())

	snap := testSnapshot(t, "2024-09-02",
		screener.RawRow{Ticker: "AAPL", Price: "100", Sector: "Technology", MarketCap: "2950000"},
		screener.RawRow{Ticker: "NVO", Price: "100", Sector: "Healthcare", MarketCap: "450000"},
	)

	ledger, err := runner.RunCycle(context.Background(), snap)
	require.NoError(t, err)
	require.NotNil(t, ledger)
	assert.Len(t, ledger.Positions, 2)
	assert.Equal(t, 2, ledger.ActiveCount())
	require.NotNil(t, store.ledger, "first ledger persisted")
	assert.Len(t, store.prices, 1, "closing prices recorded")
}

func TestRunCycle_SecondSnapshotReconciles(t *testing.T) {
	store := &mockStore{}
	notifier := &mockNotifier{}
	cache := &mockCache{}
	runner := NewRunner(store, notifier, cache, portfolio.DefaultPolicy())

	_, err := runner.RunCycle(context.Background(), testSnapshot(t, "2024-09-02",
		screener.RawRow{Ticker: "AAPL", Price: "100", Sector: "Technology", MarketCap: "2950000"},
		screener.RawRow{Ticker: "NVO", Price: "100", Sector: "Healthcare", MarketCap: "450000"},
	))
	require.NoError(t, err)

	// NVO drops out, PLUG enters.
	ledger, err := runner.RunCycle(context.Background(), testSnapshot(t, "2024-09-03",
		screener.RawRow{Ticker: "AAPL", Price: "105", Sector: "Technology", MarketCap: "2950000"},
		screener.RawRow{Ticker: "PLUG", Price: "4", Sector: "Energy", MarketCap: "1850"},
	))
	require.NoError(t, err)

	assert.False(t, ledger.Positions["NVO"].Active)
	assert.True(t, ledger.Positions["PLUG"].Active)

	require.Len(t, notifier.sold, 1)
	assert.Equal(t, "NVO", notifier.sold[0].Ticker)
	require.Len(t, notifier.bought, 1)
	assert.Equal(t, "PLUG", notifier.bought[0].Ticker)

	assert.Len(t, cache.summaries, 2)
	assert.Equal(t, 2, cache.published)
	assert.Equal(t, 2, store.saveCalls)

	// Active tickers get their latest close cached; the sold ticker is not
	// rewritten and ages out by TTL.
	assert.True(t, cache.closes["AAPL"].Equal(decimal.RequireFromString("105")))
	assert.True(t, cache.closes["PLUG"].Equal(decimal.RequireFromString("4")))
	assert.True(t, cache.closes["NVO"].Equal(decimal.RequireFromString("100")), "stale close from the first cycle only")
}

func TestRunCycle_EngineErrorLeavesStoreUntouched(t *testing.T) {
	store := &mockStore{}
	runner := NewRunner(store, nil, nil, portfolio.DefaultPolicy())

	_, err := runner.RunCycle(context.Background(), testSnapshot(t, "2024-09-02",
		screener.RawRow{Ticker: "AAPL", Price: "100", Sector: "Technology", MarketCap: "2950000"},
	))
	require.NoError(t, err)
	savedBefore := store.saveCalls

	// Zero price for a new ticker aborts the cycle mid-engine.
	_, err = runner.RunCycle(context.Background(), testSnapshot(t, "2024-09-03",
		screener.RawRow{Ticker: "AAPL", Price: "105", Sector: "Technology", MarketCap: "2950000"},
		screener.RawRow{Ticker: "BAD", Price: "0", Sector: "Energy", MarketCap: "100"},
	))
	require.Error(t, err)

	assert.Equal(t, savedBefore, store.saveCalls, "failed cycle never reaches the store")
	require.NotNil(t, store.ledger)
	assert.True(t, store.ledger.Positions["AAPL"].TodayPrice.Equal(decimal.RequireFromString("100")))
}

func TestRunCycle_SaveFailurePropagates(t *testing.T) {
	store := &mockStore{saveErr: assert.AnError}
	notifier := &mockNotifier{}
	runner := NewRunner(store, notifier, nil, portfolio.DefaultPolicy())

	_, err := runner.RunCycle(context.Background(), testSnapshot(t, "2024-09-02",
		screener.RawRow{Ticker: "AAPL", Price: "100", Sector: "Technology", MarketCap: "2950000"},
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to persist ledger")
	assert.Empty(t, notifier.sold, "no notifications for an unpersisted cycle")
	assert.Empty(t, notifier.bought)
}

func TestRunCycle_LoadFailurePropagates(t *testing.T) {
	store := &mockStore{loadErr: assert.AnError}
	runner := NewRunner(store, nil, nil, portfolio.DefaultPolicy())

	_, err := runner.RunCycle(context.Background(), testSnapshot(t, "2024-09-02",
		screener.RawRow{Ticker: "AAPL", Price: "100", Sector: "Technology", MarketCap: "2950000"},
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load prior ledger")
	assert.Equal(t, 0, store.saveCalls)
}

func TestRunCycle_NoTradesNoNotifications(t *testing.T) {
	store := &mockStore{}
	notifier := &mockNotifier{}
	runner := NewRunner(store, notifier, nil, portfolio.DefaultPolicy())

	snapA := testSnapshot(t, "2024-09-02",
		screener.RawRow{Ticker: "AAPL", Price: "100", Sector: "Technology", MarketCap: "2950000"},
	)
	_, err := runner.RunCycle(context.Background(), snapA)
	require.NoError(t, err)

	// Same universe, new price: nothing bought or sold.
	snapB := testSnapshot(t, "2024-09-03",
		screener.RawRow{Ticker: "AAPL", Price: "101", Sector: "Technology", MarketCap: "2950000"},
	)
	_, err = runner.RunCycle(context.Background(), snapB)
	require.NoError(t, err)

	assert.Empty(t, notifier.sold)
	assert.Empty(t, notifier.bought)
}
