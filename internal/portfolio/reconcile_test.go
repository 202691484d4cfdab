package portfolio

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ASMdeS/smart-impulse-portfolio/internal/models"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(n int) time.Time {
	return time.Date(2024, 9, n, 0, 0, 0, 0, time.UTC)
}

func rec(ticker, price string) models.SnapshotRecord {
	return models.SnapshotRecord{
		Ticker:            ticker,
		Price:             d(price),
		Sector:            "Technology",
		MarketCapCategory: models.MarketCapMedium,
	}
}

func mustSnapshot(t *testing.T, date time.Time, records ...models.SnapshotRecord) *models.Snapshot {
	t.Helper()
	snap, err := models.NewSnapshot(date, records)
	require.NoError(t, err)
	return snap
}

// assertDecimalEqual compares decimals within a small tolerance, since
// allocation and scaling divisions round at the configured precision.
func assertDecimalEqual(t *testing.T, expected, actual decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	diff := expected.Sub(actual).Abs()
	assert.True(t, diff.LessThanOrEqual(d("0.000001")),
		"expected %s, got %s (diff %s) %v", expected, actual, diff, msgAndArgs)
}

// ---------------------------------------------------------------------------
// Ledger initialization (scenario A)
// ---------------------------------------------------------------------------

func TestNewLedger_EqualWeight(t *testing.T) {
	snap := mustSnapshot(t, day(2), rec("AAA", "10"), rec("BBB", "20"))

	ledger, err := NewLedger(snap, DefaultPolicy())
	require.NoError(t, err)
	require.Len(t, ledger.Positions, 2)

	aaa := ledger.Positions["AAA"]
	bbb := ledger.Positions["BBB"]

	assert.True(t, aaa.Allocation.Equal(d("0.5")))
	assert.True(t, bbb.Allocation.Equal(d("0.5")))
	assert.True(t, aaa.Quantity.Equal(d("5000")), "50000/10 shares, got %s", aaa.Quantity)
	assert.True(t, bbb.Quantity.Equal(d("2500")), "50000/20 shares, got %s", bbb.Quantity)
	assert.True(t, aaa.Investment.Equal(d("50000")))
	assert.True(t, aaa.UnrealizedROI.IsZero())
	assert.Nil(t, aaa.MaterializedROI)
	assert.True(t, aaa.FirstEntry.Triggered)
	require.NotNil(t, aaa.FirstEntry.Price)
	assert.True(t, aaa.FirstEntry.Price.Equal(d("10")))
	assert.False(t, aaa.SecondEntry.Triggered)
	assert.False(t, aaa.ThirdEntry.Triggered)
	assert.Equal(t, 0, aaa.DaysHolding)
	assert.True(t, aaa.Active)
	assert.True(t, ledger.Overdraft.IsZero())
}

func TestNewLedger_EmptySnapshot(t *testing.T) {
	snap := mustSnapshot(t, day(2))

	_, err := NewLedger(snap, DefaultPolicy())
	require.Error(t, err)
	var malformed *models.MalformedRecordError
	require.ErrorAs(t, err, &malformed)
}

func TestNewLedger_ZeroPrice(t *testing.T) {
	snap := mustSnapshot(t, day(2), rec("AAA", "0"))

	_, err := NewLedger(snap, DefaultPolicy())
	require.Error(t, err)
	var malformed *models.MalformedRecordError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "AAA", malformed.Ticker)
}

// ---------------------------------------------------------------------------
// Price roll and valuation
// ---------------------------------------------------------------------------

func TestReconcile_PriceRoll(t *testing.T) {
	ledger, err := NewLedger(mustSnapshot(t, day(2), rec("AAA", "10")), DefaultPolicy())
	require.NoError(t, err)

	next, _, err := Reconcile(ledger, mustSnapshot(t, day(3), rec("AAA", "11")), DefaultPolicy())
	require.NoError(t, err)

	pos := next.Positions["AAA"]
	require.NotNil(t, pos.YesterdayPrice)
	assert.True(t, pos.YesterdayPrice.Equal(d("10")))
	require.NotNil(t, pos.TodayPrice)
	assert.True(t, pos.TodayPrice.Equal(d("11")))
	assert.Equal(t, 1, pos.DaysHolding)

	// +10% on the full stake
	assertDecimalEqual(t, d("10"), pos.UnrealizedROI)
	assertDecimalEqual(t, pos.UnrealizedROI, pos.CombinedROI)
}

func TestReconcile_DoesNotMutatePrior(t *testing.T) {
	prior, err := NewLedger(mustSnapshot(t, day(2), rec("AAA", "10"), rec("BBB", "20")), DefaultPolicy())
	require.NoError(t, err)

	_, _, err = Reconcile(prior, mustSnapshot(t, day(3), rec("AAA", "15")), DefaultPolicy())
	require.NoError(t, err)

	// prior is untouched: BBB still active, AAA still at day-one prices
	assert.True(t, prior.Positions["BBB"].Active)
	assert.True(t, prior.Positions["AAA"].TodayPrice.Equal(d("10")))
	assert.Nil(t, prior.Positions["AAA"].YesterdayPrice)
	assert.Equal(t, 0, prior.Positions["AAA"].DaysHolding)
}

func TestRollUpValuation_Idempotent(t *testing.T) {
	ledger, err := NewLedger(mustSnapshot(t, day(2), rec("AAA", "10"), rec("BBB", "20")), DefaultPolicy())
	require.NoError(t, err)
	next, _, err := Reconcile(ledger, mustSnapshot(t, day(3), rec("AAA", "12"), rec("BBB", "18")), DefaultPolicy())
	require.NoError(t, err)

	RollUpValuation(next)
	first := next.Clone()
	RollUpValuation(next)

	for ticker, pos := range next.Positions {
		want := first.Positions[ticker]
		assert.True(t, pos.TotalAmount.Equal(want.TotalAmount), "%s total amount drifted", ticker)
		assert.True(t, pos.Allocation.Equal(want.Allocation), "%s allocation drifted", ticker)
		assert.True(t, pos.UnrealizedROI.Equal(want.UnrealizedROI), "%s unrealized drifted", ticker)
		assert.True(t, pos.CombinedROI.Equal(want.CombinedROI), "%s combined drifted", ticker)
		assert.Equal(t, want.DaysHolding, pos.DaysHolding, "%s days holding drifted", ticker)
	}
}

func TestReconcile_AllocationConservation(t *testing.T) {
	ledger, err := NewLedger(mustSnapshot(t, day(2), rec("AAA", "10"), rec("BBB", "20"), rec("CCC", "7")), DefaultPolicy())
	require.NoError(t, err)

	next, _, err := Reconcile(ledger, mustSnapshot(t, day(3),
		rec("AAA", "12"), rec("BBB", "19"), rec("DDD", "33")), DefaultPolicy())
	require.NoError(t, err)

	sum := decimal.Zero
	for _, pos := range next.Positions {
		sum = sum.Add(pos.Allocation)
	}
	assertDecimalEqual(t, d("1"), sum)
}

// ---------------------------------------------------------------------------
// Exit detection (scenario B)
// ---------------------------------------------------------------------------

func TestReconcile_ExitLocksMaterializedROI(t *testing.T) {
	policy := DefaultPolicy()
	ledger, err := NewLedger(mustSnapshot(t, day(2), rec("AAA", "10"), rec("BBB", "20")), policy)
	require.NoError(t, err)

	// Day 3: BBB rallies to 25, unrealized ROI becomes +25%.
	second, _, err := Reconcile(ledger, mustSnapshot(t, day(3), rec("AAA", "10"), rec("BBB", "25")), policy)
	require.NoError(t, err)
	unrealizedAtExit := second.Positions["BBB"].UnrealizedROI
	assertDecimalEqual(t, d("25"), unrealizedAtExit)

	// Day 4: BBB vanishes from the screener.
	third, batch, err := Reconcile(second, mustSnapshot(t, day(4), rec("AAA", "10")), policy)
	require.NoError(t, err)

	bbb := third.Positions["BBB"]
	assert.False(t, bbb.Active)
	assert.True(t, bbb.Quantity.IsZero())
	require.NotNil(t, bbb.SellPrice)
	assert.True(t, bbb.SellPrice.Equal(d("25")), "sells at yesterday's price")
	require.NotNil(t, bbb.SellValue)
	assertDecimalEqual(t, d("62500"), *bbb.SellValue) // 2500 shares * 25
	require.NotNil(t, bbb.MaterializedROI)
	assert.True(t, bbb.MaterializedROI.Equal(unrealizedAtExit))

	require.Len(t, batch.Sold, 1)
	assert.Equal(t, "BBB", batch.Sold[0].Ticker)
	assert.True(t, batch.Sold[0].Quantity.Equal(d("2500")))
	assert.True(t, batch.Sold[0].Price.Equal(d("25")))

	// Day 5: still absent — materialized ROI never changes again.
	fourth, _, err := Reconcile(third, mustSnapshot(t, day(5), rec("AAA", "10")), policy)
	require.NoError(t, err)
	require.NotNil(t, fourth.Positions["BBB"].MaterializedROI)
	assert.True(t, fourth.Positions["BBB"].MaterializedROI.Equal(unrealizedAtExit))
	assert.True(t, fourth.Positions["BBB"].CombinedROI.Equal(unrealizedAtExit))
}

// ---------------------------------------------------------------------------
// Staged entries (scenarios C and D)
// ---------------------------------------------------------------------------

func TestReconcile_SecondEntryOnDayThreshold(t *testing.T) {
	policy := DefaultPolicy()
	ledger, err := NewLedger(mustSnapshot(t, day(2), rec("AAA", "10")), policy)
	require.NoError(t, err)

	// One cycle away from the 90-day threshold; price stays flat so the
	// price rule cannot fire.
	ledger.Positions["AAA"].FirstEntry.DaysSince = 89

	next, _, err := Reconcile(ledger, mustSnapshot(t, day(3), rec("AAA", "10")), policy)
	require.NoError(t, err)

	pos := next.Positions["AAA"]
	assert.True(t, pos.SecondEntry.Triggered)
	require.NotNil(t, pos.SecondEntry.Price)
	assert.True(t, pos.SecondEntry.Price.Equal(d("10")))
	assert.True(t, pos.Investment.Equal(d("101500")), "investment grows by the fixed increment")
	assertDecimalEqual(t, d("10150"), pos.Quantity) // 10000 + 1500/10
}

func TestReconcile_NoSecondEntryPastDayThreshold(t *testing.T) {
	policy := DefaultPolicy()
	ledger, err := NewLedger(mustSnapshot(t, day(2), rec("AAA", "10")), policy)
	require.NoError(t, err)

	// Already past the exact threshold (missed cycle); only the price
	// rule can trigger now.
	ledger.Positions["AAA"].FirstEntry.DaysSince = 90

	next, _, err := Reconcile(ledger, mustSnapshot(t, day(3), rec("AAA", "10")), policy)
	require.NoError(t, err)
	assert.False(t, next.Positions["AAA"].SecondEntry.Triggered)
}

func TestReconcile_ZeroPriceDayDefersStageTrigger(t *testing.T) {
	policy := DefaultPolicy()
	ledger, err := NewLedger(mustSnapshot(t, day(2), rec("AAA", "10")), policy)
	require.NoError(t, err)

	// The day counter reaches the threshold on a cycle where the screener
	// reports a zero price. No shares can be financed at 0, so the cycle
	// must complete without triggering a stage.
	ledger.Positions["AAA"].FirstEntry.DaysSince = 89

	next, _, err := Reconcile(ledger, mustSnapshot(t, day(3), rec("AAA", "0")), policy)
	require.NoError(t, err)

	pos := next.Positions["AAA"]
	assert.False(t, pos.SecondEntry.Triggered)
	assert.True(t, pos.Investment.Equal(d("100000")))
	assert.True(t, pos.Quantity.Equal(d("10000")))
	assert.True(t, pos.TotalAmount.IsZero())
}

func TestReconcile_SecondEntryOnPriceThreshold(t *testing.T) {
	policy := DefaultPolicy()
	ledger, err := NewLedger(mustSnapshot(t, day(2), rec("AAA", "10")), policy)
	require.NoError(t, err)

	// Day 5 equivalent: day counter is nowhere near 90, but the price
	// clears first entry * 1.2.
	next, _, err := Reconcile(ledger, mustSnapshot(t, day(3), rec("AAA", "12.01")), policy)
	require.NoError(t, err)

	pos := next.Positions["AAA"]
	assert.True(t, pos.SecondEntry.Triggered)
	require.NotNil(t, pos.SecondEntry.Price)
	assert.True(t, pos.SecondEntry.Price.Equal(d("12.01")))
	assert.True(t, pos.Investment.Equal(d("101500")))
}

func TestReconcile_PriceAtThresholdDoesNotTrigger(t *testing.T) {
	policy := DefaultPolicy()
	ledger, err := NewLedger(mustSnapshot(t, day(2), rec("AAA", "10")), policy)
	require.NoError(t, err)

	// Exactly 1.2x is not strictly greater.
	next, _, err := Reconcile(ledger, mustSnapshot(t, day(3), rec("AAA", "12")), policy)
	require.NoError(t, err)
	assert.False(t, next.Positions["AAA"].SecondEntry.Triggered)
}

func TestReconcile_AtMostOneStagePerCycle(t *testing.T) {
	policy := DefaultPolicy()
	ledger, err := NewLedger(mustSnapshot(t, day(2), rec("AAA", "10")), policy)
	require.NoError(t, err)

	// A violent rally clears both the second and (numerically) any later
	// threshold, but only one stage may fire per cycle.
	next, _, err := Reconcile(ledger, mustSnapshot(t, day(3), rec("AAA", "50")), policy)
	require.NoError(t, err)

	pos := next.Positions["AAA"]
	assert.True(t, pos.SecondEntry.Triggered)
	assert.False(t, pos.ThirdEntry.Triggered)
	assert.True(t, pos.Investment.Equal(d("101500")), "only one increment applied")
}

func TestReconcile_ThirdEntryAfterSecond(t *testing.T) {
	policy := DefaultPolicy()
	ledger, err := NewLedger(mustSnapshot(t, day(2), rec("AAA", "10")), policy)
	require.NoError(t, err)

	// Cycle 1: second entry on price.
	second, _, err := Reconcile(ledger, mustSnapshot(t, day(3), rec("AAA", "13")), policy)
	require.NoError(t, err)
	require.True(t, second.Positions["AAA"].SecondEntry.Triggered)

	// Cycle 2: price clears second entry * 1.2 (13 * 1.2 = 15.6).
	third, _, err := Reconcile(second, mustSnapshot(t, day(4), rec("AAA", "16")), policy)
	require.NoError(t, err)

	pos := third.Positions["AAA"]
	assert.True(t, pos.ThirdEntry.Triggered)
	require.NotNil(t, pos.ThirdEntry.Price)
	assert.True(t, pos.ThirdEntry.Price.Equal(d("16")))
	assert.True(t, pos.Investment.Equal(d("103000")), "two increments applied across cycles")
}

func TestReconcile_StageDayCounters(t *testing.T) {
	policy := DefaultPolicy()
	ledger, err := NewLedger(mustSnapshot(t, day(2), rec("AAA", "10")), policy)
	require.NoError(t, err)

	next, _, err := Reconcile(ledger, mustSnapshot(t, day(3), rec("AAA", "10")), policy)
	require.NoError(t, err)
	assert.Equal(t, 1, next.Positions["AAA"].FirstEntry.DaysSince)
	assert.Equal(t, 0, next.Positions["AAA"].SecondEntry.DaysSince)

	// Once second entry is in, the second-stage counter ticks instead.
	next.Positions["AAA"].SecondEntry.Triggered = true
	next.Positions["AAA"].SecondEntry.Price = models.DecimalPtr(d("10"))
	after, _, err := Reconcile(next, mustSnapshot(t, day(4), rec("AAA", "10")), policy)
	require.NoError(t, err)
	assert.Equal(t, 1, after.Positions["AAA"].FirstEntry.DaysSince, "first counter frozen after stage two")
	assert.Equal(t, 1, after.Positions["AAA"].SecondEntry.DaysSince)
}

func TestReconcile_InvestmentMonotonicWhileActive(t *testing.T) {
	policy := DefaultPolicy()
	ledger, err := NewLedger(mustSnapshot(t, day(2), rec("AAA", "10")), policy)
	require.NoError(t, err)

	prices := []string{"11", "13", "16", "20", "19", "25"}
	previous := ledger.Positions["AAA"].Investment
	current := ledger
	for i, price := range prices {
		next, _, err := Reconcile(current, mustSnapshot(t, day(3+i), rec("AAA", price)), policy)
		require.NoError(t, err)
		investment := next.Positions["AAA"].Investment
		assert.True(t, investment.GreaterThanOrEqual(previous),
			"investment shrank from %s to %s on cycle %d", previous, investment, i)
		previous = investment
		current = next
	}
}

// ---------------------------------------------------------------------------
// New-ticker admission
// ---------------------------------------------------------------------------

func TestReconcile_NewTickerAdmission(t *testing.T) {
	policy := DefaultPolicy()
	ledger, err := NewLedger(mustSnapshot(t, day(2), rec("AAA", "10")), policy)
	require.NoError(t, err)

	next, batch, err := Reconcile(ledger, mustSnapshot(t, day(3), rec("AAA", "10"), rec("NEW", "40")), policy)
	require.NoError(t, err)

	pos := next.Positions["NEW"]
	require.NotNil(t, pos)
	assert.True(t, pos.Active)
	assert.True(t, pos.Investment.Equal(d("2000")), "2%% of capital base")
	assert.True(t, pos.Quantity.Equal(d("50")), "2000/40 shares")
	assert.True(t, pos.FirstEntry.Triggered)
	assert.Equal(t, 0, pos.FirstEntry.DaysSince)
	assert.Equal(t, 1, pos.DaysHolding)

	require.Len(t, batch.Bought, 1)
	assert.Equal(t, "NEW", batch.Bought[0].Ticker)
	assert.True(t, batch.Bought[0].Quantity.Equal(d("50")))
	assert.True(t, batch.Bought[0].Price.Equal(d("40")))
}

// ---------------------------------------------------------------------------
// Re-entry state machine
// ---------------------------------------------------------------------------

// exitThenReappear drives AAA+BBB through BBB's exit and reappearance.
func exitThenReappear(t *testing.T, policy Policy) (*models.Ledger, *models.TradeBatch) {
	t.Helper()
	ledger, err := NewLedger(mustSnapshot(t, day(2), rec("AAA", "10"), rec("BBB", "20")), policy)
	require.NoError(t, err)

	sold, _, err := Reconcile(ledger, mustSnapshot(t, day(3), rec("AAA", "10")), policy)
	require.NoError(t, err)
	require.False(t, sold.Positions["BBB"].Active)

	next, batch, err := Reconcile(sold, mustSnapshot(t, day(4), rec("AAA", "10"), rec("BBB", "25")), policy)
	require.NoError(t, err)
	return next, batch
}

func TestReconcile_ReentryKeepHistory(t *testing.T) {
	policy := DefaultPolicy()
	require.Equal(t, ReentryKeepHistory, policy.Reentry)

	next, batch := exitThenReappear(t, policy)

	fresh := next.Positions["BBB"]
	require.NotNil(t, fresh)
	assert.True(t, fresh.Active)
	assert.Nil(t, fresh.MaterializedROI)
	assert.True(t, fresh.Investment.Equal(d("2000")))
	assert.True(t, fresh.FirstEntry.Triggered)
	require.NotNil(t, fresh.FirstEntry.Price)
	assert.True(t, fresh.FirstEntry.Price.Equal(d("25")))

	archived := next.Positions["BBB#1"]
	require.NotNil(t, archived, "exit record survives under the suffixed key")
	assert.Equal(t, "BBB#1", archived.Ticker, "ticker field matches the archive key")
	assert.Equal(t, "BBB", fresh.Ticker)
	assert.False(t, archived.Active)
	require.NotNil(t, archived.MaterializedROI)
	require.NotNil(t, archived.SellPrice)

	require.Len(t, batch.Bought, 1)
	assert.Equal(t, "BBB", batch.Bought[0].Ticker)
}

func TestReconcile_ReentryOverwrite(t *testing.T) {
	policy := DefaultPolicy()
	policy.Reentry = ReentryOverwrite

	next, batch := exitThenReappear(t, policy)

	fresh := next.Positions["BBB"]
	require.NotNil(t, fresh)
	assert.True(t, fresh.Active)
	assert.Nil(t, fresh.MaterializedROI, "exit history is overwritten")
	assert.Nil(t, fresh.SellPrice)
	assert.True(t, fresh.Investment.Equal(d("2000")))

	_, archived := next.Positions["BBB#1"]
	assert.False(t, archived, "no suffixed row under overwrite")
	require.Len(t, batch.Bought, 1)
}

func TestReconcile_SoldTickerNotRebuyableSameCycle(t *testing.T) {
	// A ticker sold this cycle is absent from the snapshot by definition,
	// so re-entry can only happen on a later cycle. This guards the state
	// machine ordering: Active -> Exited takes one full cycle.
	policy := DefaultPolicy()
	ledger, err := NewLedger(mustSnapshot(t, day(2), rec("AAA", "10"), rec("BBB", "20")), policy)
	require.NoError(t, err)

	next, batch, err := Reconcile(ledger, mustSnapshot(t, day(3), rec("AAA", "10")), policy)
	require.NoError(t, err)
	assert.False(t, next.Positions["BBB"].Active)
	assert.Empty(t, batch.Bought)
	require.Len(t, batch.Sold, 1)
}

// ---------------------------------------------------------------------------
// Atomic failure
// ---------------------------------------------------------------------------

func TestReconcile_MalformedSnapshotLeavesPriorIntact(t *testing.T) {
	policy := DefaultPolicy()
	prior, err := NewLedger(mustSnapshot(t, day(2), rec("AAA", "10")), policy)
	require.NoError(t, err)

	// Zero price on an incoming ticker cannot finance an admission.
	_, _, err = Reconcile(prior, mustSnapshot(t, day(3), rec("AAA", "11"), rec("BAD", "0")), policy)
	require.Error(t, err)
	var malformed *models.MalformedRecordError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "BAD", malformed.Ticker)

	// The failed cycle applied nothing.
	assert.True(t, prior.Positions["AAA"].TodayPrice.Equal(d("10")))
	assert.Nil(t, prior.Positions["AAA"].YesterdayPrice)
	assert.Equal(t, 0, prior.Positions["AAA"].DaysHolding)
	_, admitted := prior.Positions["BAD"]
	assert.False(t, admitted)
}
