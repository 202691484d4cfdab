package portfolio

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ASMdeS/smart-impulse-portfolio/internal/models"
)

// Reconcile ingests one day's snapshot against the prior ledger and
// produces the next ledger plus the cycle's trade batch. The prior ledger
// is never mutated: on any error the caller keeps it unchanged and may
// retry with a corrected snapshot.
//
// Steps run in a fixed order because later ones depend on flags derived
// earlier: price roll, exits, re-entries, stage-day counters, staged-entry
// triggers, new-ticker admission, valuation roll-up, capital
// normalization.
func Reconcile(prior *models.Ledger, snap *models.Snapshot, policy Policy) (*models.Ledger, *models.TradeBatch, error) {
	next := prior.Clone()
	next.CycleDate = snap.Date

	batch := &models.TradeBatch{CycleDate: snap.Date}

	// Step 1: price roll.
	for _, ticker := range next.Tickers() {
		pos := next.Positions[ticker]
		pos.YesterdayPrice = pos.TodayPrice
		if rec, ok := snap.Get(ticker); ok {
			pos.TodayPrice = models.DecimalPtr(rec.Price)
			pos.Sector = rec.Sector
			pos.MarketCapCategory = rec.MarketCapCategory
		}
	}

	// Step 2: exit detection. A position is sold iff it is active and its
	// ticker vanished from the snapshot. The sale executes at yesterday's
	// price and locks the unrealized return in as materialized.
	soldThisCycle := make(map[string]bool)
	for _, ticker := range next.Tickers() {
		pos := next.Positions[ticker]
		if !pos.Active || snap.Has(ticker) {
			continue
		}
		if pos.YesterdayPrice == nil {
			return nil, nil, &InvariantViolationError{
				Ticker: ticker, Check: "exit-price",
				Detail: "active position has no prior price to sell at",
			}
		}
		pos.SellPrice = pos.YesterdayPrice
		pos.SellValue = models.DecimalPtr(pos.YesterdayPrice.Mul(pos.Quantity))
		pos.MaterializedROI = models.DecimalPtr(pos.UnrealizedROI)
		batch.Sold = append(batch.Sold, models.Trade{
			Ticker:   ticker,
			Quantity: pos.Quantity,
			Price:    *pos.SellPrice,
		})
		pos.Quantity = decimal.Zero
		pos.Active = false
		soldThisCycle[ticker] = true
	}

	// Step 3: re-entry. A ticker that was already out of the portfolio
	// (not sold this cycle) and reappears in the snapshot opens a fresh
	// position; the identity of the old exit record follows the policy.
	for _, ticker := range next.Tickers() {
		pos := next.Positions[ticker]
		if pos.Active || soldThisCycle[ticker] || !snap.Has(ticker) {
			continue
		}
		rec, _ := snap.Get(ticker)
		fresh, err := newAdmission(rec, policy)
		if err != nil {
			return nil, nil, err
		}
		fresh.CreatedAt = snap.Date

		switch policy.Reentry {
		case ReentryOverwrite:
			fresh.CreatedAt = pos.CreatedAt
			next.Positions[ticker] = fresh
		default: // keep-history
			// The archived row takes its suffixed key as its ticker so the
			// in-memory ledger matches what persistence round-trips.
			key := archiveKey(next, ticker)
			pos.Ticker = key
			next.Positions[key] = pos
			next.Positions[ticker] = fresh
		}
		batch.Bought = append(batch.Bought, models.Trade{
			Ticker:   ticker,
			Quantity: fresh.Quantity,
			Price:    rec.Price,
		})
	}

	// Step 4: stage-day counters.
	for _, pos := range next.Positions {
		if !pos.Active {
			continue
		}
		if !pos.SecondEntry.Triggered {
			pos.FirstEntry.DaysSince++
		}
		if pos.SecondEntry.Triggered && !pos.ThirdEntry.Triggered {
			pos.SecondEntry.DaysSince++
		}
	}

	// Step 5: staged-entry triggers.
	for _, ticker := range next.Tickers() {
		if err := applyStagedEntries(next.Positions[ticker], policy); err != nil {
			return nil, nil, err
		}
	}

	// Step 6: new-ticker admission.
	for _, ticker := range snap.Tickers() {
		if _, held := next.Positions[ticker]; held {
			continue
		}
		rec, _ := snap.Get(ticker)
		fresh, err := newAdmission(rec, policy)
		if err != nil {
			return nil, nil, err
		}
		fresh.CreatedAt = snap.Date
		next.Positions[ticker] = fresh
		batch.Bought = append(batch.Bought, models.Trade{
			Ticker:   ticker,
			Quantity: fresh.Quantity,
			Price:    rec.Price,
		})
	}

	// Step 7: valuation roll-up, then the holding-day tick. The tick sits
	// outside RollUpValuation so the roll-up itself stays idempotent.
	RollUpValuation(next)
	for _, pos := range next.Positions {
		if pos.Active {
			pos.DaysHolding++
		}
	}

	// Step 8: capital normalization.
	Normalize(next)

	if err := checkInvariants(next); err != nil {
		return nil, nil, err
	}
	return next, batch, nil
}

// archiveKey finds the first free suffixed key for an exited row, e.g.
// "AAPL#1", "AAPL#2", so historical exits of the same ticker coexist.
func archiveKey(ledger *models.Ledger, ticker string) string {
	for n := 1; ; n++ {
		key := fmt.Sprintf("%s#%d", ticker, n)
		if _, taken := ledger.Positions[key]; !taken {
			return key
		}
	}
}
