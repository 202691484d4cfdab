package portfolio

import (
	"github.com/shopspring/decimal"

	"github.com/ASMdeS/smart-impulse-portfolio/internal/models"
)

// RollUpValuation recomputes every position's mark-to-market figures from
// quantity and today's price. It is idempotent: running it twice on the
// same ledger without a new snapshot changes nothing, because it never
// reads the fields it writes.
func RollUpValuation(ledger *models.Ledger) {
	total := decimal.Zero
	for _, pos := range ledger.Positions {
		pos.TotalAmount = decimal.Zero
		if pos.TodayPrice != nil {
			pos.TotalAmount = pos.Quantity.Mul(*pos.TodayPrice)
		}
		total = total.Add(pos.TotalAmount)
	}

	for _, pos := range ledger.Positions {
		if total.IsPositive() {
			pos.Allocation = pos.TotalAmount.Div(total)
		} else {
			pos.Allocation = decimal.Zero
		}
		if pos.Active && pos.Investment.IsPositive() {
			pos.UnrealizedROI = pos.TotalAmount.Div(pos.Investment).Sub(one).Mul(hundred)
		}
		if pos.MaterializedROI != nil {
			pos.CombinedROI = *pos.MaterializedROI
		} else {
			pos.CombinedROI = pos.UnrealizedROI
		}
	}
}

// Normalize enforces the fixed capital ceiling: when the portfolio's
// unscaled total exceeds the capital base, every position's reported value
// shrinks proportionally and the excess lands in overdraft. This is a
// reporting-layer rescale only; it never feeds back into quantity or
// investment.
func Normalize(ledger *models.Ledger) {
	total := decimal.Zero
	for _, pos := range ledger.Positions {
		total = total.Add(pos.TotalAmount)
	}

	if total.GreaterThan(ledger.CapitalBase) {
		scale := ledger.CapitalBase.Div(total)
		ledgerOverdraft := decimal.Zero
		for _, pos := range ledger.Positions {
			pos.Value = pos.TotalAmount.Mul(scale)
			pos.Overdraft = pos.TotalAmount.Sub(pos.Value)
			ledgerOverdraft = ledgerOverdraft.Add(pos.Overdraft)
		}
		ledger.Overdraft = ledgerOverdraft
		return
	}

	for _, pos := range ledger.Positions {
		pos.Value = pos.TotalAmount
		pos.Overdraft = decimal.Zero
	}
	ledger.Overdraft = decimal.Zero
}

// allocationTolerance bounds how far the active allocation sum may drift
// from 1 before the ledger is considered corrupt.
var allocationTolerance = decimal.RequireFromString("0.000000001")

// checkInvariants runs the defensive checks that distinguish an engine bug
// from bad input: non-negative quantities, allocations summing to one, and
// value + overdraft matching the unscaled total.
func checkInvariants(ledger *models.Ledger) error {
	totalAmount := decimal.Zero
	allocSum := decimal.Zero
	for ticker, pos := range ledger.Positions {
		if pos.Quantity.IsNegative() {
			return &InvariantViolationError{
				Ticker: ticker, Check: "quantity",
				Detail: "negative quantity " + pos.Quantity.String(),
			}
		}
		if !pos.Value.Add(pos.Overdraft).Equal(pos.TotalAmount) {
			return &InvariantViolationError{
				Ticker: ticker, Check: "overdraft",
				Detail: "value + overdraft != total amount",
			}
		}
		totalAmount = totalAmount.Add(pos.TotalAmount)
		allocSum = allocSum.Add(pos.Allocation)
	}
	if totalAmount.IsPositive() && allocSum.Sub(one).Abs().GreaterThan(allocationTolerance) {
		return &InvariantViolationError{
			Check:  "allocation",
			Detail: "allocations sum to " + allocSum.String(),
		}
	}
	return nil
}
