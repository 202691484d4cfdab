package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Ledger is the full portfolio state at a point in time. It is only ever
// produced by portfolio.NewLedger or portfolio.Reconcile, never mutated
// in place outside those functions.
type Ledger struct {
	CapitalBase decimal.Decimal      `json:"capital_base"`
	CycleDate   time.Time            `json:"cycle_date"`
	Overdraft   decimal.Decimal      `json:"overdraft"`
	Positions   map[string]*Position `json:"positions"`
}

// Clone returns a deep copy of the ledger.
func (l *Ledger) Clone() *Ledger {
	cp := &Ledger{
		CapitalBase: l.CapitalBase,
		CycleDate:   l.CycleDate,
		Overdraft:   l.Overdraft,
		Positions:   make(map[string]*Position, len(l.Positions)),
	}
	for ticker, pos := range l.Positions {
		cp.Positions[ticker] = pos.Clone()
	}
	return cp
}

// Tickers returns all position keys in sorted order.
func (l *Ledger) Tickers() []string {
	tickers := make([]string, 0, len(l.Positions))
	for t := range l.Positions {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers
}

// ActiveCount returns the number of positions currently held.
func (l *Ledger) ActiveCount() int {
	n := 0
	for _, pos := range l.Positions {
		if pos.Active {
			n++
		}
	}
	return n
}

// PortfolioSummary is the dashboard's headline view of a ledger.
type PortfolioSummary struct {
	CycleDate       time.Time       `json:"cycle_date"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	TotalInvestment decimal.Decimal `json:"total_investment"`
	TotalValue      decimal.Decimal `json:"total_value"`
	TotalOverdraft  decimal.Decimal `json:"total_overdraft"`
	TotalReturnPct  decimal.Decimal `json:"total_return_pct"`
	ActivePositions int             `json:"active_positions"`
	TotalPositions  int             `json:"total_positions"`
}

// Summary aggregates the ledger into its headline metrics. Return is
// computed over active positions only, matching the dashboard table.
func (l *Ledger) Summary() PortfolioSummary {
	s := PortfolioSummary{
		CycleDate:      l.CycleDate,
		TotalOverdraft: l.Overdraft,
		TotalPositions: len(l.Positions),
	}
	for _, pos := range l.Positions {
		s.TotalValue = s.TotalValue.Add(pos.Value)
		if !pos.Active {
			continue
		}
		s.ActivePositions++
		s.TotalAmount = s.TotalAmount.Add(pos.TotalAmount)
		s.TotalInvestment = s.TotalInvestment.Add(pos.Investment)
	}
	if s.TotalInvestment.IsPositive() {
		s.TotalReturnPct = s.TotalAmount.Div(s.TotalInvestment).
			Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100))
	}
	return s
}

// AllocationBreakdown sums active-position allocations by the given key.
func (l *Ledger) AllocationBreakdown(key func(*Position) string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, pos := range l.Positions {
		if !pos.Active {
			continue
		}
		k := key(pos)
		out[k] = out[k].Add(pos.Allocation)
	}
	return out
}
