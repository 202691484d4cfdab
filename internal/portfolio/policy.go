package portfolio

import "github.com/shopspring/decimal"

// ReentryMode controls what happens to a ticker's row when it is bought
// back after a full exit.
type ReentryMode string

const (
	// ReentryKeepHistory archives the exited row under a suffixed key
	// (e.g. "AAPL#1") and opens a fresh row under the bare ticker, so the
	// exit record and its materialized ROI survive.
	ReentryKeepHistory ReentryMode = "keep-history"
	// ReentryOverwrite resets the same row in place, clearing the
	// materialized ROI and restarting stage tracking.
	ReentryOverwrite ReentryMode = "overwrite"
)

// Policy holds the tunable rules of the staged dollar-cost-averaging
// strategy. All cycles of one portfolio must run under the same policy.
type Policy struct {
	// CapitalBase is the fixed capital ceiling of the simulated account.
	CapitalBase decimal.Decimal
	// NewTickerAllocation is the fraction of CapitalBase committed to a
	// ticker admitted after day one.
	NewTickerAllocation decimal.Decimal
	// StageIncrement is the capital added on each second/third entry.
	StageIncrement decimal.Decimal
	// StageDays is the holding-day count that triggers the next stage.
	StageDays int
	// StagePriceFactor is the price multiple over the previous stage's
	// entry price that triggers the next stage early.
	StagePriceFactor decimal.Decimal
	// Reentry selects the identity policy for re-bought tickers.
	Reentry ReentryMode
}

// DefaultPolicy returns the standard strategy parameters: 100,000
// capital, 2% admissions, 1,500 per stage, 90 days or +20% price.
func DefaultPolicy() Policy {
	return Policy{
		CapitalBase:         decimal.NewFromInt(100000),
		NewTickerAllocation: decimal.RequireFromString("0.02"),
		StageIncrement:      decimal.NewFromInt(1500),
		StageDays:           90,
		StagePriceFactor:    decimal.RequireFromString("1.2"),
		Reentry:             ReentryKeepHistory,
	}
}
