package portfolio

import (
	"github.com/shopspring/decimal"

	"github.com/ASMdeS/smart-impulse-portfolio/internal/models"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// NewLedger creates the day-one ledger from the first snapshot: capital is
// split equally across all tickers and every position starts at stage one.
func NewLedger(snap *models.Snapshot, policy Policy) (*models.Ledger, error) {
	if snap.Len() == 0 {
		return nil, &models.MalformedRecordError{Field: "snapshot", Reason: "empty snapshot cannot seed a ledger"}
	}

	allocation := one.Div(decimal.NewFromInt(int64(snap.Len())))
	value := allocation.Mul(policy.CapitalBase)

	ledger := &models.Ledger{
		CapitalBase: policy.CapitalBase,
		CycleDate:   snap.Date,
		Overdraft:   decimal.Zero,
		Positions:   make(map[string]*models.Position, snap.Len()),
	}

	for _, ticker := range snap.Tickers() {
		rec, _ := snap.Get(ticker)
		if !rec.Price.IsPositive() {
			return nil, &models.MalformedRecordError{
				Ticker: ticker, Field: "price", Raw: rec.Price.String(),
				Reason: "price must be positive to open a position",
			}
		}
		ledger.Positions[ticker] = &models.Position{
			Ticker:            ticker,
			Sector:            rec.Sector,
			MarketCapCategory: rec.MarketCapCategory,
			Allocation:        allocation,
			Quantity:          value.Div(rec.Price),
			Investment:        value,
			FirstEntry: models.EntryStage{
				Triggered: true,
				Price:     models.DecimalPtr(rec.Price),
			},
			TodayPrice:    models.DecimalPtr(rec.Price),
			UnrealizedROI: decimal.Zero,
			CombinedROI:   decimal.Zero,
			TotalAmount:   value,
			Value:         value,
			Overdraft:     decimal.Zero,
			Active:        true,
			CreatedAt:     snap.Date,
		}
	}

	return ledger, nil
}

// newAdmission opens a fresh position for a ticker entering the portfolio
// after day one, at the small fixed allocation target.
func newAdmission(rec models.SnapshotRecord, policy Policy) (*models.Position, error) {
	if !rec.Price.IsPositive() {
		return nil, &models.MalformedRecordError{
			Ticker: rec.Ticker, Field: "price", Raw: rec.Price.String(),
			Reason: "price must be positive to open a position",
		}
	}
	value := policy.NewTickerAllocation.Mul(policy.CapitalBase)
	return &models.Position{
		Ticker:            rec.Ticker,
		Sector:            rec.Sector,
		MarketCapCategory: rec.MarketCapCategory,
		Allocation:        policy.NewTickerAllocation,
		Quantity:          value.Div(rec.Price),
		Investment:        value,
		FirstEntry: models.EntryStage{
			Triggered: true,
			Price:     models.DecimalPtr(rec.Price),
		},
		TodayPrice:    models.DecimalPtr(rec.Price),
		UnrealizedROI: decimal.Zero,
		CombinedROI:   decimal.Zero,
		TotalAmount:   value,
		Value:         value,
		Overdraft:     decimal.Zero,
		Active:        true,
	}, nil
}
