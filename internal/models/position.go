package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryStage tracks one tranche of the staged buy-in policy.
type EntryStage struct {
	Triggered bool             `json:"triggered"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	DaysSince int              `json:"days_since"`
}

// Position is the authoritative per-ticker state within a ledger.
type Position struct {
	Ticker            string            `json:"ticker"`
	Sector            string            `json:"sector"`
	MarketCapCategory MarketCapCategory `json:"market_cap_category"`

	Allocation decimal.Decimal `json:"allocation"`
	Quantity   decimal.Decimal `json:"quantity"`
	Investment decimal.Decimal `json:"investment"`

	FirstEntry  EntryStage `json:"first_entry"`
	SecondEntry EntryStage `json:"second_entry"`
	ThirdEntry  EntryStage `json:"third_entry"`

	TodayPrice     *decimal.Decimal `json:"today_price,omitempty"`
	YesterdayPrice *decimal.Decimal `json:"yesterday_price,omitempty"`
	SellPrice      *decimal.Decimal `json:"sell_price,omitempty"`
	SellValue      *decimal.Decimal `json:"sell_value,omitempty"`

	MaterializedROI *decimal.Decimal `json:"materialized_roi,omitempty"`
	UnrealizedROI   decimal.Decimal  `json:"unrealized_roi"`
	CombinedROI     decimal.Decimal  `json:"combined_roi"`

	// TotalAmount is the unscaled mark-to-market value; Value is the
	// capital-normalized figure and Overdraft the excess beyond it, so
	// Value + Overdraft == TotalAmount every cycle.
	TotalAmount decimal.Decimal `json:"total_amount"`
	Value       decimal.Decimal `json:"value"`
	Overdraft   decimal.Decimal `json:"overdraft"`

	DaysHolding int  `json:"days_holding"`
	Active      bool `json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	cp := *p
	cp.FirstEntry.Price = cloneDecimal(p.FirstEntry.Price)
	cp.SecondEntry.Price = cloneDecimal(p.SecondEntry.Price)
	cp.ThirdEntry.Price = cloneDecimal(p.ThirdEntry.Price)
	cp.TodayPrice = cloneDecimal(p.TodayPrice)
	cp.YesterdayPrice = cloneDecimal(p.YesterdayPrice)
	cp.SellPrice = cloneDecimal(p.SellPrice)
	cp.SellValue = cloneDecimal(p.SellValue)
	cp.MaterializedROI = cloneDecimal(p.MaterializedROI)
	return &cp
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}

// DecimalPtr is a convenience for building nullable decimal fields.
func DecimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}
