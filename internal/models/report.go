package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClosePrice is one stored daily close for a ticker.
type ClosePrice struct {
	Ticker string          `json:"ticker"`
	Date   time.Time       `json:"date"`
	Close  decimal.Decimal `json:"close"`
}

// TickerGrowth is a ticker's price growth over its stored history,
// (last - first) / first as a percentage.
type TickerGrowth struct {
	Ticker     string          `json:"ticker"`
	FirstClose decimal.Decimal `json:"first_close"`
	LastClose  decimal.Decimal `json:"last_close"`
	GrowthPct  decimal.Decimal `json:"growth_pct"`
}

// GrowthReport holds the dashboard's best/worst performer tables.
type GrowthReport struct {
	Top   []TickerGrowth `json:"top"`
	Worst []TickerGrowth `json:"worst"`
}

// AllocationDistribution groups active allocation by sector and by
// market-cap bucket for the dashboard's distribution charts.
type AllocationDistribution struct {
	BySector    map[string]decimal.Decimal `json:"by_sector"`
	ByMarketCap map[string]decimal.Decimal `json:"by_market_cap"`
}
