package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is one buy or sell line in a cycle's notification batch.
type Trade struct {
	Ticker   string          `json:"ticker"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// TradeBatch collects everything bought and sold during one cycle.
// The engine emits it as plain data; formatting and delivery belong to
// the notification consumers.
type TradeBatch struct {
	CycleDate time.Time `json:"cycle_date"`
	Sold      []Trade   `json:"sold"`
	Bought    []Trade   `json:"bought"`
}

// Empty reports whether the batch carries no trades at all.
func (b *TradeBatch) Empty() bool {
	return b == nil || (len(b.Sold) == 0 && len(b.Bought) == 0)
}
