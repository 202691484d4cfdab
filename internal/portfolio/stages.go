package portfolio

import (
	"github.com/shopspring/decimal"

	"github.com/ASMdeS/smart-impulse-portfolio/internal/models"
)

// applyStagedEntries evaluates the second and third entry rules for one
// position. A stage fires when the previous stage's day counter hits the
// threshold or today's price exceeds the previous entry price by the
// configured factor. At most one stage fires per cycle: a position that
// just reached stage two is not considered for stage three until the next
// cycle.
func applyStagedEntries(pos *models.Position, policy Policy) error {
	// A zero-price day cannot finance shares, so neither trigger is
	// evaluated until the price recovers.
	if !pos.Active || pos.TodayPrice == nil || !pos.TodayPrice.IsPositive() {
		return nil
	}
	today := *pos.TodayPrice

	if !pos.SecondEntry.Triggered {
		if pos.FirstEntry.Price == nil {
			return &InvariantViolationError{
				Ticker: pos.Ticker, Check: "stage-price",
				Detail: "first entry has no recorded price",
			}
		}
		threshold := pos.FirstEntry.Price.Mul(policy.StagePriceFactor)
		if pos.FirstEntry.DaysSince == policy.StageDays || today.GreaterThan(threshold) {
			triggerStage(pos, &pos.SecondEntry, today, policy)
		}
		// Sequential dependency: stage three is only evaluated for
		// positions whose second entry predates this cycle.
		return nil
	}

	if !pos.ThirdEntry.Triggered {
		if pos.SecondEntry.Price == nil {
			return &InvariantViolationError{
				Ticker: pos.Ticker, Check: "stage-price",
				Detail: "second entry has no recorded price",
			}
		}
		threshold := pos.SecondEntry.Price.Mul(policy.StagePriceFactor)
		if pos.SecondEntry.DaysSince == policy.StageDays || today.GreaterThan(threshold) {
			triggerStage(pos, &pos.ThirdEntry, today, policy)
		}
	}
	return nil
}

// triggerStage records the entry and finances it: a fixed capital
// increment buys shares at today's price. Investment only ever grows here.
func triggerStage(pos *models.Position, stage *models.EntryStage, today decimal.Decimal, policy Policy) {
	stage.Triggered = true
	stage.Price = models.DecimalPtr(today)
	pos.Investment = pos.Investment.Add(policy.StageIncrement)
	pos.Quantity = pos.Quantity.Add(policy.StageIncrement.Div(today))
}
