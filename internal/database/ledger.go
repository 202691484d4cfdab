package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ASMdeS/smart-impulse-portfolio/internal/models"
)

const positionColumns = `
	ticker, sector, market_cap,
	allocation, quantity, investment,
	first_triggered, first_price, first_days,
	second_triggered, second_price, second_days,
	third_triggered, third_price, third_days,
	today_price, yesterday_price, sell_price, sell_value,
	materialized_roi, unrealized_roi, combined_roi,
	total_amount, value, overdraft,
	days_holding, active, created_at, updated_at`

// SaveLedger atomically replaces the persisted ledger with a new one and
// records the cycle in ledger_cycles. A crash mid-save never leaves a
// half-written ledger: the transaction either commits fully or not at all.
func (db *DB) SaveLedger(ledger *models.Ledger) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM positions`); err != nil {
		return fmt.Errorf("failed to clear positions: %w", err)
	}

	insertQuery := `
		INSERT INTO positions (` + positionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		        $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29)
	`
	now := time.Now()
	for _, ticker := range ledger.Tickers() {
		p := ledger.Positions[ticker]
		createdAt := p.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		_, err := tx.Exec(insertQuery,
			ticker, p.Sector, string(p.MarketCapCategory),
			p.Allocation, p.Quantity, p.Investment,
			p.FirstEntry.Triggered, decimalArg(p.FirstEntry.Price), p.FirstEntry.DaysSince,
			p.SecondEntry.Triggered, decimalArg(p.SecondEntry.Price), p.SecondEntry.DaysSince,
			p.ThirdEntry.Triggered, decimalArg(p.ThirdEntry.Price), p.ThirdEntry.DaysSince,
			decimalArg(p.TodayPrice), decimalArg(p.YesterdayPrice), decimalArg(p.SellPrice), decimalArg(p.SellValue),
			decimalArg(p.MaterializedROI), p.UnrealizedROI, p.CombinedROI,
			p.TotalAmount, p.Value, p.Overdraft,
			p.DaysHolding, p.Active, createdAt, now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert position %s: %w", ticker, err)
		}
	}

	cycleQuery := `
		INSERT INTO ledger_cycles (cycle_date, capital_base, total_value, overdraft, active_positions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (cycle_date) DO UPDATE SET
			capital_base = EXCLUDED.capital_base,
			total_value = EXCLUDED.total_value,
			overdraft = EXCLUDED.overdraft,
			active_positions = EXCLUDED.active_positions,
			created_at = EXCLUDED.created_at
	`
	summary := ledger.Summary()
	_, err = tx.Exec(cycleQuery,
		ledger.CycleDate, ledger.CapitalBase, summary.TotalValue,
		ledger.Overdraft, summary.ActivePositions, now,
	)
	if err != nil {
		return fmt.Errorf("failed to record ledger cycle: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ledger: %w", err)
	}
	return nil
}

// LoadLedger reads the persisted ledger, or returns (nil, nil) when no
// cycle has ever been saved.
func (db *DB) LoadLedger() (*models.Ledger, error) {
	var cycleDate time.Time
	var capitalBase, overdraft decimal.Decimal
	err := db.conn.QueryRow(`
		SELECT cycle_date, capital_base, overdraft
		FROM ledger_cycles
		ORDER BY cycle_date DESC
		LIMIT 1
	`).Scan(&cycleDate, &capitalBase, &overdraft)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger cycle: %w", err)
	}

	rows, err := db.conn.Query(`SELECT ` + positionColumns + ` FROM positions ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("failed to load positions: %w", err)
	}
	defer rows.Close()

	ledger := &models.Ledger{
		CapitalBase: capitalBase,
		CycleDate:   cycleDate,
		Overdraft:   overdraft,
		Positions:   make(map[string]*models.Position),
	}
	for rows.Next() {
		ticker, p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		ledger.Positions[ticker] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate positions: %w", err)
	}
	return ledger, nil
}

// GetPosition retrieves a single position row by its ledger key.
func (db *DB) GetPosition(ticker string) (*models.Position, error) {
	row := db.conn.QueryRow(`SELECT `+positionColumns+` FROM positions WHERE ticker = $1`, ticker)
	_, p, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("position not found: %s", ticker)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(row rowScanner) (string, *models.Position, error) {
	var p models.Position
	var ticker, marketCap string
	var firstPrice, secondPrice, thirdPrice sql.NullString
	var todayPrice, yesterdayPrice, sellPrice, sellValue, materializedROI sql.NullString

	err := row.Scan(
		&ticker, &p.Sector, &marketCap,
		&p.Allocation, &p.Quantity, &p.Investment,
		&p.FirstEntry.Triggered, &firstPrice, &p.FirstEntry.DaysSince,
		&p.SecondEntry.Triggered, &secondPrice, &p.SecondEntry.DaysSince,
		&p.ThirdEntry.Triggered, &thirdPrice, &p.ThirdEntry.DaysSince,
		&todayPrice, &yesterdayPrice, &sellPrice, &sellValue,
		&materializedROI, &p.UnrealizedROI, &p.CombinedROI,
		&p.TotalAmount, &p.Value, &p.Overdraft,
		&p.DaysHolding, &p.Active, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return "", nil, err
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to scan position: %w", err)
	}

	p.Ticker = ticker
	p.MarketCapCategory = models.MarketCapCategory(marketCap)
	p.FirstEntry.Price = nullDecimal(firstPrice)
	p.SecondEntry.Price = nullDecimal(secondPrice)
	p.ThirdEntry.Price = nullDecimal(thirdPrice)
	p.TodayPrice = nullDecimal(todayPrice)
	p.YesterdayPrice = nullDecimal(yesterdayPrice)
	p.SellPrice = nullDecimal(sellPrice)
	p.SellValue = nullDecimal(sellValue)
	p.MaterializedROI = nullDecimal(materializedROI)
	return ticker, &p, nil
}

func decimalArg(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return *d
}

func nullDecimal(ns sql.NullString) *decimal.Decimal {
	if !ns.Valid {
		return nil
	}
	d, err := decimal.NewFromString(ns.String)
	if err != nil {
		return nil
	}
	return &d
}
