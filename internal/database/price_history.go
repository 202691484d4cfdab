package database

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ASMdeS/smart-impulse-portfolio/internal/models"
)

// AppendPrices stores the cycle's close for every ticker in the snapshot.
// Re-running a cycle for the same date overwrites that date's closes.
func (db *DB) AppendPrices(date time.Time, snap *models.Snapshot) error {
	query := `
		INSERT INTO price_history (ticker, price_date, close)
		VALUES ($1, $2, $3)
		ON CONFLICT (ticker, price_date) DO UPDATE SET close = EXCLUDED.close
	`
	for _, ticker := range snap.Tickers() {
		rec, _ := snap.Get(ticker)
		if _, err := db.conn.Exec(query, ticker, date, rec.Price); err != nil {
			return fmt.Errorf("failed to append price for %s: %w", ticker, err)
		}
	}
	return nil
}

// GetPriceHistory returns a ticker's stored closes in date order.
func (db *DB) GetPriceHistory(ticker string, since *time.Time) ([]models.ClosePrice, error) {
	query := `
		SELECT ticker, price_date, close
		FROM price_history
		WHERE ticker = $1
	`
	args := []interface{}{ticker}
	if since != nil {
		query += ` AND price_date >= $2`
		args = append(args, *since)
	}
	query += ` ORDER BY price_date ASC`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get price history: %w", err)
	}
	defer rows.Close()

	var history []models.ClosePrice
	for rows.Next() {
		var cp models.ClosePrice
		if err := rows.Scan(&cp.Ticker, &cp.Date, &cp.Close); err != nil {
			return nil, fmt.Errorf("failed to scan price history: %w", err)
		}
		history = append(history, cp)
	}
	return history, rows.Err()
}

// GetGrowthReport ranks tickers by growth over their stored history and
// returns the top and worst performers.
func (db *DB) GetGrowthReport(limit int) (*models.GrowthReport, error) {
	query := `
		SELECT ticker,
		       (array_agg(close ORDER BY price_date ASC))[1]  AS first_close,
		       (array_agg(close ORDER BY price_date DESC))[1] AS last_close
		FROM price_history
		GROUP BY ticker
	`
	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to compute growth: %w", err)
	}
	defer rows.Close()

	var growth []models.TickerGrowth
	for rows.Next() {
		var g models.TickerGrowth
		if err := rows.Scan(&g.Ticker, &g.FirstClose, &g.LastClose); err != nil {
			return nil, fmt.Errorf("failed to scan growth row: %w", err)
		}
		if g.FirstClose.IsZero() {
			continue
		}
		g.GrowthPct = g.LastClose.Sub(g.FirstClose).Div(g.FirstClose).Mul(decimal.NewFromInt(100))
		growth = append(growth, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate growth rows: %w", err)
	}

	sort.Slice(growth, func(i, j int) bool {
		return growth[i].GrowthPct.GreaterThan(growth[j].GrowthPct)
	})

	report := &models.GrowthReport{}
	if limit <= 0 || limit > len(growth) {
		limit = len(growth)
	}
	report.Top = append(report.Top, growth[:limit]...)
	worst := make([]models.TickerGrowth, len(growth))
	copy(worst, growth)
	sort.Slice(worst, func(i, j int) bool {
		return worst[i].GrowthPct.LessThan(worst[j].GrowthPct)
	})
	report.Worst = append(report.Worst, worst[:limit]...)
	return report, nil
}
