// Package screener normalizes the raw daily screener export into a clean
// snapshot: one validated record per ticker with price, sector and
// market-cap bucket.
package screener

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ASMdeS/smart-impulse-portfolio/internal/models"
)

// RawRow is one unparsed export row. Price and market cap may arrive
// numeric or currency-formatted ("$1,234.56").
type RawRow struct {
	Ticker    string `json:"ticker"`
	Price     string `json:"price"`
	Sector    string `json:"sector"`
	MarketCap string `json:"market_cap"`
}

// ParseRows validates and cleans raw rows into a snapshot. Duplicate
// tickers and unparseable numbers surface as MalformedRecordError.
func ParseRows(date time.Time, rows []RawRow) (*models.Snapshot, error) {
	records := make([]models.SnapshotRecord, 0, len(rows))
	for _, row := range rows {
		ticker := strings.ToUpper(strings.TrimSpace(row.Ticker))
		if ticker == "" {
			return nil, &models.MalformedRecordError{Field: "ticker", Raw: row.Ticker, Reason: "missing ticker"}
		}

		price, err := cleanNumber(row.Price)
		if err != nil {
			return nil, &models.MalformedRecordError{Ticker: ticker, Field: "price", Raw: row.Price, Reason: err.Error()}
		}

		capM, err := cleanNumber(row.MarketCap)
		if err != nil {
			return nil, &models.MalformedRecordError{Ticker: ticker, Field: "market_cap", Raw: row.MarketCap, Reason: err.Error()}
		}

		records = append(records, models.SnapshotRecord{
			Ticker:            ticker,
			Price:             price,
			Sector:            strings.TrimSpace(row.Sector),
			MarketCapCategory: models.BucketMarketCap(capM),
		})
	}
	return models.NewSnapshot(date, records)
}

// ParseCSV reads a full screener export: a header row, one row per ticker
// and a trailing sheet-level summary row, which is dropped unconditionally.
func ParseCSV(r io.Reader, date time.Time) (*models.Snapshot, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read export header: %w", err)
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	var rows []RawRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read export row: %w", err)
		}
		row, err := cols.extract(record)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, &models.MalformedRecordError{Field: "export", Reason: "export has no data rows"}
	}
	// The last row is the sheet summary, not a ticker.
	rows = rows[:len(rows)-1]

	return ParseRows(date, rows)
}

// columnMap resolves the export's named columns to indices.
type columnMap struct {
	ticker, price, sector, marketCap int
}

func mapColumns(header []string) (*columnMap, error) {
	cols := &columnMap{ticker: -1, price: -1, sector: -1, marketCap: -1}
	for i, name := range header {
		switch normalized := strings.ToLower(strings.TrimSpace(name)); {
		case normalized == "ticker":
			cols.ticker = i
		case normalized == "price":
			cols.price = i
		case normalized == "sector":
			cols.sector = i
		case strings.HasPrefix(normalized, "market cap"):
			cols.marketCap = i
		}
	}
	for _, missing := range []struct {
		idx  int
		name string
	}{
		{cols.ticker, "Ticker"},
		{cols.price, "Price"},
		{cols.sector, "Sector"},
		{cols.marketCap, "Market Cap"},
	} {
		if missing.idx == -1 {
			return nil, &models.MalformedRecordError{Field: missing.name, Reason: "required column missing from export"}
		}
	}
	return cols, nil
}

func (c *columnMap) extract(record []string) (RawRow, error) {
	max := c.ticker
	for _, idx := range []int{c.price, c.sector, c.marketCap} {
		if idx > max {
			max = idx
		}
	}
	if len(record) <= max {
		return RawRow{}, &models.MalformedRecordError{Field: "row", Raw: strings.Join(record, ","), Reason: "row has too few columns"}
	}
	return RawRow{
		Ticker:    record[c.ticker],
		Price:     record[c.price],
		Sector:    record[c.sector],
		MarketCap: record[c.marketCap],
	}, nil
}

// cleanNumber strips the currency marker and group separators and parses
// the remainder as a non-negative decimal.
func cleanNumber(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, fmt.Errorf("missing value")
	}
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("not a number")
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative value")
	}
	return d, nil
}
