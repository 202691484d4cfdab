package models

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// MarketCapCategory buckets a company by market capitalization.
type MarketCapCategory string

const (
	MarketCapSmall  MarketCapCategory = "Small"
	MarketCapMedium MarketCapCategory = "Medium"
	MarketCapLarge  MarketCapCategory = "Large"
)

var (
	smallCapCeiling  = decimal.NewFromInt(2000)
	mediumCapCeiling = decimal.NewFromInt(10000)
)

// BucketMarketCap maps a market cap in $M to its category:
// [0,2000) Small, [2000,10000] Medium, (10000,inf) Large.
func BucketMarketCap(capM decimal.Decimal) MarketCapCategory {
	if capM.LessThan(smallCapCeiling) {
		return MarketCapSmall
	}
	if capM.LessThanOrEqual(mediumCapCeiling) {
		return MarketCapMedium
	}
	return MarketCapLarge
}

// SnapshotRecord is one screener row after cleaning.
type SnapshotRecord struct {
	Ticker            string            `json:"ticker"`
	Price             decimal.Decimal   `json:"price"`
	Sector            string            `json:"sector"`
	MarketCapCategory MarketCapCategory `json:"market_cap_category"`
}

// Snapshot is one day's parsed screener export, keyed by ticker.
// It is immutable once built.
type Snapshot struct {
	Date    time.Time
	records map[string]SnapshotRecord
}

// NewSnapshot builds a snapshot from cleaned records. Duplicate tickers are
// a fatal input error.
func NewSnapshot(date time.Time, records []SnapshotRecord) (*Snapshot, error) {
	byTicker := make(map[string]SnapshotRecord, len(records))
	for _, rec := range records {
		if rec.Ticker == "" {
			return nil, &MalformedRecordError{Field: "ticker", Raw: "", Reason: "missing ticker"}
		}
		if _, exists := byTicker[rec.Ticker]; exists {
			return nil, &MalformedRecordError{Ticker: rec.Ticker, Field: "ticker", Raw: rec.Ticker, Reason: "duplicate ticker"}
		}
		if rec.Price.IsNegative() {
			return nil, &MalformedRecordError{Ticker: rec.Ticker, Field: "price", Raw: rec.Price.String(), Reason: "negative price"}
		}
		byTicker[rec.Ticker] = rec
	}
	return &Snapshot{Date: date, records: byTicker}, nil
}

// Len returns the number of tickers in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.records)
}

// Has reports whether the ticker appears in the snapshot.
func (s *Snapshot) Has(ticker string) bool {
	_, ok := s.records[ticker]
	return ok
}

// Get returns the record for a ticker.
func (s *Snapshot) Get(ticker string) (SnapshotRecord, bool) {
	rec, ok := s.records[ticker]
	return rec, ok
}

// Tickers returns all tickers in sorted order.
func (s *Snapshot) Tickers() []string {
	tickers := make([]string, 0, len(s.records))
	for t := range s.records {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers
}

// MalformedRecordError reports a screener row that failed validation.
// A cycle driven by a snapshot containing one is aborted before any
// ledger mutation.
type MalformedRecordError struct {
	Ticker string
	Field  string
	Raw    string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	if e.Ticker == "" {
		return fmt.Sprintf("malformed record: %s %q: %s", e.Field, e.Raw, e.Reason)
	}
	return fmt.Sprintf("malformed record for %s: %s %q: %s", e.Ticker, e.Field, e.Raw, e.Reason)
}
