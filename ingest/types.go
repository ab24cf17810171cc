/*
Package ingest provides the dataset ingestion engine.

PURPOSE:
  This package contains the core pipeline that turns an uploaded CSV
  of sales order lines into a queryable, aggregated dataset: parse and
  normalize rows, drop duplicate line items, compute summary aggregates,
  and commit everything through a DatasetStore in one atomic step.

KEY CONCEPTS IN THIS FILE (types.go):
  - Dataset: one upload's processed representation plus metadata
  - SalesRecord: a single normalized order line, immutable once persisted
  - Aggregates: ingestion-time summary statistics cached on the dataset
  - DatasetStatus: the client-observable state (processing/ready/failed)

DESIGN PRINCIPLES:
  1. Precision: monetary fields use decimal.Decimal, never float64
  2. All-or-nothing: records become visible only when the dataset is ready
  3. Determinism: identical record sets always produce identical aggregates

SEE ALSO:
  - parser.go: CSV parsing and normalization
  - dedupe.go: duplicate line-item removal
  - aggregate.go: summary statistics
  - runner.go: the ingestion state machine
  - store.go: persistence interface
*/
package ingest

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DATASET STATUS - Client-observable state machine
// =============================================================================

// DatasetStatus is the lifecycle state of a dataset.
// processing is the initial state; ready and failed are terminal.
type DatasetStatus string

const (
	StatusProcessing DatasetStatus = "processing"
	StatusReady      DatasetStatus = "ready"
	StatusFailed     DatasetStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s DatasetStatus) Terminal() bool {
	return s == StatusReady || s == StatusFailed
}

// =============================================================================
// DATASET - One uploaded CSV's processed representation
// =============================================================================

// Dataset holds the metadata for one upload. It is created in
// StatusProcessing and mutated only by the ingestion runner; once a
// terminal status is reached the row is immutable except for deletion.
type Dataset struct {
	ID          string
	Owner       string
	Filename    string
	Status      DatasetStatus
	RowCount    int
	RowsDropped int
	DateMin     *time.Time
	DateMax     *time.Time
	TotalSales  decimal.Decimal
	CreatedAt   time.Time

	// Aggregates is the ingestion-time cache. Nil until the dataset
	// is ready.
	Aggregates *Aggregates
}

// =============================================================================
// SALES RECORD - A normalized order line
// =============================================================================

// SalesRecord is one order line belonging to exactly one dataset.
// ID is assigned by the store on insert and is the stable tie-break
// for sorted queries.
type SalesRecord struct {
	ID              int64
	DatasetID       string
	OrderNumber     int
	QuantityOrdered int
	PriceEach       decimal.Decimal
	Sales           decimal.Decimal
	OrderDate       time.Time
	Status          string
	MonthID         int
	YearID          int
	ProductLine     string
	ProductCode     string
	CustomerName    string
	Country         string
	DealSize        string
	TotalSales      decimal.Decimal
	OrderQuarter    string
}

// DedupKey identifies a logical order line. Two rows sharing the same
// key are the same line item; the first occurrence wins.
type DedupKey struct {
	OrderNumber int
	ProductCode string
}

// Key returns the record's dedup key.
func (r SalesRecord) Key() DedupKey {
	return DedupKey{OrderNumber: r.OrderNumber, ProductCode: r.ProductCode}
}

// QuarterOf maps a date to its calendar quarter label (Jan-Mar = Q1).
func QuarterOf(t time.Time) string {
	switch (int(t.Month()) - 1) / 3 {
	case 0:
		return "Q1"
	case 1:
		return "Q2"
	case 2:
		return "Q3"
	default:
		return "Q4"
	}
}

// =============================================================================
// AGGREGATES - Summary statistics computed at ingestion
// =============================================================================

// Aggregates are the precomputed summary statistics served alongside
// paginated records. They are exactly the reduction over the dataset's
// surviving records.
type Aggregates struct {
	TotalSales      decimal.Decimal `json:"total_sales"`
	TotalOrders     int             `json:"total_orders"`
	AvgOrderValue   decimal.Decimal `json:"avg_order_value"`
	SalesByQuarter  []QuarterSales  `json:"sales_by_quarter"`
	SalesByCountry  []GroupSales    `json:"sales_by_country"`
	SalesByCustomer []GroupSales    `json:"sales_by_customer"`
	SalesByDealSize []GroupSales    `json:"sales_by_deal_size"`
}

// QuarterSales is one entry of the chronological quarter breakdown.
type QuarterSales struct {
	Year       int             `json:"year"`
	Quarter    string          `json:"quarter"`
	TotalSales decimal.Decimal `json:"total_sales"`
	OrderCount int             `json:"order_count"`
}

// GroupSales is one entry of a keyed breakdown (country, customer,
// deal size). OrderCount counts records in the group, not distinct
// orders.
type GroupSales struct {
	Key        string          `json:"key"`
	TotalSales decimal.Decimal `json:"total_sales"`
	OrderCount int             `json:"order_count"`
}
