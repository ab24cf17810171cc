/*
store.go - Persistence interface for datasets and their records

PURPOSE:
  Defines the interface between the ingestion engine and the database.
  Different implementations can use SQLite or in-memory storage.

VISIBILITY CONTRACT:
  Records and aggregates for a dataset become visible in one atomic
  step: CompleteIngestion() writes the record set, the cached
  aggregates, the counters and the status flip to ready inside a single
  transaction. A client that observes status=ready always sees the full,
  consistent result; a client polling during processing never sees
  partial records.

TRANSITION GUARDS:
  CompleteIngestion and MarkFailed only apply to datasets currently in
  processing. Anything else returns an error wrapping
  ErrInvalidTransition - terminal states are final.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite store
  - ingest/store: in-memory store for tests

SEE ALSO:
  - runner.go: the only writer of status transitions
*/
package ingest

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// IngestionResult is everything CompleteIngestion commits atomically
// with the processing -> ready flip.
type IngestionResult struct {
	Records     []SalesRecord
	Aggregates  Aggregates
	RowCount    int
	RowsDropped int
	DateMin     *time.Time
	DateMax     *time.Time
	TotalSales  decimal.Decimal
}

// SortDir is the sort direction of a record query.
type SortDir string

const (
	SortAsc  SortDir = "asc"
	SortDesc SortDir = "desc"
)

// RecordQuery selects a page of a dataset's records.
// Pages are 1-indexed; a page beyond the result set yields an empty
// slice, not an error. Sorting is stable with an id-ascending tie-break.
type RecordQuery struct {
	Page     int
	PageSize int
	SortBy   string
	SortDir  SortDir

	// Filters. Zero values mean "no filter"; date bounds are inclusive.
	Status      string
	ProductLine string
	DateFrom    *time.Time
	DateTo      *time.Time
}

// DatasetStore handles persistence of datasets and their records.
// All mutations to one dataset's status are serialized by the
// implementation; distinct datasets do not contend.
type DatasetStore interface {
	// CreateDataset persists a new dataset in StatusProcessing.
	CreateDataset(ctx context.Context, d *Dataset) error

	// GetDataset returns a dataset by id, including cached aggregates
	// once ready. Returns ErrDatasetNotFound if absent.
	GetDataset(ctx context.Context, id string) (*Dataset, error)

	// ListDatasets returns the owner's datasets, newest first.
	ListDatasets(ctx context.Context, owner string) ([]Dataset, error)

	// CompleteIngestion atomically writes records, aggregates and
	// counters, and flips processing -> ready.
	CompleteIngestion(ctx context.Context, id string, res IngestionResult) error

	// MarkFailed flips processing -> failed. No records are written.
	MarkFailed(ctx context.Context, id string) error

	// QueryRecords returns one page of records plus the total count
	// matching the filters (ignoring pagination).
	QueryRecords(ctx context.Context, datasetID string, q RecordQuery) ([]SalesRecord, int, error)

	// AllRecords returns every record of a dataset ordered by
	// order_number then id, for export.
	AllRecords(ctx context.Context, datasetID string) ([]SalesRecord, error)

	// DeleteDataset removes a dataset and cascades to its records.
	DeleteDataset(ctx context.Context, id string) error

	// FailStale flips processing datasets created before the cutoff to
	// failed, returning how many were swept. Recovers datasets orphaned
	// by a process crash.
	FailStale(ctx context.Context, cutoff time.Time) (int, error)
}

// SortableFields whitelists RecordQuery.SortBy values. Keys are the
// wire names used by the API; implementations map them to storage
// columns or struct fields.
var SortableFields = map[string]bool{
	"order_number":     true,
	"quantity_ordered": true,
	"price_each":       true,
	"sales":            true,
	"order_date":       true,
	"status":           true,
	"month_id":         true,
	"year_id":          true,
	"product_line":     true,
	"product_code":     true,
	"customer_name":    true,
	"country":          true,
	"deal_size":        true,
	"total_sales":      true,
	"order_quarter":    true,
}

// Normalize fills query defaults and clamps page_size the way the API
// documents it (1..100, default 20).
func (q *RecordQuery) Normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 20
	}
	if q.PageSize > 100 {
		q.PageSize = 100
	}
	if !SortableFields[q.SortBy] {
		q.SortBy = "order_number"
	}
	if q.SortDir != SortDesc {
		q.SortDir = SortAsc
	}
}
