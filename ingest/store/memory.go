// Package store provides DatasetStore implementations.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/salesboard/ingest-engine/ingest"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	datasets map[string]*ingest.Dataset
	records  map[string][]ingest.SalesRecord
	nextID   int64
}

func NewMemory() *Memory {
	return &Memory{
		datasets: make(map[string]*ingest.Dataset),
		records:  make(map[string][]ingest.SalesRecord),
	}
}

func (m *Memory) CreateDataset(_ context.Context, d *ingest.Dataset) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *d
	m.datasets[d.ID] = &cp
	return nil
}

func (m *Memory) GetDataset(_ context.Context, id string) (*ingest.Dataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.datasets[id]
	if !ok {
		return nil, ingest.ErrDatasetNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *Memory) ListDatasets(_ context.Context, owner string) ([]ingest.Dataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ingest.Dataset
	for _, d := range m.datasets {
		if d.Owner == owner {
			out = append(out, *d)
		}
	}
	// Newest first; id breaks creation-time ties deterministically.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) CompleteIngestion(_ context.Context, id string, res ingest.IngestionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.datasets[id]
	if !ok {
		return ingest.ErrDatasetNotFound
	}
	if d.Status != ingest.StatusProcessing {
		return &ingest.InvalidTransitionError{DatasetID: id, From: d.Status, To: ingest.StatusReady}
	}

	recs := make([]ingest.SalesRecord, len(res.Records))
	copy(recs, res.Records)
	for i := range recs {
		m.nextID++
		recs[i].ID = m.nextID
		recs[i].DatasetID = id
	}
	m.records[id] = recs

	agg := res.Aggregates
	d.Status = ingest.StatusReady
	d.RowCount = res.RowCount
	d.RowsDropped = res.RowsDropped
	d.DateMin = res.DateMin
	d.DateMax = res.DateMax
	d.TotalSales = res.TotalSales
	d.Aggregates = &agg
	return nil
}

func (m *Memory) MarkFailed(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.datasets[id]
	if !ok {
		return ingest.ErrDatasetNotFound
	}
	if d.Status != ingest.StatusProcessing {
		return &ingest.InvalidTransitionError{DatasetID: id, From: d.Status, To: ingest.StatusFailed}
	}
	d.Status = ingest.StatusFailed
	return nil
}

func (m *Memory) QueryRecords(_ context.Context, datasetID string, q ingest.RecordQuery) ([]ingest.SalesRecord, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.datasets[datasetID]; !ok {
		return nil, 0, ingest.ErrDatasetNotFound
	}
	q.Normalize()

	var matched []ingest.SalesRecord
	for _, rec := range m.records[datasetID] {
		if q.Status != "" && rec.Status != q.Status {
			continue
		}
		if q.ProductLine != "" && rec.ProductLine != q.ProductLine {
			continue
		}
		if q.DateFrom != nil && rec.OrderDate.Before(*q.DateFrom) {
			continue
		}
		if q.DateTo != nil && rec.OrderDate.After(*q.DateTo) {
			continue
		}
		matched = append(matched, rec)
	}

	sort.Slice(matched, func(i, j int) bool {
		cmp := compareField(matched[i], matched[j], q.SortBy)
		if q.SortDir == ingest.SortDesc {
			cmp = -cmp
		}
		if cmp != 0 {
			return cmp < 0
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	start := (q.Page - 1) * q.PageSize
	if start >= total {
		return []ingest.SalesRecord{}, total, nil
	}
	end := start + q.PageSize
	if end > total {
		end = total
	}
	page := make([]ingest.SalesRecord, end-start)
	copy(page, matched[start:end])
	return page, total, nil
}

func (m *Memory) AllRecords(_ context.Context, datasetID string) ([]ingest.SalesRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.datasets[datasetID]; !ok {
		return nil, ingest.ErrDatasetNotFound
	}
	out := make([]ingest.SalesRecord, len(m.records[datasetID]))
	copy(out, m.records[datasetID])
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderNumber != out[j].OrderNumber {
			return out[i].OrderNumber < out[j].OrderNumber
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) DeleteDataset(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.datasets[id]; !ok {
		return ingest.ErrDatasetNotFound
	}
	delete(m.datasets, id)
	delete(m.records, id)
	return nil
}

func (m *Memory) FailStale(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, d := range m.datasets {
		if d.Status == ingest.StatusProcessing && d.CreatedAt.Before(cutoff) {
			d.Status = ingest.StatusFailed
			n++
		}
	}
	return n, nil
}

// compareField orders two records on one sortable field: -1, 0 or 1.
func compareField(a, b ingest.SalesRecord, field string) int {
	switch field {
	case "order_number":
		return cmpInt(a.OrderNumber, b.OrderNumber)
	case "quantity_ordered":
		return cmpInt(a.QuantityOrdered, b.QuantityOrdered)
	case "price_each":
		return a.PriceEach.Cmp(b.PriceEach)
	case "sales":
		return a.Sales.Cmp(b.Sales)
	case "order_date":
		return cmpTime(a.OrderDate, b.OrderDate)
	case "status":
		return strings.Compare(a.Status, b.Status)
	case "month_id":
		return cmpInt(a.MonthID, b.MonthID)
	case "year_id":
		return cmpInt(a.YearID, b.YearID)
	case "product_line":
		return strings.Compare(a.ProductLine, b.ProductLine)
	case "product_code":
		return strings.Compare(a.ProductCode, b.ProductCode)
	case "customer_name":
		return strings.Compare(a.CustomerName, b.CustomerName)
	case "country":
		return strings.Compare(a.Country, b.Country)
	case "deal_size":
		return strings.Compare(a.DealSize, b.DealSize)
	case "total_sales":
		return a.TotalSales.Cmp(b.TotalSales)
	case "order_quarter":
		return strings.Compare(a.OrderQuarter, b.OrderQuarter)
	default:
		return cmpInt(a.OrderNumber, b.OrderNumber)
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}
