package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesboard/ingest-engine/ingest"
	"github.com/salesboard/ingest-engine/ingest/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// seedDataset creates a ready dataset with the given records.
func seedDataset(t *testing.T, mem *store.Memory, id string, records []ingest.SalesRecord) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, mem.CreateDataset(ctx, &ingest.Dataset{
		ID: id, Owner: "owner-1", Filename: id + ".csv",
		Status: ingest.StatusProcessing, TotalSales: decimal.Zero,
		CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, mem.CompleteIngestion(ctx, id, ingest.IngestionResult{
		Records:    records,
		RowCount:   len(records),
		TotalSales: decimal.Zero,
	}))
}

func record(order int, product, status, productLine string, day int) ingest.SalesRecord {
	return ingest.SalesRecord{
		OrderNumber: order,
		ProductCode: product,
		Status:      status,
		ProductLine: productLine,
		OrderDate:   time.Date(2003, time.February, day, 0, 0, 0, 0, time.UTC),
		PriceEach:   decimal.NewFromInt(10),
		Sales:       decimal.NewFromInt(10),
		TotalSales:  decimal.NewFromInt(10),
	}
}

// =============================================================================
// PAGINATION
// =============================================================================

func TestQueryRecords_Pagination(t *testing.T) {
	// GIVEN: 35 records
	// WHEN: Paging with page_size=20
	// THEN: Page 1 has 20, page 2 has 15, page 3 is empty; total is
	//       always 35
	mem := store.NewMemory()
	var records []ingest.SalesRecord
	for i := 0; i < 35; i++ {
		records = append(records, record(1000+i, fmt.Sprintf("P%02d", i), "Shipped", "Motorcycles", 1+i%28))
	}
	seedDataset(t, mem, "ds-1", records)
	ctx := context.Background()

	page1, total, err := mem.QueryRecords(ctx, "ds-1", ingest.RecordQuery{Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.Equal(t, 35, total)
	assert.Len(t, page1, 20)

	page2, total, err := mem.QueryRecords(ctx, "ds-1", ingest.RecordQuery{Page: 2, PageSize: 20})
	require.NoError(t, err)
	assert.Equal(t, 35, total)
	assert.Len(t, page2, 15)

	// Pages never overlap
	assert.NotEqual(t, page1[19].OrderNumber, page2[0].OrderNumber)
	assert.Equal(t, page1[19].OrderNumber+1, page2[0].OrderNumber)

	// Beyond the last page: empty slice, not an error
	page3, total, err := mem.QueryRecords(ctx, "ds-1", ingest.RecordQuery{Page: 3, PageSize: 20})
	require.NoError(t, err)
	assert.Equal(t, 35, total)
	assert.Empty(t, page3)
}

func TestQueryRecords_PageSizeClamped(t *testing.T) {
	mem := store.NewMemory()
	var records []ingest.SalesRecord
	for i := 0; i < 150; i++ {
		records = append(records, record(1000+i, fmt.Sprintf("P%03d", i), "Shipped", "Motorcycles", 1))
	}
	seedDataset(t, mem, "ds-1", records)

	page, total, err := mem.QueryRecords(context.Background(), "ds-1",
		ingest.RecordQuery{Page: 1, PageSize: 5000})
	require.NoError(t, err)
	assert.Equal(t, 150, total)
	assert.Len(t, page, 100, "page_size must clamp to 100")
}

// =============================================================================
// SORTING
// =============================================================================

func TestQueryRecords_SortDescWithTieBreak(t *testing.T) {
	// GIVEN: Records sharing a country value
	// WHEN: Sorting by country descending
	// THEN: Within equal keys, insertion id ascending keeps the order
	//       stable across identical queries
	mem := store.NewMemory()
	records := []ingest.SalesRecord{
		record(1, "A", "Shipped", "Motorcycles", 1),
		record(2, "B", "Shipped", "Motorcycles", 2),
		record(3, "C", "Shipped", "Motorcycles", 3),
	}
	records[0].Country = "Norway"
	records[1].Country = "USA"
	records[2].Country = "Norway"
	seedDataset(t, mem, "ds-1", records)

	got, _, err := mem.QueryRecords(context.Background(), "ds-1",
		ingest.RecordQuery{SortBy: "country", SortDir: ingest.SortDesc})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "USA", got[0].Country)
	assert.Equal(t, 1, got[1].OrderNumber, "ties resolve by insertion id")
	assert.Equal(t, 3, got[2].OrderNumber)
}

func TestQueryRecords_UnknownSortFieldFallsBack(t *testing.T) {
	mem := store.NewMemory()
	seedDataset(t, mem, "ds-1", []ingest.SalesRecord{
		record(300, "A", "Shipped", "Motorcycles", 1),
		record(100, "B", "Shipped", "Motorcycles", 1),
		record(200, "C", "Shipped", "Motorcycles", 1),
	})

	// "password; DROP TABLE" style junk falls back to order_number asc
	got, _, err := mem.QueryRecords(context.Background(), "ds-1",
		ingest.RecordQuery{SortBy: "no_such_field"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 100, got[0].OrderNumber)
	assert.Equal(t, 300, got[2].OrderNumber)
}

// =============================================================================
// FILTERS
// =============================================================================

func TestQueryRecords_Filters(t *testing.T) {
	mem := store.NewMemory()
	seedDataset(t, mem, "ds-1", []ingest.SalesRecord{
		record(1, "A", "Shipped", "Motorcycles", 1),
		record(2, "B", "Cancelled", "Motorcycles", 10),
		record(3, "C", "Shipped", "Classic Cars", 20),
		record(4, "D", "Shipped", "Motorcycles", 28),
	})
	ctx := context.Background()

	// Status filter
	got, total, err := mem.QueryRecords(ctx, "ds-1", ingest.RecordQuery{Status: "Cancelled"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].OrderNumber)

	// Product line filter
	got, total, err = mem.QueryRecords(ctx, "ds-1", ingest.RecordQuery{ProductLine: "Classic Cars"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].OrderNumber)

	// Date range, bounds inclusive
	from := time.Date(2003, time.February, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2003, time.February, 20, 0, 0, 0, 0, time.UTC)
	got, total, err = mem.QueryRecords(ctx, "ds-1", ingest.RecordQuery{DateFrom: &from, DateTo: &to})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].OrderNumber)
	assert.Equal(t, 3, got[1].OrderNumber)

	// Filters combine with AND
	got, total, err = mem.QueryRecords(ctx, "ds-1",
		ingest.RecordQuery{Status: "Shipped", DateFrom: &from, DateTo: &to})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].OrderNumber)
}

func TestQueryRecords_UnknownDataset(t *testing.T) {
	mem := store.NewMemory()
	_, _, err := mem.QueryRecords(context.Background(), "nope", ingest.RecordQuery{})
	assert.True(t, ingest.IsNotFound(err))
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestDeleteDataset_RemovesRecords(t *testing.T) {
	mem := store.NewMemory()
	seedDataset(t, mem, "ds-1", []ingest.SalesRecord{record(1, "A", "Shipped", "Motorcycles", 1)})
	seedDataset(t, mem, "ds-2", []ingest.SalesRecord{record(2, "B", "Shipped", "Motorcycles", 1)})
	ctx := context.Background()

	require.NoError(t, mem.DeleteDataset(ctx, "ds-1"))

	_, err := mem.GetDataset(ctx, "ds-1")
	assert.True(t, ingest.IsNotFound(err))
	assert.True(t, ingest.IsNotFound(mem.DeleteDataset(ctx, "ds-1")))

	// The sibling dataset is untouched
	records, err := mem.AllRecords(ctx, "ds-2")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestListDatasets_OwnerScopedNewestFirst(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	base := time.Now().UTC()

	for i, owner := range []string{"alice", "alice", "bob"} {
		require.NoError(t, mem.CreateDataset(ctx, &ingest.Dataset{
			ID: fmt.Sprintf("ds-%d", i), Owner: owner, Filename: "f.csv",
			Status: ingest.StatusProcessing, TotalSales: decimal.Zero,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	datasets, err := mem.ListDatasets(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, datasets, 2)
	assert.Equal(t, "ds-1", datasets[0].ID, "newest first")
	assert.Equal(t, "ds-0", datasets[1].ID)
}

func TestFailStale_CutoffBoundary(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	cutoff := time.Now().UTC()

	require.NoError(t, mem.CreateDataset(ctx, &ingest.Dataset{
		ID: "old", Owner: "o", Filename: "f.csv",
		Status: ingest.StatusProcessing, TotalSales: decimal.Zero,
		CreatedAt: cutoff.Add(-time.Minute),
	}))
	require.NoError(t, mem.CreateDataset(ctx, &ingest.Dataset{
		ID: "new", Owner: "o", Filename: "f.csv",
		Status: ingest.StatusProcessing, TotalSales: decimal.Zero,
		CreatedAt: cutoff.Add(time.Minute),
	}))

	n, err := mem.FailStale(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	old, _ := mem.GetDataset(ctx, "old")
	assert.Equal(t, ingest.StatusFailed, old.Status)
	fresh, _ := mem.GetDataset(ctx, "new")
	assert.Equal(t, ingest.StatusProcessing, fresh.Status)
}
