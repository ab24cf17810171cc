/*
dedupe_test.go - Unit tests for duplicate line-item removal

The dedup key is (order_number, product_code). First occurrence wins,
input order is preserved, and the pass is idempotent.
*/
package ingest

import (
	"testing"

	"github.com/shopspring/decimal"
)

func lineItem(order int, product string, qty int) SalesRecord {
	return SalesRecord{
		OrderNumber:     order,
		ProductCode:     product,
		QuantityOrdered: qty,
		PriceEach:       decimal.NewFromInt(10),
		TotalSales:      decimal.NewFromInt(int64(qty * 10)),
	}
}

func TestDeduplicate_FirstOccurrenceWins(t *testing.T) {
	// GIVEN: Three rows where the third repeats the first's key
	// WHEN: Deduplicating
	// THEN: The first copy survives with its original values
	records := []SalesRecord{
		lineItem(100, "A", 5),
		lineItem(100, "B", 7),
		lineItem(100, "A", 99), // duplicate of row 0
	}

	out, dropped := Deduplicate(records)
	if dropped != 1 {
		t.Errorf("Expected 1 dropped, got %d", dropped)
	}
	if len(out) != 2 {
		t.Fatalf("Expected 2 survivors, got %d", len(out))
	}
	if out[0].QuantityOrdered != 5 {
		t.Errorf("First occurrence should win; got quantity %d", out[0].QuantityOrdered)
	}
	if out[1].ProductCode != "B" {
		t.Errorf("Input order should be preserved; got %s second", out[1].ProductCode)
	}
}

func TestDeduplicate_SameProductDifferentOrders(t *testing.T) {
	// The same product on different orders is not a duplicate.
	records := []SalesRecord{
		lineItem(100, "A", 1),
		lineItem(101, "A", 2),
		lineItem(102, "A", 3),
	}

	out, dropped := Deduplicate(records)
	if dropped != 0 || len(out) != 3 {
		t.Errorf("Expected nothing dropped, got %d dropped, %d survivors", dropped, len(out))
	}
}

func TestDeduplicate_Idempotent(t *testing.T) {
	// GIVEN: A record set already deduplicated once
	// WHEN: Deduplicating again
	// THEN: Nothing further is dropped
	records := []SalesRecord{
		lineItem(100, "A", 1),
		lineItem(100, "A", 2),
		lineItem(100, "B", 3),
		lineItem(101, "A", 4),
	}

	once, dropped := Deduplicate(records)
	if dropped != 1 {
		t.Fatalf("Expected 1 dropped on first pass, got %d", dropped)
	}

	twice, dropped := Deduplicate(once)
	if dropped != 0 {
		t.Errorf("Second pass should drop nothing, dropped %d", dropped)
	}
	if len(twice) != len(once) {
		t.Errorf("Second pass changed the record set: %d -> %d", len(once), len(twice))
	}
}

func TestDeduplicate_Empty(t *testing.T) {
	out, dropped := Deduplicate(nil)
	if dropped != 0 || len(out) != 0 {
		t.Errorf("Expected empty result, got %d dropped, %d records", dropped, len(out))
	}
}
