/*
dedupe.go - Duplicate line-item removal

Single pass, O(n) memory. Two rows sharing (order_number, product_code)
are the same logical line item; the first occurrence wins and later
copies are dropped and counted. Surviving order is first-seen order, so
running the pass twice is a no-op.
*/
package ingest

// Deduplicate filters records sharing a DedupKey, keeping the first
// occurrence. Returns the survivors and the number of rows dropped.
// The input slice is not modified.
func Deduplicate(records []SalesRecord) ([]SalesRecord, int) {
	seen := make(map[DedupKey]struct{}, len(records))
	out := make([]SalesRecord, 0, len(records))

	for _, rec := range records {
		k := rec.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, rec)
	}

	return out, len(records) - len(out)
}
