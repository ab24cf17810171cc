/*
aggregate.go - Summary statistics over a dataset's record set

PURPOSE:
  Computes the Aggregates cached on a dataset at ingestion time:
  totals, average order value, and breakdowns by quarter, country,
  customer and deal size.

DETERMINISM:
  Grouping is a map-reduce followed by an explicit sort, so the output
  is independent of input order. Ties in the descending breakdowns are
  broken by group key ascending.

ORDER COUNTING:
  total_orders counts distinct order numbers; breakdown order_count
  counts records (line items) in the group. This mirrors what the
  dashboard charts display.
*/
package ingest

import (
	"sort"

	"github.com/shopspring/decimal"
)

// DefaultTopN caps the country and customer breakdowns.
const DefaultTopN = 10

// Aggregate reduces a deduplicated record set to its summary
// statistics. topN bounds the country/customer breakdowns; values <= 0
// use DefaultTopN.
func Aggregate(records []SalesRecord, topN int) Aggregates {
	if topN <= 0 {
		topN = DefaultTopN
	}

	agg := Aggregates{
		TotalSales:      decimal.Zero,
		AvgOrderValue:   decimal.Zero,
		SalesByQuarter:  []QuarterSales{},
		SalesByCountry:  []GroupSales{},
		SalesByCustomer: []GroupSales{},
		SalesByDealSize: []GroupSales{},
	}

	type quarterKey struct {
		Year    int
		Quarter string
	}

	orders := make(map[int]struct{})
	quarters := make(map[quarterKey]*QuarterSales)
	countries := make(map[string]*GroupSales)
	customers := make(map[string]*GroupSales)
	dealSizes := make(map[string]*GroupSales)

	group := func(m map[string]*GroupSales, key string, sales decimal.Decimal) {
		g, ok := m[key]
		if !ok {
			g = &GroupSales{Key: key, TotalSales: decimal.Zero}
			m[key] = g
		}
		g.TotalSales = g.TotalSales.Add(sales)
		g.OrderCount++
	}

	for _, rec := range records {
		agg.TotalSales = agg.TotalSales.Add(rec.TotalSales)
		orders[rec.OrderNumber] = struct{}{}

		// Year comes from the source YEAR_ID column, not the order date.
		qk := quarterKey{Year: rec.YearID, Quarter: rec.OrderQuarter}
		q, ok := quarters[qk]
		if !ok {
			q = &QuarterSales{Year: qk.Year, Quarter: qk.Quarter, TotalSales: decimal.Zero}
			quarters[qk] = q
		}
		q.TotalSales = q.TotalSales.Add(rec.TotalSales)
		q.OrderCount++

		group(countries, rec.Country, rec.TotalSales)
		group(customers, rec.CustomerName, rec.TotalSales)
		group(dealSizes, rec.DealSize, rec.TotalSales)
	}

	agg.TotalOrders = len(orders)
	if agg.TotalOrders > 0 {
		agg.AvgOrderValue = agg.TotalSales.
			Div(decimal.NewFromInt(int64(agg.TotalOrders))).
			Round(2)
	}

	for _, q := range quarters {
		agg.SalesByQuarter = append(agg.SalesByQuarter, *q)
	}
	sort.Slice(agg.SalesByQuarter, func(i, j int) bool {
		a, b := agg.SalesByQuarter[i], agg.SalesByQuarter[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Quarter < b.Quarter
	})

	agg.SalesByCountry = topGroups(countries, topN)
	agg.SalesByCustomer = topGroups(customers, topN)
	agg.SalesByDealSize = dealSizeGroups(dealSizes)

	return agg
}

// topGroups sorts descending by total sales (key ascending on ties)
// and caps the result at n entries.
func topGroups(m map[string]*GroupSales, n int) []GroupSales {
	out := make([]GroupSales, 0, len(m))
	for _, g := range m {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		cmp := out[i].TotalSales.Cmp(out[j].TotalSales)
		if cmp != 0 {
			return cmp > 0
		}
		return out[i].Key < out[j].Key
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// dealSizeRank keeps the Small/Medium/Large buckets in their natural
// order; unknown labels sort after, alphabetically.
var dealSizeRank = map[string]int{"Small": 0, "Medium": 1, "Large": 2}

func dealSizeGroups(m map[string]*GroupSales) []GroupSales {
	out := make([]GroupSales, 0, len(m))
	for _, g := range m {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, iKnown := dealSizeRank[out[i].Key]
		rj, jKnown := dealSizeRank[out[j].Key]
		switch {
		case iKnown && jKnown:
			return ri < rj
		case iKnown:
			return true
		case jKnown:
			return false
		default:
			return out[i].Key < out[j].Key
		}
	})
	return out
}
