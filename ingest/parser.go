/*
parser.go - CSV parsing and normalization

PURPOSE:
  Turns raw CSV bytes into typed SalesRecords. The header is validated
  up front (missing required columns fail the whole upload); individual
  rows that fail to parse are dropped and counted, never fatal.

NORMALIZATION RULES:
  - SALES is trusted when present and non-negative, otherwise recomputed
    as QUANTITYORDERED * PRICEEACH
  - TOTAL_SALES is always QUANTITYORDERED * PRICEEACH (the CSV's SALES
    column is sometimes rounded; quantity*price is the authoritative
    revenue per line)
  - ORDER_QUARTER is derived from ORDERDATE by calendar quarter
  - Dates arrive in mixed layouts; parseDate tries each known layout

SEE ALSO:
  - dedupe.go: runs on the parser's output
  - export.go: writes the same column set back out
*/
package ingest

import (
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RequiredColumns are the CSV header names the parser needs.
// Extra columns are ignored.
var RequiredColumns = []string{
	"ORDERNUMBER",
	"PRODUCTCODE",
	"QUANTITYORDERED",
	"PRICEEACH",
	"ORDERDATE",
	"SALES",
	"STATUS",
	"MONTH_ID",
	"YEAR_ID",
	"PRODUCTLINE",
	"CUSTOMERNAME",
	"COUNTRY",
	"DEALSIZE",
}

// dateLayouts are tried in order. The reference dataset mixes
// "1/6/2003 0:00" style timestamps with ISO dates.
var dateLayouts = []string{
	"1/2/2006 15:04",
	"1/2/2006",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC3339,
}

// ParseResult is the outcome of parsing one CSV stream.
type ParseResult struct {
	Records   []SalesRecord
	TotalRows int // data rows read, excluding the header
	Malformed int // rows dropped because a required field failed to parse
}

// ParseCSV reads the full stream and returns normalized records plus
// drop counters. A missing required column returns *SchemaError and no
// records. The stream is consumed once; a fresh parse starts over.
func ParseCSV(r io.Reader) (*ParseResult, error) {
	cr := csv.NewReader(r)
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, &SchemaError{Missing: RequiredColumns}
	}
	cols, schemaErr := indexHeader(header)
	if schemaErr != nil {
		return nil, schemaErr
	}

	res := &ParseResult{}
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				// Structurally broken row (bad quoting). Dropped like
				// any other malformed row.
				res.TotalRows++
				res.Malformed++
				continue
			}
			// A reader fault recurs on every Read; fatal to the job.
			return nil, err
		}
		res.TotalRows++

		rec, rowErr := parseRow(row, cols, line)
		if rowErr != nil {
			res.Malformed++
			continue
		}
		res.Records = append(res.Records, rec)
	}

	return res, nil
}

// ValidateHeader checks the first CSV line of data for the required
// columns without consuming the rest of the stream. Used on the upload
// fast path so a schema error is reported before a dataset is created.
func ValidateHeader(r io.Reader) error {
	cr := csv.NewReader(r)
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return &SchemaError{Missing: RequiredColumns}
	}
	if _, schemaErr := indexHeader(header); schemaErr != nil {
		return schemaErr
	}
	return nil
}

// indexHeader maps required column names to their positions.
func indexHeader(header []string) (map[string]int, *SchemaError) {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(strings.ReplaceAll(h, `"`, ""))
		cols[name] = i
	}

	var missing []string
	for _, name := range RequiredColumns {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Missing: missing}
	}
	return cols, nil
}

func parseRow(row []string, cols map[string]int, line int) (SalesRecord, *RowError) {
	field := func(name string) string {
		i := cols[name]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	orderNumber, err := parseInt(field("ORDERNUMBER"))
	if err != nil {
		return SalesRecord{}, &RowError{Line: line, Field: "ORDERNUMBER", Err: err}
	}
	productCode := field("PRODUCTCODE")
	if productCode == "" {
		return SalesRecord{}, &RowError{Line: line, Field: "PRODUCTCODE", Err: errEmptyField}
	}
	quantity, err := parseInt(field("QUANTITYORDERED"))
	if err != nil {
		return SalesRecord{}, &RowError{Line: line, Field: "QUANTITYORDERED", Err: err}
	}
	price, err := decimal.NewFromString(field("PRICEEACH"))
	if err != nil {
		return SalesRecord{}, &RowError{Line: line, Field: "PRICEEACH", Err: err}
	}
	orderDate, err := parseDate(field("ORDERDATE"))
	if err != nil {
		return SalesRecord{}, &RowError{Line: line, Field: "ORDERDATE", Err: err}
	}
	monthID, err := parseInt(field("MONTH_ID"))
	if err != nil {
		return SalesRecord{}, &RowError{Line: line, Field: "MONTH_ID", Err: err}
	}
	yearID, err := parseInt(field("YEAR_ID"))
	if err != nil {
		return SalesRecord{}, &RowError{Line: line, Field: "YEAR_ID", Err: err}
	}

	totalSales := price.Mul(decimal.NewFromInt(int64(quantity)))

	// Trust the explicit SALES column when it parses and is non-negative,
	// otherwise fall back to quantity*price.
	sales := totalSales
	if s, err := decimal.NewFromString(field("SALES")); err == nil && !s.IsNegative() {
		sales = s
	}

	return SalesRecord{
		OrderNumber:     orderNumber,
		QuantityOrdered: quantity,
		PriceEach:       price,
		Sales:           sales,
		OrderDate:       orderDate,
		Status:          field("STATUS"),
		MonthID:         monthID,
		YearID:          yearID,
		ProductLine:     field("PRODUCTLINE"),
		ProductCode:     productCode,
		CustomerName:    field("CUSTOMERNAME"),
		Country:         field("COUNTRY"),
		DealSize:        field("DEALSIZE"),
		TotalSales:      totalSales,
		OrderQuarter:    QuarterOf(orderDate),
	}, nil
}

var errEmptyField = errors.New("empty field")

// parseInt accepts plain integers and integral floats ("30" and "30.0").
func parseInt(s string) (int, error) {
	if s == "" {
		return 0, errEmptyField
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	n := int(f)
	if float64(n) != f {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}

func parseDate(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
