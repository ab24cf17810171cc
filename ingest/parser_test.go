/*
parser_test.go - Unit tests for CSV parsing and normalization

Tests for:
- Header validation (missing required columns)
- Row normalization (derived totals, quarter labels)
- Malformed row handling (dropped and counted, never fatal)
- Reader faults (fatal, abort the parse)
- Mixed date layouts
*/
package ingest

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

const testHeader = "ORDERNUMBER,PRODUCTCODE,QUANTITYORDERED,PRICEEACH,ORDERDATE,SALES,STATUS,MONTH_ID,YEAR_ID,PRODUCTLINE,CUSTOMERNAME,COUNTRY,DEALSIZE"

func TestParseCSV_NormalizesRows(t *testing.T) {
	// GIVEN: Two well-formed rows in the reference dataset's shape
	// WHEN: Parsing
	// THEN: Typed records with derived total_sales and order_quarter
	input := testHeader + "\n" +
		"10107,S10_1678,30,95.70,2/24/2003 0:00,2871.00,Shipped,2,2003,Motorcycles,Land of Toys Inc.,USA,Small\n" +
		"10121,S10_1678,34,81.35,5/7/2003 0:00,2765.90,Shipped,5,2003,Motorcycles,Reims Collectables,France,Small\n"

	res, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if res.TotalRows != 2 || res.Malformed != 0 {
		t.Fatalf("Expected 2 rows, 0 malformed; got %d rows, %d malformed", res.TotalRows, res.Malformed)
	}
	if len(res.Records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(res.Records))
	}

	rec := res.Records[0]
	if rec.OrderNumber != 10107 {
		t.Errorf("Expected order 10107, got %d", rec.OrderNumber)
	}
	if rec.ProductCode != "S10_1678" {
		t.Errorf("Expected product S10_1678, got %s", rec.ProductCode)
	}
	if rec.QuantityOrdered != 30 {
		t.Errorf("Expected quantity 30, got %d", rec.QuantityOrdered)
	}
	if !rec.TotalSales.Equal(rec.PriceEach.Mul(decimal.NewFromInt(30))) {
		t.Errorf("Expected total_sales = quantity*price, got %s", rec.TotalSales)
	}
	if rec.TotalSales.String() != "2871" {
		t.Errorf("Expected total_sales 2871, got %s", rec.TotalSales)
	}
	if rec.OrderQuarter != "Q1" {
		t.Errorf("Expected Q1 for February, got %s", rec.OrderQuarter)
	}
	want := time.Date(2003, time.February, 24, 0, 0, 0, 0, time.UTC)
	if !rec.OrderDate.Equal(want) {
		t.Errorf("Expected order date %v, got %v", want, rec.OrderDate)
	}

	if res.Records[1].OrderQuarter != "Q2" {
		t.Errorf("Expected Q2 for May, got %s", res.Records[1].OrderQuarter)
	}
}

func TestParseCSV_MissingColumns(t *testing.T) {
	// GIVEN: A header missing PRICEEACH and DEALSIZE
	// WHEN: Parsing
	// THEN: SchemaError listing exactly the missing columns, no records
	input := "ORDERNUMBER,PRODUCTCODE,QUANTITYORDERED,ORDERDATE,SALES,STATUS,MONTH_ID,YEAR_ID,PRODUCTLINE,CUSTOMERNAME,COUNTRY\n" +
		"10107,S10_1678,30,2/24/2003 0:00,2871.00,Shipped,2,2003,Motorcycles,Land of Toys Inc.,USA\n"

	_, err := ParseCSV(strings.NewReader(input))
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("Expected SchemaError, got %v", err)
	}
	if len(schemaErr.Missing) != 2 {
		t.Fatalf("Expected 2 missing columns, got %v", schemaErr.Missing)
	}
	if schemaErr.Missing[0] != "PRICEEACH" || schemaErr.Missing[1] != "DEALSIZE" {
		t.Errorf("Expected [PRICEEACH DEALSIZE], got %v", schemaErr.Missing)
	}
}

func TestParseCSV_ExtraColumnsIgnored(t *testing.T) {
	// Extra columns beyond the required set must not break parsing.
	input := testHeader + ",PHONE,ADDRESSLINE1\n" +
		"10107,S10_1678,30,95.70,2/24/2003 0:00,2871.00,Shipped,2,2003,Motorcycles,Land of Toys Inc.,USA,Small,2125557818,897 Long Airport Avenue\n"

	res, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(res.Records))
	}
}

func TestParseCSV_MalformedRowsDroppedNotFatal(t *testing.T) {
	// GIVEN: A mix of good rows and rows with unparseable fields
	// WHEN: Parsing
	// THEN: Bad rows are counted as malformed, good rows survive
	input := testHeader + "\n" +
		"10107,S10_1678,30,95.70,2/24/2003 0:00,2871.00,Shipped,2,2003,Motorcycles,Land of Toys Inc.,USA,Small\n" +
		"10108,S10_1949,abc,95.70,2/24/2003 0:00,2871.00,Shipped,2,2003,Motorcycles,Land of Toys Inc.,USA,Small\n" + // bad quantity
		"10109,S10_2016,30,95.70,not-a-date,2871.00,Shipped,2,2003,Motorcycles,Land of Toys Inc.,USA,Small\n" + // bad date
		"10110,,30,95.70,2/24/2003 0:00,2871.00,Shipped,2,2003,Motorcycles,Land of Toys Inc.,USA,Small\n" + // empty product code
		"10111,S10_4757,45,83.26,4/10/2003 0:00,3746.70,Shipped,4,2003,Motorcycles,Diecast Classics Inc.,USA,Medium\n"

	res, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if res.TotalRows != 5 {
		t.Errorf("Expected 5 total rows, got %d", res.TotalRows)
	}
	if res.Malformed != 3 {
		t.Errorf("Expected 3 malformed rows, got %d", res.Malformed)
	}
	if len(res.Records) != 2 {
		t.Fatalf("Expected 2 surviving records, got %d", len(res.Records))
	}
	if res.Records[0].OrderNumber != 10107 || res.Records[1].OrderNumber != 10111 {
		t.Errorf("Expected survivors 10107 and 10111, got %d and %d",
			res.Records[0].OrderNumber, res.Records[1].OrderNumber)
	}
}

func TestParseCSV_SalesFallbackToDerived(t *testing.T) {
	// A negative or blank SALES value is untrusted; quantity*price wins.
	input := testHeader + "\n" +
		"10107,S10_1678,10,50.00,2/24/2003 0:00,-1,Shipped,2,2003,Motorcycles,Land of Toys Inc.,USA,Small\n" +
		"10108,S10_1949,10,50.00,2/24/2003 0:00,,Shipped,2,2003,Motorcycles,Land of Toys Inc.,USA,Small\n" +
		"10109,S10_2016,10,50.00,2/24/2003 0:00,499.99,Shipped,2,2003,Motorcycles,Land of Toys Inc.,USA,Small\n"

	res, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if got := res.Records[0].Sales.String(); got != "500" {
		t.Errorf("Negative SALES should fall back to 500, got %s", got)
	}
	if got := res.Records[1].Sales.String(); got != "500" {
		t.Errorf("Blank SALES should fall back to 500, got %s", got)
	}
	// A plausible explicit value is kept even when it disagrees with
	// quantity*price.
	if got := res.Records[2].Sales.String(); got != "499.99" {
		t.Errorf("Explicit SALES should be trusted, got %s", got)
	}
	if got := res.Records[2].TotalSales.String(); got != "500" {
		t.Errorf("total_sales is always derived, got %s", got)
	}
}

func TestParseCSV_MixedDateLayouts(t *testing.T) {
	input := testHeader + "\n" +
		"1,A,1,10.00,2003-11-05,10.00,Shipped,11,2003,Motorcycles,X,USA,Small\n" +
		"2,B,1,10.00,2003-11-05 14:30:00,10.00,Shipped,11,2003,Motorcycles,X,USA,Small\n" +
		"3,C,1,10.00,11/5/2003,10.00,Shipped,11,2003,Motorcycles,X,USA,Small\n"

	res, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if len(res.Records) != 3 {
		t.Fatalf("Expected all 3 layouts to parse, got %d records", len(res.Records))
	}
	for _, rec := range res.Records {
		if rec.OrderDate.Year() != 2003 || rec.OrderDate.Month() != time.November {
			t.Errorf("Record %d: wrong date %v", rec.OrderNumber, rec.OrderDate)
		}
		if rec.OrderQuarter != "Q4" {
			t.Errorf("Record %d: expected Q4, got %s", rec.OrderNumber, rec.OrderQuarter)
		}
	}
}

func TestParseCSV_EmptyFile(t *testing.T) {
	// An empty stream has no header, so the whole required set is missing.
	_, err := ParseCSV(strings.NewReader(""))
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("Expected SchemaError for empty input, got %v", err)
	}
}

func TestParseCSV_HeaderOnly(t *testing.T) {
	// A header with no data rows is a valid, empty parse.
	res, err := ParseCSV(strings.NewReader(testHeader + "\n"))
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if res.TotalRows != 0 || len(res.Records) != 0 {
		t.Errorf("Expected empty result, got %d rows, %d records", res.TotalRows, len(res.Records))
	}
}

// faultyReader yields its buffered bytes, then fails every Read with
// the same error, like a broken pipe or failing disk.
type faultyReader struct {
	data []byte
	err  error
}

func (r *faultyReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestParseCSV_ReaderFaultIsFatal(t *testing.T) {
	// GIVEN: A reader that fails persistently after the header
	// WHEN: Parsing
	// THEN: ParseCSV returns the error instead of looping on it
	readErr := errors.New("disk read error")
	r := &faultyReader{
		data: []byte(testHeader + "\n" +
			"10107,S10_1678,30,95.70,2/24/2003 0:00,2871.00,Shipped,2,2003,Motorcycles,Land of Toys Inc.,USA,Small\n"),
		err: readErr,
	}

	type result struct {
		res *ParseResult
		err error
	}
	done := make(chan result, 1)
	go func() {
		res, err := ParseCSV(r)
		done <- result{res, err}
	}()

	select {
	case got := <-done:
		if !errors.Is(got.err, readErr) {
			t.Fatalf("Expected the reader's error, got %v", got.err)
		}
		if got.res != nil {
			t.Errorf("Expected no partial result, got %+v", got.res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ParseCSV did not return on a persistent read error")
	}
}

func TestValidateHeader(t *testing.T) {
	if err := ValidateHeader(strings.NewReader(testHeader + "\nrow,that,is,never,read")); err != nil {
		t.Errorf("Valid header rejected: %v", err)
	}

	err := ValidateHeader(strings.NewReader("ORDERNUMBER,PRODUCTCODE\n"))
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("Expected SchemaError, got %v", err)
	}
}

func TestParseInt_IntegralFloats(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"30", 30, false},
		{"30.0", 30, false},
		{"-2", -2, false},
		{"30.5", 0, true},
		{"", 0, true},
		{"abc", 0, true},
	}
	for _, tc := range cases {
		got, err := parseInt(tc.in)
		if tc.wantErr != (err != nil) {
			t.Errorf("parseInt(%q): unexpected error state %v", tc.in, err)
			continue
		}
		if !tc.wantErr && got != tc.want {
			t.Errorf("parseInt(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestQuarterOf(t *testing.T) {
	cases := []struct {
		month time.Month
		want  string
	}{
		{time.January, "Q1"},
		{time.March, "Q1"},
		{time.April, "Q2"},
		{time.June, "Q2"},
		{time.July, "Q3"},
		{time.September, "Q3"},
		{time.October, "Q4"},
		{time.December, "Q4"},
	}
	for _, tc := range cases {
		got := QuarterOf(time.Date(2003, tc.month, 15, 0, 0, 0, 0, time.UTC))
		if got != tc.want {
			t.Errorf("QuarterOf(%v) = %s, want %s", tc.month, got, tc.want)
		}
	}
}
