/*
export.go - CSV serialization of a dataset's records

Writes records back out with the ingestion header set, so an exported
file re-uploads cleanly (modulo the dedup and normalization already
applied to it).
*/
package ingest

import (
	"encoding/csv"
	"io"
	"strconv"
)

const exportDateLayout = "2006-01-02 15:04:05"

// WriteCSV streams records as CSV with the RequiredColumns header.
func WriteCSV(w io.Writer, records []SalesRecord) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(RequiredColumns); err != nil {
		return err
	}
	for _, rec := range records {
		row := []string{
			strconv.Itoa(rec.OrderNumber),
			rec.ProductCode,
			strconv.Itoa(rec.QuantityOrdered),
			rec.PriceEach.String(),
			rec.OrderDate.Format(exportDateLayout),
			rec.Sales.String(),
			rec.Status,
			strconv.Itoa(rec.MonthID),
			strconv.Itoa(rec.YearID),
			rec.ProductLine,
			rec.CustomerName,
			rec.Country,
			rec.DealSize,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
