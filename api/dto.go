/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract. Monetary
  values are decimal.Decimal internally and float64 on the wire, because
  the dashboard charts consume plain JSON numbers.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

SEE ALSO:
  - handlers.go: Uses these types
  - ingest/types.go: The domain model these project
*/
package api

import (
	"time"

	"github.com/salesboard/ingest-engine/ingest"
)

// =============================================================================
// AUTH TYPES
// =============================================================================

// RegisterRequest is the request to create an account.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the request to start a session.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// MessageResponse is a minimal acknowledgement body.
type MessageResponse struct {
	Message string `json:"message"`
}

// MeResponse identifies the current session's user.
type MeResponse struct {
	Email string `json:"email"`
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// DATASET TYPES
// =============================================================================

// UploadStatsDTO is the upload response. For deferred ingestion the
// counters are zero and status is processing; the client polls.
type UploadStatsDTO struct {
	DatasetID   string  `json:"dataset_id"`
	Status      string  `json:"status"`
	RowCount    int     `json:"row_count"`
	RowsDropped int     `json:"rows_dropped"`
	DateMin     *string `json:"date_min"`
	DateMax     *string `json:"date_max"`
	TotalSales  float64 `json:"total_sales"`
}

// DatasetSummaryDTO is the list/status projection of a dataset.
type DatasetSummaryDTO struct {
	ID          string  `json:"id"`
	Filename    string  `json:"filename"`
	RowCount    int     `json:"row_count"`
	RowsDropped int     `json:"rows_dropped"`
	DateMin     *string `json:"date_min"`
	DateMax     *string `json:"date_max"`
	TotalSales  float64 `json:"total_sales"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
}

// DatasetListResponse wraps the dashboard's dataset table.
type DatasetListResponse struct {
	Datasets []DatasetSummaryDTO `json:"datasets"`
}

// SalesRecordDTO is one order line in API responses.
type SalesRecordDTO struct {
	ID              int64   `json:"id"`
	OrderNumber     int     `json:"order_number"`
	QuantityOrdered int     `json:"quantity_ordered"`
	PriceEach       float64 `json:"price_each"`
	Sales           float64 `json:"sales"`
	OrderDate       string  `json:"order_date"`
	Status          string  `json:"status"`
	MonthID         int     `json:"month_id"`
	YearID          int     `json:"year_id"`
	ProductLine     string  `json:"product_line"`
	ProductCode     string  `json:"product_code"`
	CustomerName    string  `json:"customer_name"`
	Country         string  `json:"country"`
	DealSize        string  `json:"deal_size"`
	TotalSales      float64 `json:"total_sales"`
	OrderQuarter    string  `json:"order_quarter"`
}

// QuarterSalesDTO is one chronological quarter entry.
type QuarterSalesDTO struct {
	Year       int     `json:"year"`
	Quarter    string  `json:"quarter"`
	TotalSales float64 `json:"total_sales"`
	OrderCount int     `json:"order_count"`
}

// CountrySalesDTO is one "top countries" entry.
type CountrySalesDTO struct {
	Country    string  `json:"country"`
	TotalSales float64 `json:"total_sales"`
	OrderCount int     `json:"order_count"`
}

// CustomerSalesDTO is one "top customers" entry.
type CustomerSalesDTO struct {
	CustomerName string  `json:"customer_name"`
	TotalSales   float64 `json:"total_sales"`
	OrderCount   int     `json:"order_count"`
}

// DealSizeSalesDTO is one deal-size bucket.
type DealSizeSalesDTO struct {
	DealSize   string  `json:"deal_size"`
	TotalSales float64 `json:"total_sales"`
	OrderCount int     `json:"order_count"`
}

// AggregatesDTO is the precomputed summary served with the detail view.
type AggregatesDTO struct {
	TotalSales      float64            `json:"total_sales"`
	TotalOrders     int                `json:"total_orders"`
	AvgOrderValue   float64            `json:"avg_order_value"`
	SalesByQuarter  []QuarterSalesDTO  `json:"sales_by_quarter"`
	SalesByCountry  []CountrySalesDTO  `json:"sales_by_country"`
	SalesByCustomer []CustomerSalesDTO `json:"sales_by_customer"`
	SalesByDealSize []DealSizeSalesDTO `json:"sales_by_deal_size"`
}

// DatasetDetailResponse is the detail view: summary fields, cached
// aggregates and one page of records.
type DatasetDetailResponse struct {
	ID           string           `json:"id"`
	Filename     string           `json:"filename"`
	RowCount     int              `json:"row_count"`
	DateMin      *string          `json:"date_min"`
	DateMax      *string          `json:"date_max"`
	CreatedAt    string           `json:"created_at"`
	Status       string           `json:"status"`
	Aggregates   AggregatesDTO    `json:"aggregates"`
	Records      []SalesRecordDTO `json:"records"`
	Page         int              `json:"page"`
	PageSize     int              `json:"page_size"`
	TotalRecords int              `json:"total_records"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func toUploadStatsDTO(d *ingest.Dataset) UploadStatsDTO {
	return UploadStatsDTO{
		DatasetID:   d.ID,
		Status:      string(d.Status),
		RowCount:    d.RowCount,
		RowsDropped: d.RowsDropped,
		DateMin:     formatTimePtr(d.DateMin),
		DateMax:     formatTimePtr(d.DateMax),
		TotalSales:  d.TotalSales.InexactFloat64(),
	}
}

func toDatasetSummaryDTO(d *ingest.Dataset) DatasetSummaryDTO {
	return DatasetSummaryDTO{
		ID:          d.ID,
		Filename:    d.Filename,
		RowCount:    d.RowCount,
		RowsDropped: d.RowsDropped,
		DateMin:     formatTimePtr(d.DateMin),
		DateMax:     formatTimePtr(d.DateMax),
		TotalSales:  d.TotalSales.InexactFloat64(),
		Status:      string(d.Status),
		CreatedAt:   d.CreatedAt.Format(time.RFC3339),
	}
}

func toSalesRecordDTO(rec ingest.SalesRecord) SalesRecordDTO {
	return SalesRecordDTO{
		ID:              rec.ID,
		OrderNumber:     rec.OrderNumber,
		QuantityOrdered: rec.QuantityOrdered,
		PriceEach:       rec.PriceEach.InexactFloat64(),
		Sales:           rec.Sales.InexactFloat64(),
		OrderDate:       rec.OrderDate.Format(time.RFC3339),
		Status:          rec.Status,
		MonthID:         rec.MonthID,
		YearID:          rec.YearID,
		ProductLine:     rec.ProductLine,
		ProductCode:     rec.ProductCode,
		CustomerName:    rec.CustomerName,
		Country:         rec.Country,
		DealSize:        rec.DealSize,
		TotalSales:      rec.TotalSales.InexactFloat64(),
		OrderQuarter:    rec.OrderQuarter,
	}
}

// toAggregatesDTO projects the cached aggregates; nil (dataset not
// ready) yields the zero shape with empty arrays so the client never
// sees null.
func toAggregatesDTO(agg *ingest.Aggregates) AggregatesDTO {
	dto := AggregatesDTO{
		SalesByQuarter:  []QuarterSalesDTO{},
		SalesByCountry:  []CountrySalesDTO{},
		SalesByCustomer: []CustomerSalesDTO{},
		SalesByDealSize: []DealSizeSalesDTO{},
	}
	if agg == nil {
		return dto
	}

	dto.TotalSales = agg.TotalSales.InexactFloat64()
	dto.TotalOrders = agg.TotalOrders
	dto.AvgOrderValue = agg.AvgOrderValue.InexactFloat64()

	for _, q := range agg.SalesByQuarter {
		dto.SalesByQuarter = append(dto.SalesByQuarter, QuarterSalesDTO{
			Year:       q.Year,
			Quarter:    q.Quarter,
			TotalSales: q.TotalSales.InexactFloat64(),
			OrderCount: q.OrderCount,
		})
	}
	for _, g := range agg.SalesByCountry {
		dto.SalesByCountry = append(dto.SalesByCountry, CountrySalesDTO{
			Country:    g.Key,
			TotalSales: g.TotalSales.InexactFloat64(),
			OrderCount: g.OrderCount,
		})
	}
	for _, g := range agg.SalesByCustomer {
		dto.SalesByCustomer = append(dto.SalesByCustomer, CustomerSalesDTO{
			CustomerName: g.Key,
			TotalSales:   g.TotalSales.InexactFloat64(),
			OrderCount:   g.OrderCount,
		})
	}
	for _, g := range agg.SalesByDealSize {
		dto.SalesByDealSize = append(dto.SalesByDealSize, DealSizeSalesDTO{
			DealSize:   g.Key,
			TotalSales: g.TotalSales.InexactFloat64(),
			OrderCount: g.OrderCount,
		})
	}
	return dto
}
