/*
Package sqlite provides the SQLite-backed implementation of the
dataset storage interfaces.

PURPOSE:
  Implements ingest.DatasetStore plus user persistence for the session
  auth gate. In production the same patterns apply to PostgreSQL - only
  minor SQL dialect differences.

KEY TABLES:
  users:          Account records for the auth gate
  datasets:       One row per upload; status drives the polling protocol
  sales_records:  Normalized order lines, only written at ingestion commit

ALL-OR-NOTHING VISIBILITY:
  CompleteIngestion() inserts the full record set, the cached aggregates
  and the counters, and flips status to ready, inside one SQL
  transaction. A reader either sees the dataset still processing with
  zero records or fully ready - never a half-written state.

MONETARY COLUMNS:
  price_each, sales and total_sales are stored as decimal strings to
  keep exact values. Sorted queries CAST them to REAL for ordering.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. Distinct datasets share the
  writer lock here; a server-grade database would lock per row instead.

USAGE:
  store, err := sqlite.New("./salesboard.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - ingest/store.go: interface definition and contract
  - ingest/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/salesboard/ingest-engine/ingest"
	"github.com/shopspring/decimal"
)

// ErrEmailTaken is returned by CreateUser when the email is already
// registered.
var ErrEmailTaken = errors.New("email already registered")

// Store implements ingest.DatasetStore and user persistence.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: sqlite allows a single writer, and a fresh pool
	// connection to ":memory:" would get its own empty database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS datasets (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		filename TEXT NOT NULL,
		status TEXT NOT NULL,
		row_count INTEGER NOT NULL DEFAULT 0,
		rows_dropped INTEGER NOT NULL DEFAULT 0,
		date_min TEXT,
		date_max TEXT,
		total_sales TEXT NOT NULL DEFAULT '0',
		aggregates_json TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sales_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		dataset_id TEXT NOT NULL REFERENCES datasets(id) ON DELETE CASCADE,
		order_number INTEGER NOT NULL,
		quantity_ordered INTEGER NOT NULL,
		price_each TEXT NOT NULL,
		sales TEXT NOT NULL,
		order_date TEXT NOT NULL,
		status TEXT NOT NULL,
		month_id INTEGER NOT NULL,
		year_id INTEGER NOT NULL,
		product_line TEXT NOT NULL,
		product_code TEXT NOT NULL,
		customer_name TEXT NOT NULL,
		country TEXT NOT NULL,
		deal_size TEXT NOT NULL,
		total_sales TEXT NOT NULL,
		order_quarter TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_datasets_owner
		ON datasets(owner_id, created_at);

	-- Hot path: the detail view filters and pages within one dataset
	CREATE INDEX IF NOT EXISTS idx_records_dataset
		ON sales_records(dataset_id, order_number);
	CREATE INDEX IF NOT EXISTS idx_records_dataset_date
		ON sales_records(dataset_id, order_date);

	-- Dedup invariant, enforced at the storage layer too
	CREATE UNIQUE INDEX IF NOT EXISTS uq_dataset_order_product
		ON sales_records(dataset_id, order_number, product_code);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// DATASET STORE (ingest.DatasetStore interface)
// =============================================================================

// CreateDataset persists a new dataset row.
func (s *Store) CreateDataset(ctx context.Context, d *ingest.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO datasets (id, owner_id, filename, status, total_sales, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		d.ID,
		d.Owner,
		d.Filename,
		string(d.Status),
		d.TotalSales.String(),
		d.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create dataset: %w", err)
	}
	return nil
}

// GetDataset retrieves a dataset by ID, including cached aggregates.
func (s *Store) GetDataset(ctx context.Context, id string) (*ingest.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, filename, status, row_count, rows_dropped,
		       date_min, date_max, total_sales, aggregates_json, created_at
		FROM datasets WHERE id = ?`, id)
	return scanDataset(row)
}

// ListDatasets returns the owner's datasets, newest first.
func (s *Store) ListDatasets(ctx context.Context, owner string) ([]ingest.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, filename, status, row_count, rows_dropped,
		       date_min, date_max, total_sales, aggregates_json, created_at
		FROM datasets
		WHERE owner_id = ?
		ORDER BY created_at DESC, id ASC`, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	defer rows.Close()

	var datasets []ingest.Dataset
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		datasets = append(datasets, *d)
	}
	return datasets, rows.Err()
}

// CompleteIngestion writes records, aggregates and counters, and flips
// processing -> ready, all inside one transaction.
func (s *Store) CompleteIngestion(ctx context.Context, id string, res ingest.IngestionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	status, err := datasetStatus(ctx, tx, id)
	if err != nil {
		return err
	}
	if status != ingest.StatusProcessing {
		return &ingest.InvalidTransitionError{DatasetID: id, From: status, To: ingest.StatusReady}
	}

	insert := `
		INSERT INTO sales_records
		(dataset_id, order_number, quantity_ordered, price_each, sales, order_date,
		 status, month_id, year_id, product_line, product_code, customer_name,
		 country, deal_size, total_sales, order_quarter)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range res.Records {
		_, err := stmt.ExecContext(ctx,
			id,
			rec.OrderNumber,
			rec.QuantityOrdered,
			rec.PriceEach.String(),
			rec.Sales.String(),
			rec.OrderDate.Format(time.RFC3339),
			rec.Status,
			rec.MonthID,
			rec.YearID,
			rec.ProductLine,
			rec.ProductCode,
			rec.CustomerName,
			rec.Country,
			rec.DealSize,
			rec.TotalSales.String(),
			rec.OrderQuarter,
		)
		if err != nil {
			return fmt.Errorf("failed to insert record: %w", err)
		}
	}

	aggJSON, err := json.Marshal(res.Aggregates)
	if err != nil {
		return fmt.Errorf("failed to encode aggregates: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE datasets
		SET status = ?, row_count = ?, rows_dropped = ?, date_min = ?, date_max = ?,
		    total_sales = ?, aggregates_json = ?
		WHERE id = ?`,
		string(ingest.StatusReady),
		res.RowCount,
		res.RowsDropped,
		nullTime(res.DateMin),
		nullTime(res.DateMax),
		res.TotalSales.String(),
		string(aggJSON),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update dataset: %w", err)
	}

	return tx.Commit()
}

// MarkFailed flips processing -> failed.
func (s *Store) MarkFailed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx,
		`UPDATE datasets SET status = ? WHERE id = ? AND status = ?`,
		string(ingest.StatusFailed), id, string(ingest.StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("failed to mark dataset failed: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		status, err := datasetStatus(ctx, s.db, id)
		if err != nil {
			return err
		}
		return &ingest.InvalidTransitionError{DatasetID: id, From: status, To: ingest.StatusFailed}
	}
	return nil
}

// monetaryColumns are stored as decimal strings; ordering needs a
// numeric cast.
var monetaryColumns = map[string]bool{
	"price_each":  true,
	"sales":       true,
	"total_sales": true,
}

// QueryRecords returns one page of a dataset's records plus the total
// matching count.
func (s *Store) QueryRecords(ctx context.Context, datasetID string, q ingest.RecordQuery) ([]ingest.SalesRecord, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := datasetStatus(ctx, s.db, datasetID); err != nil {
		return nil, 0, err
	}
	q.Normalize()

	where := []string{"dataset_id = ?"}
	args := []any{datasetID}
	if q.Status != "" {
		where = append(where, "status = ?")
		args = append(args, q.Status)
	}
	if q.ProductLine != "" {
		where = append(where, "product_line = ?")
		args = append(args, q.ProductLine)
	}
	if q.DateFrom != nil {
		where = append(where, "order_date >= ?")
		args = append(args, q.DateFrom.Format(time.RFC3339))
	}
	if q.DateTo != nil {
		where = append(where, "order_date <= ?")
		args = append(args, q.DateTo.Format(time.RFC3339))
	}
	cond := strings.Join(where, " AND ")

	var total int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sales_records WHERE "+cond, args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count records: %w", err)
	}

	// SortBy is whitelisted by Normalize(), never client input directly.
	orderCol := q.SortBy
	if monetaryColumns[orderCol] {
		orderCol = fmt.Sprintf("CAST(%s AS REAL)", orderCol)
	}
	dir := "ASC"
	if q.SortDir == ingest.SortDesc {
		dir = "DESC"
	}

	query := fmt.Sprintf(`
		SELECT id, dataset_id, order_number, quantity_ordered, price_each, sales,
		       order_date, status, month_id, year_id, product_line, product_code,
		       customer_name, country, deal_size, total_sales, order_quarter
		FROM sales_records
		WHERE %s
		ORDER BY %s %s, id ASC
		LIMIT ? OFFSET ?`, cond, orderCol, dir)
	args = append(args, q.PageSize, (q.Page-1)*q.PageSize)

	records, err := s.queryRecords(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// AllRecords returns every record of a dataset in export order.
func (s *Store) AllRecords(ctx context.Context, datasetID string) ([]ingest.SalesRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := datasetStatus(ctx, s.db, datasetID); err != nil {
		return nil, err
	}

	return s.queryRecords(ctx, `
		SELECT id, dataset_id, order_number, quantity_ordered, price_each, sales,
		       order_date, status, month_id, year_id, product_line, product_code,
		       customer_name, country, deal_size, total_sales, order_quarter
		FROM sales_records
		WHERE dataset_id = ?
		ORDER BY order_number ASC, id ASC`, datasetID)
}

// DeleteDataset removes a dataset; records cascade.
func (s *Store) DeleteDataset(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, "DELETE FROM datasets WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete dataset: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ingest.ErrDatasetNotFound
	}
	return nil
}

// FailStale sweeps processing datasets created before the cutoff.
func (s *Store) FailStale(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx,
		`UPDATE datasets SET status = ? WHERE status = ? AND created_at < ?`,
		string(ingest.StatusFailed),
		string(ingest.StatusProcessing),
		cutoff.Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stale datasets: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDataset(row rowScanner) (*ingest.Dataset, error) {
	var (
		d              ingest.Dataset
		status         string
		dateMin        sql.NullString
		dateMax        sql.NullString
		totalSales     string
		aggregatesJSON sql.NullString
		createdAt      string
	)

	err := row.Scan(&d.ID, &d.Owner, &d.Filename, &status, &d.RowCount,
		&d.RowsDropped, &dateMin, &dateMax, &totalSales, &aggregatesJSON, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ingest.ErrDatasetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan dataset: %w", err)
	}

	d.Status = ingest.DatasetStatus(status)
	d.DateMin = parseNullTime(dateMin)
	d.DateMax = parseNullTime(dateMax)
	d.TotalSales = mustDecimal(totalSales)
	d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	if aggregatesJSON.Valid && aggregatesJSON.String != "" {
		var agg ingest.Aggregates
		if err := json.Unmarshal([]byte(aggregatesJSON.String), &agg); err != nil {
			return nil, fmt.Errorf("failed to decode aggregates: %w", err)
		}
		d.Aggregates = &agg
	}

	return &d, nil
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]ingest.SalesRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	records := []ingest.SalesRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanRecord(rows *sql.Rows) (ingest.SalesRecord, error) {
	var (
		rec        ingest.SalesRecord
		priceEach  string
		sales      string
		orderDate  string
		totalSales string
	)

	err := rows.Scan(&rec.ID, &rec.DatasetID, &rec.OrderNumber, &rec.QuantityOrdered,
		&priceEach, &sales, &orderDate, &rec.Status, &rec.MonthID, &rec.YearID,
		&rec.ProductLine, &rec.ProductCode, &rec.CustomerName, &rec.Country,
		&rec.DealSize, &totalSales, &rec.OrderQuarter)
	if err != nil {
		return rec, fmt.Errorf("failed to scan record: %w", err)
	}

	rec.PriceEach = mustDecimal(priceEach)
	rec.Sales = mustDecimal(sales)
	rec.TotalSales = mustDecimal(totalSales)
	rec.OrderDate, _ = time.Parse(time.RFC3339, orderDate)
	return rec, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func datasetStatus(ctx context.Context, db queryRower, id string) (ingest.DatasetStatus, error) {
	var status string
	err := db.QueryRowContext(ctx, "SELECT status FROM datasets WHERE id = ?", id).Scan(&status)
	if err == sql.ErrNoRows {
		return "", ingest.ErrDatasetNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read dataset status: %w", err)
	}
	return ingest.DatasetStatus(status), nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// USER STORE
// =============================================================================

// User is an account record for the session auth gate.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// CreateUser inserts a new user. Returns ErrEmailTaken on duplicates.
func (s *Store) CreateUser(ctx context.Context, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByEmail returns nil, nil when no such user exists.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.scanUser(s.db.QueryRowContext(ctx,
		"SELECT id, email, password_hash, created_at FROM users WHERE email = ?", email))
}

// GetUser returns nil, nil when no such user exists.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.scanUser(s.db.QueryRowContext(ctx,
		"SELECT id, email, password_hash, created_at FROM users WHERE id = ?", id))
}

func (s *Store) scanUser(row *sql.Row) (*User, error) {
	var u User
	var createdAt string
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &u, nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
