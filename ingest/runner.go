/*
runner.go - The ingestion state machine

PURPOSE:
  Orchestrates parse -> dedupe -> aggregate -> persist for one dataset
  and owns every status transition. A dataset starts in processing and
  ends in exactly one of ready or failed; there is no way out of a
  terminal state.

SYNC VS ASYNC:
  Payloads at or below SyncThreshold run inline, so the upload response
  already carries the terminal status and final counters. Larger
  payloads return immediately with processing and the pipeline runs in
  a background goroutine; the client polls /status until terminal.
  Either way the state machine is identical - the threshold is a
  performance policy, not a correctness rule.

FAILURE SEMANTICS:
  Any stage error marks the dataset failed. Records are only written
  inside CompleteIngestion's transaction, so a failed dataset never
  exposes partial data. Job errors are logged, not retried; the client
  may re-upload.

CRASH RECOVERY:
  A process crash strands datasets in processing. Run() periodically
  sweeps datasets older than StaleAfter into failed so clients don't
  poll forever.
*/
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RunnerOptions configures a Runner. Zero values pick the defaults.
type RunnerOptions struct {
	// SyncThreshold is the payload size in bytes at or below which
	// ingestion runs inline with the upload request.
	SyncThreshold int

	// TopN caps the country/customer aggregate breakdowns.
	TopN int

	// StaleAfter is how long a dataset may sit in processing before
	// the sweep declares it orphaned.
	StaleAfter time.Duration

	// SweepInterval is how often Run() sweeps for orphans.
	SweepInterval time.Duration

	Logger *slog.Logger
}

const (
	defaultSyncThreshold = 256 << 10
	defaultStaleAfter    = 10 * time.Minute
	defaultSweepInterval = time.Minute
)

// Runner executes ingestion jobs. Each job is an independent unit of
// work against its own dataset id; jobs never coordinate across
// datasets.
type Runner struct {
	store DatasetStore
	log   *slog.Logger

	syncThreshold int
	topN          int
	staleAfter    time.Duration
	sweepInterval time.Duration

	jobs sync.WaitGroup
}

// NewRunner creates a runner over the given store.
func NewRunner(store DatasetStore, opts RunnerOptions) *Runner {
	if opts.SyncThreshold <= 0 {
		opts.SyncThreshold = defaultSyncThreshold
	}
	if opts.TopN <= 0 {
		opts.TopN = DefaultTopN
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = defaultStaleAfter
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Runner{
		store:         store,
		log:           opts.Logger,
		syncThreshold: opts.SyncThreshold,
		topN:          opts.TopN,
		staleAfter:    opts.StaleAfter,
		sweepInterval: opts.SweepInterval,
	}
}

// Submit validates the CSV header, creates the dataset and starts the
// pipeline. A *SchemaError is returned before any dataset exists.
// The returned dataset is in processing for deferred jobs or already
// terminal for inline ones.
func (r *Runner) Submit(ctx context.Context, owner, filename string, data []byte) (*Dataset, error) {
	if err := ValidateHeader(bytes.NewReader(data)); err != nil {
		return nil, err
	}

	d := &Dataset{
		ID:         uuid.NewString(),
		Owner:      owner,
		Filename:   filename,
		Status:     StatusProcessing,
		TotalSales: decimal.Zero,
		CreatedAt:  time.Now().UTC(),
	}
	if err := r.store.CreateDataset(ctx, d); err != nil {
		return nil, fmt.Errorf("create dataset: %w", err)
	}

	if len(data) <= r.syncThreshold {
		// Inline fast path: the upload response carries the terminal
		// state. A pipeline failure is reported as status=failed, not
		// as an upload error. The pipeline itself is detached from the
		// request context so a mid-commit client disconnect cannot
		// strand the dataset in processing.
		jobCtx := context.WithoutCancel(ctx)
		if err := r.process(jobCtx, d.ID, data); err != nil {
			r.log.Error("ingestion failed", "dataset", d.ID, "error", err)
		}
		return r.store.GetDataset(jobCtx, d.ID)
	}

	r.jobs.Add(1)
	// The upload request's context dies with the response; the job
	// must not.
	jobCtx := context.WithoutCancel(ctx)
	go func() {
		defer r.jobs.Done()
		if err := r.process(jobCtx, d.ID, data); err != nil {
			r.log.Error("ingestion failed", "dataset", d.ID, "error", err)
		}
	}()

	return d, nil
}

// process runs the pipeline stages in strict sequence and commits the
// result. Any error leaves the dataset failed with no visible records.
func (r *Runner) process(ctx context.Context, datasetID string, data []byte) error {
	start := time.Now()

	res, err := ParseCSV(bytes.NewReader(data))
	if err != nil {
		r.markFailed(ctx, datasetID)
		return fmt.Errorf("parse: %w", err)
	}

	records, duplicates := Deduplicate(res.Records)

	agg := Aggregate(records, r.topN)

	var dateMin, dateMax *time.Time
	for i := range records {
		records[i].DatasetID = datasetID
		t := records[i].OrderDate
		if dateMin == nil || t.Before(*dateMin) {
			tt := t
			dateMin = &tt
		}
		if dateMax == nil || t.After(*dateMax) {
			tt := t
			dateMax = &tt
		}
	}

	result := IngestionResult{
		Records:     records,
		Aggregates:  agg,
		RowCount:    len(records),
		RowsDropped: res.Malformed + duplicates,
		DateMin:     dateMin,
		DateMax:     dateMax,
		TotalSales:  agg.TotalSales,
	}
	if err := r.store.CompleteIngestion(ctx, datasetID, result); err != nil {
		r.markFailed(ctx, datasetID)
		return fmt.Errorf("commit: %w", err)
	}

	r.log.Info("dataset ready",
		"dataset", datasetID,
		"rows", result.RowCount,
		"dropped", result.RowsDropped,
		"took", time.Since(start))
	return nil
}

func (r *Runner) markFailed(ctx context.Context, datasetID string) {
	if err := r.store.MarkFailed(ctx, datasetID); err != nil {
		// Losing this race means another path already reached a
		// terminal state; nothing to do.
		r.log.Warn("mark failed", "dataset", datasetID, "error", err)
	}
}

// Sweep marks datasets stuck in processing beyond StaleAfter as
// failed. Returns how many were swept.
func (r *Runner) Sweep(ctx context.Context) (int, error) {
	return r.store.FailStale(ctx, time.Now().UTC().Add(-r.staleAfter))
}

// Run sweeps on an interval until the context is cancelled. Intended
// to be driven by the caller's errgroup.
func (r *Runner) Run(ctx context.Context) error {
	// Sweep once at startup to recover datasets orphaned by a previous
	// crash.
	if n, err := r.Sweep(ctx); err != nil {
		r.log.Warn("startup sweep", "error", err)
	} else if n > 0 {
		r.log.Info("swept orphaned datasets", "count", n)
	}

	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n, err := r.Sweep(ctx); err != nil {
				r.log.Warn("sweep", "error", err)
			} else if n > 0 {
				r.log.Info("swept orphaned datasets", "count", n)
			}
		}
	}
}

// Close waits for in-flight jobs to finish.
func (r *Runner) Close() {
	r.jobs.Wait()
}
