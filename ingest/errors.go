/*
errors.go - Centralized error types for the ingestion engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The API layer maps these onto HTTP status codes.

ERROR CATEGORIES:
  1. Schema errors  - the upload is rejected before a dataset exists
  2. Row errors     - per-row, absorbed into drop counters, never fatal
  3. Store errors   - fatal to the job, transition the dataset to failed
  4. Transition errors - state machine guards, should never surface externally

USAGE:
    var schemaErr *ingest.SchemaError
    if errors.As(err, &schemaErr) {
        // 400: list schemaErr.Missing to the client
    }

SEE ALSO:
  - runner.go: turns stage errors into failed datasets
  - store.go: store implementations return the sentinel errors
*/
package ingest

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDatasetNotFound is returned when a dataset id does not exist
	// (or belongs to another owner, which is indistinguishable by design).
	ErrDatasetNotFound = errors.New("dataset not found")

	// ErrInvalidTransition is returned when a status flip is attempted
	// on a dataset that is not in processing. Terminal states are final.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// SchemaError reports required CSV columns missing from the header.
// The upload fails immediately and no dataset is created.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Missing, ", "))
}

// RowError describes why a single row was dropped during parsing.
// Row errors are counted, never propagated; the type exists so the
// parser can log a sample of what it dropped.
type RowError struct {
	Line  int
	Field string
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: bad %s: %v", e.Line, e.Field, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// InvalidTransitionError reports the state a transition was attempted from.
type InvalidTransitionError struct {
	DatasetID string
	From      DatasetStatus
	To        DatasetStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("dataset %s: cannot transition %s -> %s", e.DatasetID, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// IsNotFound returns true if the error indicates a missing dataset.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDatasetNotFound)
}
