package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrUnknownThread is returned when an operation references a thread_id
// that was never created. Orphan writes are rejected, never silently stored.
// It wraps ErrNotFound so callers may match on either sentinel.
var ErrUnknownThread = fmt.Errorf("unknown thread: %w", ErrNotFound)

// ErrDuplicateThread is returned when a freshly allocated thread identifier
// collides with an existing one.
var ErrDuplicateThread = errors.New("duplicate thread id")

// ErrInvalidTransition is returned when UpdateStatus would move a thread
// backwards in its lifecycle.
var ErrInvalidTransition = errors.New("invalid status transition")

// Thread lifecycle statuses. Handlers use processing_<agent> values built
// from StatusProcessingPrefix.
const (
	StatusStarted          = "started"
	StatusCompleted        = "completed"
	StatusError            = "error"
	StatusProcessingPrefix = "processing_"
)

// statusRank orders the lifecycle phases.
func statusRank(status string) int {
	switch {
	case status == StatusStarted:
		return 0
	case strings.HasPrefix(status, StatusProcessingPrefix):
		return 1
	case status == StatusCompleted:
		return 2
	case status == StatusError:
		return 3
	default:
		return -1
	}
}

// validTransition reports whether a thread may move from current to next.
// Legal moves are strictly forward, plus the error sink from any live state.
func validTransition(current, next string) bool {
	cr, nr := statusRank(current), statusRank(next)
	if cr < 0 || nr < 0 {
		return false
	}
	if next == StatusError {
		return current != StatusError
	}
	return nr > cr
}

// Thread is the main record tracking one document through the pipeline.
type Thread struct {
	ID          string         `json:"thread_id"`
	InputSource string         `json:"input_source"`
	CreatedAt   time.Time      `json:"created_at"`
	Format      string         `json:"format"`
	Intent      string         `json:"intent"`
	Status      string         `json:"status"`
	Metadata    map[string]any `json:"metadata"`
}

// FieldValue is one append-only extracted field record. Seq is the
// store-assigned insertion order; multiple records may share Name.
type FieldValue struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
	Seq   int64  `json:"seq"`
}

// RoutingEntry records one hand-off between pipeline components.
type RoutingEntry struct {
	Timestamp time.Time `json:"timestamp"`
	FromAgent string    `json:"from_agent"`
	ToAgent   string    `json:"to_agent"`
	Reason    string    `json:"reason"`
}

// ThreadSnapshot is the full consistent view of a thread: the main record,
// the latest value per field name, and the ordered routing history.
type ThreadSnapshot struct {
	ThreadID        string         `json:"thread_id"`
	InputSource     string         `json:"input_source"`
	CreatedAt       time.Time      `json:"created_at"`
	Format          string         `json:"format"`
	Intent          string         `json:"intent"`
	Status          string         `json:"status"`
	Metadata        map[string]any `json:"metadata"`
	ExtractedFields map[string]any `json:"extracted_fields"`
	RoutingHistory  []RoutingEntry `json:"routing_history"`
}

// Job is a queued unit of background work.
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
