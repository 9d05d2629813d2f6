// Package history records pipeline runs. PgStore keeps them in PostgreSQL;
// NopStore is used when no database is configured.
package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the outcome of a run.
type Status string

const (
	StatusRunning      Status = "running"
	StatusSucceeded    Status = "succeeded"
	StatusFailed       Status = "failed"
	StatusUploadFailed Status = "upload_failed" // spreadsheet written, upload did not succeed
)

// Run is one pipeline execution.
type Run struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	Status     Status

	CSVPath  string
	XLSXPath string

	InputRows   int
	OutputRows  int
	DroppedRows int

	Uploaded   bool
	HTTPStatus int
	Attempts   int
	UploadID   string

	Error string
}

// Store persists runs.
type Store interface {
	// Start records a run in the running state.
	Start(ctx context.Context, run *Run) error
	// Finish records the final state of a run started earlier.
	Finish(ctx context.Context, run *Run) error
	// Recent returns up to limit runs, newest first.
	Recent(ctx context.Context, limit int) ([]Run, error)
	Close()
}

// NopStore discards runs.
type NopStore struct{}

func (NopStore) Start(context.Context, *Run) error          { return nil }
func (NopStore) Finish(context.Context, *Run) error         { return nil }
func (NopStore) Recent(context.Context, int) ([]Run, error) { return nil, nil }
func (NopStore) Close()                                     {}

// MemStore keeps runs in memory.
type MemStore struct {
	mu   sync.Mutex
	runs map[uuid.UUID]Run
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{runs: make(map[uuid.UUID]Run)}
}

func (m *MemStore) Start(_ context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = *run
	return nil
}

func (m *MemStore) Finish(_ context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		return ErrRunNotFound
	}
	m.runs[run.ID] = *run
	return nil
}

func (m *MemStore) Recent(_ context.Context, limit int) ([]Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Run, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) Close() {}
