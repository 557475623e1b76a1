package store

import (
	"context"
	"time"
)

// Run states as exposed to API clients.
const (
	StateQueued  = "queued"
	StateRunning = "running"
	StateDone    = "done"
	StateFailed  = "failed"
)

// RunStatus is the externally visible state of one folder run.
type RunStatus struct {
	State     string     `json:"state"`
	Folder    string     `json:"folder"`
	Processed int        `json:"processed"`
	Total     int        `json:"total"`
	Message   string     `json:"message,omitempty"`
	Start     *time.Time `json:"start_time,omitempty"`
	End       *time.Time `json:"end_time,omitempty"`
}

// Runs persists run status and recent report lines for the HTTP
// surface. Implementations must be safe for concurrent use.
type Runs interface {
	Set(ctx context.Context, runID string, st RunStatus) error
	Get(ctx context.Context, runID string) (RunStatus, bool, error)
	AppendLog(ctx context.Context, runID, line string) error
	TailLog(ctx context.Context, runID string, n int64) ([]string, error)
	Close() error
}
