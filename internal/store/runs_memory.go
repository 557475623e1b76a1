package store

import (
	"context"
	"sync"
)

// MemoryRuns is an in-process Runs implementation used by the CLI path
// and in tests, where no Redis is available.
type MemoryRuns struct {
	mu     sync.RWMutex
	status map[string]RunStatus
	logs   map[string][]string
}

func NewMemoryRuns() *MemoryRuns {
	return &MemoryRuns{
		status: make(map[string]RunStatus),
		logs:   make(map[string][]string),
	}
}

func (s *MemoryRuns) Set(_ context.Context, runID string, st RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[runID] = st
	return nil
}

func (s *MemoryRuns) Get(_ context.Context, runID string) (RunStatus, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.status[runID]
	return st, ok, nil
}

func (s *MemoryRuns) AppendLog(_ context.Context, runID, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := append(s.logs[runID], line)
	if len(lines) > logKeep {
		lines = lines[len(lines)-logKeep:]
	}
	s.logs[runID] = lines
	return nil
}

func (s *MemoryRuns) TailLog(_ context.Context, runID string, n int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lines := s.logs[runID]
	if n > 0 && int64(len(lines)) > n {
		lines = lines[int64(len(lines))-n:]
	}
	out := make([]string, len(lines))
	copy(out, lines)
	return out, nil
}

func (s *MemoryRuns) Close() error { return nil }
