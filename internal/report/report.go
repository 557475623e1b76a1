package report

import (
	"sync"
)

// Report accumulates the run's log lines in emission order plus the final
// verdict. It is written by the engine goroutine and may be read from the
// presentation side while a run is still going, so access is locked.
type Report struct {
	mu      sync.Mutex
	lines   []string
	success bool
}

func New() *Report {
	return &Report{}
}

// Append adds one log line to the end of the report.
func (r *Report) Append(msg string) {
	r.mu.Lock()
	r.lines = append(r.lines, msg)
	r.mu.Unlock()
}

// Lines returns a copy of all lines appended so far, in order.
func (r *Report) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}

// Len returns the number of lines appended so far.
func (r *Report) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lines)
}

// SetVerdict records the run's final outcome. False means a fatal error
// stopped the run before or during family discovery.
func (r *Report) SetVerdict(ok bool) {
	r.mu.Lock()
	r.success = ok
	r.mu.Unlock()
}

// Success reports the recorded verdict.
func (r *Report) Success() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.success
}
