package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jesselively/Email-Family-PDF-Merger/internal/engine"
	"github.com/jesselively/Email-Family-PDF-Merger/internal/queue"
	"github.com/jesselively/Email-Family-PDF-Merger/internal/store"
)

type fakeQueue struct {
	mu        sync.Mutex
	pending   [][]byte
	seq       int
	acked     int
	unlocked  []string
	cancelled map[string]bool
}

func (q *fakeQueue) push(data []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, data)
}

func (q *fakeQueue) pushRequest(t *testing.T, req queue.RunRequest) {
	t.Helper()
	data, err := json.Marshal(req)
	require.NoError(t, err)
	q.push(data)
}

func (q *fakeQueue) Dequeue(ctx context.Context, consumer string, timeout time.Duration) (string, []byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		time.Sleep(time.Millisecond)
		return "", nil, nil
	}
	data := q.pending[0]
	q.pending = q.pending[1:]
	q.seq++
	return fmt.Sprintf("msg-%d", q.seq), data, nil
}

func (q *fakeQueue) Ack(ctx context.Context, msgID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked++
	return nil
}

func (q *fakeQueue) IsCancelled(ctx context.Context, runID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cancelled[runID], nil
}

func (q *fakeQueue) UnlockFolder(ctx context.Context, folder string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.unlocked = append(q.unlocked, folder)
	return nil
}

func (q *fakeQueue) Depth(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.pending)), nil
}

func (q *fakeQueue) stats() (acked int, unlocked []string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.acked, append([]string(nil), q.unlocked...)
}

type fakeRunner struct {
	mu      sync.Mutex
	success bool
	lines   []string
	calls   []string
}

func (r *fakeRunner) RunWithID(ctx context.Context, id, folder string, ev engine.Events) *engine.RunResult {
	r.mu.Lock()
	r.calls = append(r.calls, id)
	r.mu.Unlock()

	ev.Progress(1, 2)
	for _, line := range r.lines {
		ev.Log(line)
	}
	ev.Progress(2, 2)
	ev.Done(r.success)
	return &engine.RunResult{ID: id, Folder: folder, Success: r.success}
}

func (r *fakeRunner) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func newTestWorker(q *fakeQueue, runs store.Runs, r *fakeRunner) *Worker {
	return New(Config{Concurrency: 1, PollInterval: time.Millisecond}, q, runs, r, nil)
}

func waitState(t *testing.T, runs store.Runs, runID, want string) store.RunStatus {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st, ok, err := runs.Get(context.Background(), runID)
		require.NoError(t, err)
		if ok && st.State == want {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("run %s never reached state %q", runID, want)
	return store.RunStatus{}
}

func stopWorker(t *testing.T, w *Worker) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, w.Stop(ctx))
}

func TestWorkerExecutesRun(t *testing.T) {
	q := &fakeQueue{cancelled: map[string]bool{}}
	runs := store.NewMemoryRuns()
	runner := &fakeRunner{success: true, lines: []string{"Pass 1 completed.", "Pass 2 completed."}}

	q.pushRequest(t, queue.RunRequest{RunID: "run-1", Folder: "/data/batch7"})
	w := newTestWorker(q, runs, runner)
	w.Start()
	st := waitState(t, runs, "run-1", store.StateDone)
	stopWorker(t, w)

	assert.Equal(t, "/data/batch7", st.Folder)
	assert.Equal(t, 2, st.Processed)
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, "Pass 2 completed.", st.Message)
	require.NotNil(t, st.Start)
	require.NotNil(t, st.End)
	assert.False(t, st.End.Before(*st.Start))

	lines, err := runs.TailLog(context.Background(), "run-1", 0)
	require.NoError(t, err)
	assert.Equal(t, runner.lines, lines)

	acked, unlocked := q.stats()
	assert.Equal(t, 1, acked)
	assert.Equal(t, []string{"/data/batch7"}, unlocked)
}

func TestWorkerRunFailure(t *testing.T) {
	q := &fakeQueue{cancelled: map[string]bool{}}
	runs := store.NewMemoryRuns()
	runner := &fakeRunner{success: false}

	q.pushRequest(t, queue.RunRequest{RunID: "run-2", Folder: "/data/bad"})
	w := newTestWorker(q, runs, runner)
	w.Start()
	st := waitState(t, runs, "run-2", store.StateFailed)
	stopWorker(t, w)

	require.NotNil(t, st.End)
	assert.Equal(t, []string{"run-2"}, runner.ids())
}

func TestWorkerSkipsCancelledRun(t *testing.T) {
	q := &fakeQueue{cancelled: map[string]bool{"run-3": true}}
	runs := store.NewMemoryRuns()
	runner := &fakeRunner{success: true}

	q.pushRequest(t, queue.RunRequest{RunID: "run-3", Folder: "/data/late"})
	w := newTestWorker(q, runs, runner)
	w.Start()
	st := waitState(t, runs, "run-3", store.StateFailed)
	stopWorker(t, w)

	assert.Equal(t, "Run cancelled before start.", st.Message)
	assert.Empty(t, runner.ids())

	_, unlocked := q.stats()
	assert.Equal(t, []string{"/data/late"}, unlocked)
}

func TestWorkerDropsInvalidPayload(t *testing.T) {
	q := &fakeQueue{cancelled: map[string]bool{}}
	runs := store.NewMemoryRuns()
	runner := &fakeRunner{success: true}

	q.push([]byte("not json"))
	q.pushRequest(t, queue.RunRequest{RunID: "run-4"}) // missing folder
	q.pushRequest(t, queue.RunRequest{RunID: "run-5", Folder: "/data/ok"})
	w := newTestWorker(q, runs, runner)
	w.Start()
	waitState(t, runs, "run-5", store.StateDone)
	stopWorker(t, w)

	assert.Equal(t, []string{"run-5"}, runner.ids())
	acked, _ := q.stats()
	assert.Equal(t, 3, acked)
}

func TestWorkerStopWaitsForLoops(t *testing.T) {
	q := &fakeQueue{cancelled: map[string]bool{}}
	w := newTestWorker(q, store.NewMemoryRuns(), &fakeRunner{})
	w.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Stop(ctx))
}
