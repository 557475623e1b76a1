package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jesselively/Email-Family-PDF-Merger/internal/engine"
	"github.com/jesselively/Email-Family-PDF-Merger/internal/metrics"
	"github.com/jesselively/Email-Family-PDF-Merger/internal/queue"
	"github.com/jesselively/Email-Family-PDF-Merger/internal/storage"
	"github.com/jesselively/Email-Family-PDF-Merger/internal/store"
)

// Queue is the part of the run queue the worker consumes.
type Queue interface {
	Dequeue(ctx context.Context, consumer string, timeout time.Duration) (string, []byte, error)
	Ack(ctx context.Context, msgID string) error
	IsCancelled(ctx context.Context, runID string) (bool, error)
	UnlockFolder(ctx context.Context, folder string) error
	Depth(ctx context.Context) (int64, error)
}

// Runner executes one folder run.
type Runner interface {
	RunWithID(ctx context.Context, id, folder string, events engine.Events) *engine.RunResult
}

type Config struct {
	Concurrency  int
	RunTimeout   time.Duration
	PollInterval time.Duration
}

// Worker pulls run requests off the queue and executes them, bridging
// engine notifications into the runs store.
type Worker struct {
	cfg  Config
	q    Queue
	runs store.Runs
	eng  Runner
	arch *storage.Archiver

	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates a worker pool. arch may be nil to disable archiving.
func New(cfg Config, q Queue, runs store.Runs, eng Runner, arch *storage.Archiver) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	return &Worker{cfg: cfg, q: q, runs: runs, eng: eng, arch: arch, stop: make(chan struct{})}
}

func (w *Worker) Start() {
	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go w.loop(i)
	}
}

// Stop signals the loops and waits for in-flight runs to finish, up to
// the context deadline.
func (w *Worker) Stop(ctx context.Context) error {
	close(w.stop)
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop(id int) {
	defer w.wg.Done()
	log.Info().Int("worker", id).Msg("run worker started")
	consumer := fmt.Sprintf("worker-%d", id)
	for {
		select {
		case <-w.stop:
			log.Info().Int("worker", id).Msg("run worker stopped")
			return
		default:
		}

		msgID, data, err := w.q.Dequeue(context.Background(), consumer, w.cfg.PollInterval)
		if err != nil {
			log.Error().Err(err).Msg("queue dequeue error")
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if data == nil {
			continue
		}
		_ = w.q.Ack(context.Background(), msgID)

		var req queue.RunRequest
		if err := json.Unmarshal(data, &req); err != nil || req.RunID == "" || req.Folder == "" {
			log.Error().Err(err).Str("payload", string(data)).Msg("invalid run request, dropping")
			continue
		}
		w.execute(id, req)

		if depth, err := w.q.Depth(context.Background()); err == nil {
			metrics.SetQueueDepth("stream", depth)
		}
	}
}

func (w *Worker) execute(id int, req queue.RunRequest) {
	defer func() {
		_ = w.q.UnlockFolder(context.Background(), req.Folder)
	}()

	if cancelled, _ := w.q.IsCancelled(context.Background(), req.RunID); cancelled {
		log.Warn().Int("worker", id).Str("run_id", req.RunID).Msg("run cancelled before start, skipping")
		now := time.Now()
		_ = w.runs.Set(context.Background(), req.RunID, store.RunStatus{
			State:   store.StateFailed,
			Folder:  req.Folder,
			Message: "Run cancelled before start.",
			End:     &now,
		})
		return
	}

	runCtx := context.Background()
	var cancel context.CancelFunc
	if w.cfg.RunTimeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, w.cfg.RunTimeout)
	} else {
		runCtx, cancel = context.WithCancel(runCtx)
	}
	defer cancel()
	go w.watchCancel(runCtx, cancel, req.RunID)

	start := time.Now()
	bridge := &statusEvents{
		runs:  w.runs,
		runID: req.RunID,
		st:    store.RunStatus{State: store.StateRunning, Folder: req.Folder, Start: &start},
	}
	bridge.flush()

	res := w.eng.RunWithID(runCtx, req.RunID, req.Folder, bridge)
	cancel()

	if res.Success && w.arch != nil {
		if err := w.arch.ArchiveRun(context.Background(), req.RunID, filepath.Join(req.Folder, engine.OutputDirName)); err != nil {
			log.Error().Err(err).Str("run_id", req.RunID).Msg("archive upload failed")
		}
	}

	end := time.Now()
	final := store.StateDone
	if !res.Success {
		final = store.StateFailed
	}
	bridge.finish(final, &end)
}

// watchCancel polls the cancellation set and aborts the run context
// when the run is flagged. Exits when the run context ends.
func (w *Worker) watchCancel(ctx context.Context, cancel context.CancelFunc, runID string) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if cancelled, err := w.q.IsCancelled(ctx, runID); err == nil && cancelled {
				log.Warn().Str("run_id", runID).Msg("cancellation requested, aborting run")
				cancel()
				return
			}
		}
	}
}

// statusEvents forwards engine notifications into the runs store.
type statusEvents struct {
	runs  store.Runs
	runID string

	mu sync.Mutex
	st store.RunStatus
}

func (s *statusEvents) Progress(processed, total int) {
	s.mu.Lock()
	s.st.Processed = processed
	s.st.Total = total
	s.mu.Unlock()
	s.flush()
}

func (s *statusEvents) Log(message string) {
	s.mu.Lock()
	s.st.Message = message
	s.mu.Unlock()
	s.flush()
	_ = s.runs.AppendLog(context.Background(), s.runID, message)
}

// Done is a no-op: the worker writes the final state together with the
// end timestamp once archiving has settled.
func (s *statusEvents) Done(bool) {}

func (s *statusEvents) flush() {
	s.mu.Lock()
	st := s.st
	s.mu.Unlock()
	_ = s.runs.Set(context.Background(), s.runID, st)
}

func (s *statusEvents) finish(state string, end *time.Time) {
	s.mu.Lock()
	s.st.State = state
	s.st.End = end
	s.mu.Unlock()
	s.flush()
}
