package web

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jesselively/Email-Family-PDF-Merger/internal/queue"
	"github.com/jesselively/Email-Family-PDF-Merger/internal/statuscheck"
	"github.com/jesselively/Email-Family-PDF-Merger/internal/store"
)

// tailLines is how much of the run report a progress response carries.
const tailLines = 50

// Queue is the producer side of the run queue.
type Queue interface {
	Enqueue(ctx context.Context, req queue.RunRequest) error
	CancelRun(ctx context.Context, runID string) error
	TryLockFolder(ctx context.Context, folder string, ttl time.Duration) (bool, error)
	UnlockFolder(ctx context.Context, folder string) error
}

type Dependencies struct {
	Queue  Queue
	Runs   store.Runs
	Health *statuscheck.Checker
}

// Server exposes run submission and progress over HTTP.
type Server struct {
	deps Dependencies
}

func New(deps Dependencies) *Server {
	return &Server{deps: deps}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/merge_folder", s.handleMergeFolder)
	mux.HandleFunc("/progress/", s.handleProgress)
	mux.HandleFunc("/cancel_run", s.handleCancelRun)
	mux.HandleFunc("/health", s.handleHealth)
}

type mergeReq struct {
	Folder string `json:"folder"`
}

type mergeResp struct {
	Status  string `json:"status"`
	RunID   string `json:"run_id"`
	Message string `json:"message"`
}

func (s *Server) handleMergeFolder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()
	var req mergeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Folder == "" {
		http.Error(w, "missing folder", http.StatusBadRequest)
		return
	}
	info, err := os.Stat(req.Folder)
	if err != nil || !info.IsDir() {
		http.Error(w, "folder not found or not a directory", http.StatusBadRequest)
		return
	}

	// One run per folder at a time. The lock is released by the worker
	// when the run settles, or here if the enqueue itself fails.
	locked, err := s.deps.Queue.TryLockFolder(r.Context(), req.Folder, 0)
	if err != nil {
		http.Error(w, "queue unavailable", http.StatusServiceUnavailable)
		return
	}
	if !locked {
		http.Error(w, "folder is already queued or running", http.StatusConflict)
		return
	}

	runID := uuid.NewString()
	_ = s.deps.Runs.Set(r.Context(), runID, store.RunStatus{
		State:   store.StateQueued,
		Folder:  req.Folder,
		Message: "queued",
	})
	if err := s.deps.Queue.Enqueue(r.Context(), queue.RunRequest{RunID: runID, Folder: req.Folder}); err != nil {
		_ = s.deps.Queue.UnlockFolder(r.Context(), req.Folder)
		log.Error().Err(err).Msg("enqueue failed")
		http.Error(w, "queue unavailable", http.StatusServiceUnavailable)
		return
	}
	log.Info().Str("run_id", runID).Str("folder", req.Folder).Msg("run queued")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(mergeResp{Status: "ok", RunID: runID, Message: "Merge run queued"})
}

type progressResp struct {
	Success   bool       `json:"success"`
	RunID     string     `json:"run_id"`
	State     string     `json:"state"`
	Folder    string     `json:"folder"`
	Processed int        `json:"processed"`
	Total     int        `json:"total"`
	Message   string     `json:"message"`
	Start     *time.Time `json:"start_time,omitempty"`
	End       *time.Time `json:"end_time,omitempty"`
	Log       []string   `json:"log,omitempty"`
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/progress/")
	if id == "" {
		http.Error(w, "missing run id", http.StatusBadRequest)
		return
	}
	st, ok, err := s.deps.Runs.Get(r.Context(), id)
	if err != nil {
		http.Error(w, "error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	lines, err := s.deps.Runs.TailLog(r.Context(), id, tailLines)
	if err != nil {
		lines = nil
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(progressResp{
		Success:   st.State == store.StateDone,
		RunID:     id,
		State:     st.State,
		Folder:    st.Folder,
		Processed: st.Processed,
		Total:     st.Total,
		Message:   st.Message,
		Start:     st.Start,
		End:       st.End,
		Log:       lines,
	})
}

type cancelReq struct {
	RunID  string `json:"run_id"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()
	var req cancelReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.RunID == "" {
		http.Error(w, "missing run_id", http.StatusBadRequest)
		return
	}
	if err := s.deps.Queue.CancelRun(r.Context(), req.RunID); err != nil {
		http.Error(w, "cancel failed", http.StatusInternalServerError)
		return
	}
	// The worker writes the final state; only note the request here.
	if st, ok, _ := s.deps.Runs.Get(r.Context(), req.RunID); ok {
		if st.State == store.StateQueued || st.State == store.StateRunning {
			st.Message = "Cancellation requested"
			_ = s.deps.Runs.Set(r.Context(), req.RunID, st)
		}
	}
	log.Info().Str("run_id", req.RunID).Str("reason", req.Reason).Msg("run cancellation requested")
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "run_id": req.RunID, "status": "cancelling"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
		return
	}
	sum := s.deps.Health.Summary(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if !sum.OK() {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(sum)
}
