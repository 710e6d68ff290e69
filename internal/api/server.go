// Package api exposes the handbook assistant over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/handbook-assistant/server/internal/agent/graph"
	"github.com/handbook-assistant/server/internal/agent/model"
	errx "github.com/handbook-assistant/server/internal/core/error"
	logx "github.com/handbook-assistant/server/pkg/logger"
)

const maxBodyBytes = 1 << 20

type Config struct {
	Addr              string        `envconfig:"HTTP_ADDR" default:":8000"`
	ReadHeaderTimeout time.Duration `envconfig:"HTTP_READ_HEADER_TIMEOUT" default:"5s"`
	RequestTimeout    time.Duration `envconfig:"HTTP_REQUEST_TIMEOUT" default:"2m"`
	ShutdownTimeout   time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
}

type askRequest struct {
	Question string `json:"question"`
	ThreadID string `json:"thread_id"`
}

type askResponse struct {
	Answer   string       `json:"answer"`
	Source   model.Source `json:"source"`
	Question string       `json:"question"`
	ThreadID string       `json:"thread_id"`
}

type healthResponse struct {
	Status     string `json:"status"`
	AgentReady bool   `json:"agent_ready"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// runnerRef boxes the interface so it can live in an atomic.Pointer.
type runnerRef struct {
	graph.Runner
}

// Server answers questions once a runner has been installed with SetRunner.
// Until then /ask returns 503 and /health reports agent_ready=false.
type Server struct {
	cfg    Config
	runner atomic.Pointer[runnerRef]
}

func NewServer(cfg Config) *Server {
	return &Server{cfg: cfg}
}

// SetRunner makes the server ready. It is safe to call while serving.
func (s *Server) SetRunner(r graph.Runner) {
	if r == nil {
		s.runner.Store(nil)
		return
	}
	s.runner.Store(&runnerRef{r})
}

func (s *Server) Ready() bool {
	return s.runner.Load() != nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /ask", s.handleAsk)
	mux.HandleFunc("GET /health", s.handleHealth)
	return logRequests(mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logx.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	logx.Info().Msg("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	ref := s.runner.Load()
	if ref == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: errx.NotReadyMessage})
		return
	}

	var req askRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	ctx := r.Context()
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	res, err := ref.Ask(ctx, model.QueryInput{ThreadID: req.ThreadID, Question: req.Question})
	if err != nil {
		writeError(w, req.ThreadID, err)
		return
	}
	writeJSON(w, http.StatusOK, askResponse{
		Answer:   res.Answer,
		Source:   res.Source,
		Question: res.Question,
		ThreadID: res.ThreadID,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", AgentReady: s.Ready()})
}

func writeError(w http.ResponseWriter, threadID string, err error) {
	status := errx.StatusOf(err)
	msg := errx.SystemErrorMessage
	var appErr *errx.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		msg = appErr.Message
	}

	ev := logx.Warn()
	if status >= http.StatusInternalServerError {
		ev = logx.Error()
	}
	ev.Err(err).Str("thread_id", threadID).Int("status", status).Msg("ask failed")

	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Debug().Err(err).Msg("failed to write response")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logx.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}
