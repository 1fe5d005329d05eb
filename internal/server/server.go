// Package server exposes a session over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/askdb/askdb/internal/metrics"
	"github.com/askdb/askdb/internal/planner"
	"github.com/askdb/askdb/internal/schema"
	"github.com/askdb/askdb/internal/session"
	"github.com/askdb/askdb/internal/sqlvalidation"
)

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 1 << 20

// Asker is the part of a session the server needs.
type Asker interface {
	Ask(ctx context.Context, question string) (*session.Response, error)
	Snapshot() *schema.Snapshot
	Refresh(ctx context.Context) error
}

var _ Asker = (*session.Session)(nil)

// Options configures the handler.
type Options struct {
	// RowCap is passed to the validator by POST /validate.
	RowCap int
	// AskTimeout bounds one POST /ask. Zero means no bound beyond the request context.
	AskTimeout time.Duration
	// Gatherer backs GET /metrics. Nil disables the route.
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// Server implements the HTTP routes.
type Server struct {
	Session Asker
	opts    Options
	logger  *zap.Logger
}

type askRequest struct {
	Question string `json:"question"`
}

type validateRequest struct {
	SQL string `json:"sql"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewHandler returns the router for s:
//
//	POST /ask       {"question": "..."} -> session.Response
//	POST /validate  {"sql": "..."}      -> sqlvalidation.Verdict
//	GET  /schema    snapshot JSON, or ?format=text for the compact rendering
//	POST /refresh   rebuild the snapshot
//	GET  /healthz
//	GET  /metrics
func NewHandler(s Asker, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	server := &Server{Session: s, opts: opts, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(server.logRequests)

	r.Post("/ask", server.Ask)
	r.Post("/validate", server.Validate)
	r.Get("/schema", server.Schema)
	r.Post("/refresh", server.Refresh)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, logger)
	})
	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(opts.Gatherer))
	}
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// Ask handles POST /ask. Query failures are still 200: the status is in the body.
func (s *Server) Ask(w http.ResponseWriter, r *http.Request) {
	var body askRequest
	if !s.decode(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Question) == "" {
		s.fail(w, http.StatusBadRequest, "question is required")
		return
	}

	ctx := r.Context()
	if s.opts.AskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.AskTimeout)
		defer cancel()
	}

	resp, err := s.Session.Ask(ctx, body.Question)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, planner.ErrEmptyQuestion):
			status = http.StatusBadRequest
		case errors.Is(err, context.DeadlineExceeded):
			status = http.StatusGatewayTimeout
		case errors.Is(err, context.Canceled):
			// client went away
			s.logger.Info("ask cancelled", zap.Error(err))
			return
		}
		s.logger.Warn("ask failed", zap.String("question", body.Question), zap.Error(err))
		s.fail(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp, s.logger)
}

// Validate handles POST /validate.
func (s *Server) Validate(w http.ResponseWriter, r *http.Request) {
	var body validateRequest
	if !s.decode(w, r, &body) {
		return
	}
	v := sqlvalidation.Validate(body.SQL, s.Session.Snapshot(), sqlvalidation.Options{RowCap: s.opts.RowCap})
	writeJSON(w, http.StatusOK, v, s.logger)
}

// Schema handles GET /schema.
func (s *Server) Schema(w http.ResponseWriter, r *http.Request) {
	snap := s.Session.Snapshot()
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("ETag", `"`+snap.Hash()+`"`)
		if _, err := w.Write([]byte(snap.Compact())); err != nil {
			s.logger.Warn("schema write failed", zap.Error(err))
		}
		return
	}
	w.Header().Set("ETag", `"`+snap.Hash()+`"`)
	writeJSON(w, http.StatusOK, snap, s.logger)
}

// Refresh handles POST /refresh.
func (s *Server) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := s.Session.Refresh(r.Context()); err != nil {
		s.logger.Error("refresh failed", zap.Error(err))
		s.fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	snap := s.Session.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{"hash": snap.Hash(), "tables": snap.Len()}, s.logger)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.logger.Debug("invalid request body", zap.String("path", r.URL.Path), zap.Error(err))
		s.fail(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) fail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message}, s.logger)
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("response encode failed", zap.Error(err))
	}
}
