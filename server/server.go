// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/poiesic/catmat"
	"github.com/poiesic/catmat/batch"
	"github.com/poiesic/catmat/core"
)

const (
	DefaultTopK           = 15
	DefaultBatchTopK      = 5
	DefaultMaxBatchItems  = 1000
	DefaultRequestTimeout = 2 * time.Minute
	maxBodyBytes          = 4 << 20
)

// ErrServiceRequired is returned by New when no service is given.
var ErrServiceRequired = errors.New("service is required")

// Service is the part of catmat.Service the API serves.
type Service interface {
	Search(ctx context.Context, query string, topK int) ([]core.SearchResult, error)
	SearchWithAI(ctx context.Context, query string, topK int) ([]core.SearchResult, *core.Recommendation, error)
	ProcessBatch(ctx context.Context, jobs []core.BatchJob) (*batch.Run, error)
	Info() catmat.Info
}

// Server routes HTTP requests to a Service.
type Server struct {
	svc            Service
	metrics        http.Handler
	defaultTopK    int
	batchTopK      int
	maxBatchItems  int
	requestTimeout time.Duration
	logger         *slog.Logger
	router         chi.Router
}

// Option configures a Server.
type Option func(*Server) error

// WithDefaultTopK sets top_k for search requests that omit it.
func WithDefaultTopK(k int) Option {
	return func(s *Server) error {
		if k < 1 {
			return fmt.Errorf("default top_k must be positive, got %d", k)
		}
		s.defaultTopK = k
		return nil
	}
}

// WithBatchTopK sets top_k for batch items that omit it.
func WithBatchTopK(k int) Option {
	return func(s *Server) error {
		if k < 1 {
			return fmt.Errorf("batch top_k must be positive, got %d", k)
		}
		s.batchTopK = k
		return nil
	}
}

// WithMaxBatchItems bounds the number of items in one batch request.
func WithMaxBatchItems(n int) Option {
	return func(s *Server) error {
		if n < 1 {
			return fmt.Errorf("max batch items must be positive, got %d", n)
		}
		s.maxBatchItems = n
		return nil
	}
}

// WithRequestTimeout bounds request handling.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) error {
		if d <= 0 {
			return fmt.Errorf("request timeout must be positive, got %s", d)
		}
		s.requestTimeout = d
		return nil
	}
}

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) error {
		s.metrics = h
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// New builds a Server and its router.
func New(svc Service, opts ...Option) (*Server, error) {
	if svc == nil {
		return nil, ErrServiceRequired
	}
	s := &Server{
		svc:            svc,
		metrics:        http.NotFoundHandler(),
		defaultTopK:    DefaultTopK,
		batchTopK:      DefaultBatchTopK,
		maxBatchItems:  DefaultMaxBatchItems,
		requestTimeout: DefaultRequestTimeout,
		logger:         slog.Default().With("component", "server"),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", s.metrics)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.requestTimeout))
		r.Use(middleware.AllowContentType("application/json"))
		r.Post("/v1/search", s.handleSearch)
		r.Post("/v1/batch", s.handleBatch)
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()))
		}()
		next.ServeHTTP(ww, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	info := s.svc.Info()
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
		catmat.Info
	}{"ok", info})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !s.decode(w, r, &req) {
		return
	}
	topK := s.defaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}

	start := time.Now()
	resp := searchResponse{Query: req.Query}
	var (
		results []core.SearchResult
		err     error
	)
	if req.UseAI {
		var rec *core.Recommendation
		results, rec, err = s.svc.SearchWithAI(r.Context(), req.Query, topK)
		resp.Recommendation = toRecommendation(rec)
	} else {
		results, err = s.svc.Search(r.Context(), req.Query, topK)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp.Results = toResults(results)
	resp.ElapsedMS = milliseconds(time.Since(start).Seconds())
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !s.decode(w, r, &req) {
		return
	}
	switch {
	case len(req.Items) == 0:
		s.writeError(w, r, &core.ValidationError{Field: "items", Reason: "at least one item is required"})
		return
	case len(req.Items) > s.maxBatchItems:
		s.writeError(w, r, &core.ValidationError{Field: "items",
			Reason: fmt.Sprintf("at most %d items are allowed, got %d", s.maxBatchItems, len(req.Items))})
		return
	}

	topK := s.batchTopK
	if req.TopK != nil {
		topK = *req.TopK
	}
	jobs := make([]core.BatchJob, len(req.Items))
	for i, item := range req.Items {
		jobs[i] = core.BatchJob{Query: item.Query, TopK: topK, UseAI: req.UseAI}
		if item.TopK != nil {
			jobs[i].TopK = *item.TopK
		}
		if item.UseAI != nil {
			jobs[i].UseAI = *item.UseAI
		}
	}

	run, err := s.svc.ProcessBatch(r.Context(), jobs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchResponse(run))
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty request body")
		}
		s.writeError(w, r, &core.ValidationError{Field: "body", Reason: err.Error()})
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, core.ErrValidation) {
		status = http.StatusBadRequest
	} else {
		s.logger.Error("request failed", "path", r.URL.Path, "err", err,
			"request_id", middleware.GetReqID(r.Context()))
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), RequestID: middleware.GetReqID(r.Context())})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
