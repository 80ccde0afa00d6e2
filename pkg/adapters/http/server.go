package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/tutorgraph/pkg/domain"
	"github.com/aretw0/tutorgraph/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// StepRequest is the body of POST /v1/step.
type StepRequest struct {
	Node  domain.NodeID `json:"node"`
	State domain.State  `json:"state"`
}

// StepResponse is the result of POST /v1/step.
type StepResponse struct {
	State    domain.State      `json:"state"`
	NextNode domain.NodeID     `json:"next_node"`
	Diff     *domain.StateDiff `json:"diff"`
}

// Server exposes a ports.Router over HTTP. It keeps no conversation state.
type Server struct {
	Router  ports.Router
	Streams *StreamManager

	metrics http.Handler
	version string
	logger  *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithStreams shares a StreamManager whose hooks are installed on the engine.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		if sm != nil {
			s.Streams = sm
		}
	}
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithVersion sets the version reported by /info.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = strings.TrimSpace(v)
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewHandler creates the HTTP handler for the router.
// It fails if the embedded OpenAPI document does not load.
func NewHandler(router ports.Router, opts ...Option) (http.Handler, error) {
	s := &Server{
		Router:  router,
		version: "dev",
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager(s.logger)
	}

	doc, err := Spec(context.Background())
	if err != nil {
		return nil, err
	}
	specRouter, err := newSpecRouter(doc)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(rawSpec)
	})
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(validateRequests(specRouter))
		r.Post("/run", s.Run)
		r.Post("/step", s.Step)
		r.Get("/graph", s.GetGraph)
		r.Get("/events", s.SubscribeEvents)
	})
	return r, nil
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Run handles POST /v1/run.
func (s *Server) Run(w http.ResponseWriter, r *http.Request) {
	var state domain.State
	if err := json.NewDecoder(r.Body).Decode(&state); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("Run: invalid request body", "error", err)
		return
	}
	if err := normalizeRole(&state); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := s.Router.Run(r.Context(), state)
	if err != nil {
		s.fail(w, "Run", err)
		return
	}
	s.writeJSON(w, result)
}

// Step handles POST /v1/step.
func (s *Server) Step(w http.ResponseWriter, r *http.Request) {
	var body StepRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("Step: invalid request body", "error", err)
		return
	}
	if err := normalizeRole(&body.State); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	next, to, err := s.Router.Step(r.Context(), body.Node, body.State)
	if err != nil {
		s.fail(w, "Step", err)
		return
	}
	s.writeJSON(w, StepResponse{
		State:    next,
		NextNode: to,
		Diff:     domain.Diff(&body.State, &next),
	})
}

// GetGraph handles GET /v1/graph.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.Router.Inspect())
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if doc, err := Spec(r.Context()); err == nil && doc.Info != nil {
		apiVersion = doc.Info.Version
	}
	s.writeJSON(w, map[string]string{
		"app":         "tutorgraph-http",
		"version":     s.version,
		"api_version": apiVersion,
	})
}

// SubscribeEvents handles GET /v1/events (SSE).
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}
	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		http.Error(w, "run_id is required", http.StatusBadRequest)
		return
	}

	var watch []string
	if v := r.URL.Query().Get("watch"); v != "" {
		watch = strings.Split(v, ",")
	}

	ch, cancel := s.Streams.Subscribe(runID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()
	s.logger.Info("SSE: subscribed", "run_id", runID)

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE: client disconnected", "run_id", runID)
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Name == EventDiff && !ev.matches(watch) {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, ev.Data)
			flusher.Flush()
		}
	}
}

func normalizeRole(state *domain.State) error {
	if state.Role == "" {
		state.Role = domain.RoleStudent
	}
	if !state.Role.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrUnknownRole, state.Role)
	}
	return nil
}

// fail maps engine errors onto status codes. Anything the delegates caused is a 502.
func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, domain.ErrUnknownNode), errors.Is(err, domain.ErrUnknownRole):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrStepLimitExceeded):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	http.Error(w, fmt.Sprintf("%s error: %v", op, err), status)
	s.logger.Error(op+" failed", "error", err, "status", status)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}
