// Package api exposes the telemetry core over HTTP: status, event
// snapshots, the topology graph, operator reset, Prometheus metrics and a
// websocket stream of filtered live views.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"guardian/core"
	"guardian/service"
	"guardian/util/goroutine"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const defaultSnapshotLimit = 100

// Server serves the consumer-facing HTTP API
type Server struct {
	svc      *service.TelemetryService
	logger   *zap.SugaredLogger
	server   *http.Server
	upgrader websocket.Upgrader
	wg       sync.WaitGroup
}

// NewServer creates an API server bound to host:port
func NewServer(host string, port int, svc *service.TelemetryService, logger *zap.SugaredLogger) *Server {
	s := &Server{
		svc:    svc,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/v1/status", s.handleStatus).Methods("GET")
	r.HandleFunc("/api/v1/events", s.handleEvents).Methods("GET")
	r.HandleFunc("/api/v1/graph", s.handleGraph).Methods("GET")
	r.HandleFunc("/api/v1/reset", s.handleReset).Methods("POST")
	r.HandleFunc("/api/v1/stream", s.handleStream).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: r,
	}
	return s
}

// Start begins serving in the background
func (s *Server) Start() error {
	s.logger.Infof("API server listening on %s", s.server.Addr)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer goroutine.Recover("api-server", s.logger)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("API server error: %v", err)
		}
	}()
	return nil
}

// Stop shuts the server down gracefully
func (s *Server) Stop(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	s.wg.Wait()
	return err
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.Stats())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	filter, limit, err := filterFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	events := s.svc.Events(filter)
	if len(events) > limit {
		events = events[:limit]
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(events),
		"events": events,
	})
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.GraphSnapshot())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.svc.ClearAll()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Debugf("Failed to encode response: %v", err)
	}
}

// filterFromQuery builds an event filter from request query parameters:
// severity (minimum), category and source (repeatable), limit.
func filterFromQuery(r *http.Request) (*core.Filter, int, error) {
	filter := &core.Filter{}
	q := r.URL.Query()

	if v := q.Get("severity"); v != "" {
		severity := core.Severity(v)
		if !severity.IsValid() {
			return nil, 0, fmt.Errorf("unknown severity %q", v)
		}
		filter.MinSeverity = severity
	}

	for _, v := range q["category"] {
		category := core.Category(v)
		if !category.IsValid() {
			return nil, 0, fmt.Errorf("unknown category %q", v)
		}
		filter.Categories = append(filter.Categories, category)
	}

	filter.Sources = append(filter.Sources, q["source"]...)

	limit := defaultSnapshotLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, 0, fmt.Errorf("invalid limit %q", v)
		}
		limit = n
	}

	return filter, limit, nil
}
