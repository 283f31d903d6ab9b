// Package service exposes the consumer-facing contract of the telemetry
// core: subscriptions, connectivity, graph snapshots and operator resets,
// wired over the store, hub, topology builder and spool adapter.
package service

import (
	"guardian/core"
	"guardian/graph"
	"guardian/hub"
	"guardian/ingest"

	"go.uber.org/zap"
)

// Stats aggregates the observable state of the core for status surfaces
type Stats struct {
	Store         core.StoreStats     `json:"store"`
	Rate          ingest.RateState    `json:"rate"`
	Connectivity  ingest.Connectivity `json:"connectivity"`
	Graph         graph.Stats         `json:"graph"`
	Subscriptions int                 `json:"subscriptions"`
}

// TelemetryService is the façade consumers talk to. It owns no state of its
// own; every call delegates to the component that does.
type TelemetryService struct {
	store   *core.EventStore
	hub     *hub.Hub
	graph   *graph.Builder
	adapter *ingest.Adapter
	rate    *ingest.RateController
	logger  *zap.SugaredLogger
}

// NewTelemetryService wires the consumer façade over the core components
func NewTelemetryService(
	store *core.EventStore,
	h *hub.Hub,
	builder *graph.Builder,
	adapter *ingest.Adapter,
	rate *ingest.RateController,
	logger *zap.SugaredLogger,
) *TelemetryService {
	return &TelemetryService{
		store:   store,
		hub:     h,
		graph:   builder,
		adapter: adapter,
		rate:    rate,
		logger:  logger,
	}
}

// Subscribe registers a filtered live view and returns its handle
func (s *TelemetryService) Subscribe(filter *core.Filter, deliver hub.DeliveryFunc) string {
	return s.hub.Subscribe(filter, deliver)
}

// Unsubscribe destroys a subscription by handle
func (s *TelemetryService) Unsubscribe(id string) {
	s.hub.Unsubscribe(id)
}

// Events returns a one-off filtered snapshot, newest-first
func (s *TelemetryService) Events(filter *core.Filter) []*core.Event {
	return s.store.Snapshot(filter)
}

// Connectivity reports whether the spool adapter is healthy and when it
// last completed a scan
func (s *TelemetryService) Connectivity() ingest.Connectivity {
	return s.adapter.Connectivity()
}

// GraphSnapshot returns an immutable copy of the network topology graph
func (s *TelemetryService) GraphSnapshot() graph.Snapshot {
	return s.graph.Snapshot()
}

// ClearAll drops all events, indices and the topology graph, for
// operator-triggered resets. Active subscribers receive an empty view on
// their next reconciliation tick.
func (s *TelemetryService) ClearAll() {
	s.store.Clear()
	s.graph.Reset()
	s.hub.NotifyCleared()
	s.logger.Infow("Operator reset completed")
}

// Stats aggregates component state for the status endpoint
func (s *TelemetryService) Stats() Stats {
	return Stats{
		Store:         s.store.Stats(),
		Rate:          s.rate.State(),
		Connectivity:  s.adapter.Connectivity(),
		Graph:         s.graph.Snapshot().Stats,
		Subscriptions: s.hub.SubscriberCount(),
	}
}
