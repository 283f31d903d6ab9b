// Package graph incrementally builds a deduplicated process-to-endpoint
// connection graph from network telemetry events.
package graph

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"guardian/core"
	"guardian/metrics"

	"go.uber.org/zap"
)

// NodeType distinguishes the two sides of a connection
type NodeType string

const (
	// NodeTypeProcess is a local process observed making or accepting connections
	NodeTypeProcess NodeType = "process"
	// NodeTypeEndpoint is a remote address
	NodeTypeEndpoint NodeType = "endpoint"
)

// Accepted context key aliases for extracting connection fields from
// network events. Producers are not uniform, so each field tolerates a
// documented set of spellings.
var (
	processNameKeys = []string{"process_name", "process", "name", "image"}
	processIDKeys   = []string{"pid", "process_id"}
	addressKeys     = []string{"remote_address", "remote_ip", "address", "dst_ip"}
	portKeys        = []string{"remote_port", "port", "dst_port"}
)

// Node is one vertex of the topology graph. Identity is the ID key, not
// object identity: re-observing the same process or endpoint never creates
// a second node.
type Node struct {
	ID        string    `json:"id"`
	Type      NodeType  `json:"type"`
	Label     string    `json:"label"`
	PID       string    `json:"pid,omitempty"`
	Name      string    `json:"name,omitempty"`
	Address   string    `json:"address,omitempty"`
	FirstSeen time.Time `json:"first_seen"`
}

// Edge is one observed connection. Identity is (from, to, port, direction);
// repeated observation of the same connection increments Count.
type Edge struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Port      int       `json:"port"`
	Direction string    `json:"direction"`
	Count     int       `json:"count"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Stats summarizes a snapshot
type Stats struct {
	Nodes       int       `json:"nodes"`
	Edges       int       `json:"edges"`
	Processes   int       `json:"processes"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Snapshot is an immutable copy of the graph
type Snapshot struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
	Stats Stats  `json:"stats"`
}

// Builder incrementally maintains the topology graph. Observation is an
// O(1) upsert; only Snapshot walks the whole graph, and only when asked.
type Builder struct {
	nodes  map[string]*Node
	edges  map[string]*Edge
	logger *zap.SugaredLogger
	mu     sync.RWMutex
}

// NewBuilder creates an empty topology builder
func NewBuilder(logger *zap.SugaredLogger) *Builder {
	return &Builder{
		nodes:  make(map[string]*Node),
		edges:  make(map[string]*Edge),
		logger: logger,
	}
}

// Observe examines one event and, for network-category events carrying a
// process identity, remote address and port, upserts the corresponding
// connection. Events missing one of those fields are ignored here; they
// still flow through the event store untouched.
func (b *Builder) Observe(event *core.Event) {
	if event == nil || event.Category != core.CategoryNetwork {
		return
	}

	name := firstString(event.Context, processNameKeys)
	pid := firstScalar(event.Context, processIDKeys)
	if name == "" && pid == "" {
		return
	}
	address := firstString(event.Context, addressKeys)
	if address == "" {
		return
	}
	port, ok := firstInt(event.Context, portKeys)
	if !ok {
		return
	}

	outbound := true
	if dir := firstString(event.Context, []string{"direction"}); dir != "" {
		outbound = dir != "inbound"
	} else if v, present := event.Context["outbound"].(bool); present {
		outbound = v
	}

	b.AddConnection(pid, name, address, port, outbound)
}

// AddConnection upserts the process and endpoint nodes and the edge between
// them. Existing node keys never produce duplicates; an existing edge key
// only increments the counter.
func (b *Builder) AddConnection(pid, name, address string, port int, outbound bool) {
	now := time.Now().UTC()
	procID := "process:" + pid + ":" + name
	endpointID := "endpoint:" + address

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.nodes[procID]; !exists {
		label := name
		if pid != "" {
			label = fmt.Sprintf("%s (PID %s)", name, pid)
		}
		b.nodes[procID] = &Node{
			ID:        procID,
			Type:      NodeTypeProcess,
			Label:     label,
			PID:       pid,
			Name:      name,
			FirstSeen: now,
		}
	}
	if _, exists := b.nodes[endpointID]; !exists {
		b.nodes[endpointID] = &Node{
			ID:        endpointID,
			Type:      NodeTypeEndpoint,
			Label:     address,
			Address:   address,
			FirstSeen: now,
		}
	}

	from, to, direction := procID, endpointID, "outbound"
	if !outbound {
		from, to, direction = endpointID, procID, "inbound"
	}

	edgeKey := from + "->" + to + ":" + strconv.Itoa(port) + ":" + direction
	if edge, exists := b.edges[edgeKey]; exists {
		edge.Count++
		edge.LastSeen = now
	} else {
		b.edges[edgeKey] = &Edge{
			From:      from,
			To:        to,
			Port:      port,
			Direction: direction,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}

	metrics.GraphNodes.Set(float64(len(b.nodes)))
	metrics.GraphEdges.Set(float64(len(b.edges)))
}

// Snapshot returns an immutable copy of the graph with summary stats.
// Cost is O(graph size); call it when a consumer asks, not per observation.
func (b *Builder) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	nodes := make([]Node, 0, len(b.nodes))
	processes := 0
	for _, node := range b.nodes {
		nodes = append(nodes, *node)
		if node.Type == NodeTypeProcess {
			processes++
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	edges := make([]Edge, 0, len(b.edges))
	for _, edge := range b.edges {
		edges = append(edges, *edge)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		if edges[i].To != edges[j].To {
			return edges[i].To < edges[j].To
		}
		if edges[i].Port != edges[j].Port {
			return edges[i].Port < edges[j].Port
		}
		return edges[i].Direction < edges[j].Direction
	})

	return Snapshot{
		Nodes: nodes,
		Edges: edges,
		Stats: Stats{
			Nodes:       len(nodes),
			Edges:       len(edges),
			Processes:   processes,
			GeneratedAt: time.Now().UTC(),
		},
	}
}

// Reset drops the whole graph, for operator-triggered resets
func (b *Builder) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nodes = make(map[string]*Node)
	b.edges = make(map[string]*Edge)
	metrics.GraphNodes.Set(0)
	metrics.GraphEdges.Set(0)

	if b.logger != nil {
		b.logger.Info("Topology graph reset")
	}
}

// firstString returns the first present string value among the alias keys
func firstString(ctx map[string]interface{}, keys []string) string {
	if ctx == nil {
		return ""
	}
	for _, key := range keys {
		if v, ok := ctx[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// firstScalar returns the first present string or number among the alias
// keys, rendered as a string. PIDs arrive as either from real producers.
func firstScalar(ctx map[string]interface{}, keys []string) string {
	if ctx == nil {
		return ""
	}
	for _, key := range keys {
		switch v := ctx[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatInt(int64(v), 10)
		case int:
			return strconv.Itoa(v)
		}
	}
	return ""
}

// firstInt returns the first present integer among the alias keys. JSON
// numbers arrive as float64; strings holding digits are accepted too.
func firstInt(ctx map[string]interface{}, keys []string) (int, bool) {
	if ctx == nil {
		return 0, false
	}
	for _, key := range keys {
		switch v := ctx[key].(type) {
		case float64:
			return int(v), true
		case int:
			return v, true
		case string:
			if n, err := strconv.Atoi(v); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}
