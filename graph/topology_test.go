package graph

import (
	"testing"
	"time"

	"guardian/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func networkEvent(ctx map[string]interface{}) *core.Event {
	return &core.Event{
		EventID:   "net-1",
		Timestamp: time.Now().UTC(),
		Category:  core.CategoryNetwork,
		Severity:  core.SeverityMedium,
		Message:   "connection",
		Source:    "netmon",
		Context:   ctx,
	}
}

// TestBuilder_ObserveBuildsConnection tests the basic upsert path
func TestBuilder_ObserveBuildsConnection(t *testing.T) {
	b := NewBuilder(zap.NewNop().Sugar())

	b.Observe(networkEvent(map[string]interface{}{
		"process_name":   "curl",
		"pid":            float64(4242),
		"remote_address": "203.0.113.9",
		"remote_port":    float64(443),
	}))

	snap := b.Snapshot()
	require.Len(t, snap.Nodes, 2)
	require.Len(t, snap.Edges, 1)

	assert.Equal(t, "endpoint:203.0.113.9", snap.Nodes[0].ID)
	assert.Equal(t, NodeTypeEndpoint, snap.Nodes[0].Type)
	assert.Equal(t, "process:4242:curl", snap.Nodes[1].ID)
	assert.Equal(t, NodeTypeProcess, snap.Nodes[1].Type)
	assert.Equal(t, "curl (PID 4242)", snap.Nodes[1].Label)

	edge := snap.Edges[0]
	assert.Equal(t, "process:4242:curl", edge.From)
	assert.Equal(t, "endpoint:203.0.113.9", edge.To)
	assert.Equal(t, 443, edge.Port)
	assert.Equal(t, "outbound", edge.Direction)
	assert.Equal(t, 1, edge.Count)

	assert.Equal(t, 2, snap.Stats.Nodes)
	assert.Equal(t, 1, snap.Stats.Edges)
	assert.Equal(t, 1, snap.Stats.Processes)
}

// TestBuilder_RepeatedConnectionIncrementsCount tests edge deduplication:
// three observations of the same connection from differing raw payloads
// produce one edge with Count 3.
func TestBuilder_RepeatedConnectionIncrementsCount(t *testing.T) {
	b := NewBuilder(zap.NewNop().Sugar())

	// Same connection through three alias spellings.
	b.Observe(networkEvent(map[string]interface{}{
		"process_name":   "nc",
		"pid":            float64(7),
		"remote_address": "198.51.100.7",
		"remote_port":    float64(8443),
	}))
	b.Observe(networkEvent(map[string]interface{}{
		"process":   "nc",
		"pid":       "7",
		"remote_ip": "198.51.100.7",
		"port":      float64(8443),
	}))
	b.Observe(networkEvent(map[string]interface{}{
		"name":       "nc",
		"process_id": float64(7),
		"dst_ip":     "198.51.100.7",
		"dst_port":   "8443",
	}))

	snap := b.Snapshot()
	require.Len(t, snap.Nodes, 2)
	require.Len(t, snap.Edges, 1)
	assert.Equal(t, 3, snap.Edges[0].Count)
	assert.False(t, snap.Edges[0].LastSeen.Before(snap.Edges[0].FirstSeen))
}

// TestBuilder_DistinctPortsAreDistinctEdges tests edge identity
func TestBuilder_DistinctPortsAreDistinctEdges(t *testing.T) {
	b := NewBuilder(zap.NewNop().Sugar())

	for _, port := range []float64{80, 443} {
		b.Observe(networkEvent(map[string]interface{}{
			"process_name":   "browser",
			"pid":            float64(100),
			"remote_address": "203.0.113.9",
			"remote_port":    port,
		}))
	}

	snap := b.Snapshot()
	assert.Len(t, snap.Nodes, 2, "same pair of nodes")
	assert.Len(t, snap.Edges, 2, "one edge per port")
}

// TestBuilder_InboundDirection tests that inbound connections flip the
// edge and form a distinct identity from the outbound one.
func TestBuilder_InboundDirection(t *testing.T) {
	b := NewBuilder(zap.NewNop().Sugar())

	b.Observe(networkEvent(map[string]interface{}{
		"process_name":   "sshd",
		"pid":            float64(22),
		"remote_address": "192.0.2.50",
		"remote_port":    float64(22),
		"direction":      "inbound",
	}))
	b.Observe(networkEvent(map[string]interface{}{
		"process_name":   "sshd",
		"pid":            float64(22),
		"remote_address": "192.0.2.50",
		"remote_port":    float64(22),
		"outbound":       true,
	}))

	snap := b.Snapshot()
	require.Len(t, snap.Edges, 2)

	inbound := snap.Edges[0]
	assert.Equal(t, "inbound", inbound.Direction)
	assert.Equal(t, "endpoint:192.0.2.50", inbound.From)
	assert.Equal(t, "process:22:sshd", inbound.To)

	outbound := snap.Edges[1]
	assert.Equal(t, "outbound", outbound.Direction)
	assert.Equal(t, "process:22:sshd", outbound.From)
}

// TestBuilder_IgnoresIncompleteEvents tests that events missing any
// required connection field leave the graph untouched.
func TestBuilder_IgnoresIncompleteEvents(t *testing.T) {
	b := NewBuilder(zap.NewNop().Sugar())

	b.Observe(nil)
	b.Observe(&core.Event{Category: core.CategoryProcess, Context: map[string]interface{}{
		"process_name": "vim", "remote_address": "203.0.113.9", "remote_port": float64(1),
	}})
	b.Observe(networkEvent(nil))
	b.Observe(networkEvent(map[string]interface{}{
		"remote_address": "203.0.113.9",
		"remote_port":    float64(443),
	}))
	b.Observe(networkEvent(map[string]interface{}{
		"process_name": "curl",
		"remote_port":  float64(443),
	}))
	b.Observe(networkEvent(map[string]interface{}{
		"process_name":   "curl",
		"remote_address": "203.0.113.9",
	}))

	snap := b.Snapshot()
	assert.Empty(t, snap.Nodes)
	assert.Empty(t, snap.Edges)
}

// TestBuilder_PIDOnlyProcess tests that a PID without a name still forms
// a process node.
func TestBuilder_PIDOnlyProcess(t *testing.T) {
	b := NewBuilder(zap.NewNop().Sugar())

	b.Observe(networkEvent(map[string]interface{}{
		"pid":            float64(999),
		"remote_address": "203.0.113.9",
		"remote_port":    float64(53),
	}))

	snap := b.Snapshot()
	require.Len(t, snap.Nodes, 2)
	assert.Equal(t, "process:999:", snap.Nodes[1].ID)
	assert.Equal(t, "999", snap.Nodes[1].PID)
}

// TestBuilder_Reset tests the operator reset
func TestBuilder_Reset(t *testing.T) {
	b := NewBuilder(zap.NewNop().Sugar())

	b.AddConnection("1", "launchd", "203.0.113.9", 443, true)
	require.Len(t, b.Snapshot().Nodes, 2)

	b.Reset()

	snap := b.Snapshot()
	assert.Empty(t, snap.Nodes)
	assert.Empty(t, snap.Edges)
	assert.Zero(t, snap.Stats.Processes)

	// Builder keeps working after a reset.
	b.AddConnection("1", "launchd", "203.0.113.9", 443, true)
	assert.Len(t, b.Snapshot().Edges, 1)
}

// TestBuilder_SnapshotIsCopy tests that a snapshot does not track later
// mutations.
func TestBuilder_SnapshotIsCopy(t *testing.T) {
	b := NewBuilder(zap.NewNop().Sugar())
	b.AddConnection("1", "a", "203.0.113.9", 443, true)

	snap := b.Snapshot()
	b.AddConnection("2", "b", "198.51.100.7", 80, true)

	assert.Len(t, snap.Nodes, 2)
	assert.Len(t, snap.Edges, 1)
}
