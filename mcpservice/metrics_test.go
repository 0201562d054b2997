package mcpservice

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetrics_UsesProvidedRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.ObserveRequest("notes", "tools/call", 5*time.Millisecond, nil)
	m.ObserveRequest("notes", "tools/call", 5*time.Millisecond, errors.New("x"))
	m.ObserveToolCall("notes", "add-note", "ok", time.Millisecond)
	m.ObserveListChanged()

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"ultramcp_requests_total",
		"ultramcp_request_duration_seconds",
		"ultramcp_tool_calls_total",
		"ultramcp_tool_call_duration_seconds",
		"ultramcp_resource_list_changed_total",
	} {
		if !names[want] {
			t.Fatalf("missing metric %s in %v", want, names)
		}
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("notes", "ping", 0, nil)
	m.ObserveToolCall("notes", "x", "ok", 0)
	m.ObserveListChanged()
}
