package gateway

import (
	"testing"

	"github.com/samir-patel/ratequota/internal/config"
)

// TestGateway_HandleConfigChange_ResourceLimitWithoutWiring checks that
// a resource_limit event is a no-op (not an error) when the gateway
// was constructed without a resource repository or rate limiter, e.g.
// in a deployment that only uses the process-local in-memory store
// configured at startup.
func TestGateway_HandleConfigChange_ResourceLimitWithoutWiring(t *testing.T) {
	gw := New(nil, nil, nil, nil, nil)

	event := config.ConfigChangeEvent{
		EntityType: "resource_limit",
		EntityID:   "public-api",
		Action:     "update",
	}

	if err := gw.HandleConfigChange(event); err != nil {
		t.Fatalf("expected no error when resource limit wiring is absent, got %v", err)
	}
}

// TestGateway_HandleConfigChange_UnknownEntityType checks that an
// unrecognized entity type is logged and ignored rather than erroring.
func TestGateway_HandleConfigChange_UnknownEntityType(t *testing.T) {
	gw := New(nil, nil, nil, nil, nil)

	event := config.ConfigChangeEvent{EntityType: "unknown-thing", EntityID: "x"}
	if err := gw.HandleConfigChange(event); err != nil {
		t.Fatalf("expected no error for unknown entity type, got %v", err)
	}
}
