package builtin

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/samir-patel/ratequota/internal/database"
	"github.com/samir-patel/ratequota/internal/plugin"
	"github.com/samir-patel/ratequota/internal/ratelimit"
)

func newTestContext(t *testing.T, req *http.Request) *plugin.Context {
	t.Helper()
	rec := httptest.NewRecorder()
	route := &database.Route{ID: "route-1", Name: sql.NullString{String: "test-route", Valid: true}}
	service := &database.Service{ID: "service-1", Name: "test-service"}
	return plugin.NewContext(req, rec, route, service, plugin.PhaseBeforeRequest)
}

func newTestPlugin(cfg RateLimitConfig) *RateLimitPlugin {
	return &RateLimitPlugin{
		config:  cfg,
		service: ratelimit.NewService(ratelimit.NewMemoryStore(), nil),
	}
}

// TestValidateRateLimitConfig_RequiresAtLeastOneLimit checks that a
// plugin configuration with every limit type at zero is rejected.
func TestValidateRateLimitConfig_RequiresAtLeastOneLimit(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	cfg.RequestsPerMinute = 0
	if err := validateRateLimitConfig(cfg); err == nil {
		t.Error("expected an error when no limit type is configured")
	}

	cfg.TokensPerSecond = 5
	if err := validateRateLimitConfig(cfg); err != nil {
		t.Errorf("expected success with one active limit, got %v", err)
	}
}

// TestValidateRateLimitConfig_InvalidIdentifier checks identifier
// enum validation.
func TestValidateRateLimitConfig_InvalidIdentifier(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	cfg.Identifier = "session_id"
	if err := validateRateLimitConfig(cfg); err == nil {
		t.Error("expected an error for an unrecognized identifier")
	}
}

// TestValidateRateLimitConfig_InvalidWaitForSlot checks that a
// malformed duration string is rejected at configuration time.
func TestValidateRateLimitConfig_InvalidWaitForSlot(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	cfg.WaitForSlot = "not-a-duration"
	if err := validateRateLimitConfig(cfg); err == nil {
		t.Error("expected an error for an invalid wait_for_slot")
	}
}

// TestRateLimitPlugin_Execute_AdmitsUnderLimit checks the common path:
// request within the configured limit passes through without aborting.
func TestRateLimitPlugin_Execute_AdmitsUnderLimit(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	cfg.Resource = "test-resource"
	cfg.RequestsPerMinute = 5
	p := newTestPlugin(cfg)
	if err := p.service.Configure(cfg.Resource, ratelimit.ResourceOptions{RequestsPerMinute: optionalLimit(5)}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.5:12345"
	ctx := newTestContext(t, req)

	if err := p.Execute(ctx); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if ctx.IsAborted() {
		t.Error("expected request to pass through under the limit")
	}
}

// TestRateLimitPlugin_Execute_RejectsOverLimit checks that exceeding
// the limit aborts with the configured status code and sets
// Retry-After.
func TestRateLimitPlugin_Execute_RejectsOverLimit(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	cfg.Resource = "test-resource-2"
	cfg.RequestsPerSecond = 1
	p := newTestPlugin(cfg)
	if err := p.service.Configure(cfg.Resource, ratelimit.ResourceOptions{RequestsPerSecond: optionalLimit(1)}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.9:12345"

	first := newTestContext(t, req)
	if err := p.Execute(first); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if first.IsAborted() {
		t.Fatal("first request should be admitted")
	}

	second := newTestContext(t, req)
	if err := p.Execute(second); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !second.IsAborted() {
		t.Fatal("second request should be rejected")
	}
	if second.AbortStatusCode() != 429 {
		t.Errorf("expected status 429, got %d", second.AbortStatusCode())
	}
	if second.Response.Header().Get("Retry-After") == "" {
		t.Error("expected a Retry-After header on rejection")
	}
}

// TestRateLimitPlugin_GetIdentifier_Hierarchy checks the auto
// identifier hierarchy: consumer_id beats api_key beats IP.
func TestRateLimitPlugin_GetIdentifier_Hierarchy(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	p := newTestPlugin(cfg)

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "198.51.100.1:9999"
	req.Header.Set("X-API-Key", "secret-key")
	ctx := newTestContext(t, req)

	if id := p.getIdentifier(ctx); id != "apikey:"+hashAPIKey("secret-key") {
		t.Errorf("expected api key identifier, got %s", id)
	}

	ctx.Set("consumer_id", "acme-corp")
	if id := p.getIdentifier(ctx); id != "consumer:acme-corp" {
		t.Errorf("expected consumer identifier to win, got %s", id)
	}
}

// TestRateLimitPlugin_GetTokenWeight checks header parsing defaults
// and fallback to 1.
func TestRateLimitPlugin_GetTokenWeight(t *testing.T) {
	p := newTestPlugin(DefaultRateLimitConfig())

	req := httptest.NewRequest("GET", "/", nil)
	ctx := newTestContext(t, req)
	if w := p.getTokenWeight(ctx); w != 1 {
		t.Errorf("expected default weight 1, got %v", w)
	}

	req.Header.Set("X-Token-Weight", "42")
	if w := p.getTokenWeight(ctx); w != 42 {
		t.Errorf("expected weight 42, got %v", w)
	}

	req.Header.Set("X-Token-Weight", "not-a-number")
	if w := p.getTokenWeight(ctx); w != 1 {
		t.Errorf("expected fallback to 1 on unparsable header, got %v", w)
	}
}

// TestGetClientIP_PrefersForwardedFor checks the proxy header
// precedence order.
func TestGetClientIP_PrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.50, 10.0.0.2")

	if ip := getClientIP(req); ip != "203.0.113.50" {
		t.Errorf("expected the first X-Forwarded-For entry, got %s", ip)
	}
}
