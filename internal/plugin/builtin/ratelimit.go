// Package builtin - Rate Limit plugin for request throttling
//
// This plugin enforces rate limits on incoming requests to protect
// backend services from overload and ensure fair usage.
//
// Features:
//   - Up to five simultaneous limits per resource: requests per
//     second/minute/hour and tokens per second/minute
//   - Identifier hierarchy: consumer_id > api_key > ip_address
//   - Standard rate limit headers (X-RateLimit-*)
//   - 429 Too Many Requests response, with an optional bounded wait
//     instead of an immediate rejection
//   - Process-local or Redis-backed shared state
//   - Hot reload support via the config Watcher
//
// Configuration Example:
//
//	{
//	  "critical": false,
//	  "resource": "public-api",
//	  "requests_per_second": 10,
//	  "requests_per_minute": 300,
//	  "tokens_per_minute": 50000,
//	  "identifier": "consumer_id",
//	  "wait_for_slot": "2s",
//	  "headers": true,
//	  "response_code": 429,
//	  "response_message": "Rate limit exceeded"
//	}
package builtin

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samir-patel/ratequota/internal/config"
	"github.com/samir-patel/ratequota/internal/plugin"
	"github.com/samir-patel/ratequota/internal/ratelimit"
)

// RateLimitPlugin implements rate limiting for the gateway.
type RateLimitPlugin struct {
	config  RateLimitConfig
	service *ratelimit.Service
}

// RateLimitConfig holds configuration for the rate limit plugin.
type RateLimitConfig struct {
	// Critical indicates if rate limit failure should stop the request.
	// Usually false - we want to allow requests if the backend is down.
	Critical bool `json:"critical"`

	// Resource names the Resource Configuration this plugin instance
	// enforces. Two routes sharing the same resource name share one
	// quota.
	Resource string `json:"resource"`

	// The five limit types a resource can activate. Zero or omitted
	// deactivates that limit type.
	RequestsPerSecond float64 `json:"requests_per_second"`
	RequestsPerMinute float64 `json:"requests_per_minute"`
	RequestsPerHour   float64 `json:"requests_per_hour"`
	TokensPerSecond   float64 `json:"tokens_per_second"`
	TokensPerMinute   float64 `json:"tokens_per_minute"`

	// Identifier determines how to identify rate limit buckets.
	// Options: "consumer_id", "api_key", "ip", "auto"
	// Default: "auto" (tries consumer_id > api_key > ip)
	Identifier string `json:"identifier"`

	// WaitForSlot, if non-zero, makes the plugin retry-with-sleep up to
	// this long instead of rejecting immediately. Format: "500ms", "2s".
	// Empty means immediate rejection.
	WaitForSlot string `json:"wait_for_slot"`

	// TokenWeightHeader names the request header carrying the
	// caller-supplied token weight for token-kind limits. Default:
	// "X-Token-Weight". Missing or unparsable defaults to weight 1.
	TokenWeightHeader string `json:"token_weight_header"`

	// Headers indicates if rate limit headers should be added.
	// Default: true
	Headers bool `json:"headers"`

	// ResponseCode is the HTTP status code when rate limit is exceeded.
	// Default: 429 (Too Many Requests)
	ResponseCode int `json:"response_code"`

	// ResponseMessage is the error message when rate limit is exceeded.
	// Default: "Rate limit exceeded"
	ResponseMessage string `json:"response_message"`
}

// DefaultRateLimitConfig returns sensible defaults.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Critical:          false,
		Resource:          "default",
		RequestsPerMinute: 1000,
		Identifier:        "auto",
		TokenWeightHeader: "X-Token-Weight",
		Headers:           true,
		ResponseCode:      429,
		ResponseMessage:   "Rate limit exceeded",
	}
}

// NewRateLimitPlugin creates a new rate limit plugin.
//
// This is the factory function registered with the plugin registry.
// It does not build a Service of its own: it configures its resource
// on the process-wide Service from sharedRateLimitService (memory or
// Redis, chosen once from the environment), so every RateLimitPlugin
// instance in a gateway process shares one Store.
func NewRateLimitPlugin(configJSON json.RawMessage) (plugin.Plugin, error) {
	cfg := DefaultRateLimitConfig()

	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &cfg); err != nil {
			return nil, fmt.Errorf("invalid rate-limit config: %w", err)
		}
	}

	if err := validateRateLimitConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid rate limit configuration: %w", err)
	}

	log.Info().
		Str("component", "plugin").
		Str("plugin", "rate-limit").
		Str("resource", cfg.Resource).
		Str("identifier", cfg.Identifier).
		Msg("Initializing rate limit plugin")

	service, err := sharedRateLimitService()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize rate limiter backend: %w", err)
	}

	if err := service.Configure(cfg.Resource, ratelimit.ResourceOptions{
		RequestsPerSecond: optionalLimit(cfg.RequestsPerSecond),
		RequestsPerMinute: optionalLimit(cfg.RequestsPerMinute),
		RequestsPerHour:   optionalLimit(cfg.RequestsPerHour),
		TokensPerSecond:   optionalLimit(cfg.TokensPerSecond),
		TokensPerMinute:   optionalLimit(cfg.TokensPerMinute),
	}); err != nil {
		return nil, fmt.Errorf("failed to configure resource %q: %w", cfg.Resource, err)
	}

	log.Info().
		Str("component", "plugin").
		Str("plugin", "rate-limit").
		Str("resource", cfg.Resource).
		Msg("Rate limit plugin initialized successfully")

	return &RateLimitPlugin{config: cfg, service: service}, nil
}

func optionalLimit(n float64) *float64 {
	if n <= 0 {
		return nil
	}
	return &n
}

// sharedRateLimitService lazily builds the process-wide Service once,
// backed by whichever store RATE_LIMITER_BACKEND selects, so every
// RateLimitPlugin instance in this process draws from one Store.
var sharedService *ratelimit.Service

func sharedRateLimitService() (*ratelimit.Service, error) {
	if sharedService != nil {
		return sharedService, nil
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	var store ratelimit.Store
	switch cfg.RateLimiter.Backend {
	case "redis":
		redisConfig := ratelimit.DefaultRedisConfig()
		redisConfig.URL = cfg.RateLimiter.RedisURL
		redisConfig.KeyPrefix = cfg.RateLimiter.RedisKeyPrefix
		store, err = ratelimit.NewRedisStore(redisConfig)
		if err != nil {
			return nil, err
		}
	default:
		store = ratelimit.NewMemoryStore()
	}

	sharedService = ratelimit.NewService(store, nil)
	return sharedService, nil
}

// validateRateLimitConfig validates the plugin configuration.
func validateRateLimitConfig(cfg RateLimitConfig) error {
	if cfg.Resource == "" {
		return fmt.Errorf("resource must not be empty")
	}

	hasLimit := cfg.RequestsPerSecond > 0 || cfg.RequestsPerMinute > 0 ||
		cfg.RequestsPerHour > 0 || cfg.TokensPerSecond > 0 || cfg.TokensPerMinute > 0
	if !hasLimit {
		return fmt.Errorf("at least one of requests_per_second/minute/hour or tokens_per_second/minute must be positive")
	}

	validIdentifiers := []string{"consumer_id", "api_key", "ip", "auto"}
	valid := false
	for _, id := range validIdentifiers {
		if cfg.Identifier == id {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid identifier '%s' (must be one of: %v)", cfg.Identifier, validIdentifiers)
	}

	if cfg.WaitForSlot != "" {
		if _, err := time.ParseDuration(cfg.WaitForSlot); err != nil {
			return fmt.Errorf("invalid wait_for_slot: %w", err)
		}
	}

	if cfg.ResponseCode < 400 || cfg.ResponseCode >= 600 {
		return fmt.Errorf("response_code must be 4xx or 5xx")
	}

	return nil
}

// Name returns the plugin identifier.
func (p *RateLimitPlugin) Name() string {
	return "rate-limit"
}

// Execute runs the rate limit plugin.
func (p *RateLimitPlugin) Execute(ctx *plugin.Context) error {
	// Only run in BeforeRequest phase
	if ctx.Phase != plugin.PhaseBeforeRequest {
		return nil
	}

	identifier := p.getIdentifier(ctx)
	weight := p.getTokenWeight(ctx)

	log.Debug().
		Str("component", "plugin").
		Str("plugin", "rate-limit").
		Str("resource", p.config.Resource).
		Str("identifier", identifier).
		Float64("weight", weight).
		Msg("Checking rate limit")

	var deadline time.Time
	if p.config.WaitForSlot != "" {
		wait, _ := time.ParseDuration(p.config.WaitForSlot) // validated at construction
		deadline = time.Now().Add(wait)
	}

	outcome, err := p.service.Acquire(ctx.Context(), p.config.Resource, identifier, weight, deadline)
	if err != nil {
		return p.handleError(ctx, err)
	}

	switch outcome.Status {
	case ratelimit.StatusAdmitted:
		log.Debug().
			Str("component", "plugin").
			Str("plugin", "rate-limit").
			Str("identifier", identifier).
			Msg("Rate limit check passed")
		return nil

	case ratelimit.StatusBackendError:
		return p.handleError(ctx, outcome.Err)

	default:
		// rate_limited, exhausted, or cancelled all reject the request.
		if p.config.Headers {
			p.addRateLimitHeaders(ctx, outcome)
		}

		log.Warn().
			Str("component", "plugin").
			Str("plugin", "rate-limit").
			Str("identifier", identifier).
			Str("status", string(outcome.Status)).
			Str("limit_type", string(outcome.LimitType)).
			Dur("wait", outcome.Wait).
			Msg("Rate limit exceeded")

		if outcome.Wait > 0 {
			ctx.Response.Header().Set("Retry-After", fmt.Sprintf("%d", int(outcome.Wait.Seconds())+1))
		}

		ctx.Abort(p.config.ResponseCode, p.config.ResponseMessage)
		return nil
	}
}

// getTokenWeight reads the caller-supplied token weight from the
// configured header, defaulting to 1 (the request-kind weight, per
// the decision that request-kind limits always count 1 regardless
// of the value passed here).
func (p *RateLimitPlugin) getTokenWeight(ctx *plugin.Context) float64 {
	header := p.config.TokenWeightHeader
	if header == "" {
		header = "X-Token-Weight"
	}
	raw := ctx.Request.Header.Get(header)
	if raw == "" {
		return 1
	}
	weight, err := strconv.ParseFloat(raw, 64)
	if err != nil || weight <= 0 {
		return 1
	}
	return weight
}

// getIdentifier extracts the identifier for rate limiting.
//
// Hierarchy (configurable via config.Identifier):
//  1. consumer_id (from authentication plugin)
//  2. api_key (from X-API-Key header, hashed)
//  3. ip (from X-Forwarded-For or RemoteAddr)
func (p *RateLimitPlugin) getIdentifier(ctx *plugin.Context) string {
	if p.config.Identifier != "auto" {
		if id := p.tryGetIdentifier(ctx, p.config.Identifier); id != "" {
			return id
		}
	}

	if consumerID := ctx.GetString("consumer_id"); consumerID != "" {
		return "consumer:" + consumerID
	}

	if apiKey := ctx.Request.Header.Get("X-API-Key"); apiKey != "" {
		return "apikey:" + hashAPIKey(apiKey)
	}

	return "ip:" + getClientIP(ctx.Request)
}

// tryGetIdentifier attempts to get a specific identifier type.
func (p *RateLimitPlugin) tryGetIdentifier(ctx *plugin.Context, identifierType string) string {
	switch identifierType {
	case "consumer_id":
		if consumerID := ctx.GetString("consumer_id"); consumerID != "" {
			return "consumer:" + consumerID
		}

	case "api_key":
		if apiKey := ctx.Request.Header.Get("X-API-Key"); apiKey != "" {
			return "apikey:" + hashAPIKey(apiKey)
		}

	case "ip":
		return "ip:" + getClientIP(ctx.Request)
	}

	return ""
}

// hashAPIKey hashes an API key for privacy.
//
// We don't store raw API keys in the rate limiter - we hash them first.
func hashAPIKey(apiKey string) string {
	hash := sha256.Sum256([]byte(apiKey))
	return fmt.Sprintf("%x", hash[:8]) // Use first 8 bytes (16 hex chars)
}

// getClientIP extracts the client IP address from the request.
//
// Checks in order:
//  1. X-Forwarded-For header (proxy/load balancer)
//  2. X-Real-IP header (nginx)
//  3. RemoteAddr (direct connection)
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr // Return as-is if can't parse
	}
	return ip
}

// addRateLimitHeaders adds standard rate limit headers to the response.
//
// Headers:
//   - X-RateLimit-Limit: the binding limit's N
//   - X-RateLimit-Remaining: 0 (the request that triggered this was rejected)
//   - X-RateLimit-Reset: seconds until the binding limit's window frees a slot
func (p *RateLimitPlugin) addRateLimitHeaders(ctx *plugin.Context, outcome ratelimit.Outcome) {
	ctx.Response.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%g", outcome.N))
	ctx.Response.Header().Set("X-RateLimit-Remaining", "0")
	ctx.Response.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", int(outcome.Wait.Seconds())+1))

	log.Debug().
		Str("component", "plugin").
		Str("plugin", "rate-limit").
		Float64("limit", outcome.N).
		Dur("wait", outcome.Wait).
		Msg("Rate limit headers added")
}

// handleError handles rate limiting errors.
//
// If critical=false (default), we allow the request through if the
// backend fails. If critical=true, we deny the request.
func (p *RateLimitPlugin) handleError(ctx *plugin.Context, err error) error {
	log.Error().
		Err(err).
		Str("component", "plugin").
		Str("plugin", "rate-limit").
		Bool("critical", p.config.Critical).
		Msg("Rate limit check failed")

	if p.config.Critical {
		ctx.Abort(503, "Rate limiting service unavailable")
		return fmt.Errorf("rate limit check failed: %w", err)
	}

	log.Warn().
		Str("component", "plugin").
		Str("plugin", "rate-limit").
		Msg("Rate limit check failed but allowing request (non-critical)")

	return nil
}
