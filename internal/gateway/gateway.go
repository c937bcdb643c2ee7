// Package gateway provides the main gateway logic and config change handling.
package gateway

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/samir-patel/ratequota/internal/config"
	"github.com/samir-patel/ratequota/internal/database"
	"github.com/samir-patel/ratequota/internal/plugin" // ADD THIS
	"github.com/samir-patel/ratequota/internal/ratelimit"
	"github.com/samir-patel/ratequota/internal/router"
)

// Gateway handles HTTP proxying and config changes.
type Gateway struct {
	router       *router.Router
	repo         *database.Repository
	registry     *plugin.Registry
	resourceRepo *database.ResourceConfigRepository
	rateLimiter  *ratelimit.Service
}

// New creates a new Gateway instance. resourceRepo and rateLimiter may
// both be nil, in which case "resource_limit" config change events are
// logged and ignored.
func New(router *router.Router, repo *database.Repository, registry *plugin.Registry, resourceRepo *database.ResourceConfigRepository, rateLimiter *ratelimit.Service) *Gateway {
	return &Gateway{
		router:       router,
		repo:         repo,
		registry:     registry,
		resourceRepo: resourceRepo,
		rateLimiter:  rateLimiter,
	}
}

// HandleConfigChange handles configuration change events from Admin API.
// This implements the config.ConfigChangeHandler interface.
func (g *Gateway) HandleConfigChange(event config.ConfigChangeEvent) error {
	log.Info().
		Str("entity_type", event.EntityType).
		Str("entity_id", event.EntityID).
		Str("action", event.Action).
		Msg("Handling config change")

	switch event.EntityType {
	case "route":
		return g.handleRouteChange(event)
	case "service":
		return g.handleServiceChange(event)
	case "plugin":
		return g.handlePluginChange(event)
	case "resource_limit":
		return g.handleResourceLimitChange(event)
	default:
		log.Warn().
			Str("entity_type", event.EntityType).
			Msg("Unknown entity type")
		return nil
	}
}

func (g *Gateway) handleRouteChange(event config.ConfigChangeEvent) error {
	log.Info().
		Str("action", event.Action).
		Str("route_id", event.EntityID).
		Msg("Route change detected - reloading configuration")

	ctx := context.Background()

	// Reload plugins first
	var pluginInstances []plugin.PluginInstance
	if g.registry != nil {
		if err := g.registry.Reload(ctx, g.repo); err != nil {
			log.Error().
				Err(err).
				Msg("Failed to reload plugins - continuing with empty plugins")
			pluginInstances = []plugin.PluginInstance{}
		} else {
			pluginInstances = g.registry.GetInstances()
		}
	} else {
		pluginInstances = []plugin.PluginInstance{}
	}

	// Reload router with new plugins
	if err := g.router.Reload(ctx, g.repo, pluginInstances); err != nil {
		log.Error().
			Err(err).
			Msg("Failed to reload routes")
		return err
	}

	log.Info().Msg("Route configuration reloaded successfully")

	return nil
}

func (g *Gateway) handleServiceChange(event config.ConfigChangeEvent) error {
	log.Info().
		Str("action", event.Action).
		Str("service_id", event.EntityID).
		Msg("Service change detected - reloading configuration")

	ctx := context.Background()

	// Reload plugins first
	var pluginInstances []plugin.PluginInstance
	if g.registry != nil {
		if err := g.registry.Reload(ctx, g.repo); err != nil {
			log.Error().
				Err(err).
				Msg("Failed to reload plugins - continuing with empty plugins")
			pluginInstances = []plugin.PluginInstance{}
		} else {
			pluginInstances = g.registry.GetInstances()
		}
	} else {
		pluginInstances = []plugin.PluginInstance{}
	}

	// Reload router with new plugins
	if err := g.router.Reload(ctx, g.repo, pluginInstances); err != nil {
		log.Error().
			Err(err).
			Msg("Failed to reload services")
		return err
	}

	log.Info().Msg("Service configuration reloaded successfully")

	return nil
}

func (g *Gateway) handlePluginChange(event config.ConfigChangeEvent) error {
	log.Info().
		Str("action", event.Action).
		Str("plugin_id", event.EntityID).
		Msg("Plugin change detected - reloading configuration")

	ctx := context.Background()

	// Reload plugins
	var pluginInstances []plugin.PluginInstance
	if g.registry != nil {
		if err := g.registry.Reload(ctx, g.repo); err != nil {
			log.Error().
				Err(err).
				Msg("Failed to reload plugins")
			return err
		}
		pluginInstances = g.registry.GetInstances()

		log.Info().
			Int("plugin_count", len(pluginInstances)).
			Msg("Plugins reloaded successfully")
	} else {
		log.Warn().Msg("Plugin registry not available")
		pluginInstances = []plugin.PluginInstance{}
	}

	// Reload router with new plugins
	if err := g.router.Reload(ctx, g.repo, pluginInstances); err != nil {
		log.Error().
			Err(err).
			Msg("Failed to reload configuration after plugin change")
		return err
	}

	log.Info().Msg("Plugin configuration reloaded successfully")

	return nil
}

// handleResourceLimitChange re-reads the persisted limits for one
// resource and pushes them into the live ResourceManager through the
// rate limiter's Configure, so an admin edit propagates to every
// gateway instance without a restart.
func (g *Gateway) handleResourceLimitChange(event config.ConfigChangeEvent) error {
	if g.resourceRepo == nil || g.rateLimiter == nil {
		log.Warn().
			Str("resource", event.EntityID).
			Msg("Resource limit change received but no repository/rate limiter is wired")
		return nil
	}

	ctx := context.Background()
	resource := event.EntityID

	limits, err := g.resourceRepo.GetResourceLimits(ctx, resource)
	if err != nil {
		log.Error().Err(err).Str("resource", resource).Msg("Failed to load resource limits")
		return err
	}

	opts := ratelimit.ResourceOptions{}
	for _, rl := range limits {
		n := rl.N
		switch rl.LimitType {
		case "rps":
			opts.RequestsPerSecond = &n
		case "rpm":
			opts.RequestsPerMinute = &n
		case "rph":
			opts.RequestsPerHour = &n
		case "tps":
			opts.TokensPerSecond = &n
		case "tpm":
			opts.TokensPerMinute = &n
		}
	}

	if err := g.rateLimiter.Configure(resource, opts); err != nil {
		log.Error().Err(err).Str("resource", resource).Msg("Failed to reconfigure rate limiter resource")
		return err
	}

	log.Info().
		Str("resource", resource).
		Int("active_limits", len(limits)).
		Msg("Resource limit configuration reloaded")

	return nil
}
