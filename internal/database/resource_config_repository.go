// Package database - Resource limit persistence
//
// This file implements admin-facing CRUD for resource rate limit
// configuration, backing the hot-reloadable side of the rate limiter:
// an operator sets N/W pairs per resource here, and the gateway's
// config Watcher propagates changes to every instance's in-memory
// ResourceManager.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// ResourceConfigRepository provides data access for resource rate
// limit configuration.
type ResourceConfigRepository struct {
	db *DB
}

// NewResourceConfigRepository creates a new resource config repository.
func NewResourceConfigRepository(db *DB) *ResourceConfigRepository {
	return &ResourceConfigRepository{db: db}
}

// GetResourceLimits retrieves every active limit row for a resource.
func (r *ResourceConfigRepository) GetResourceLimits(ctx context.Context, resource string) ([]*ResourceLimit, error) {
	query := `
		SELECT id, resource, limit_type, n, window_ms, created_at, updated_at
		FROM resource_limits
		WHERE resource = $1
		ORDER BY limit_type ASC
	`

	rows, err := r.db.pool.QueryContext(ctx, query, resource)
	if err != nil {
		return nil, fmt.Errorf("failed to query resource limits: %w", err)
	}
	defer rows.Close()

	var limits []*ResourceLimit
	for rows.Next() {
		var rl ResourceLimit
		if err := rows.Scan(&rl.ID, &rl.Resource, &rl.LimitType, &rl.N, &rl.WindowMs, &rl.CreatedAt, &rl.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan resource limit: %w", err)
		}
		limits = append(limits, &rl)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating resource limits: %w", err)
	}

	return limits, nil
}

// GetAllResources returns the distinct resource names with at least
// one configured limit, used to prime the ResourceManager at startup.
func (r *ResourceConfigRepository) GetAllResources(ctx context.Context) ([]string, error) {
	rows, err := r.db.pool.QueryContext(ctx, `SELECT DISTINCT resource FROM resource_limits ORDER BY resource ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query distinct resources: %w", err)
	}
	defer rows.Close()

	var resources []string
	for rows.Next() {
		var resource string
		if err := rows.Scan(&resource); err != nil {
			return nil, fmt.Errorf("failed to scan resource name: %w", err)
		}
		resources = append(resources, resource)
	}

	return resources, nil
}

// UpsertResourceLimit creates or updates the limit row for one
// (resource, limit_type) pair. A non-positive n deactivates that
// limit type by deleting its row, mirroring how ResourceOptions
// treats a non-positive field (it deactivates the limit without
// erasing accumulated series state in the Store).
func (r *ResourceConfigRepository) UpsertResourceLimit(ctx context.Context, resource, limitType string, n float64, window time.Duration) error {
	if n <= 0 {
		return r.DeleteResourceLimit(ctx, resource, limitType)
	}

	query := `
		INSERT INTO resource_limits (resource, limit_type, n, window_ms, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (resource, limit_type)
		DO UPDATE SET n = EXCLUDED.n, window_ms = EXCLUDED.window_ms, updated_at = now()
	`

	if _, err := r.db.pool.ExecContext(ctx, query, resource, limitType, n, window.Milliseconds()); err != nil {
		return fmt.Errorf("failed to upsert resource limit: %w", err)
	}

	log.Info().
		Str("component", "resource_config_repository").
		Str("resource", resource).
		Str("limit_type", limitType).
		Float64("n", n).
		Dur("window", window).
		Msg("Resource limit upserted")

	return nil
}

// DeleteResourceLimit removes one (resource, limit_type) row. Returns
// nil whether or not a row existed.
func (r *ResourceConfigRepository) DeleteResourceLimit(ctx context.Context, resource, limitType string) error {
	_, err := r.db.pool.ExecContext(ctx, `DELETE FROM resource_limits WHERE resource = $1 AND limit_type = $2`, resource, limitType)
	if err != nil {
		return fmt.Errorf("failed to delete resource limit: %w", err)
	}

	log.Info().
		Str("component", "resource_config_repository").
		Str("resource", resource).
		Str("limit_type", limitType).
		Msg("Resource limit deleted")

	return nil
}

// DeleteResource removes every limit row for a resource, fully
// deconfiguring it.
func (r *ResourceConfigRepository) DeleteResource(ctx context.Context, resource string) error {
	_, err := r.db.pool.ExecContext(ctx, `DELETE FROM resource_limits WHERE resource = $1`, resource)
	if err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}
	return nil
}
