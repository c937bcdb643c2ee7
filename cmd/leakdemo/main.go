// Command leakdemo exercises the rate limiter's documented idle-key
// memory growth deficiency: the core has no TTL or eviction for a
// series whose caller has gone silent, so distinct user keys that are
// hit once and never again accumulate in the backing store forever.
//
// It configures one resource, drives a single burst of admissions
// against a growing number of distinct synthetic user keys, lets them
// all go idle, and polls BackendInfo().KeyCount to show it never
// shrinks even though none of those keys are ever touched again.
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/samir-patel/ratequota/internal/ratelimit"
)

func main() {
	var (
		backend   = flag.String("backend", "memory", "store backend: memory or redis")
		redisURL  = flag.String("redis-url", "redis://localhost:6379/2", "redis URL when -backend=redis")
		rounds    = flag.Int("rounds", 10, "number of rounds of new idle keys to introduce")
		perRound  = flag.Int("per-round", 500, "distinct new user keys introduced per round")
		pollEvery = flag.Duration("poll-every", time.Second, "delay between rounds")
	)
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	store, err := newStore(*backend, *redisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build store")
	}
	if closer, ok := store.(*ratelimit.RedisStore); ok {
		defer closer.Close()
	}

	service := ratelimit.NewService(store, nil)
	resource := "leakdemo"
	limit := 5.0
	if err := service.Configure(resource, ratelimit.ResourceOptions{RequestsPerMinute: &limit}); err != nil {
		log.Fatal().Err(err).Msg("failed to configure resource")
	}

	ctx := context.Background()
	total := 0

	for round := 0; round < *rounds; round++ {
		for i := 0; i < *perRound; i++ {
			userID := fmt.Sprintf("ephemeral-user-%d-%d", round, i)
			// One admission each: every key is exercised exactly once,
			// then abandoned - nothing ever prunes its entry because
			// pruning only happens on the NEXT call to that same key.
			if _, err := service.Acquire(ctx, resource, userID, 1, time.Time{}); err != nil {
				log.Warn().Err(err).Str("user_id", userID).Msg("acquire failed")
			}
			total++
		}

		info, err := service.BackendInfo(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("backend_info failed")
			continue
		}

		log.Info().
			Int("round", round).
			Int("keys_introduced_so_far", total).
			Int("key_count", info.KeyCount).
			Int64("approx_memory_bytes", info.ApproximateMemory).
			Msg("idle keys accumulate; key_count tracks keys_introduced_so_far 1:1")

		time.Sleep(*pollEvery)
	}

	fmt.Println("done: key_count never shrinks because nothing ever evicts an idle key")
}

func newStore(backend, redisURL string) (ratelimit.Store, error) {
	if backend == "redis" {
		cfg := ratelimit.DefaultRedisConfig()
		cfg.URL = redisURL
		cfg.KeyPrefix = "leakdemo:"
		return ratelimit.NewRedisStore(cfg)
	}
	return ratelimit.NewMemoryStore(), nil
}
