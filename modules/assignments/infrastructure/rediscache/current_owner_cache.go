// Package rediscache shares the current-owner cache between processes.
package rediscache

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/lendops/pkg/composables"
)

const DefaultPrefix = "lendops:assignments:current_owner"

var errStaleGeneration = errors.New("current owner generation moved")

// CurrentOwnerCache stores entity -> owner ids as plain strings under
// prefix:{<entity id>} and the entity's invalidation counter under
// prefix:{<entity id>}:gen. The hash tag keeps both keys in one cluster slot.
// Redis failures are logged and read as misses.
type CurrentOwnerCache struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewCurrentOwnerCache(client redis.UniversalClient, prefix string, ttl time.Duration) *CurrentOwnerCache {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &CurrentOwnerCache{redis: client, prefix: prefix, ttl: ttl}
}

func (c *CurrentOwnerCache) key(entityID uuid.UUID) string {
	return c.prefix + ":{" + entityID.String() + "}"
}

func (c *CurrentOwnerCache) generationKey(entityID uuid.UUID) string {
	return c.key(entityID) + ":gen"
}

func (c *CurrentOwnerCache) Get(ctx context.Context, entityID uuid.UUID) (uuid.UUID, bool) {
	value, err := c.redis.Get(ctx, c.key(entityID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.warn(ctx, "get", err, entityID)
		}
		return uuid.Nil, false
	}
	ownerID, err := uuid.Parse(value)
	if err != nil {
		c.warn(ctx, "decode", err, entityID)
		return uuid.Nil, false
	}
	return ownerID, true
}

func (c *CurrentOwnerCache) Generation(ctx context.Context, entityID uuid.UUID) (uint64, bool) {
	gen, err := c.redis.Get(ctx, c.generationKey(entityID)).Uint64()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.warn(ctx, "generation", err, entityID)
		return 0, false
	}
	return gen, true
}

// Set writes the owner under WATCH on the generation key, so an Invalidate
// that lands between the check and the write aborts the transaction.
func (c *CurrentOwnerCache) Set(ctx context.Context, entityID, ownerID uuid.UUID, generation uint64) {
	genKey := c.generationKey(entityID)
	err := c.redis.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != generation {
			return errStaleGeneration
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, c.key(entityID), ownerID.String(), c.ttl)
			return nil
		})
		return err
	}, genKey)
	switch {
	case err == nil, errors.Is(err, errStaleGeneration), errors.Is(err, redis.TxFailedErr):
	default:
		c.warn(ctx, "set", err, entityID)
	}
}

// Invalidate bumps each generation before deleting the entry. Generation
// keys carry no TTL.
func (c *CurrentOwnerCache) Invalidate(ctx context.Context, entityIDs ...uuid.UUID) {
	if len(entityIDs) == 0 {
		return
	}
	_, err := c.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range entityIDs {
			pipe.Incr(ctx, c.generationKey(id))
			pipe.Del(ctx, c.key(id))
		}
		return nil
	})
	if err != nil {
		c.warn(ctx, "invalidate", err, entityIDs...)
	}
}

func (c *CurrentOwnerCache) warn(ctx context.Context, op string, err error, entityIDs ...uuid.UUID) {
	entry := composables.UseLogger(ctx)
	if entry == nil {
		entry = logrus.NewEntry(logrus.StandardLogger())
	}
	entry.WithFields(logrus.Fields{
		"cache_op":  op,
		"entities":  len(entityIDs),
		"entity_id": entityIDs[0].String(),
	}).WithError(err).Warn("assignments.cache.redis_error")
}
