package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

// CurrentOwnerCache is a read-through cache of entity -> current owner. It is
// never authoritative: entries are dropped after every committed mutation of
// the entity and refilled from the record store.
//
// Every Invalidate bumps a per-entity generation. A reader takes the
// generation before it reads the store and passes it to Set, which must drop
// the write when the generation has moved on in the meantime.
type CurrentOwnerCache interface {
	Get(ctx context.Context, entityID uuid.UUID) (uuid.UUID, bool)
	// Generation reports false when the cache cannot tell; the reader then
	// skips the refill.
	Generation(ctx context.Context, entityID uuid.UUID) (uint64, bool)
	Set(ctx context.Context, entityID, ownerID uuid.UUID, generation uint64)
	Invalidate(ctx context.Context, entityIDs ...uuid.UUID)
}

type noopCurrentOwnerCache struct{}

func (noopCurrentOwnerCache) Get(context.Context, uuid.UUID) (uuid.UUID, bool) { return uuid.Nil, false }
func (noopCurrentOwnerCache) Generation(context.Context, uuid.UUID) (uint64, bool) {
	return 0, false
}
func (noopCurrentOwnerCache) Set(context.Context, uuid.UUID, uuid.UUID, uint64) {}
func (noopCurrentOwnerCache) Invalidate(context.Context, ...uuid.UUID)          {}

type MemoryCurrentOwnerCache struct {
	c *gocache.Cache

	mu          sync.Mutex
	generations map[uuid.UUID]uint64
}

// NewMemoryCurrentOwnerCache keeps entries for ttl. A cleanupInterval of zero
// disables the background janitor; expired entries are then skipped on read.
func NewMemoryCurrentOwnerCache(ttl, cleanupInterval time.Duration) *MemoryCurrentOwnerCache {
	return &MemoryCurrentOwnerCache{
		c:           gocache.New(ttl, cleanupInterval),
		generations: map[uuid.UUID]uint64{},
	}
}

func (m *MemoryCurrentOwnerCache) Get(_ context.Context, entityID uuid.UUID) (uuid.UUID, bool) {
	v, ok := m.c.Get(entityID.String())
	if !ok {
		return uuid.Nil, false
	}
	ownerID, ok := v.(uuid.UUID)
	return ownerID, ok
}

func (m *MemoryCurrentOwnerCache) Generation(_ context.Context, entityID uuid.UUID) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generations[entityID], true
}

func (m *MemoryCurrentOwnerCache) Set(_ context.Context, entityID, ownerID uuid.UUID, generation uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generations[entityID] != generation {
		return
	}
	m.c.SetDefault(entityID.String(), ownerID)
}

func (m *MemoryCurrentOwnerCache) Invalidate(_ context.Context, entityIDs ...uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range entityIDs {
		m.generations[id]++
		m.c.Delete(id.String())
	}
}

func (m *MemoryCurrentOwnerCache) Len() int {
	return m.c.ItemCount()
}
