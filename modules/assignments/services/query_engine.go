package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/lendops/modules/assignments/domain/assignment"
	"github.com/iota-uz/lendops/pkg/caldate"
	"github.com/iota-uz/lendops/pkg/composables"
)

// QueryEngine answers point-in-time and range ownership questions. It takes
// no locks.
type QueryEngine struct {
	repo  Repository
	cache CurrentOwnerCache
}

func NewQueryEngine(repo Repository, cache CurrentOwnerCache) *QueryEngine {
	if cache == nil {
		cache = noopCurrentOwnerCache{}
	}
	return &QueryEngine{repo: repo, cache: cache}
}

type DateLookup struct {
	EntityID uuid.UUID
	Date     caldate.Date
}

type OwnerRef struct {
	OwnerID   uuid.UUID `json:"owner_id"`
	OwnerName string    `json:"owner_name"`
}

// OwnerAtDate returns the owner whose record covers day, or false for a gap.
func (q *QueryEngine) OwnerAtDate(ctx context.Context, entityID uuid.UUID, day caldate.Date) (uuid.UUID, bool, error) {
	records, err := q.repo.ListCovering(ctx, []uuid.UUID{entityID}, day)
	if err != nil {
		return uuid.Nil, false, mapStoreError(err)
	}
	rec, ok := assignment.LatestCovering(records, day)
	if !ok {
		return uuid.Nil, false, nil
	}
	return rec.OwnerID, true, nil
}

// OwnerAtTime is OwnerAtDate for the UTC calendar day containing t.
func (q *QueryEngine) OwnerAtTime(ctx context.Context, entityID uuid.UUID, t time.Time) (uuid.UUID, bool, error) {
	return q.OwnerAtDate(ctx, entityID, caldate.FromTime(t))
}

// CurrentOwner reads through the cache. The refill is skipped inside an open
// transaction, and when the entity was invalidated while the store read was
// in flight.
func (q *QueryEngine) CurrentOwner(ctx context.Context, entityID uuid.UUID) (uuid.UUID, bool, error) {
	if ownerID, ok := q.cache.Get(ctx, entityID); ok {
		recordCacheRequest(true)
		return ownerID, true, nil
	}
	recordCacheRequest(false)

	generation, canFill := q.cache.Generation(ctx, entityID)
	canFill = canFill && !composables.InCommitScope(ctx)

	rec, err := q.repo.GetCurrent(ctx, entityID)
	if errors.Is(err, assignment.ErrRecordNotFound) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, mapStoreError(err)
	}
	if canFill {
		q.cache.Set(ctx, entityID, rec.OwnerID, generation)
	}
	return rec.OwnerID, true, nil
}

// OwnersAtDateBatch resolves many entities at one day with a single store
// query. Entities in a gap are absent from the result.
func (q *QueryEngine) OwnersAtDateBatch(ctx context.Context, entityIDs []uuid.UUID, day caldate.Date) (map[uuid.UUID]uuid.UUID, error) {
	out := make(map[uuid.UUID]uuid.UUID, len(entityIDs))
	ids := uniqueIDs(entityIDs)
	if len(ids) == 0 {
		return out, nil
	}
	records, err := q.repo.ListCovering(ctx, ids, day)
	if err != nil {
		return nil, mapStoreError(err)
	}
	for entityID, recs := range groupByEntity(records) {
		if rec, ok := assignment.LatestCovering(recs, day); ok {
			out[entityID] = rec.OwnerID
		}
	}
	return out, nil
}

// EntitiesOwnedAtDate returns the entities whose covering record on day
// belongs to one of ownerIDs.
func (q *QueryEngine) EntitiesOwnedAtDate(ctx context.Context, ownerIDs []uuid.UUID, day caldate.Date) ([]uuid.UUID, error) {
	ids := uniqueIDs(ownerIDs)
	if len(ids) == 0 {
		return []uuid.UUID{}, nil
	}
	records, err := q.repo.ListCoveringByOwners(ctx, ids, day)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return entitySet(records), nil
}

// EntitiesOwnedDuringPeriod returns every entity with any assignment to one of
// ownerIDs overlapping [from, to].
func (q *QueryEngine) EntitiesOwnedDuringPeriod(ctx context.Context, ownerIDs []uuid.UUID, from, to caldate.Date) ([]uuid.UUID, error) {
	if from.After(to) {
		return nil, newServiceError(400, CodeInvalidRange, "from must not be after to", nil)
	}
	ids := uniqueIDs(ownerIDs)
	if len(ids) == 0 {
		return []uuid.UUID{}, nil
	}
	records, err := q.repo.ListOverlappingByOwners(ctx, ids, from, to)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return entitySet(records), nil
}

// OwnersAtDatesBatch loads each distinct entity's history once and resolves
// every lookup in memory. Lookups falling in a gap are absent from the result.
func (q *QueryEngine) OwnersAtDatesBatch(ctx context.Context, lookups []DateLookup) (map[DateLookup]OwnerRef, error) {
	out := make(map[DateLookup]OwnerRef, len(lookups))
	if len(lookups) == 0 {
		return out, nil
	}
	entityIDs := make([]uuid.UUID, 0, len(lookups))
	for _, l := range lookups {
		entityIDs = append(entityIDs, l.EntityID)
	}
	owned, err := q.repo.ListHistoriesWithOwnerNames(ctx, uniqueIDs(entityIDs))
	if err != nil {
		return nil, mapStoreError(err)
	}

	byEntity := make(map[uuid.UUID][]assignment.OwnedRecord)
	for _, r := range owned {
		byEntity[r.EntityID] = append(byEntity[r.EntityID], r)
	}
	for _, l := range lookups {
		var (
			best  assignment.OwnedRecord
			found bool
		)
		for _, r := range byEntity[l.EntityID] {
			if !r.Covers(l.Date) {
				continue
			}
			if !found || r.StartDate.After(best.StartDate) {
				best, found = r, true
			}
		}
		if found {
			out[l] = OwnerRef{OwnerID: best.OwnerID, OwnerName: best.OwnerName}
		}
	}
	return out, nil
}

// FullHistory returns the entity's records, newest start first.
func (q *QueryEngine) FullHistory(ctx context.Context, entityID uuid.UUID) ([]assignment.Record, error) {
	records, err := q.repo.ListHistory(ctx, entityID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	assignment.SortByStartDesc(records)
	return records, nil
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func groupByEntity(records []assignment.Record) map[uuid.UUID][]assignment.Record {
	out := make(map[uuid.UUID][]assignment.Record)
	for _, r := range records {
		out[r.EntityID] = append(out[r.EntityID], r)
	}
	return out
}

func entitySet(records []assignment.Record) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.EntityID)
	}
	return uniqueIDs(ids)
}
