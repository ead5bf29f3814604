package services

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/lendops/modules/assignments/domain/assignment"
	"github.com/iota-uz/lendops/pkg/caldate"
	"github.com/iota-uz/lendops/pkg/composables"
)

// fakeStore is an in-memory Repository, Catalog and Transactor. A failed
// transaction restores the snapshot taken when it began.
type fakeStore struct {
	records      map[uuid.UUID]assignment.Record
	entities     map[uuid.UUID]*uuid.UUID
	owners       map[uuid.UUID]string
	locked       []uuid.UUID
	insertErr    error
	coveringHits int
	historyHits  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records:  map[uuid.UUID]assignment.Record{},
		entities: map[uuid.UUID]*uuid.UUID{},
		owners:   map[uuid.UUID]string{},
	}
}

func (f *fakeStore) addEntity() uuid.UUID {
	id := uuid.New()
	f.entities[id] = nil
	return id
}

func (f *fakeStore) addOwner(name string) uuid.UUID {
	id := uuid.New()
	f.owners[id] = name
	return id
}

func (f *fakeStore) seed(entityID, ownerID uuid.UUID, start string, end string) assignment.Record {
	rec := assignment.Record{ID: uuid.New(), EntityID: entityID, OwnerID: ownerID, StartDate: caldate.MustParse(start), CreatedAt: time.Now()}
	if end != "" {
		rec.EndDate = caldate.MustParse(end).Ptr()
	}
	f.records[rec.ID] = rec
	return rec
}

func (f *fakeStore) entityRecords(entityID uuid.UUID) []assignment.Record {
	out := []assignment.Record{}
	for _, r := range f.records {
		if r.EntityID == entityID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out
}

func (f *fakeStore) InTx(ctx context.Context, fn func(context.Context) error) error {
	if composables.InCommitScope(ctx) {
		return fn(ctx)
	}
	records := make(map[uuid.UUID]assignment.Record, len(f.records))
	for k, v := range f.records {
		records[k] = v
	}
	entities := make(map[uuid.UUID]*uuid.UUID, len(f.entities))
	for k, v := range f.entities {
		entities[k] = v
	}
	txCtx, runHooks := composables.WithCommitHooks(ctx)
	if err := fn(txCtx); err != nil {
		f.records = records
		f.entities = entities
		return err
	}
	runHooks()
	return nil
}

func (f *fakeStore) EntityExists(_ context.Context, id uuid.UUID) (bool, error) {
	_, ok := f.entities[id]
	return ok, nil
}

func (f *fakeStore) OwnerExists(_ context.Context, id uuid.UUID) (bool, error) {
	_, ok := f.owners[id]
	return ok, nil
}

func (f *fakeStore) LockEntityTimeline(_ context.Context, entityID uuid.UUID) error {
	f.locked = append(f.locked, entityID)
	return nil
}

func (f *fakeStore) GetCurrent(_ context.Context, entityID uuid.UUID) (assignment.Record, error) {
	for _, r := range f.records {
		if r.EntityID == entityID && r.EndDate == nil {
			return r, nil
		}
	}
	return assignment.Record{}, assignment.ErrRecordNotFound
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (assignment.Record, error) {
	r, ok := f.records[id]
	if !ok {
		return assignment.Record{}, assignment.ErrRecordNotFound
	}
	return r, nil
}

func (f *fakeStore) ListHistory(_ context.Context, entityID uuid.UUID) ([]assignment.Record, error) {
	return f.entityRecords(entityID), nil
}

func (f *fakeStore) ListHistoriesWithOwnerNames(_ context.Context, entityIDs []uuid.UUID) ([]assignment.OwnedRecord, error) {
	f.historyHits++
	out := []assignment.OwnedRecord{}
	for _, id := range entityIDs {
		for _, r := range f.entityRecords(id) {
			out = append(out, assignment.OwnedRecord{Record: r, OwnerName: f.owners[r.OwnerID]})
		}
	}
	return out, nil
}

func (f *fakeStore) ListCovering(_ context.Context, entityIDs []uuid.UUID, day caldate.Date) ([]assignment.Record, error) {
	f.coveringHits++
	want := idSet(entityIDs)
	out := []assignment.Record{}
	for _, r := range f.records {
		if _, ok := want[r.EntityID]; ok && r.Covers(day) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) ListCoveringByOwners(_ context.Context, ownerIDs []uuid.UUID, day caldate.Date) ([]assignment.Record, error) {
	want := idSet(ownerIDs)
	out := []assignment.Record{}
	for _, r := range f.records {
		if _, ok := want[r.OwnerID]; ok && r.Covers(day) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) ListOverlappingByOwners(_ context.Context, ownerIDs []uuid.UUID, from, to caldate.Date) ([]assignment.Record, error) {
	want := idSet(ownerIDs)
	out := []assignment.Record{}
	for _, r := range f.records {
		if _, ok := want[r.OwnerID]; ok && r.Overlaps(from, &to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) ListOverlapping(_ context.Context, entityID uuid.UUID, from, to caldate.Date) ([]assignment.Record, error) {
	out := []assignment.Record{}
	for _, r := range f.entityRecords(entityID) {
		if r.Overlaps(from, &to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) Insert(_ context.Context, rec assignment.Record) (assignment.Record, error) {
	if f.insertErr != nil {
		return assignment.Record{}, f.insertErr
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.CreatedAt = time.Now().UTC()
	f.records[rec.ID] = rec
	return rec, nil
}

func (f *fakeStore) UpdateStartDate(_ context.Context, id uuid.UUID, start caldate.Date) error {
	r, ok := f.records[id]
	if !ok {
		return assignment.ErrRecordNotFound
	}
	r.StartDate = start
	f.records[id] = r
	return nil
}

func (f *fakeStore) CloseRecord(_ context.Context, id uuid.UUID, end caldate.Date) error {
	r, ok := f.records[id]
	if !ok {
		return assignment.ErrRecordNotFound
	}
	r.EndDate = end.Ptr()
	f.records[id] = r
	return nil
}

func (f *fakeStore) Update(_ context.Context, rec assignment.Record) error {
	if _, ok := f.records[rec.ID]; !ok {
		return assignment.ErrRecordNotFound
	}
	f.records[rec.ID] = rec
	return nil
}

func (f *fakeStore) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := f.records[id]; !ok {
		return assignment.ErrRecordNotFound
	}
	delete(f.records, id)
	return nil
}

func (f *fakeStore) RefreshCurrentOwner(_ context.Context, entityID uuid.UUID) error {
	if _, ok := f.entities[entityID]; !ok {
		return assignment.ErrEntityNotFound
	}
	var current *uuid.UUID
	for _, r := range f.records {
		if r.EntityID == entityID && r.EndDate == nil {
			owner := r.OwnerID
			current = &owner
		}
	}
	f.entities[entityID] = current
	return nil
}

func idSet(ids []uuid.UUID) map[uuid.UUID]struct{} {
	out := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}
