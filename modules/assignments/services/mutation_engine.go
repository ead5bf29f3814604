package services

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/iota-uz/lendops/modules/assignments/domain/assignment"
	"github.com/iota-uz/lendops/pkg/caldate"
)

// MutationEngine holds the conflict-resolving write algorithms. Every method
// expects ctx to carry an open transaction; the facade owns commit/rollback.
type MutationEngine struct {
	repo             Repository
	catalog          Catalog
	syncCurrentOwner bool
}

func NewMutationEngine(repo Repository, catalog Catalog, syncCurrentOwner bool) *MutationEngine {
	return &MutationEngine{repo: repo, catalog: catalog, syncCurrentOwner: syncCurrentOwner}
}

type ChangeOwnerResult struct {
	EntityID        uuid.UUID         `json:"entity_id"`
	PreviousOwnerID *uuid.UUID        `json:"previous_owner_id,omitempty"`
	NewOwnerID      uuid.UUID         `json:"new_owner_id"`
	Record          assignment.Record `json:"record"`
	ClosedRecordID  *uuid.UUID        `json:"closed_record_id,omitempty"`
	DeletedRecordID *uuid.UUID        `json:"deleted_record_id,omitempty"`
}

type UpsertResult struct {
	Record   assignment.Record `json:"record"`
	Adjusted []uuid.UUID       `json:"adjusted"`
	Deleted  []uuid.UUID       `json:"deleted"`
}

func (m *MutationEngine) ensureOwner(ctx context.Context, ownerID uuid.UUID) error {
	ok, err := m.catalog.OwnerExists(ctx, ownerID)
	if err != nil {
		return mapStoreError(err)
	}
	if !ok {
		return errOwnerNotFound(ownerID)
	}
	return nil
}

func (m *MutationEngine) ensureEntity(ctx context.Context, entityID uuid.UUID) error {
	ok, err := m.catalog.EntityExists(ctx, entityID)
	if err != nil {
		return mapStoreError(err)
	}
	if !ok {
		return errEntityNotFound(entityID)
	}
	return nil
}

// ChangeOwner closes or drops the entity's current record and opens a new one
// on effective. The owner must already have been checked by the caller.
func (m *MutationEngine) ChangeOwner(ctx context.Context, entityID, ownerID uuid.UUID, effective caldate.Date) (ChangeOwnerResult, error) {
	res := ChangeOwnerResult{EntityID: entityID, NewOwnerID: ownerID}
	if err := m.ensureEntity(ctx, entityID); err != nil {
		return res, err
	}
	if err := m.repo.LockEntityTimeline(ctx, entityID); err != nil {
		return res, mapStoreError(err)
	}

	history, err := m.repo.ListHistory(ctx, entityID)
	if err != nil {
		return res, mapStoreError(err)
	}
	current, hasCurrent := assignment.Current(history)

	exclude := uuid.Nil
	if hasCurrent {
		exclude = current.ID
	}
	if conflict, ok := assignment.FindConflict(history, exclude, effective, nil); ok {
		return res, errOverlap(CodeOverlapsHistory, conflict)
	}

	// Writes start here; any failure below is fatal for the transaction.
	if hasCurrent {
		prev := current.OwnerID
		res.PreviousOwnerID = &prev
		rot := assignment.PlanRotation(current, effective)
		switch {
		case rot.Close:
			if err := m.repo.CloseRecord(ctx, current.ID, rot.CloseAt); err != nil {
				return res, errConflictResolution(mapStoreError(err))
			}
			id := current.ID
			res.ClosedRecordID = &id
			recordRecords("adjusted", 1)
		case rot.Delete:
			if err := m.repo.Delete(ctx, current.ID); err != nil {
				return res, errConflictResolution(mapStoreError(err))
			}
			id := current.ID
			res.DeletedRecordID = &id
			recordRecords("deleted", 1)
		}
	}

	rec, err := m.repo.Insert(ctx, assignment.Record{
		ID:        uuid.New(),
		EntityID:  entityID,
		OwnerID:   ownerID,
		StartDate: effective,
	})
	if err != nil {
		return res, errConflictResolution(mapStoreError(err))
	}
	recordRecords("created", 1)
	res.Record = rec

	if err := m.finish(ctx, entityID); err != nil {
		return res, err
	}
	return res, nil
}

// UpsertHistorical inserts the closed interval [start, end] and resolves every
// overlapping record by pushing its start past end or deleting it. Entity and
// owner must already have been checked by the caller.
func (m *MutationEngine) UpsertHistorical(ctx context.Context, entityID, ownerID uuid.UUID, start, end caldate.Date) (UpsertResult, error) {
	res := UpsertResult{Adjusted: []uuid.UUID{}, Deleted: []uuid.UUID{}}
	if err := m.repo.LockEntityTimeline(ctx, entityID); err != nil {
		return res, mapStoreError(err)
	}

	overlapping, err := m.repo.ListOverlapping(ctx, entityID, start, end)
	if err != nil {
		return res, mapStoreError(err)
	}

	for _, adj := range assignment.PlanCorrection(overlapping, start, end) {
		switch adj.Action {
		case assignment.ActionDelete:
			if err := m.repo.Delete(ctx, adj.Record.ID); err != nil {
				return res, errConflictResolution(mapStoreError(err))
			}
			res.Deleted = append(res.Deleted, adj.Record.ID)
		case assignment.ActionShiftStart:
			if err := m.repo.UpdateStartDate(ctx, adj.Record.ID, adj.NewStart); err != nil {
				return res, errConflictResolution(mapStoreError(err))
			}
			res.Adjusted = append(res.Adjusted, adj.Record.ID)
		}
	}

	endCopy := end
	rec, err := m.repo.Insert(ctx, assignment.Record{
		ID:        uuid.New(),
		EntityID:  entityID,
		OwnerID:   ownerID,
		StartDate: start,
		EndDate:   &endCopy,
	})
	if err != nil {
		return res, errConflictResolution(mapStoreError(err))
	}
	res.Record = rec
	recordRecords("created", 1)
	recordRecords("adjusted", len(res.Adjusted))
	recordRecords("deleted", len(res.Deleted))

	if err := m.finish(ctx, entityID); err != nil {
		return res, err
	}
	return res, nil
}

// Update rewrites one record in place. An overlap with any other record of the
// same entity is rejected; nothing else is adjusted.
func (m *MutationEngine) Update(ctx context.Context, id, ownerID uuid.UUID, start caldate.Date, end *caldate.Date) (assignment.Record, error) {
	existing, err := m.repo.GetByID(ctx, id)
	if errors.Is(err, assignment.ErrRecordNotFound) {
		return assignment.Record{}, errRecordNotFound(id)
	}
	if err != nil {
		return assignment.Record{}, mapStoreError(err)
	}
	if err := m.ensureOwner(ctx, ownerID); err != nil {
		return assignment.Record{}, err
	}
	if err := m.repo.LockEntityTimeline(ctx, existing.EntityID); err != nil {
		return assignment.Record{}, mapStoreError(err)
	}

	history, err := m.repo.ListHistory(ctx, existing.EntityID)
	if err != nil {
		return assignment.Record{}, mapStoreError(err)
	}
	if conflict, ok := assignment.FindConflict(history, id, start, end); ok {
		return assignment.Record{}, errOverlap(CodeOverlap, conflict)
	}

	updated := existing
	updated.OwnerID = ownerID
	updated.StartDate = start
	updated.EndDate = nil
	if end != nil {
		e := *end
		updated.EndDate = &e
	}
	if err := m.repo.Update(ctx, updated); err != nil {
		return assignment.Record{}, errConflictResolution(mapStoreError(err))
	}
	recordRecords("adjusted", 1)

	if err := m.finish(ctx, existing.EntityID); err != nil {
		return assignment.Record{}, err
	}
	return updated, nil
}

// Delete removes one record. The gap it leaves is not healed.
func (m *MutationEngine) Delete(ctx context.Context, id uuid.UUID) (assignment.Record, error) {
	existing, err := m.repo.GetByID(ctx, id)
	if errors.Is(err, assignment.ErrRecordNotFound) {
		return assignment.Record{}, errRecordNotFound(id)
	}
	if err != nil {
		return assignment.Record{}, mapStoreError(err)
	}
	if err := m.repo.LockEntityTimeline(ctx, existing.EntityID); err != nil {
		return assignment.Record{}, mapStoreError(err)
	}
	if err := m.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, assignment.ErrRecordNotFound) {
			return assignment.Record{}, errRecordNotFound(id)
		}
		return assignment.Record{}, errConflictResolution(mapStoreError(err))
	}
	recordRecords("deleted", 1)

	if err := m.finish(ctx, existing.EntityID); err != nil {
		return assignment.Record{}, err
	}
	return existing, nil
}

// finish re-reads the entity's timeline, verifies it and refreshes the
// denormalized current owner.
func (m *MutationEngine) finish(ctx context.Context, entityID uuid.UUID) error {
	history, err := m.repo.ListHistory(ctx, entityID)
	if err != nil {
		return errConflictResolution(mapStoreError(err))
	}
	if err := assignment.CheckTimeline(history); err != nil {
		return errConflictResolution(err)
	}
	if !m.syncCurrentOwner {
		return nil
	}
	if err := m.repo.RefreshCurrentOwner(ctx, entityID); err != nil {
		return errConflictResolution(mapStoreError(err))
	}
	return nil
}

func validateRange(start caldate.Date, end *caldate.Date) error {
	if start.IsZero() {
		return newServiceError(http.StatusBadRequest, CodeInvalidBody, "start_date is required", nil)
	}
	if end != nil && start.After(*end) {
		return newServiceError(http.StatusBadRequest, CodeInvalidRange, "start_date must not be after end_date", nil)
	}
	return nil
}
