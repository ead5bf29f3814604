package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iota-uz/lendops/modules/assignments/domain/assignment"
	"github.com/iota-uz/lendops/pkg/caldate"
	"github.com/iota-uz/lendops/pkg/composables"
)

const recordColumns = `r.id, r.entity_id, r.owner_id, r.start_date, r.end_date, r.created_at`

// AssignmentRepository is the PostgreSQL record store. Queries run on the
// transaction in ctx, or on the pool when there is none.
type AssignmentRepository struct{}

func NewAssignmentRepository() *AssignmentRepository {
	return &AssignmentRepository{}
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func pgUUIDArray(ids []uuid.UUID) pgtype.FlatArray[uuid.UUID] {
	return pgtype.FlatArray[uuid.UUID](ids)
}

func asUUID(v pgtype.UUID) uuid.UUID {
	if !v.Valid {
		return uuid.Nil
	}
	return uuid.UUID(v.Bytes)
}

func pgDate(d caldate.Date) pgtype.Date {
	if d.IsZero() {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: d.Time(), Valid: true}
}

func pgDatePtr(d *caldate.Date) pgtype.Date {
	if d == nil {
		return pgtype.Date{}
	}
	return pgDate(*d)
}

func asDatePtr(v pgtype.Date) *caldate.Date {
	if !v.Valid {
		return nil
	}
	return caldate.FromTime(v.Time).Ptr()
}

func asTime(v pgtype.Timestamptz) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return v.Time
}

func scanRecord(row pgx.Row, extra ...any) (assignment.Record, error) {
	var (
		id, entityID, ownerID pgtype.UUID
		start, end            pgtype.Date
		createdAt             pgtype.Timestamptz
	)
	dest := append([]any{&id, &entityID, &ownerID, &start, &end, &createdAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return assignment.Record{}, err
	}
	return assignment.Record{
		ID:        asUUID(id),
		EntityID:  asUUID(entityID),
		OwnerID:   asUUID(ownerID),
		StartDate: caldate.FromTime(start.Time),
		EndDate:   asDatePtr(end),
		CreatedAt: asTime(createdAt),
	}, nil
}

func (r *AssignmentRepository) queryRecords(ctx context.Context, sql string, args ...any) ([]assignment.Record, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]assignment.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *AssignmentRepository) getOne(ctx context.Context, sql string, args ...any) (assignment.Record, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return assignment.Record{}, err
	}
	rec, err := scanRecord(tx.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return assignment.Record{}, assignment.ErrRecordNotFound
	}
	return rec, err
}

// LockEntityTimeline takes a transaction-scoped advisory lock keyed by the
// entity. It requires an open transaction.
func (r *AssignmentRepository) LockEntityTimeline(ctx context.Context, entityID uuid.UUID) error {
	if !composables.HasTx(ctx) {
		return composables.ErrNoTx
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", "assignments:timeline:"+entityID.String())
	return err
}

func (r *AssignmentRepository) GetCurrent(ctx context.Context, entityID uuid.UUID) (assignment.Record, error) {
	return r.getOne(ctx, `
	SELECT `+recordColumns+`
	FROM assignment_records r
	WHERE r.entity_id = $1 AND r.end_date IS NULL
	`, pgUUID(entityID))
}

func (r *AssignmentRepository) GetByID(ctx context.Context, id uuid.UUID) (assignment.Record, error) {
	return r.getOne(ctx, `
	SELECT `+recordColumns+`
	FROM assignment_records r
	WHERE r.id = $1
	`, pgUUID(id))
}

func (r *AssignmentRepository) ListHistory(ctx context.Context, entityID uuid.UUID) ([]assignment.Record, error) {
	return r.queryRecords(ctx, `
	SELECT `+recordColumns+`
	FROM assignment_records r
	WHERE r.entity_id = $1
	ORDER BY r.start_date DESC
	`, pgUUID(entityID))
}

func (r *AssignmentRepository) ListHistoriesWithOwnerNames(ctx context.Context, entityIDs []uuid.UUID) ([]assignment.OwnedRecord, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
	SELECT `+recordColumns+`, o.name
	FROM assignment_records r
	JOIN assignment_owners o ON o.id = r.owner_id
	WHERE r.entity_id = ANY($1)
	ORDER BY r.entity_id, r.start_date DESC
	`, pgUUIDArray(entityIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]assignment.OwnedRecord, 0)
	for rows.Next() {
		var name string
		rec, err := scanRecord(rows, &name)
		if err != nil {
			return nil, err
		}
		out = append(out, assignment.OwnedRecord{Record: rec, OwnerName: name})
	}
	return out, rows.Err()
}

func (r *AssignmentRepository) ListCovering(ctx context.Context, entityIDs []uuid.UUID, day caldate.Date) ([]assignment.Record, error) {
	return r.queryRecords(ctx, `
	SELECT `+recordColumns+`
	FROM assignment_records r
	WHERE r.entity_id = ANY($1)
		AND r.start_date <= $2
		AND (r.end_date IS NULL OR r.end_date >= $2)
	ORDER BY r.entity_id, r.start_date DESC
	`, pgUUIDArray(entityIDs), pgDate(day))
}

func (r *AssignmentRepository) ListCoveringByOwners(ctx context.Context, ownerIDs []uuid.UUID, day caldate.Date) ([]assignment.Record, error) {
	return r.queryRecords(ctx, `
	SELECT `+recordColumns+`
	FROM assignment_records r
	WHERE r.owner_id = ANY($1)
		AND r.start_date <= $2
		AND (r.end_date IS NULL OR r.end_date >= $2)
	`, pgUUIDArray(ownerIDs), pgDate(day))
}

func (r *AssignmentRepository) ListOverlappingByOwners(ctx context.Context, ownerIDs []uuid.UUID, from, to caldate.Date) ([]assignment.Record, error) {
	return r.queryRecords(ctx, `
	SELECT `+recordColumns+`
	FROM assignment_records r
	WHERE r.owner_id = ANY($1)
		AND r.start_date <= $3
		AND (r.end_date IS NULL OR r.end_date >= $2)
	`, pgUUIDArray(ownerIDs), pgDate(from), pgDate(to))
}

func (r *AssignmentRepository) ListOverlapping(ctx context.Context, entityID uuid.UUID, from, to caldate.Date) ([]assignment.Record, error) {
	return r.queryRecords(ctx, `
	SELECT `+recordColumns+`
	FROM assignment_records r
	WHERE r.entity_id = $1
		AND r.start_date <= $3
		AND (r.end_date IS NULL OR r.end_date >= $2)
	ORDER BY r.start_date
	`, pgUUID(entityID), pgDate(from), pgDate(to))
}

func (r *AssignmentRepository) Insert(ctx context.Context, rec assignment.Record) (assignment.Record, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return assignment.Record{}, err
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	var createdAt pgtype.Timestamptz
	err = tx.QueryRow(ctx, `
	INSERT INTO assignment_records (id, entity_id, owner_id, start_date, end_date)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING created_at
	`, pgUUID(rec.ID), pgUUID(rec.EntityID), pgUUID(rec.OwnerID), pgDate(rec.StartDate), pgDatePtr(rec.EndDate)).Scan(&createdAt)
	if err != nil {
		return assignment.Record{}, err
	}
	rec.CreatedAt = asTime(createdAt)
	return rec, nil
}

func (r *AssignmentRepository) exec(ctx context.Context, sql string, args ...any) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return assignment.ErrRecordNotFound
	}
	return nil
}

func (r *AssignmentRepository) UpdateStartDate(ctx context.Context, id uuid.UUID, start caldate.Date) error {
	return r.exec(ctx, `UPDATE assignment_records SET start_date = $2 WHERE id = $1`, pgUUID(id), pgDate(start))
}

func (r *AssignmentRepository) CloseRecord(ctx context.Context, id uuid.UUID, end caldate.Date) error {
	return r.exec(ctx, `UPDATE assignment_records SET end_date = $2 WHERE id = $1`, pgUUID(id), pgDate(end))
}

func (r *AssignmentRepository) Update(ctx context.Context, rec assignment.Record) error {
	return r.exec(ctx, `
	UPDATE assignment_records
	SET owner_id = $2, start_date = $3, end_date = $4
	WHERE id = $1
	`, pgUUID(rec.ID), pgUUID(rec.OwnerID), pgDate(rec.StartDate), pgDatePtr(rec.EndDate))
}

func (r *AssignmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, `DELETE FROM assignment_records WHERE id = $1`, pgUUID(id))
}

func (r *AssignmentRepository) RefreshCurrentOwner(ctx context.Context, entityID uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
	UPDATE assignment_entities e
	SET current_owner_id = (
		SELECT r.owner_id
		FROM assignment_records r
		WHERE r.entity_id = e.id AND r.end_date IS NULL
	)
	WHERE e.id = $1
	`, pgUUID(entityID))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("refresh current owner of %s: %w", entityID, assignment.ErrEntityNotFound)
	}
	return nil
}
