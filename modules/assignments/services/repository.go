package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/iota-uz/lendops/modules/assignments/domain/assignment"
	"github.com/iota-uz/lendops/pkg/caldate"
)

// Repository is the assignment record store. Implementations read the
// transaction from ctx when one is open.
type Repository interface {
	// LockEntityTimeline serializes mutations of one entity until the
	// surrounding transaction ends.
	LockEntityTimeline(ctx context.Context, entityID uuid.UUID) error

	// GetCurrent returns assignment.ErrRecordNotFound when the entity has no
	// open record.
	GetCurrent(ctx context.Context, entityID uuid.UUID) (assignment.Record, error)
	GetByID(ctx context.Context, id uuid.UUID) (assignment.Record, error)
	ListHistory(ctx context.Context, entityID uuid.UUID) ([]assignment.Record, error)
	ListHistoriesWithOwnerNames(ctx context.Context, entityIDs []uuid.UUID) ([]assignment.OwnedRecord, error)
	ListCovering(ctx context.Context, entityIDs []uuid.UUID, day caldate.Date) ([]assignment.Record, error)
	ListCoveringByOwners(ctx context.Context, ownerIDs []uuid.UUID, day caldate.Date) ([]assignment.Record, error)
	ListOverlappingByOwners(ctx context.Context, ownerIDs []uuid.UUID, from, to caldate.Date) ([]assignment.Record, error)
	ListOverlapping(ctx context.Context, entityID uuid.UUID, from, to caldate.Date) ([]assignment.Record, error)

	Insert(ctx context.Context, rec assignment.Record) (assignment.Record, error)
	UpdateStartDate(ctx context.Context, id uuid.UUID, start caldate.Date) error
	CloseRecord(ctx context.Context, id uuid.UUID, end caldate.Date) error
	Update(ctx context.Context, rec assignment.Record) error
	Delete(ctx context.Context, id uuid.UUID) error

	// RefreshCurrentOwner recomputes the entity's denormalized current owner
	// from its open record.
	RefreshCurrentOwner(ctx context.Context, entityID uuid.UUID) error
}

// Catalog answers existence questions about entities and owners.
type Catalog interface {
	EntityExists(ctx context.Context, id uuid.UUID) (bool, error)
	OwnerExists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Transactor runs fn in one store transaction, committing only when fn
// returns nil. A call made with a transaction already in ctx joins it.
// Implementations open a composables.WithCommitHooks scope when they begin a
// transaction and run it after their commit.
type Transactor interface {
	InTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

func inTx[T any](ctx context.Context, tx Transactor, fn func(txCtx context.Context) (T, error)) (T, error) {
	var out T
	err := tx.InTx(ctx, func(txCtx context.Context) error {
		var innerErr error
		out, innerErr = fn(txCtx)
		return innerErr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
