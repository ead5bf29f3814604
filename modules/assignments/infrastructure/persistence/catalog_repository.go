package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iota-uz/lendops/pkg/composables"
)

// CatalogRepository owns the entity and owner tables the assignment history
// refers to.
type CatalogRepository struct{}

func NewCatalogRepository() *CatalogRepository {
	return &CatalogRepository{}
}

func (c *CatalogRepository) exists(ctx context.Context, sql string, id uuid.UUID) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := tx.QueryRow(ctx, sql, pgUUID(id)).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (c *CatalogRepository) EntityExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return c.exists(ctx, `SELECT EXISTS (SELECT 1 FROM assignment_entities WHERE id = $1)`, id)
}

func (c *CatalogRepository) OwnerExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return c.exists(ctx, `SELECT EXISTS (SELECT 1 FROM assignment_owners WHERE id = $1)`, id)
}

func (c *CatalogRepository) UpsertEntity(ctx context.Context, id uuid.UUID, name string) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
	INSERT INTO assignment_entities (id, name) VALUES ($1, $2)
	ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
	`, pgUUID(id), name)
	return err
}

func (c *CatalogRepository) UpsertOwner(ctx context.Context, id uuid.UUID, name string) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
	INSERT INTO assignment_owners (id, name) VALUES ($1, $2)
	ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
	`, pgUUID(id), name)
	return err
}

// CurrentOwnerPointer reads the denormalized current owner column.
func (c *CatalogRepository) CurrentOwnerPointer(ctx context.Context, entityID uuid.UUID) (uuid.UUID, bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return uuid.Nil, false, err
	}
	var owner pgtype.UUID
	if err := tx.QueryRow(ctx, `SELECT current_owner_id FROM assignment_entities WHERE id = $1`, pgUUID(entityID)).Scan(&owner); err != nil {
		return uuid.Nil, false, err
	}
	return asUUID(owner), owner.Valid, nil
}

// Transactor opens pgx transactions on the pool carried in ctx.
type Transactor struct{}

func NewTransactor() Transactor {
	return Transactor{}
}

func (Transactor) InTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return composables.InTx(ctx, fn)
}
