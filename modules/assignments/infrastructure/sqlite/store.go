// Package sqlite provides a SQLite-backed assignment store for local and
// offline use. It satisfies the same repository contract as the PostgreSQL
// store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/iota-uz/lendops/modules/assignments/domain/assignment"
	"github.com/iota-uz/lendops/modules/assignments/infrastructure/sqlite/migrations"
	"github.com/iota-uz/lendops/pkg/caldate"
	"github.com/iota-uz/lendops/pkg/composables"
)

var ErrNoTx = errors.New("sqlite: no transaction in context")

// Store persists assignment history in SQLite. A single connection is used,
// so write transactions are serialized by the pool itself.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

type txKey struct{}

type querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

type recordRow struct {
	ID        string         `db:"id"`
	EntityID  string         `db:"entity_id"`
	OwnerID   string         `db:"owner_id"`
	StartDate string         `db:"start_date"`
	EndDate   sql.NullString `db:"end_date"`
	CreatedAt int64          `db:"created_at"`
	OwnerName sql.NullString `db:"owner_name"`
}

const recordColumns = `r.id, r.entity_id, r.owner_id, r.start_date, r.end_date, r.created_at`

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the database at path and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrate(context.Background(), db.DB); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return New(db), nil
}

// New wraps an already migrated database.
func New(db *sqlx.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func migrate(ctx context.Context, db *sql.DB) error {
	p, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.FS)
	if err != nil {
		return err
	}
	_, err = p.Up(ctx)
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok && tx != nil {
		return tx
	}
	return s.db
}

// InTx runs fn in one transaction; nested calls join the outer one. Hooks
// registered with composables.AfterCommit run after the commit.
func (s *Store) InTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	txCtx, runHooks := composables.WithCommitHooks(context.WithValue(ctx, txKey{}, tx))
	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapConstraint(fmt.Errorf("commit: %w", err))
	}
	runHooks()
	return nil
}

// LockEntityTimeline only checks that a transaction is open; the single
// connection already serializes writers.
func (s *Store) LockEntityTimeline(ctx context.Context, _ uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); !ok {
		return ErrNoTx
	}
	return nil
}

func (s *Store) getRecord(ctx context.Context, query string, args ...any) (assignment.Record, error) {
	if err := ctx.Err(); err != nil {
		return assignment.Record{}, err
	}
	var row recordRow
	if err := s.q(ctx).GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return assignment.Record{}, assignment.ErrRecordNotFound
		}
		return assignment.Record{}, err
	}
	return row.toRecord()
}

func (s *Store) selectRecords(ctx context.Context, query string, args ...any) ([]recordRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows := []recordRow{}
	if err := s.q(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) listRecords(ctx context.Context, query string, args ...any) ([]assignment.Record, error) {
	rows, err := s.selectRecords(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	out := make([]assignment.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// listIn expands the single IN (?) of query over ids.
func (s *Store) listIn(ctx context.Context, query string, ids []uuid.UUID, args ...any) ([]assignment.Record, error) {
	if len(ids) == 0 {
		return []assignment.Record{}, nil
	}
	expanded, inArgs, err := sqlx.In(query, append([]any{idStrings(ids)}, args...)...)
	if err != nil {
		return nil, err
	}
	return s.listRecords(ctx, expanded, inArgs...)
}

func (s *Store) GetCurrent(ctx context.Context, entityID uuid.UUID) (assignment.Record, error) {
	return s.getRecord(ctx, `SELECT `+recordColumns+` FROM assignment_records r WHERE r.entity_id = ? AND r.end_date IS NULL`, entityID.String())
}

func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (assignment.Record, error) {
	return s.getRecord(ctx, `SELECT `+recordColumns+` FROM assignment_records r WHERE r.id = ?`, id.String())
}

func (s *Store) ListHistory(ctx context.Context, entityID uuid.UUID) ([]assignment.Record, error) {
	return s.listRecords(ctx, `
		SELECT `+recordColumns+`
		FROM assignment_records r
		WHERE r.entity_id = ?
		ORDER BY r.start_date DESC`, entityID.String())
}

func (s *Store) ListHistoriesWithOwnerNames(ctx context.Context, entityIDs []uuid.UUID) ([]assignment.OwnedRecord, error) {
	if len(entityIDs) == 0 {
		return []assignment.OwnedRecord{}, nil
	}
	query, args, err := sqlx.In(`
		SELECT `+recordColumns+`, o.name AS owner_name
		FROM assignment_records r
		JOIN assignment_owners o ON o.id = r.owner_id
		WHERE r.entity_id IN (?)
		ORDER BY r.entity_id, r.start_date DESC`, idStrings(entityIDs))
	if err != nil {
		return nil, err
	}
	rows, err := s.selectRecords(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	out := make([]assignment.OwnedRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			return nil, err
		}
		out = append(out, assignment.OwnedRecord{Record: rec, OwnerName: row.OwnerName.String})
	}
	return out, nil
}

func (s *Store) ListCovering(ctx context.Context, entityIDs []uuid.UUID, day caldate.Date) ([]assignment.Record, error) {
	return s.listIn(ctx, `
		SELECT `+recordColumns+`
		FROM assignment_records r
		WHERE r.entity_id IN (?)
			AND r.start_date <= ?
			AND (r.end_date IS NULL OR r.end_date >= ?)`,
		entityIDs, day.String(), day.String())
}

func (s *Store) ListCoveringByOwners(ctx context.Context, ownerIDs []uuid.UUID, day caldate.Date) ([]assignment.Record, error) {
	return s.listIn(ctx, `
		SELECT `+recordColumns+`
		FROM assignment_records r
		WHERE r.owner_id IN (?)
			AND r.start_date <= ?
			AND (r.end_date IS NULL OR r.end_date >= ?)`,
		ownerIDs, day.String(), day.String())
}

func (s *Store) ListOverlappingByOwners(ctx context.Context, ownerIDs []uuid.UUID, from, to caldate.Date) ([]assignment.Record, error) {
	return s.listIn(ctx, `
		SELECT `+recordColumns+`
		FROM assignment_records r
		WHERE r.owner_id IN (?)
			AND r.start_date <= ?
			AND (r.end_date IS NULL OR r.end_date >= ?)`,
		ownerIDs, to.String(), from.String())
}

func (s *Store) ListOverlapping(ctx context.Context, entityID uuid.UUID, from, to caldate.Date) ([]assignment.Record, error) {
	return s.listRecords(ctx, `
		SELECT `+recordColumns+`
		FROM assignment_records r
		WHERE r.entity_id = ?
			AND r.start_date <= ?
			AND (r.end_date IS NULL OR r.end_date >= ?)
		ORDER BY r.start_date`,
		entityID.String(), to.String(), from.String())
}

func (s *Store) Insert(ctx context.Context, rec assignment.Record) (assignment.Record, error) {
	if err := ctx.Err(); err != nil {
		return assignment.Record{}, err
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.CreatedAt = fromMillis(toMillis(s.now()))
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO assignment_records (id, entity_id, owner_id, start_date, end_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.EntityID.String(), rec.OwnerID.String(), rec.StartDate.String(), nullDate(rec.EndDate), toMillis(rec.CreatedAt))
	if err != nil {
		return assignment.Record{}, mapConstraint(err)
	}
	return rec, nil
}

func (s *Store) execOne(ctx context.Context, query string, args ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := s.q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return mapConstraint(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return assignment.ErrRecordNotFound
	}
	return nil
}

func (s *Store) UpdateStartDate(ctx context.Context, id uuid.UUID, start caldate.Date) error {
	return s.execOne(ctx, `UPDATE assignment_records SET start_date = ? WHERE id = ?`, start.String(), id.String())
}

func (s *Store) CloseRecord(ctx context.Context, id uuid.UUID, end caldate.Date) error {
	return s.execOne(ctx, `UPDATE assignment_records SET end_date = ? WHERE id = ?`, end.String(), id.String())
}

func (s *Store) Update(ctx context.Context, rec assignment.Record) error {
	return s.execOne(ctx, `
		UPDATE assignment_records SET owner_id = ?, start_date = ?, end_date = ? WHERE id = ?`,
		rec.OwnerID.String(), rec.StartDate.String(), nullDate(rec.EndDate), rec.ID.String())
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	return s.execOne(ctx, `DELETE FROM assignment_records WHERE id = ?`, id.String())
}

func (s *Store) RefreshCurrentOwner(ctx context.Context, entityID uuid.UUID) error {
	err := s.execOne(ctx, `
		UPDATE assignment_entities
		SET current_owner_id = (
			SELECT r.owner_id FROM assignment_records r
			WHERE r.entity_id = assignment_entities.id AND r.end_date IS NULL
		)
		WHERE id = ?`, entityID.String())
	if errors.Is(err, assignment.ErrRecordNotFound) {
		return fmt.Errorf("refresh current owner of %s: %w", entityID, assignment.ErrEntityNotFound)
	}
	return err
}

func (row recordRow) toRecord() (assignment.Record, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return assignment.Record{}, fmt.Errorf("parse record id: %w", err)
	}
	entityID, err := uuid.Parse(row.EntityID)
	if err != nil {
		return assignment.Record{}, fmt.Errorf("parse entity id: %w", err)
	}
	ownerID, err := uuid.Parse(row.OwnerID)
	if err != nil {
		return assignment.Record{}, fmt.Errorf("parse owner id: %w", err)
	}
	start, err := caldate.Parse(row.StartDate)
	if err != nil {
		return assignment.Record{}, fmt.Errorf("parse start date: %w", err)
	}
	rec := assignment.Record{
		ID:        id,
		EntityID:  entityID,
		OwnerID:   ownerID,
		StartDate: start,
		CreatedAt: fromMillis(row.CreatedAt),
	}
	if row.EndDate.Valid {
		end, err := caldate.Parse(row.EndDate.String)
		if err != nil {
			return assignment.Record{}, fmt.Errorf("parse end date: %w", err)
		}
		rec.EndDate = &end
	}
	return rec, nil
}

func nullDate(d *caldate.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

// mapConstraint tags SQLite constraint failures with
// assignment.ErrTimelineConflict.
func mapConstraint(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE,
			sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY,
			sqlite3lib.SQLITE_CONSTRAINT_CHECK,
			sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%w: %v", assignment.ErrTimelineConflict, err)
		}
	}
	if strings.Contains(strings.ToLower(err.Error()), "constraint failed") {
		return fmt.Errorf("%w: %v", assignment.ErrTimelineConflict, err)
	}
	return err
}

func (s *Store) exists(ctx context.Context, query string, id uuid.UUID) (bool, error) {
	var ok bool
	if err := s.q(ctx).GetContext(ctx, &ok, query, id.String()); err != nil {
		return false, err
	}
	return ok, nil
}

func (s *Store) EntityExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.exists(ctx, `SELECT EXISTS (SELECT 1 FROM assignment_entities WHERE id = ?)`, id)
}

func (s *Store) OwnerExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.exists(ctx, `SELECT EXISTS (SELECT 1 FROM assignment_owners WHERE id = ?)`, id)
}

func (s *Store) UpsertEntity(ctx context.Context, id uuid.UUID, name string) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO assignment_entities (id, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name`, id.String(), name, toMillis(s.now()))
	return err
}

func (s *Store) UpsertOwner(ctx context.Context, id uuid.UUID, name string) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO assignment_owners (id, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name`, id.String(), name, toMillis(s.now()))
	return err
}

// CurrentOwnerPointer reads the denormalized current owner column.
func (s *Store) CurrentOwnerPointer(ctx context.Context, entityID uuid.UUID) (uuid.UUID, bool, error) {
	var owner sql.NullString
	if err := s.q(ctx).GetContext(ctx, &owner, `SELECT current_owner_id FROM assignment_entities WHERE id = ?`, entityID.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, false, assignment.ErrEntityNotFound
		}
		return uuid.Nil, false, err
	}
	if !owner.Valid {
		return uuid.Nil, false, nil
	}
	id, err := uuid.Parse(owner.String)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("parse current owner id: %w", err)
	}
	return id, true, nil
}
