package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iota-uz/lendops/modules/assignments/domain/assignment"
	"github.com/iota-uz/lendops/pkg/caldate"
	"github.com/iota-uz/lendops/pkg/composables"
	"github.com/iota-uz/lendops/pkg/eventbus"
)

var tracer = otel.Tracer("lendops-assignments")

const defaultMaxBatchSize = 500

// AssignmentHistoryService is the public API of the assignment history. Reads
// go straight to the embedded QueryEngine; every mutation runs in exactly one
// transaction.
type AssignmentHistoryService struct {
	*QueryEngine

	tx           Transactor
	catalog      Catalog
	engine       *MutationEngine
	cache        CurrentOwnerCache
	bus          eventbus.EventBus
	maxBatchSize int
	now          func() time.Time
}

type Option func(*options)

type options struct {
	cache            CurrentOwnerCache
	bus              eventbus.EventBus
	maxBatchSize     int
	syncCurrentOwner bool
	now              func() time.Time
}

func WithCache(c CurrentOwnerCache) Option {
	return func(o *options) { o.cache = c }
}

func WithEventBus(bus eventbus.EventBus) Option {
	return func(o *options) { o.bus = bus }
}

func WithMaxBatchSize(n int) Option {
	return func(o *options) { o.maxBatchSize = n }
}

// WithCurrentOwnerSync controls whether the entity catalog's current owner
// column is recomputed inside each mutation.
func WithCurrentOwnerSync(enabled bool) Option {
	return func(o *options) { o.syncCurrentOwner = enabled }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func NewAssignmentHistoryService(repo Repository, catalog Catalog, tx Transactor, opts ...Option) *AssignmentHistoryService {
	o := options{
		cache:            noopCurrentOwnerCache{},
		maxBatchSize:     defaultMaxBatchSize,
		syncCurrentOwner: true,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cache == nil {
		o.cache = noopCurrentOwnerCache{}
	}
	if o.maxBatchSize <= 0 {
		o.maxBatchSize = defaultMaxBatchSize
	}
	return &AssignmentHistoryService{
		QueryEngine:  NewQueryEngine(repo, o.cache),
		tx:           tx,
		catalog:      catalog,
		engine:       NewMutationEngine(repo, catalog, o.syncCurrentOwner),
		cache:        o.cache,
		bus:          o.bus,
		maxBatchSize: o.maxBatchSize,
		now:          o.now,
	}
}

type BatchItemError struct {
	EntityID uuid.UUID `json:"entity_id"`
	Code     string    `json:"code"`
	Message  string    `json:"message"`
}

type BatchChangeOwnerResult struct {
	Success bool                `json:"success"`
	Changes []ChangeOwnerResult `json:"changes"`
	Errors  []BatchItemError    `json:"errors"`
}

type BatchUpsertResult struct {
	Success  bool                `json:"success"`
	Created  int                 `json:"created"`
	Adjusted int                 `json:"adjusted"`
	Deleted  int                 `json:"deleted"`
	Records  []assignment.Record `json:"records"`
	Errors   []BatchItemError    `json:"errors"`
}

func (s *AssignmentHistoryService) ChangeOwner(ctx context.Context, entityID, ownerID uuid.UUID, effective caldate.Date) (res ChangeOwnerResult, err error) {
	ctx, span := startSpan(ctx, "assignments.ChangeOwner", entityID, ownerID)
	defer func() { endSpan(span, err) }()
	defer func() { recordMutation(string(OpChangeOwner), err) }()

	if effective.IsZero() {
		return res, newServiceError(http.StatusBadRequest, CodeInvalidBody, "effective_date is required", nil)
	}

	res, err = commitThen(ctx, s, func(txCtx context.Context) (ChangeOwnerResult, []AssignmentChangedEvent, error) {
		if err := s.engine.ensureOwner(txCtx, ownerID); err != nil {
			return ChangeOwnerResult{}, nil, err
		}
		change, err := s.engine.ChangeOwner(txCtx, entityID, ownerID, effective)
		if err != nil {
			return ChangeOwnerResult{}, nil, err
		}
		return change, []AssignmentChangedEvent{changeOwnerEvent(change, s.now())}, nil
	})
	if err != nil {
		logRejected(ctx, string(OpChangeOwner), entityID, err, logrus.Fields{"owner_id": ownerID.String()})
		return ChangeOwnerResult{}, err
	}

	logWithFields(ctx, logrus.InfoLevel, "assignments.owner.changed", logrus.Fields{
		"operation":      string(OpChangeOwner),
		"entity_id":      entityID.String(),
		"owner_id":       ownerID.String(),
		"effective_date": effective.String(),
	})
	return res, nil
}

// BatchChangeOwner applies ChangeOwner to every entity in one transaction.
// Missing entities and per-entity validation failures are collected and the
// remaining entities still proceed. A missing owner aborts before any write.
func (s *AssignmentHistoryService) BatchChangeOwner(ctx context.Context, entityIDs []uuid.UUID, ownerID uuid.UUID, effective caldate.Date) (res BatchChangeOwnerResult, err error) {
	ctx, span := startSpan(ctx, "assignments.BatchChangeOwner", uuid.Nil, ownerID)
	span.SetAttributes(attribute.Int("batch_size", len(entityIDs)))
	defer func() { endSpan(span, err) }()
	defer func() { recordMutation("batch_"+string(OpChangeOwner), err) }()

	if err := s.checkBatchSize(len(entityIDs)); err != nil {
		return BatchChangeOwnerResult{}, err
	}
	if effective.IsZero() {
		return BatchChangeOwnerResult{}, newServiceError(http.StatusBadRequest, CodeInvalidBody, "effective_date is required", nil)
	}
	observeBatchSize(string(OpChangeOwner), len(entityIDs))

	res, err = commitThen(ctx, s, func(txCtx context.Context) (BatchChangeOwnerResult, []AssignmentChangedEvent, error) {
		out := BatchChangeOwnerResult{Changes: []ChangeOwnerResult{}, Errors: []BatchItemError{}}
		if err := s.engine.ensureOwner(txCtx, ownerID); err != nil {
			return out, nil, err
		}
		for _, entityID := range entityIDs {
			change, err := s.engine.ChangeOwner(txCtx, entityID, ownerID, effective)
			if err != nil {
				if !itemRecoverable(err) {
					return out, nil, err
				}
				out.Errors = append(out.Errors, batchItemError(entityID, err))
				logRejected(txCtx, string(OpChangeOwner), entityID, err, logrus.Fields{"batch": true})
				continue
			}
			out.Changes = append(out.Changes, change)
		}
		out.Success = len(entityIDs) == 0 || len(out.Changes) > 0

		now := s.now()
		events := make([]AssignmentChangedEvent, 0, len(out.Changes))
		for _, c := range out.Changes {
			events = append(events, changeOwnerEvent(c, now))
		}
		return out, events, nil
	})
	if err != nil {
		logRejected(ctx, "batch_"+string(OpChangeOwner), uuid.Nil, err, logrus.Fields{"owner_id": ownerID.String()})
		return BatchChangeOwnerResult{}, err
	}

	logWithFields(ctx, logrus.InfoLevel, "assignments.owner.batch_changed", logrus.Fields{
		"operation": "batch_" + string(OpChangeOwner),
		"owner_id":  ownerID.String(),
		"requested": len(entityIDs),
		"applied":   len(res.Changes),
		"failed":    len(res.Errors),
	})
	return res, nil
}

func (s *AssignmentHistoryService) UpsertHistoricalAssignment(ctx context.Context, entityID, ownerID uuid.UUID, start caldate.Date, end *caldate.Date) (res UpsertResult, err error) {
	ctx, span := startSpan(ctx, "assignments.UpsertHistoricalAssignment", entityID, ownerID)
	defer func() { endSpan(span, err) }()
	defer func() { recordMutation(string(OpUpsert), err) }()

	if err := validateCorrection(start, end); err != nil {
		logRejected(ctx, string(OpUpsert), entityID, err, nil)
		return res, err
	}

	res, err = commitThen(ctx, s, func(txCtx context.Context) (UpsertResult, []AssignmentChangedEvent, error) {
		if err := s.engine.ensureOwner(txCtx, ownerID); err != nil {
			return UpsertResult{}, nil, err
		}
		if err := s.engine.ensureEntity(txCtx, entityID); err != nil {
			return UpsertResult{}, nil, err
		}
		one, err := s.engine.UpsertHistorical(txCtx, entityID, ownerID, start, *end)
		if err != nil {
			return UpsertResult{}, nil, err
		}
		return one, []AssignmentChangedEvent{recordEvent(OpUpsert, one.Record, nil, s.now())}, nil
	})
	if err != nil {
		logRejected(ctx, string(OpUpsert), entityID, err, logrus.Fields{"owner_id": ownerID.String()})
		return UpsertResult{}, err
	}

	logWithFields(ctx, logrus.InfoLevel, "assignments.history.upserted", logrus.Fields{
		"operation":  string(OpUpsert),
		"entity_id":  entityID.String(),
		"owner_id":   ownerID.String(),
		"start_date": start.String(),
		"end_date":   end.String(),
		"adjusted":   len(res.Adjusted),
		"deleted":    len(res.Deleted),
	})
	return res, nil
}

// BatchUpsertHistoricalAssignment applies the same correction to every entity
// in one transaction and accumulates record counts.
func (s *AssignmentHistoryService) BatchUpsertHistoricalAssignment(ctx context.Context, entityIDs []uuid.UUID, ownerID uuid.UUID, start caldate.Date, end *caldate.Date) (res BatchUpsertResult, err error) {
	ctx, span := startSpan(ctx, "assignments.BatchUpsertHistoricalAssignment", uuid.Nil, ownerID)
	span.SetAttributes(attribute.Int("batch_size", len(entityIDs)))
	defer func() { endSpan(span, err) }()
	defer func() { recordMutation("batch_"+string(OpUpsert), err) }()

	if err := s.checkBatchSize(len(entityIDs)); err != nil {
		return BatchUpsertResult{}, err
	}
	if err := validateCorrection(start, end); err != nil {
		logRejected(ctx, "batch_"+string(OpUpsert), uuid.Nil, err, nil)
		return BatchUpsertResult{}, err
	}
	observeBatchSize(string(OpUpsert), len(entityIDs))

	res, err = commitThen(ctx, s, func(txCtx context.Context) (BatchUpsertResult, []AssignmentChangedEvent, error) {
		out := BatchUpsertResult{Records: []assignment.Record{}, Errors: []BatchItemError{}}
		if err := s.engine.ensureOwner(txCtx, ownerID); err != nil {
			return out, nil, err
		}
		for _, entityID := range entityIDs {
			if err := s.engine.ensureEntity(txCtx, entityID); err != nil {
				if !itemRecoverable(err) {
					return out, nil, err
				}
				out.Errors = append(out.Errors, batchItemError(entityID, err))
				logRejected(txCtx, string(OpUpsert), entityID, err, logrus.Fields{"batch": true})
				continue
			}
			one, err := s.engine.UpsertHistorical(txCtx, entityID, ownerID, start, *end)
			if err != nil {
				return out, nil, err
			}
			out.Created++
			out.Adjusted += len(one.Adjusted)
			out.Deleted += len(one.Deleted)
			out.Records = append(out.Records, one.Record)
		}
		out.Success = len(entityIDs) == 0 || out.Created > 0

		now := s.now()
		events := make([]AssignmentChangedEvent, 0, len(out.Records))
		for _, r := range out.Records {
			events = append(events, recordEvent(OpUpsert, r, nil, now))
		}
		return out, events, nil
	})
	if err != nil {
		logRejected(ctx, "batch_"+string(OpUpsert), uuid.Nil, err, logrus.Fields{"owner_id": ownerID.String()})
		return BatchUpsertResult{}, err
	}

	logWithFields(ctx, logrus.InfoLevel, "assignments.history.batch_upserted", logrus.Fields{
		"operation": "batch_" + string(OpUpsert),
		"owner_id":  ownerID.String(),
		"created":   res.Created,
		"adjusted":  res.Adjusted,
		"deleted":   res.Deleted,
		"failed":    len(res.Errors),
	})
	return res, nil
}

func (s *AssignmentHistoryService) UpdateAssignment(ctx context.Context, id, ownerID uuid.UUID, start caldate.Date, end *caldate.Date) (rec assignment.Record, err error) {
	ctx, span := startSpan(ctx, "assignments.UpdateAssignment", uuid.Nil, ownerID)
	span.SetAttributes(attribute.String("record_id", id.String()))
	defer func() { endSpan(span, err) }()
	defer func() { recordMutation(string(OpUpdate), err) }()

	if err := validateRange(start, end); err != nil {
		logRejected(ctx, string(OpUpdate), uuid.Nil, err, logrus.Fields{"record_id": id.String()})
		return rec, err
	}

	rec, err = commitThen(ctx, s, func(txCtx context.Context) (assignment.Record, []AssignmentChangedEvent, error) {
		var prev *uuid.UUID
		if before, err := s.engine.repo.GetByID(txCtx, id); err == nil {
			prev = &before.OwnerID
		}
		updated, err := s.engine.Update(txCtx, id, ownerID, start, end)
		if err != nil {
			return assignment.Record{}, nil, err
		}
		return updated, []AssignmentChangedEvent{recordEvent(OpUpdate, updated, prev, s.now())}, nil
	})
	if err != nil {
		logRejected(ctx, string(OpUpdate), uuid.Nil, err, logrus.Fields{"record_id": id.String()})
		return assignment.Record{}, err
	}

	logWithFields(ctx, logrus.InfoLevel, "assignments.record.updated", logrus.Fields{
		"operation": string(OpUpdate),
		"record_id": id.String(),
		"entity_id": rec.EntityID.String(),
		"owner_id":  ownerID.String(),
	})
	return rec, nil
}

func (s *AssignmentHistoryService) DeleteAssignment(ctx context.Context, id uuid.UUID) (err error) {
	ctx, span := startSpan(ctx, "assignments.DeleteAssignment", uuid.Nil, uuid.Nil)
	span.SetAttributes(attribute.String("record_id", id.String()))
	defer func() { endSpan(span, err) }()
	defer func() { recordMutation(string(OpDelete), err) }()

	deleted, err := commitThen(ctx, s, func(txCtx context.Context) (assignment.Record, []AssignmentChangedEvent, error) {
		rec, err := s.engine.Delete(txCtx, id)
		if err != nil {
			return assignment.Record{}, nil, err
		}
		return rec, []AssignmentChangedEvent{recordEvent(OpDelete, rec, nil, s.now())}, nil
	})
	if err != nil {
		logRejected(ctx, string(OpDelete), uuid.Nil, err, logrus.Fields{"record_id": id.String()})
		return err
	}

	logWithFields(ctx, logrus.InfoLevel, "assignments.record.deleted", logrus.Fields{
		"operation": string(OpDelete),
		"record_id": id.String(),
		"entity_id": deleted.EntityID.String(),
	})
	return nil
}

func (s *AssignmentHistoryService) checkBatchSize(n int) error {
	if n > s.maxBatchSize {
		return newServiceError(http.StatusBadRequest, CodeInvalidBody,
			fmt.Sprintf("batch of %d entities exceeds the limit of %d", n, s.maxBatchSize), nil)
	}
	return nil
}

// commitThen runs fn in one transaction and hands the events it returns to
// afterCommit once the outermost transaction commits. Inside a caller's
// transaction that is the caller's commit; a rollback drops the events.
func commitThen[T any](ctx context.Context, s *AssignmentHistoryService, fn func(txCtx context.Context) (T, []AssignmentChangedEvent, error)) (T, error) {
	var (
		events   []AssignmentChangedEvent
		deferred bool
	)
	out, err := inTx(ctx, s.tx, func(txCtx context.Context) (T, error) {
		res, evs, err := fn(txCtx)
		if err != nil {
			return res, err
		}
		events = evs
		deferred = composables.AfterCommit(txCtx, func() { s.afterCommit(ctx, evs) })
		return res, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	if !deferred {
		// Transactor without a commit scope; InTx returning nil is the commit.
		s.afterCommit(ctx, events)
	}
	return out, nil
}

// afterCommit drops cached current owners of every touched entity and then
// publishes the change events.
func (s *AssignmentHistoryService) afterCommit(ctx context.Context, events []AssignmentChangedEvent) {
	if len(events) == 0 {
		return
	}
	ids := make([]uuid.UUID, 0, len(events))
	for _, ev := range events {
		ids = append(ids, ev.EntityID)
	}
	s.cache.Invalidate(ctx, uniqueIDs(ids)...)

	if s.bus == nil {
		return
	}
	for i := range events {
		s.bus.Publish(&events[i])
	}
}

func validateCorrection(start caldate.Date, end *caldate.Date) error {
	if end == nil || end.IsZero() {
		return newServiceError(http.StatusBadRequest, CodeEndDateRequired, "end_date is required for a historical assignment", nil)
	}
	return validateRange(start, end)
}

func batchItemError(entityID uuid.UUID, err error) BatchItemError {
	msg := err.Error()
	if svcErr, ok := asServiceError(err); ok {
		msg = svcErr.Message
	}
	return BatchItemError{EntityID: entityID, Code: errorCode(err), Message: msg}
}

func changeOwnerEvent(res ChangeOwnerResult, at time.Time) AssignmentChangedEvent {
	return recordEvent(OpChangeOwner, res.Record, res.PreviousOwnerID, at)
}

func recordEvent(op Operation, rec assignment.Record, previousOwner *uuid.UUID, at time.Time) AssignmentChangedEvent {
	return AssignmentChangedEvent{
		Operation:       op,
		EntityID:        rec.EntityID,
		OwnerID:         rec.OwnerID,
		RecordID:        rec.ID,
		PreviousOwnerID: previousOwner,
		StartDate:       rec.StartDate,
		EndDate:         rec.EndDate,
		OccurredAt:      at.UTC(),
	}
}

func startSpan(ctx context.Context, name string, entityID, ownerID uuid.UUID) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, name)
	if entityID != uuid.Nil {
		span.SetAttributes(attribute.String("entity_id", entityID.String()))
	}
	if ownerID != uuid.Nil {
		span.SetAttributes(attribute.String("owner_id", ownerID.String()))
	}
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
