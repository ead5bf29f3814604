package services

import (
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/lendops/pkg/caldate"
)

type Operation string

const (
	OpChangeOwner Operation = "change_owner"
	OpUpsert      Operation = "upsert_historical"
	OpUpdate      Operation = "update"
	OpDelete      Operation = "delete"
)

// AssignmentChangedEvent is published on the event bus once per entity after
// the mutation that touched it has committed.
type AssignmentChangedEvent struct {
	Operation       Operation     `json:"operation"`
	EntityID        uuid.UUID     `json:"entity_id"`
	OwnerID         uuid.UUID     `json:"owner_id"`
	RecordID        uuid.UUID     `json:"record_id"`
	PreviousOwnerID *uuid.UUID    `json:"previous_owner_id,omitempty"`
	StartDate       caldate.Date  `json:"start_date"`
	EndDate         *caldate.Date `json:"end_date,omitempty"`
	OccurredAt      time.Time     `json:"occurred_at"`
}
