package assignment

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/iota-uz/lendops/pkg/caldate"
)

type AdjustmentAction string

const (
	ActionShiftStart AdjustmentAction = "shift_start"
	ActionDelete     AdjustmentAction = "delete"
)

type Adjustment struct {
	Record   Record
	Action   AdjustmentAction
	NewStart caldate.Date
}

// PlanCorrection decides what happens to every record overlapping the closed
// correction [start, end]. Overlapping records only ever have their start
// pushed to the day after end, or are deleted when that would leave them
// empty. A record that strictly encloses the correction therefore loses its
// leading span [record.start, start); the record is never split.
func PlanCorrection(existing []Record, start, end caldate.Date) []Adjustment {
	dayAfterEnd := end.AddDays(1)
	out := make([]Adjustment, 0, len(existing))
	for _, r := range existing {
		if !r.Overlaps(start, &end) {
			continue
		}
		if r.EndDate == nil {
			out = append(out, Adjustment{Record: r, Action: ActionShiftStart, NewStart: dayAfterEnd})
			continue
		}
		if dayAfterEnd.After(*r.EndDate) {
			out = append(out, Adjustment{Record: r, Action: ActionDelete})
			continue
		}
		out = append(out, Adjustment{Record: r, Action: ActionShiftStart, NewStart: dayAfterEnd})
	}
	return out
}

// Rotation describes what happens to the current record when ownership
// changes on effective.
type Rotation struct {
	Current Record
	Close   bool
	CloseAt caldate.Date
	Delete  bool
}

func PlanRotation(current Record, effective caldate.Date) Rotation {
	if effective.After(current.StartDate) {
		return Rotation{Current: current, Close: true, CloseAt: effective.AddDays(-1)}
	}
	return Rotation{Current: current, Delete: true}
}

// FindConflict returns the first record, other than exclude, overlapping
// [start, end]; a nil end is open-ended.
func FindConflict(records []Record, exclude uuid.UUID, start caldate.Date, end *caldate.Date) (Record, bool) {
	for _, r := range records {
		if r.ID == exclude {
			continue
		}
		if r.Overlaps(start, end) {
			return r, true
		}
	}
	return Record{}, false
}

type ViolationKind string

const (
	ViolationInvertedRange   ViolationKind = "inverted_range"
	ViolationOverlap         ViolationKind = "overlap"
	ViolationMultipleCurrent ViolationKind = "multiple_current"
)

type TimelineViolation struct {
	Kind     ViolationKind
	RecordID uuid.UUID
	OtherID  uuid.UUID
}

func (v *TimelineViolation) Error() string {
	if v.OtherID == uuid.Nil {
		return fmt.Sprintf("timeline violation %s: record %s", v.Kind, v.RecordID)
	}
	return fmt.Sprintf("timeline violation %s: records %s and %s", v.Kind, v.RecordID, v.OtherID)
}

// CheckTimeline verifies one entity's records: start <= end, no overlap, at
// most one open-ended record.
func CheckTimeline(records []Record) error {
	var current *Record
	for i := range records {
		r := records[i]
		if r.EndDate != nil && r.StartDate.After(*r.EndDate) {
			return &TimelineViolation{Kind: ViolationInvertedRange, RecordID: r.ID}
		}
		if r.EndDate == nil {
			if current != nil {
				return &TimelineViolation{Kind: ViolationMultipleCurrent, RecordID: current.ID, OtherID: r.ID}
			}
			current = &records[i]
		}
	}

	sorted := make([]Record, len(records))
	copy(sorted, records)
	SortByStartDesc(sorted)
	// newest first: each record must end before the newer one starts
	for i := 1; i < len(sorted); i++ {
		newer, older := sorted[i-1], sorted[i]
		if older.EndDate == nil || !older.EndDate.Before(newer.StartDate) {
			return &TimelineViolation{Kind: ViolationOverlap, RecordID: older.ID, OtherID: newer.ID}
		}
	}
	return nil
}
