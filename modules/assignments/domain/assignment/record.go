package assignment

import (
	"sort"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/iota-uz/lendops/pkg/caldate"
)

var (
	ErrRecordNotFound = errors.New("assignment record not found")
	ErrEntityNotFound = errors.New("assignment entity not found")
	ErrOwnerNotFound  = errors.New("assignment owner not found")
	// ErrTimelineConflict is returned by stores whose own constraints reject
	// a write.
	ErrTimelineConflict = errors.New("assignment timeline conflict")
)

// Record is one contiguous ownership period of an entity.
// A nil EndDate marks the current, open-ended record.
type Record struct {
	ID        uuid.UUID     `json:"id"`
	EntityID  uuid.UUID     `json:"entity_id"`
	OwnerID   uuid.UUID     `json:"owner_id"`
	StartDate caldate.Date  `json:"start_date"`
	EndDate   *caldate.Date `json:"end_date"`
	CreatedAt time.Time     `json:"created_at"`
}

func (r Record) IsCurrent() bool {
	return r.EndDate == nil
}

func (r Record) Covers(d caldate.Date) bool {
	if r.StartDate.After(d) {
		return false
	}
	return r.EndDate == nil || !r.EndDate.Before(d)
}

// Overlaps reports whether the record shares at least one day with
// [from, to]; a nil to means the range is unbounded.
func (r Record) Overlaps(from caldate.Date, to *caldate.Date) bool {
	if to != nil && r.StartDate.After(*to) {
		return false
	}
	return r.EndDate == nil || !r.EndDate.Before(from)
}

// OwnedRecord is a record joined with its owner's display name.
type OwnedRecord struct {
	Record
	OwnerName string `json:"owner_name"`
}

// SortByStartDesc orders records newest first, the order full history is
// returned in.
func SortByStartDesc(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartDate.After(records[j].StartDate)
	})
}

// LatestCovering returns the most recently started record covering d.
func LatestCovering(records []Record, d caldate.Date) (Record, bool) {
	var (
		best  Record
		found bool
	)
	for _, r := range records {
		if !r.Covers(d) {
			continue
		}
		if !found || r.StartDate.After(best.StartDate) {
			best = r
			found = true
		}
	}
	return best, found
}

// Current returns the open-ended record, if any.
func Current(records []Record) (Record, bool) {
	for _, r := range records {
		if r.IsCurrent() {
			return r, true
		}
	}
	return Record{}, false
}
