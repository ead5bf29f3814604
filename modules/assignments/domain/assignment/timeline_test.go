package assignment

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/lendops/pkg/caldate"
)

func d(s string) caldate.Date { return caldate.MustParse(s) }

func closed(start, end string) Record {
	e := d(end)
	return Record{ID: uuid.New(), EntityID: uuid.Nil, OwnerID: uuid.New(), StartDate: d(start), EndDate: &e}
}

func open(start string) Record {
	return Record{ID: uuid.New(), OwnerID: uuid.New(), StartDate: d(start)}
}

func TestRecord_Covers(t *testing.T) {
	r := closed("2022-01-01", "2022-06-01")
	require.True(t, r.Covers(d("2022-01-01")))
	require.True(t, r.Covers(d("2022-06-01")))
	require.False(t, r.Covers(d("2021-12-31")))
	require.False(t, r.Covers(d("2022-06-02")))

	cur := open("2022-06-02")
	require.True(t, cur.Covers(d("2099-01-01")))
	require.False(t, cur.Covers(d("2022-06-01")))
}

func TestRecord_Overlaps(t *testing.T) {
	r := closed("2022-01-01", "2022-06-01")
	end := d("2022-01-01")
	require.True(t, r.Overlaps(d("2021-01-01"), &end))
	end = d("2021-12-31")
	require.False(t, r.Overlaps(d("2021-01-01"), &end))
	require.True(t, r.Overlaps(d("2022-06-01"), nil))
	require.False(t, r.Overlaps(d("2022-06-02"), nil))
}

func TestLatestCovering_PrefersLatestStart(t *testing.T) {
	a := open("2020-01-01")
	b := closed("2020-05-01", "2020-12-31")
	got, ok := LatestCovering([]Record{a, b}, d("2020-06-01"))
	require.True(t, ok)
	require.Equal(t, b.ID, got.ID)

	_, ok = LatestCovering([]Record{b}, d("2019-01-01"))
	require.False(t, ok)
}

func TestPlanCorrection_DeletesContainedRecord(t *testing.T) {
	existing := closed("2022-01-01", "2022-06-01")
	plan := PlanCorrection([]Record{existing}, d("2020-01-01"), d("2024-01-01"))
	require.Len(t, plan, 1)
	require.Equal(t, ActionDelete, plan[0].Action)
	require.Equal(t, existing.ID, plan[0].Record.ID)
}

func TestPlanCorrection_ShiftsOpenRecord(t *testing.T) {
	cur := open("2020-01-01")
	plan := PlanCorrection([]Record{cur}, d("2020-01-01"), d("2025-01-01"))
	require.Len(t, plan, 1)
	require.Equal(t, ActionShiftStart, plan[0].Action)
	require.Equal(t, d("2025-01-02"), plan[0].NewStart)
}

func TestPlanCorrection_ShiftsPartiallyOverlappingClosedRecord(t *testing.T) {
	existing := closed("2022-01-01", "2022-12-31")
	plan := PlanCorrection([]Record{existing}, d("2021-06-01"), d("2022-03-31"))
	require.Len(t, plan, 1)
	require.Equal(t, ActionShiftStart, plan[0].Action)
	require.Equal(t, d("2022-04-01"), plan[0].NewStart)
}

func TestPlanCorrection_EndingOnLastDayDeletes(t *testing.T) {
	existing := closed("2022-01-01", "2022-03-31")
	plan := PlanCorrection([]Record{existing}, d("2022-02-01"), d("2022-03-31"))
	require.Len(t, plan, 1)
	require.Equal(t, ActionDelete, plan[0].Action)
}

func TestPlanCorrection_NestedCorrectionDropsLeadingSpan(t *testing.T) {
	// The enclosing record is moved, not split: [2022-01-01, 2022-02-28] is lost.
	existing := closed("2022-01-01", "2022-12-31")
	plan := PlanCorrection([]Record{existing}, d("2022-03-01"), d("2022-04-30"))
	require.Len(t, plan, 1)
	require.Equal(t, ActionShiftStart, plan[0].Action)
	require.Equal(t, d("2022-05-01"), plan[0].NewStart)
}

func TestPlanCorrection_IgnoresDisjointRecords(t *testing.T) {
	before := closed("2019-01-01", "2019-12-31")
	after := open("2023-01-01")
	plan := PlanCorrection([]Record{before, after}, d("2020-01-01"), d("2022-12-31"))
	require.Empty(t, plan)
}

func TestPlanRotation(t *testing.T) {
	cur := open("2020-01-01")

	r := PlanRotation(cur, d("2020-03-01"))
	require.True(t, r.Close)
	require.False(t, r.Delete)
	require.Equal(t, d("2020-02-29"), r.CloseAt)

	r = PlanRotation(cur, d("2020-01-01"))
	require.True(t, r.Delete)
	require.False(t, r.Close)

	r = PlanRotation(cur, d("2019-06-01"))
	require.True(t, r.Delete)
}

func TestFindConflict_ExcludesEditedRecord(t *testing.T) {
	a := closed("2020-01-01", "2020-12-31")
	b := open("2021-01-01")
	end := d("2021-03-01")

	got, ok := FindConflict([]Record{a, b}, a.ID, d("2020-06-01"), &end)
	require.True(t, ok)
	require.Equal(t, b.ID, got.ID)

	end = d("2020-12-31")
	_, ok = FindConflict([]Record{a, b}, a.ID, d("2020-06-01"), &end)
	require.False(t, ok)
}

func TestCheckTimeline(t *testing.T) {
	require.NoError(t, CheckTimeline(nil))
	require.NoError(t, CheckTimeline([]Record{
		closed("2020-01-01", "2020-06-30"),
		closed("2020-08-01", "2020-12-31"),
		open("2021-01-01"),
	}))

	var v *TimelineViolation

	err := CheckTimeline([]Record{closed("2020-01-01", "2020-06-30"), closed("2020-06-30", "2020-12-31")})
	require.ErrorAs(t, err, &v)
	require.Equal(t, ViolationOverlap, v.Kind)

	err = CheckTimeline([]Record{open("2020-01-01"), open("2021-01-01")})
	require.ErrorAs(t, err, &v)
	require.Equal(t, ViolationMultipleCurrent, v.Kind)

	err = CheckTimeline([]Record{closed("2020-02-01", "2020-01-01")})
	require.ErrorAs(t, err, &v)
	require.Equal(t, ViolationInvertedRange, v.Kind)

	err = CheckTimeline([]Record{open("2020-01-01"), closed("2021-01-01", "2021-02-01")})
	require.ErrorAs(t, err, &v)
	require.Equal(t, ViolationOverlap, v.Kind)
}

func TestSortByStartDesc(t *testing.T) {
	a := closed("2020-01-01", "2020-06-30")
	b := open("2021-01-01")
	c := closed("2020-08-01", "2020-12-31")
	records := []Record{a, b, c}
	SortByStartDesc(records)
	require.Equal(t, []uuid.UUID{b.ID, c.ID, a.ID}, []uuid.UUID{records[0].ID, records[1].ID, records[2].ID})
}
