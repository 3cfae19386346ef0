package guardowl

import (
	"testing"
	"time"
)

func TestDateRanges(t *testing.T) {
	// 2025-10-17 14:30 UTC as the reference instant.
	ref := time.Date(2025, time.October, 17, 14, 30, 0, 0, time.UTC)

	t.Run("today", func(t *testing.T) {
		r := TodayRange(ref)
		if r.Start != 1760659200 || r.End != 1760745600 {
			t.Errorf("TodayRange = [%d, %d)", r.Start, r.End)
		}
	})

	t.Run("yesterday", func(t *testing.T) {
		r := YesterdayRange(ref)
		if r.Start != 1760572800 || r.End != 1760659200 {
			t.Errorf("YesterdayRange = [%d, %d)", r.Start, r.End)
		}
	})

	t.Run("last week ends at start of today", func(t *testing.T) {
		r := LastWeekRange(ref)
		today := TodayRange(ref)
		if r.End != today.Start {
			t.Errorf("LastWeekRange.End = %d, want %d", r.End, today.Start)
		}
		if today.Start-r.Start != 7*24*3600 {
			t.Errorf("LastWeekRange spans %d seconds", r.End-r.Start)
		}
	})

	t.Run("month", func(t *testing.T) {
		r := MonthRange(ref)
		start := time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC)
		if r.Start != start.Unix() || r.End != end.Unix() {
			t.Errorf("MonthRange = [%d, %d)", r.Start, r.End)
		}
	})

	t.Run("last month", func(t *testing.T) {
		r := LastMonthRange(ref)
		start := time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC)
		if r.Start != start.Unix() || r.End != end.Unix() {
			t.Errorf("LastMonthRange = [%d, %d)", r.Start, r.End)
		}
	})

	t.Run("last month from day 31", func(t *testing.T) {
		// AddDate on a day-31 reference normalizes into the wrong month
		// unless the computation anchors on the first of the month.
		r := LastMonthRange(time.Date(2025, time.March, 31, 10, 0, 0, 0, time.UTC))
		start := time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
		if r.Start != start.Unix() || r.End != end.Unix() {
			t.Errorf("LastMonthRange = [%d, %d), want [%d, %d)", r.Start, r.End, start.Unix(), end.Unix())
		}
	})

	t.Run("year", func(t *testing.T) {
		r := YearRange(ref)
		start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
		if r.Start != start.Unix() || r.End != end.Unix() {
			t.Errorf("YearRange = [%d, %d)", r.Start, r.End)
		}
	})
}

func TestDateRangeHalfOpen(t *testing.T) {
	ref := time.Date(2025, time.October, 17, 8, 0, 0, 0, time.UTC)
	yesterday := YesterdayRange(ref)

	if !yesterday.Contains(yesterday.Start) {
		t.Error("start boundary must be included")
	}
	if yesterday.Contains(yesterday.End) {
		t.Error("end boundary must be excluded")
	}
	if !yesterday.Contains(yesterday.End - 1) {
		t.Error("last second of the day must be included")
	}

	// Adjacent ranges must not overlap or leave gaps.
	today := TodayRange(ref)
	if yesterday.End != today.Start {
		t.Errorf("gap between yesterday end %d and today start %d", yesterday.End, today.Start)
	}
}

func TestDateRangeFilter(t *testing.T) {
	r := DateRange{Start: 1760572800, End: 1760659200}
	f := r.Filter()

	if f.Op != OpAnd || len(f.Operands) != 2 {
		t.Fatalf("unexpected filter shape: %+v", f)
	}

	inside := map[string]any{"timestamp": float64(1760600000)}
	atEnd := map[string]any{"timestamp": float64(1760659200)}
	atStart := map[string]any{"timestamp": float64(1760572800)}

	if !f.Matches(inside) {
		t.Error("timestamp inside range must match")
	}
	if !f.Matches(atStart) {
		t.Error("timestamp at start must match")
	}
	if f.Matches(atEnd) {
		t.Error("timestamp at end must not match")
	}
}
