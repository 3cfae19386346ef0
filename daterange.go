package guardowl

import "time"

// TimestampField is the report metadata field used for all time
// filtering. It holds Unix seconds so range comparisons are well
// ordered; the display date string must never be used for ranges.
const TimestampField = "timestamp"

// DateRange is a half-open Unix-seconds interval [Start, End). All day
// boundaries are midnight UTC. Half-open intervals are a hard
// correctness requirement: closing the end boundary duplicates a day's
// reports across adjacent ranges, opening the start drops one.
type DateRange struct {
	Start int64
	End   int64
}

// Filter renders the range as a timestamp predicate:
// timestamp >= Start AND timestamp < End.
func (r DateRange) Filter() *Filter {
	return And(
		Gte(TimestampField, r.Start),
		Lt(TimestampField, r.End),
	)
}

// Contains reports whether ts falls inside the range.
func (r DateRange) Contains(ts int64) bool {
	return ts >= r.Start && ts < r.End
}

// startOfDay truncates t to midnight UTC.
func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DayRange is the full UTC day containing t.
func DayRange(t time.Time) DateRange {
	start := startOfDay(t)
	return DateRange{Start: start.Unix(), End: start.AddDate(0, 0, 1).Unix()}
}

// TodayRange is the full day containing the reference date. "This
// morning" and "tonight" both resolve here.
func TodayRange(ref time.Time) DateRange {
	return DayRange(ref)
}

// YesterdayRange is the full day before the reference date. "Last
// night" resolves here.
func YesterdayRange(ref time.Time) DateRange {
	return DayRange(ref.UTC().AddDate(0, 0, -1))
}

// LastWeekRange is the 7-day range ending at the start of the reference
// day: [startOfDay-7d, startOfDay).
func LastWeekRange(ref time.Time) DateRange {
	end := startOfDay(ref)
	return DateRange{Start: end.AddDate(0, 0, -7).Unix(), End: end.Unix()}
}

// MonthRange is the calendar month containing t.
func MonthRange(t time.Time) DateRange {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return DateRange{Start: start.Unix(), End: start.AddDate(0, 1, 0).Unix()}
}

// LastMonthRange is the calendar month before the one containing ref.
func LastMonthRange(ref time.Time) DateRange {
	ref = ref.UTC()
	// Step back from the first of the month so date normalization can't
	// skip a month on day-31 references.
	first := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, time.UTC)
	return MonthRange(first.AddDate(0, -1, 0))
}

// YearRange is the calendar year containing t.
func YearRange(t time.Time) DateRange {
	start := time.Date(t.UTC().Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	return DateRange{Start: start.Unix(), End: start.AddDate(1, 0, 0).Unix()}
}
