package domain

import "time"

// DateLayout is the storage and wire format for calendar dates.
const DateLayout = "2006-01-02"

// Day returns the calendar date of t in t's own location, as 00:00 UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Jan1 returns the first day of year.
func Jan1(year int) time.Time {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
}

// Dec31 returns the last day of year.
func Dec31(year int) time.Time {
	return time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
}

// AddDays shifts a calendar date by n days.
func AddDays(day time.Time, n int) time.Time {
	return day.AddDate(0, 0, n)
}

// OffsetZone returns a fixed location for a UTC offset.
func OffsetZone(offset time.Duration) *time.Location {
	return time.FixedZone("", int(offset/time.Second))
}

// Localize expresses t in the fixed zone of offset.
func Localize(t time.Time, offset time.Duration) time.Time {
	return t.In(OffsetZone(offset))
}

// FirstUnstableDate returns midnight of the day before t, as a calendar date.
// A value fetched at local time t is only trusted for dates strictly before it.
func FirstUnstableDate(t time.Time) time.Time {
	return Day(t.Add(-24 * time.Hour))
}

// LastStableDate is the latest date that a fetch at t leaves stable.
func LastStableDate(t time.Time) time.Time {
	return AddDays(FirstUnstableDate(t), -1)
}

// MinCurrentLocalDate returns the earliest "today" across every zone, where
// westmostOffset is the most negative UTC offset in the grid. A day counts as
// current for that zone only once its local midnight has strictly passed.
func MinCurrentLocalDate(now time.Time, westmostOffset time.Duration) time.Time {
	now = now.UTC()
	today := Day(now)
	cutoff := time.Duration(0)
	if westmostOffset < 0 {
		cutoff = -westmostOffset
	}
	if now.After(today.Add(cutoff)) {
		return today
	}
	return AddDays(today, -1)
}

// EndOfDayUTC returns localDate at 23:59:59 in the zone of offset, in UTC.
func EndOfDayUTC(localDate time.Time, offset time.Duration) time.Time {
	y, m, d := localDate.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, OffsetZone(offset)).UTC()
}

// DateRange lists every date in [first, last]. It is empty when last < first.
func DateRange(first, last time.Time) []time.Time {
	first, last = Day(first), Day(last)
	if last.Before(first) {
		return nil
	}
	out := make([]time.Time, 0, int(last.Sub(first).Hours()/24)+1)
	for d := first; !d.After(last); d = AddDays(d, 1) {
		out = append(out, d)
	}
	return out
}

// MinDate returns the earlier of a and b.
func MinDate(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}

// MaxDate returns the later of a and b.
func MaxDate(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
