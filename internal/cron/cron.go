package cron

import (
	"time"
)

// Schedule represents a parsed cron expression
type Schedule struct {
	minute  Field // 0-59
	hour    Field // 0-23
	day     Field // 1-31, day of month
	month   Field // 1-12
	weekday Field // 0-7, 0 and 7 are both Sunday

	// Startup marks a schedule that also fires once when the process starts
	Startup bool
}

// Parse parses a 5-field cron expression with an optional trailing @startup
// token. Returns an error wrapping ErrSyntax if:
// - Fewer than 5 fields are present
// - A field is not *, N, N,N,... or N-N
// - A value falls outside the field's bounds
func Parse(expr string) (Schedule, error) {
	return parse(expr)
}

// Minute returns the minute field
func (s Schedule) Minute() Field { return s.minute }

// Hour returns the hour field
func (s Schedule) Hour() Field { return s.hour }

// Day returns the day-of-month field
func (s Schedule) Day() Field { return s.day }

// Month returns the month field
func (s Schedule) Month() Field { return s.month }

// Weekday returns the day-of-week field
func (s Schedule) Weekday() Field { return s.weekday }

// Inverted reports whether any field is a range that can never match
func (s Schedule) Inverted() bool {
	for _, f := range s.fields() {
		if f.Inverted() {
			return true
		}
	}
	return false
}

// Equal reports whether two schedules have identical fields and startup flag
func (s Schedule) Equal(other Schedule) bool {
	a, b := s.fields(), other.fields()
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return s.Startup == other.Startup
}

// String renders the schedule in cron syntax
func (s Schedule) String() string {
	out := s.minute.String() + " " + s.hour.String() + " " + s.day.String() + " " +
		s.month.String() + " " + s.weekday.String()
	if s.Startup {
		out += " " + startupToken
	}
	return out
}

// Next calculates the next N occurrences of this schedule after the given time
// "After" means strictly after - if 'after' is exactly at a scheduled time, that time is NOT included
// Gives up after searching one year past 'after' so a schedule that can never
// fire returns fewer than count results
func (s Schedule) Next(after time.Time, count int) []time.Time {
	results := make([]time.Time, 0, count)

	// Start checking from the next minute after 'after'
	current := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.AddDate(1, 0, 1)

	for len(results) < count && current.Before(limit) {
		if s.Matches(current) {
			results = append(results, current)
		}
		current = current.Add(time.Minute)
	}

	return results
}

// Between calculates all occurrences within the given time window [start, end)
// Start is inclusive, end is exclusive
// Returns all matching times in chronological order
func (s Schedule) Between(start, end time.Time) []time.Time {
	results := []time.Time{}

	// Start at start time truncated to minute
	current := start.Truncate(time.Minute)

	for current.Before(end) {
		if s.Matches(current) {
			results = append(results, current)
		}
		current = current.Add(time.Minute)
	}

	return results
}

func (s Schedule) fields() [5]Field {
	return [5]Field{s.minute, s.hour, s.day, s.month, s.weekday}
}
