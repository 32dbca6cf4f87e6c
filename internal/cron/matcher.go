package cron

import "time"

// Matches reports whether t falls on the schedule. Seconds are ignored and t
// is evaluated in its own location.
func (s Schedule) Matches(t time.Time) bool {
	return s.minute.Matches(t.Minute()) &&
		s.hour.Matches(t.Hour()) &&
		s.month.Matches(int(t.Month())) &&
		s.matchesDayConstraints(t)
}

// matchesDayConstraints handles the day-of-month vs day-of-week logic
//
// - If either field is *: both must match, so the wildcard never vetoes the other
// - If both are restricted: match if EITHER matches (OR logic)
func (s Schedule) matchesDayConstraints(t time.Time) bool {
	dayMatch := s.day.Matches(t.Day())
	weekdayMatch := s.matchesWeekday(t.Weekday())

	if s.day.Kind() == KindEvery || s.weekday.Kind() == KindEvery {
		return dayMatch && weekdayMatch
	}
	return dayMatch || weekdayMatch
}

// matchesWeekday accepts the day under either numbering a weekday value may
// be written in: Sunday-based (Sun=0 ... Sat=6, with 7 also Sunday) and days
// since Monday (Mon=0 ... Sun=6).
func (s Schedule) matchesWeekday(wd time.Weekday) bool {
	sundayBased := int(wd)
	sinceMonday := (sundayBased + 6) % 7
	if wd == time.Sunday && s.weekday.Matches(7) {
		return true
	}
	return s.weekday.Matches(sundayBased) || s.weekday.Matches(sinceMonday)
}
