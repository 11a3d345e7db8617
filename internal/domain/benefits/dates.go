package benefits

import "time"

// Day truncates t to a calendar date at UTC midnight. All period boundaries
// are compared as dates.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// InForce reports whether a grant in state s with window [start, end] is
// effective on the date of now.
func InForce(s State, start time.Time, end *time.Time, now time.Time) bool {
	if s != StateActive {
		return false
	}
	today := Day(now)
	if today.Before(Day(start)) {
		return false
	}
	return end == nil || !today.After(Day(*end))
}

// DaysRemaining counts whole days from today until end, floored at zero.
// It returns nil for open-ended grants.
func DaysRemaining(end *time.Time, now time.Time) *int {
	if end == nil {
		return nil
	}
	days := int(Day(*end).Sub(Day(now)).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return &days
}
