package schedule

import "time"

// RunHour is the hour of day every scheduled run is anchored to.
const RunHour = 2

// NextRun returns the next occurrence of freq after now, at RunHour:00 in
// now's location. The result is always strictly after now.
//
// Weekly runs land on Sunday. Calling it on a Sunday targets the following
// Sunday, even if RunHour has not passed yet.
func NextRun(freq Frequency, now time.Time) (time.Time, error) {
	y, m, d := now.Date()
	loc := now.Location()

	var next time.Time
	switch freq {
	case Daily:
		next = time.Date(y, m, d+1, RunHour, 0, 0, 0, loc)
	case Weekly:
		days := (7 - int(now.Weekday())) % 7
		if days == 0 {
			days = 7
		}
		next = time.Date(y, m, d+days, RunHour, 0, 0, 0, loc)
	case Monthly:
		// time.Date normalizes month 13 into January of the next year.
		next = time.Date(y, m+1, 1, RunHour, 0, 0, 0, loc)
	default:
		return time.Time{}, freq.Validate()
	}

	return next, nil
}
