package domain

import (
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// ParseDate accepts a calendar date, tolerating a trailing timestamp
// ("2024-06-01" and "2024-06-01T14:00:00Z" parse to the same day).
func ParseDate(value string) (time.Time, error) {
	if idx := strings.Index(value, "T"); idx != -1 {
		value = value[:idx]
	}
	return time.Parse(DateLayout, value)
}

// NormalizeDate reduces a stored calendar entry to YYYY-MM-DD form.
func NormalizeDate(value string) string {
	if idx := strings.Index(value, "T"); idx != -1 {
		return value[:idx]
	}
	return value
}

// RangeDays lists every date from checkIn through checkOut inclusive.
// The departure day is counted as occupied, matching the calendar data
// written by the booking handlers since launch.
func RangeDays(checkIn, checkOut time.Time) []string {
	var days []string
	for d := checkIn; !d.After(checkOut); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(DateLayout))
	}
	return days
}

// IsRangeAvailable reports whether every date from checkIn through
// checkOut inclusive is present in the calendar, failing fast with the
// first missing date.
func IsRangeAvailable(calendar []string, checkIn, checkOut time.Time) (bool, string) {
	open := make(map[string]struct{}, len(calendar))
	for _, entry := range calendar {
		open[NormalizeDate(entry)] = struct{}{}
	}

	for _, day := range RangeDays(checkIn, checkOut) {
		if _, ok := open[day]; !ok {
			return false, day
		}
	}
	return true, ""
}

// FutureDays filters a date range down to dates strictly after today,
// used when freed dates are returned to a property's calendar.
func FutureDays(days []string, today time.Time) []string {
	cutoff := today.Format(DateLayout)
	var future []string
	for _, day := range days {
		if day > cutoff {
			future = append(future, day)
		}
	}
	return future
}
