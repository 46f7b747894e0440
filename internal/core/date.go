package core

import (
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a calendar date normalized to midnight UTC.
type Date struct {
	time.Time
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate is the only date parser used for records. It accepts
// "YYYY-MM-DD" and RFC 3339 timestamps (only the calendar part is kept).
// Anything else reports ok=false and callers exclude the record.
func ParseDate(s string) (Date, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, false
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Date{Time: t}, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return NewDate(t.Year(), int(t.Month()), t.Day()), true
	}
	return Date{}, false
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format(dateLayout)
}

// MonthIndex returns the zero-based month (January = 0).
func (d Date) MonthIndex() int {
	return int(d.Month()) - 1
}

// PreviousMonth returns the year and month immediately before the given one,
// rolling January back to December of the prior year.
func PreviousMonth(year int, month time.Month) (int, time.Month) {
	if month == time.January {
		return year - 1, time.December
	}
	return year, month - 1
}
