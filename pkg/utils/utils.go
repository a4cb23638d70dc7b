package utils

import (
	"time"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// TruncateToDate drops the clock part and normalizes to UTC midnight.
func TruncateToDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a UTC calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// CalculateDueDate returns the due date of the given installment. Each due
// date is one calendar month after the previous one, starting from startDate.
// Month arithmetic follows time.AddDate, so a day missing from the target
// month overflows into the next: a loan processed on 2020-01-31 falls due on
// 2020-03-02, 2020-04-02, 2020-05-02, ...
func CalculateDueDate(startDate time.Time, installmentNumber int) time.Time {
	due := TruncateToDate(startDate)
	for n := 0; n < installmentNumber; n++ {
		due = due.AddDate(0, 1, 0)
	}
	return due
}
