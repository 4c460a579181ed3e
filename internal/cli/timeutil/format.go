// Package timeutil formats times for CLI output.
package timeutil

import "time"

// LocalTimeFormat is used for times shown in tables.
const LocalTimeFormat = "Jan _2 2006 15:04"

// FormatTime renders t in local time, or "-" for the zero time.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(LocalTimeFormat)
}

// FormatTimestamp parses an RFC3339 timestamp, such as a build date, and
// renders it with FormatTime. Anything else is returned as is.
func FormatTimestamp(timestamp string) string {
	t, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return timestamp
	}
	return FormatTime(t)
}
