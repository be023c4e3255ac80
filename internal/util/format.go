// Package util holds small display helpers shared by the command line tools.
package util //nolint:revive // package name util hosts shared formatting helpers

import "time"

// FormatDuration renders a job duration for tables.
// Zero or negative durations (jobs still running) render as "-"; others are truncated to milliseconds.
func FormatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Millisecond:
		return d.String()
	default:
		return d.Truncate(time.Millisecond).String()
	}
}

// FormatTime renders t in UTC RFC 3339, or "-" when nil.
func FormatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
