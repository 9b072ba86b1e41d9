// Package isotime centralizes conversions between time values and the
// ISO 8601 wire forms used across the service: UTC timestamps with a
// trailing Z and plain YYYY-MM-DD dates.
package isotime

import "time"

const dateLayout = "2006-01-02"

// Now returns the current time in UTC truncated to whole seconds.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// Format renders t as an ISO 8601 UTC timestamp with a trailing Z.
func Format(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// Parse reads an ISO 8601 UTC timestamp.
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// ParseDate reads a YYYY-MM-DD date string.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}
