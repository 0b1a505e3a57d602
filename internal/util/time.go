package util

import (
	"fmt"
	"regexp"
	"time"
)

// FileTimeLayout is the timestamp layout embedded in report filenames.
const FileTimeLayout = "2006-01-02-15-04-05"

// fileTimePattern matches a FileTimeLayout stamp, with the time part optional.
var fileTimePattern = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})(-\d{2}-\d{2}-\d{2})?`)

// ParseFileTimestamp extracts the first timestamp from filename. A full
// FileTimeLayout stamp is parsed to the second; a bare YYYY-MM-DD date
// yields midnight. Stamps are read as UTC.
func ParseFileTimestamp(filename string) (time.Time, bool) {
	m := fileTimePattern.FindStringSubmatch(filename)
	if m == nil {
		return time.Time{}, false
	}

	layout, value := time.DateOnly, m[1]
	if m[2] != "" {
		layout, value = FileTimeLayout, m[1]+m[2]
	}
	t, err := time.Parse(layout, value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// humanTimeFormat is the layout for human-readable timestamps with timezone.
const humanTimeFormat = "2 Jan 2006 15:04 MST"

// HumanTime returns the current local time in a human-readable format.
func HumanTime() string {
	return time.Now().Format(humanTimeFormat)
}

// FormatHumanTime converts an RFC3339 timestamp to local human-readable time.
// Empty and "unknown" inputs read as "unknown"; unparseable input is returned as is.
func FormatHumanTime(rfc3339 string) string {
	if rfc3339 == "" || rfc3339 == "unknown" {
		return "unknown"
	}
	t, err := time.Parse(time.RFC3339, rfc3339)
	if err != nil {
		return rfc3339
	}
	return t.Local().Format(humanTimeFormat)
}

// FormatDuration renders an alert duration in milliseconds for messages,
// e.g. "800ms", "45s", "2m 34s", "1h 23m".
func FormatDuration(ms int64) string {
	d := time.Duration(max(ms, 0)) * time.Millisecond
	switch {
	case d > 0 && d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%ds", int64(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int64(d.Minutes()), int64(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh %dm", int64(d.Hours()), int64(d.Minutes())%60)
	}
}
