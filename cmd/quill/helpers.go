package main

import (
	"time"
)

const timeDisplayPrecision = time.Millisecond

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}

func formatOptionalTimestamp(ts *time.Time) string {
	if ts == nil {
		return "-"
	}
	return formatTimestamp(*ts)
}

func truncateCell(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
