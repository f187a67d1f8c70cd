package model

import "time"

// Clock supplies wall-clock time for llm_processed_utc stamps.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real time.
type SystemClock struct{}

// Now returns time.Now.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Stamp formats t as an RFC 3339 UTC timestamp with second precision,
// e.g. "2026-03-01T09:00:00Z".
func Stamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}
