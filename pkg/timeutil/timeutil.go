// Package timeutil provides timestamp helpers for the evaluation store.
// The store rejects ':' and '.' in certain attribute contexts, so persisted
// timestamps are ISO-8601 with those characters replaced.
// No external dependencies - uses only standard library.
package timeutil

import (
	"strings"
	"time"
)

// iso8601Micro mirrors the upstream evaluation pipeline's timestamp layout:
// ISO-8601 with microsecond precision and no zone suffix.
const iso8601Micro = "2006-01-02T15:04:05.000000"

// StorageTimestamp formats t as ISO-8601 and replaces the characters the
// store does not accept (':' and '.') with '_'. The result is stored as-is
// and never parsed back.
func StorageTimestamp(t time.Time) string {
	s := t.Format(iso8601Micro)
	s = strings.ReplaceAll(s, ":", "_")
	s = strings.ReplaceAll(s, ".", "_")
	return s
}

// StorageTimestampNow returns StorageTimestamp for the current UTC time.
func StorageTimestampNow() string {
	return StorageTimestamp(time.Now().UTC())
}

// IsStorageSafe reports whether s is free of characters the store rejects.
func IsStorageSafe(s string) bool {
	return !strings.ContainsAny(s, ":.")
}
