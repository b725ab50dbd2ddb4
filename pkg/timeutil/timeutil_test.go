package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStorageTimestamp_ReplacesUnsafeCharacters(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 589793000, time.UTC)

	got := StorageTimestamp(ts)

	assert.Equal(t, "2025-03-14T09_26_53_589793", got)
	assert.NotContains(t, got, ":")
	assert.NotContains(t, got, ".")
}

func TestStorageTimestamp_IsStorageSafeForArbitraryTimes(t *testing.T) {
	times := []time.Time{
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 31, 23, 59, 59, 999999999, time.UTC),
		time.Now().UTC(),
		time.Date(1999, 7, 4, 12, 30, 15, 123000, time.FixedZone("X", 5*3600)),
	}

	for _, ts := range times {
		assert.True(t, IsStorageSafe(StorageTimestamp(ts)), "timestamp %v", ts)
	}
}

func TestStorageTimestampNow(t *testing.T) {
	got := StorageTimestampNow()

	assert.True(t, IsStorageSafe(got))
	// Date part stays intact, only time separators are rewritten.
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}T\d{2}_\d{2}_\d{2}_\d{6}$`, got)
}
