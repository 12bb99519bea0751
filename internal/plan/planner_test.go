package plan_test

import (
	"testing"
	"time"

	"github.com/reolink-tools/daygrab/internal/nvr"
	"github.com/reolink-tools/daygrab/internal/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDay_CoversFullDay(t *testing.T) {
	date := time.Date(2025, 8, 30, 0, 0, 0, 0, time.UTC)

	windows := plan.Day(0, date, nvr.QualityHigh)
	require.Len(t, windows, 288)

	// No gaps, no overlaps, oldest first.
	assert.Equal(t, date, windows[0].Start)
	for i := 1; i < len(windows); i++ {
		assert.Equal(t, windows[i-1].End, windows[i].Start, "window %d must start where %d ended", i, i-1)
	}
	assert.Equal(t, date.AddDate(0, 0, 1), windows[len(windows)-1].End)

	for _, w := range windows {
		assert.Equal(t, plan.ChunkDuration, w.Duration())
		assert.Equal(t, 0, w.Channel)
		assert.Equal(t, nvr.QualityHigh, w.Quality)
		assert.Equal(t, date, w.Date)
	}
}

func TestDay_Deterministic(t *testing.T) {
	date := time.Date(2025, 8, 30, 0, 0, 0, 0, time.UTC)

	first := plan.Day(2, date, nvr.QualityLow)
	second := plan.Day(2, date, nvr.QualityLow)

	assert.Equal(t, first, second)
}

func TestDay_NormalizesTimeOfDay(t *testing.T) {
	// A mid-day timestamp plans the same day as its midnight.
	noon := time.Date(2025, 8, 30, 12, 34, 56, 0, time.UTC)
	midnight := time.Date(2025, 8, 30, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, plan.Day(0, midnight, nvr.QualityHigh), plan.Day(0, noon, nvr.QualityHigh))
}

func TestWindow_Key(t *testing.T) {
	date := time.Date(2025, 8, 30, 0, 0, 0, 0, time.UTC)
	windows := plan.Day(1, date, nvr.QualityHigh)

	assert.Equal(t, "1/main/20250830000000", windows[0].Key())
	assert.Equal(t, "1/main/20250830233500", windows[283].Key())

	// Keys are unique across the plan.
	seen := make(map[string]struct{}, len(windows))
	for _, w := range windows {
		_, dup := seen[w.Key()]
		assert.False(t, dup, "duplicate key %s", w.Key())
		seen[w.Key()] = struct{}{}
	}
}
