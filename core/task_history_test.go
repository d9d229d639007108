package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func labels(recs []JobExecutionRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Label)
	}
	return out
}

// TestExecutionHistory tests the ring buffer
// Main test items:
// 1. Recent returns newest first and honors the limit
// 2. Old records are overwritten once capacity is reached
// 3. Last reports the newest record
func TestExecutionHistory(t *testing.T) {
	h := newExecutionHistory(3)
	assert.Nil(t, h.Recent(0))
	_, ok := h.Last()
	assert.False(t, ok)

	for _, l := range []string{"a", "b"} {
		h.Add(JobExecutionRecord{Label: l})
	}
	assert.Equal(t, []string{"b", "a"}, labels(h.Recent(0)))
	assert.Equal(t, []string{"b"}, labels(h.Recent(1)))
	assert.Equal(t, []string{"b", "a"}, labels(h.Recent(10)))

	for _, l := range []string{"c", "d", "e"} {
		h.Add(JobExecutionRecord{Label: l})
	}
	assert.Equal(t, []string{"e", "d", "c"}, labels(h.Recent(-1)))

	last, ok := h.Last()
	assert.True(t, ok)
	assert.Equal(t, "e", last.Label)

	assert.Len(t, newExecutionHistory(0).items, defaultJobHistoryCapacity)
}
