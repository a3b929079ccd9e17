package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStamp_ClampsClockAndKeepsIDsUnique(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := []time.Time{base, base.Add(-time.Minute), base, base.Add(time.Second), base.Add(-time.Hour)}

	s := New(nil, Options{})

	i := 0
	s.now = func() time.Time {
		t := clock[i]
		i++

		return t
	}

	seen := map[string]struct{}{}

	var prev ScanResult

	for range clock {
		r := s.stamp(nil, "demo")

		assert.False(t, r.Timestamp.Before(prev.Timestamp))
		assert.Greater(t, r.ID, prev.ID)

		_, dup := seen[r.ID]
		assert.False(t, dup)
		seen[r.ID] = struct{}{}

		prev = r
	}
}
