package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSteppingClock_AdvancesPerReading(t *testing.T) {
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	c := NewSteppingClock(start, time.Second)

	assert.True(t, c.Now().Equal(start))
	assert.True(t, c.Now().Equal(start.Add(time.Second)))
	assert.True(t, c.Now().Equal(start.Add(2*time.Second)))
}

func TestSteppingClock_ZeroStepIsFrozen(t *testing.T) {
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	c := NewSteppingClock(start, 0)

	assert.True(t, c.Now().Equal(start))
	assert.True(t, c.Now().Equal(start))

	c.Advance(time.Hour)
	assert.True(t, c.Now().Equal(start.Add(time.Hour)))
}
