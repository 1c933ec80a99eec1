package light

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestThrottleDisabledAlwaysAllows(t *testing.T) {
	gate := newThrottleGate(0)
	s := &State{On: ptr(true)}

	for i := 0; i < 3; i++ {
		assert.True(t, gate.allow(s, s))
	}
}

func TestThrottleVetoesEqualState(t *testing.T) {
	gate := newThrottleGate(100)
	s := &State{On: ptr(true), Brightness: ptr(100)}

	assert.False(t, gate.allow(s, s.Clone()))
}

func TestThrottleWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	gate := newThrottleGate(1000)
	gate.now = func() time.Time { return now }

	persisted := &State{On: ptr(false)}
	candidate := &State{On: ptr(true)}

	// First dispatch is allowed and records the timestamp
	assert.True(t, gate.allow(candidate, persisted))

	// Within the window: vetoed
	now = now.Add(500 * time.Millisecond)
	assert.False(t, gate.allow(persisted, candidate))

	// After the window: allowed again
	now = now.Add(600 * time.Millisecond)
	assert.True(t, gate.allow(persisted, candidate))
}
