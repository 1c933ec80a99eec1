package light

import "time"

// throttleGate rate-limits backend dispatch. An interval of 0 disables it.
// The gate also vetoes dispatch of a state structurally equal to what is
// already persisted, since that update would be a no-op.
type throttleGate struct {
	intervalMS int
	last       time.Time
	now        func() time.Time
}

func newThrottleGate(intervalMS int) *throttleGate {
	return &throttleGate{intervalMS: intervalMS, now: time.Now}
}

// allow reports whether candidate may be dispatched given the current
// persisted state, recording the dispatch time when it is.
func (g *throttleGate) allow(candidate, persisted *State) bool {
	if g.intervalMS <= 0 {
		return true
	}
	if candidate.Equal(persisted) {
		return false
	}
	now := g.now()
	if now.Sub(g.last) < time.Duration(g.intervalMS)*time.Millisecond {
		return false
	}
	g.last = now
	return true
}
