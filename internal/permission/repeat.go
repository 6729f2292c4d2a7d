package permission

import "sync"

// RepeatThreshold is the number of consecutive identical queries that
// trips the guard.
const RepeatThreshold = 3

// RepeatGuard detects an agent stuck asking for the same action over
// and over. Cached decisions never reach the guard, so only queries the
// human answered with "once" or "deny" can trip it; once tripped, the
// query is auto-denied instead of re-prompting a human who already
// answered twice.
type RepeatGuard struct {
	mu    sync.Mutex
	last  string
	count int
}

// Observe records a query fingerprint and reports whether the guard
// trips: true once the same fingerprint arrives RepeatThreshold times
// in a row. A different fingerprint restarts the count.
func (g *RepeatGuard) Observe(fingerprint string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if fingerprint == g.last {
		g.count++
	} else {
		g.last = fingerprint
		g.count = 1
	}
	return g.count >= RepeatThreshold
}

// Reset clears the guard's history.
func (g *RepeatGuard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last = ""
	g.count = 0
}
