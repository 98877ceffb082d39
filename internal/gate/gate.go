// Package gate provides the process-wide recording switch consulted by
// collectors before they build any capture event.
package gate

import (
	"sync"
	"sync/atomic"
)

// Gate is a nestable on/off switch for recording. Disable calls nest:
// recording resumes only when every Disable has been matched by an Enable.
//
// The counter is a single atomic; Enabled is one atomic load, cheap enough
// that a collector can consult it on every event and skip all event
// construction while recording is off.
type Gate struct {
	disabled atomic.Int64
}

// New creates a gate with recording enabled.
func New() *Gate {
	return &Gate{}
}

// Default is the process-wide gate.
var Default = New()

// Enabled reports whether recording is currently on.
func (g *Gate) Enabled() bool {
	return g.disabled.Load() == 0
}

// Disable turns recording off, nesting with previous Disable calls.
func (g *Gate) Disable() {
	g.disabled.Add(1)
}

// Enable undoes one Disable. Recording resumes once the counts match.
// An unmatched Enable is a no-op; the counter never goes negative.
func (g *Gate) Enable() {
	for {
		n := g.disabled.Load()
		if n == 0 {
			return
		}
		if g.disabled.CompareAndSwap(n, n-1) {
			return
		}
	}
}

// Pause disables recording and returns a resume function that re-enables it
// exactly once, no matter how many times it runs or on which exit path.
//
//	resume := gate.Pause()
//	defer resume()
func (g *Gate) Pause() func() {
	g.Disable()
	var once sync.Once
	return func() {
		once.Do(g.Enable)
	}
}
