package timing

import (
	"math"
	"time"
)

// Tracker accumulates wall-clock duration per named phase, in milliseconds.
// It is not safe for concurrent use; each request owns its own tracker.
type Tracker struct {
	timings map[string]float64
}

func New() *Tracker {
	return &Tracker{timings: make(map[string]float64)}
}

// Phase starts measuring a phase and returns a stop function, intended for
// defer:
//
//	defer t.Phase("intent_ms")()
func (t *Tracker) Phase(name string) func() {
	start := time.Now()
	return func() {
		t.Add(name, elapsedMS(start))
	}
}

// Add accumulates a duration into a phase. Repeated phases sum up.
func (t *Tracker) Add(name string, ms float64) {
	t.timings[name] += ms
}

// Merge folds another timing map into this tracker.
func (t *Tracker) Merge(other map[string]float64) {
	for name, ms := range other {
		t.timings[name] += ms
	}
}

// Timings returns the accumulated map. The tracker retains ownership.
func (t *Tracker) Timings() map[string]float64 {
	return t.timings
}

func elapsedMS(start time.Time) float64 {
	return math.Round(float64(time.Since(start).Microseconds())/10) / 100
}
