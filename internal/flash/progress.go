package flash

import (
	"fmt"
	"strings"
)

// Estimator turns marker counts into a percentage. The mapping is a guess
// at esptool's real progress, so every knob is configurable.
type Estimator struct {
	Marker  string
	Base    int
	Scale   float64
	Ceiling int
}

// DefaultEstimator counts esptool's "Writing at" lines.
func DefaultEstimator() Estimator {
	return Estimator{
		Marker:  "Writing at",
		Base:    30,
		Scale:   1.5,
		Ceiling: 95,
	}
}

// Percent returns base + scale*writes, capped at the ceiling.
func (e Estimator) Percent(writes int) int {
	p := e.Base + int(e.Scale*float64(writes))
	if p > e.Ceiling {
		p = e.Ceiling
	}
	return p
}

// Validate checks that the estimator can never claim completion.
func (e Estimator) Validate() error {
	if e.Marker == "" {
		return fmt.Errorf("progress marker must not be empty")
	}
	if e.Scale <= 0 {
		return fmt.Errorf("progress scale must be > 0, got %g", e.Scale)
	}
	if e.Ceiling >= 100 || e.Ceiling <= e.Base {
		return fmt.Errorf("progress ceiling must be in (%d,100), got %d", e.Base, e.Ceiling)
	}
	return nil
}

// outputLog is the combined stdout/stderr buffer of one session.
// Not safe for concurrent use; the orchestrator serialises access.
type outputLog struct {
	marker string
	lines  []string
	writes int
}

// add appends line and reports whether it carried the marker.
func (l *outputLog) add(line string) bool {
	l.lines = append(l.lines, line)
	n := strings.Count(line, l.marker)
	l.writes += n
	return n > 0
}

// tail returns the last n lines.
func (l *outputLog) tail(n int) []string {
	if n <= 0 || len(l.lines) == 0 {
		return nil
	}
	if n > len(l.lines) {
		n = len(l.lines)
	}
	return append([]string(nil), l.lines[len(l.lines)-n:]...)
}
