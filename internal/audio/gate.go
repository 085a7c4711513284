package audio

import "time"

// SilenceGate declares end-of-speech after loudness stays below a threshold
// for a sustained duration. It only tracks state; the capture loop decides
// what to do when the gate expires.
type SilenceGate struct {
	threshold  float64
	duration   time.Duration
	quietSince time.Time
}

func NewSilenceGate(threshold float64, duration time.Duration) *SilenceGate {
	return &SilenceGate{threshold: threshold, duration: duration}
}

// Observe feeds one loudness sample. Quiet chunks start the timer, loud
// chunks clear it.
func (g *SilenceGate) Observe(loudness float64, now time.Time) {
	if loudness < g.threshold {
		if g.quietSince.IsZero() {
			g.quietSince = now
		}
		return
	}
	g.quietSince = time.Time{}
}

// Expired reports whether the quiet period has lasted long enough.
func (g *SilenceGate) Expired(now time.Time) bool {
	if g.quietSince.IsZero() {
		return false
	}
	return now.Sub(g.quietSince) >= g.duration
}

func (g *SilenceGate) Reset() {
	g.quietSince = time.Time{}
}
