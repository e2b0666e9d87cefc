// Package rtt implements the min-RTT / EWMA-RTT estimator driven by ACK
// round-trip samples (spec.md §4.5).
package rtt

// Alpha is the EWMA smoothing factor for RTT samples.
const Alpha = 0.2

// Estimator tracks min and EWMA round-trip-time, in microseconds. The
// zero value is a valid, unset estimator (spec.md §4.5: "both are unset
// until a first ACK arrives").
type Estimator struct {
	minUS  uint64
	ewmaUS float64
	set    bool
}

// AddSample feeds one RTT observation, in microseconds, updating both the
// min and the EWMA. The first sample initializes both.
func (e *Estimator) AddSample(sampleUS uint64) {
	if !e.set {
		e.minUS = sampleUS
		e.ewmaUS = float64(sampleUS)
		e.set = true
		return
	}
	if sampleUS < e.minUS {
		e.minUS = sampleUS
	}
	e.ewmaUS = Alpha*float64(sampleUS) + (1-Alpha)*e.ewmaUS
}

// MinUS returns the minimum observed RTT sample and whether any sample has
// been observed yet.
func (e *Estimator) MinUS() (uint64, bool) { return e.minUS, e.set }

// EWMAUS returns the current EWMA RTT estimate and whether it is set.
func (e *Estimator) EWMAUS() (float64, bool) { return e.ewmaUS, e.set }

// Set reports whether at least one sample has been fed to the estimator.
func (e *Estimator) Set() bool { return e.set }
