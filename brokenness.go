// SPDX-License-Identifier: GPL-3.0-or-later

package streamfactory

import "time"

// BrokenStatus is the brokenness state of an alternative service,
// per (alt_service, network_anonymization_key), per the data model.
type BrokenStatus int

const (
	// Working means the alternative is usable.
	Working BrokenStatus = iota

	// BrokenUntilDefaultNetworkChanges is a softer brokenness state that
	// clears automatically on the next default-network-change signal.
	BrokenUntilDefaultNetworkChanges

	// Broken excludes the alternative until an exponential backoff
	// elapses.
	Broken
)

// brokenRecord is one entry of the Registry's brokenness mapping.
type brokenRecord struct {
	status BrokenStatus

	// retryAt is the time at which a Broken record stops forbidding use.
	// Meaningless when status != Broken.
	retryAt time.Time

	// delay is the current exponential backoff delay; it only ever
	// grows (until capped), even across explicit clears of the softer
	// BrokenUntilDefaultNetworkChanges state.
	delay time.Duration
}

// nextBackoff computes the next exponential backoff delay given the
// previous delay, using integer nanosecond (time.Duration) arithmetic
// with saturation on overflow, never wraparound. A zero previous delay
// starts the sequence at initial.
func nextBackoff(previous, initial, delayCap time.Duration) time.Duration {
	if previous <= 0 {
		return clampDuration(initial, delayCap)
	}
	const multiplier = 2
	doubled := previous * multiplier
	if doubled < previous {
		// Overflow: saturate at the cap rather than wrap negative.
		return delayCap
	}
	return clampDuration(doubled, delayCap)
}

func clampDuration(d, delayCap time.Duration) time.Duration {
	if delayCap > 0 && d > delayCap {
		return delayCap
	}
	return d
}
