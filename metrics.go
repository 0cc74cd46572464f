// SPDX-License-Identifier: GPL-3.0-or-later

package streamfactory

// Metrics is the counters collaborator factored out of the source's
// global histograms and module-level counters (per the Design Notes):
// the core emits events, the collaborator aggregates them however it
// likes (Prometheus, expvar, a test spy, ...).
//
// Every method must be safe for concurrent use, since Jobs report from
// their own goroutines.
type Metrics interface {
	// JobStarted is called when a Job of the given type begins.
	JobStarted(jobType JobType)

	// JobWon is called for the Job bound to a Request.
	JobWon(jobType JobType)

	// JobOrphaned is called when a Job is orphaned (not bound, but kept
	// running so it can still report).
	JobOrphaned(jobType JobType)

	// JobDropped is called when the controller cancels the Main Job
	// because a non-main Job won the race.
	JobDropped(jobType JobType)

	// BrokenReported is called each time the registry records a new
	// brokenness transition.
	BrokenReported()

	// ProxyFallback is called each time the controller advances to the
	// next proxy in the list after a proxy-reconsiderable failure.
	ProxyFallback()

	// PreconnectDedupHit is called when a preconnect is skipped because
	// an equivalent one is already in flight.
	PreconnectDedupHit()
}

// DefaultMetrics returns a no-op [Metrics] implementation.
func DefaultMetrics() Metrics {
	return discardMetrics{}
}

type discardMetrics struct{}

var _ Metrics = discardMetrics{}

func (discardMetrics) JobStarted(JobType)    {}
func (discardMetrics) JobWon(JobType)        {}
func (discardMetrics) JobOrphaned(JobType)   {}
func (discardMetrics) JobDropped(JobType)    {}
func (discardMetrics) BrokenReported()       {}
func (discardMetrics) ProxyFallback()        {}
func (discardMetrics) PreconnectDedupHit()   {}
