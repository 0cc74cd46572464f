// SPDX-License-Identifier: GPL-3.0-or-later

package streamfactory

import "time"

// MainJobGateState is one of `Open | Blocked | Pending(deadline)`, per
// the Design Notes: a single three-state type replacing the source's
// `main_job_is_blocked`/`main_job_is_resumed` flag pair, making illegal
// combinations (e.g. "blocked and resumed") unrepresentable.
type MainJobGateState int

const (
	// GateOpen means the main Job may proceed to InitConnection freely.
	GateOpen MainJobGateState = iota

	// GateBlocked means the main Job must park in Wait indefinitely,
	// until the gate transitions to GatePending or GateOpen.
	GateBlocked

	// GatePending means an alternative Job reached InitConnection and a
	// delayed unblock has been scheduled; the main Job still parks in
	// Wait until Deadline, unless the gate opens earlier.
	GatePending
)

// MainJobGate tracks whether the main Job is allowed to proceed past
// Wait, per §4.C.3.
type MainJobGate struct {
	state    MainJobGateState
	deadline time.Time
}

// OpenGate returns a gate in the [GateOpen] state.
func OpenGate() MainJobGate {
	return MainJobGate{state: GateOpen}
}

// BlockedGate returns a gate in the [GateBlocked] state.
func BlockedGate() MainJobGate {
	return MainJobGate{state: GateBlocked}
}

// State returns the gate's current state.
func (g MainJobGate) State() MainJobGateState {
	return g.state
}

// Deadline returns the time at which a [GatePending] gate opens. The
// zero value is meaningless for any other state.
func (g MainJobGate) Deadline() time.Time {
	return g.deadline
}

// Open transitions the gate to [GateOpen].
func (g *MainJobGate) Open() {
	g.state = GateOpen
	g.deadline = time.Time{}
}

// SchedulePending transitions a [GateBlocked] gate to [GatePending] with
// the given deadline, bounded by [Config.MainJobMaxDelay] by the caller.
// It is a no-op if the gate is already [GateOpen].
func (g *MainJobGate) SchedulePending(deadline time.Time) {
	if g.state == GateOpen {
		return
	}
	g.state = GatePending
	g.deadline = deadline
}

// IsBlocking reports whether the main Job must remain parked in Wait.
func (g MainJobGate) IsBlocking() bool {
	return g.state != GateOpen
}
