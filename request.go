// SPDX-License-Identifier: GPL-3.0-or-later

package streamfactory

import "sync"

// Request is Component D: the caller's handle, isolating caller
// lifetime from Job lifetime. It forwards priority changes and
// completion signals to its owning [Controller] through the
// [RequestHelper] capability, per §4.D.
//
// A Request is obtained from [Controller.Start] (via [Factory]); the
// zero value is not usable.
type Request struct {
	helper RequestHelper

	mu         sync.Mutex
	streamKind StreamKind
	priority   Priority
	released   bool
}

func newRequest(helper RequestHelper, streamKind StreamKind, priority Priority) *Request {
	return &Request{helper: helper, streamKind: streamKind, priority: priority}
}

// StreamKind returns the kind of stream originally requested.
func (r *Request) StreamKind() StreamKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.streamKind
}

// Priority returns the Request's current priority.
func (r *Request) Priority() Priority {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.priority
}

// SetPriority changes the Request's priority, fanned out to every live
// Job by the controller.
func (r *Request) SetPriority(p Priority) {
	r.mu.Lock()
	r.priority = p
	released := r.released
	r.mu.Unlock()
	if !released {
		r.helper.SetPriority(p)
	}
}

// RestartTunnelWithProxyAuth forwards caller-supplied proxy credentials
// to the bound Job's parked tunnel-auth state. Equivalent to calling
// [AuthController.RestartWithProxyAuth] directly; exposed here for
// callers that only hold the Request handle.
func (r *Request) RestartTunnelWithProxyAuth() {
	r.mu.Lock()
	released := r.released
	r.mu.Unlock()
	if !released {
		r.helper.RestartTunnelWithProxyAuth()
	}
}

// LoadState returns the load state of the controller's current dominant
// Job: bound Job if present, else Main, else Alt, else DNS-ALPN-H3.
func (r *Request) LoadState() JobState {
	return r.helper.LoadState()
}

// Release notifies the controller that the caller dropped or cancelled
// this Request. Safe to call multiple times; only the first call has an
// effect, per the "no callback after terminal" invariant (§8 invariant 2).
func (r *Request) Release() {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return
	}
	r.released = true
	r.mu.Unlock()
	r.helper.OnRequestComplete()
}
