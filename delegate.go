// SPDX-License-Identifier: GPL-3.0-or-later

package streamfactory

// RequestDelegate is the caller's callback interface (exposed by
// [Request] to its owner), per §6 and §4.D. It replaces the source's
// multiple-inherited `Request::Delegate` with a single capability
// trait: implement it independently of [JobDelegate].
//
// Invariant: after the first terminal callback (OnStreamReady family or
// OnStreamFailed) the Request ignores further state changes and issues
// no further calls, except that OnQUICBroken may precede the terminal
// call.
type RequestDelegate interface {
	// OnStreamReady delivers a plain HTTP stream.
	OnStreamReady(proxy ProxyInfo, protocol Protocol, conn ConnectionHandle)

	// OnBidirectionalStreamReady delivers a bidirectional stream.
	OnBidirectionalStreamReady(proxy ProxyInfo, protocol Protocol, conn ConnectionHandle)

	// OnWebSocketHandshakeStreamReady delivers a stream for a WebSocket
	// handshake.
	OnWebSocketHandshakeStreamReady(proxy ProxyInfo, protocol Protocol, conn ConnectionHandle)

	// OnStreamFailed is the terminal failure callback.
	OnStreamFailed(err error, proxy ProxyInfo)

	// OnCertificateError surfaces a certificate error verbatim for the
	// caller to decide (accept/reject). The Job that hit the error ends;
	// it does not park and cannot be resumed.
	OnCertificateError(err error)

	// OnNeedsProxyAuth surfaces an HTTP proxy authentication challenge;
	// the caller responds through authCtl.
	OnNeedsProxyAuth(proxy ProxyInfo, authCtl *AuthController)

	// OnNeedsClientAuth surfaces a TLS client-certificate request.
	OnNeedsClientAuth()

	// OnHTTPSProxyTunnelResponse surfaces the raw CONNECT response from
	// an HTTPS proxy tunnel.
	OnHTTPSProxyTunnelResponse(conn ConnectionHandle)

	// OnQUICBroken notifies the caller that a QUIC alternative was
	// marked broken; may precede the terminal callback.
	OnQUICBroken()
}

// JobDelegate is the Controller-facing capability a [Job] reports its
// state-machine transitions through, per §4.B and §5's goroutine
// translation: every method acquires the Controller's mutex and must be
// safe to call from the Job's own goroutine.
type JobDelegate interface {
	// OnJobStream is called when a Job produced a ready stream.
	OnJobStream(j *Job, conn ConnectionHandle)

	// OnJobFailed is called when a Job reached Done with a final error.
	OnJobFailed(j *Job, err error)

	// OnJobCertificateError routes a certificate error for user
	// intervention.
	OnJobCertificateError(j *Job, err error)

	// OnJobNeedsProxyAuth routes a proxy-auth challenge for user
	// intervention.
	OnJobNeedsProxyAuth(j *Job, proxy ProxyInfo, authCtl *AuthController)

	// OnJobNeedsClientAuth routes a client-auth request for user
	// intervention.
	OnJobNeedsClientAuth(j *Job)

	// OnJobHTTPSProxyTunnelResponse routes a raw tunnel response for
	// user intervention.
	OnJobHTTPSProxyTunnelResponse(j *Job, conn ConnectionHandle)

	// OnJobPreconnectComplete is called when a preconnect-only Job
	// finished warming sockets.
	OnJobPreconnectComplete(j *Job, err error)

	// OnJobReachedInitConnection is called when a non-main Job reaches
	// InitConnection, so the controller may schedule a bounded unblock
	// of a blocked main Job (§4.C.3).
	OnJobReachedInitConnection(j *Job)
}

// RequestHelper is a narrow capability a [Request] needs from its
// owning [Controller] beyond [JobDelegate]/[RequestDelegate]: the
// operations a caller invokes on the handle itself.
type RequestHelper interface {
	// SetPriority propagates a priority change to every live Job.
	SetPriority(p Priority)

	// RestartTunnelWithProxyAuth forwards caller-provided credentials to
	// the bound Job's parked tunnel-auth state.
	RestartTunnelWithProxyAuth()

	// OnRequestComplete notifies the controller that the Request handle
	// was released (completed or dropped/cancelled).
	OnRequestComplete()

	// LoadState returns the load state of the controller's current
	// dominant Job: bound Job if present, else Main, else Alt, else
	// DNS-ALPN-H3.
	LoadState() JobState
}

// AuthController is handed to [RequestDelegate.OnNeedsProxyAuth] so the
// caller can resume a Job parked in WaitingUserAction after supplying
// proxy credentials. The zero value is not usable; obtain one from the
// callback.
type AuthController struct {
	job *Job
}

// RestartWithProxyAuth resumes the parked Job's tunnel authentication
// detour (WaitingUserAction → RestartTunnelAuth → ... → InitConnection).
func (a *AuthController) RestartWithProxyAuth() {
	if a == nil || a.job == nil {
		return
	}
	a.job.restartTunnelWithProxyAuth()
}
