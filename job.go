// SPDX-License-Identifier: GPL-3.0-or-later

package streamfactory

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bassosimone/runtimex"
)

// JobState is the Job state machine, per §3/§4.B:
//
//	Start → Wait → WaitComplete → InitConnection → InitConnectionComplete →
//	CreateStream → CreateStreamComplete → Done
//
// with the proxy-tunnel-authentication detour
//
//	WaitingUserAction → RestartTunnelAuth → RestartTunnelAuthComplete
type JobState int

const (
	JobStateStart JobState = iota
	JobStateWait
	JobStateWaitComplete
	JobStateInitConnection
	JobStateInitConnectionComplete
	JobStateCreateStream
	JobStateCreateStreamComplete
	JobStateWaitingUserAction
	JobStateRestartTunnelAuth
	JobStateRestartTunnelAuthComplete
	JobStateDone
)

// String implements [fmt.Stringer].
func (s JobState) String() string {
	switch s {
	case JobStateWait:
		return "wait"
	case JobStateWaitComplete:
		return "wait-complete"
	case JobStateInitConnection:
		return "init-connection"
	case JobStateInitConnectionComplete:
		return "init-connection-complete"
	case JobStateCreateStream:
		return "create-stream"
	case JobStateCreateStreamComplete:
		return "create-stream-complete"
	case JobStateWaitingUserAction:
		return "waiting-user-action"
	case JobStateRestartTunnelAuth:
		return "restart-tunnel-auth"
	case JobStateRestartTunnelAuthComplete:
		return "restart-tunnel-auth-complete"
	case JobStateDone:
		return "done"
	default:
		return "start"
	}
}

// Job is Component B: one attempted path to a transport for one origin,
// through one proxy configuration, with one expected protocol
// constraint. Construct using [NewJob].
//
// Per §5's Go translation, a Job runs its state machine on its own
// goroutine (started by [Job.Start] or [Job.Preconnect]) and reports
// results to its [JobDelegate] (the owning [Controller]), which
// synchronizes access to its own state with a mutex. Job's own mutable
// fields (state, orphaned, priority) are guarded by Job's own mutex so
// that SetPriority/Orphan/Cancel may be called concurrently from the
// Controller's goroutine.
type Job struct {
	id       string
	jobType  JobType
	origin   Origin
	endpoint Endpoint
	proxy    ProxyInfo
	alt      *AlternativeService
	nak      NetworkAnonymizationKey
	tlsConf  *tls.Config

	pool     ConnectionPool
	delegate JobDelegate
	cfg      *Config

	ctx    context.Context
	cancel context.CancelFunc
	parkCh chan struct{}
	done   chan struct{}

	mu         sync.Mutex
	state      JobState
	orphaned   bool
	priority   Priority
	flags      JobFlags
	streamKind StreamKind

	negotiatedProtocol  Protocol
	wasAlpnNegotiated   bool
	usingSpdy           bool
	streamHandle        ConnectionHandle
	streamReleased      bool
	err                 error
	failedOnDefaultNet  atomic.Bool
	succeededOnDefNet   atomic.Bool
}

// NewJob constructs a [*Job]. The caller must call [Job.Start] or
// [Job.Preconnect] exactly once to begin the state machine.
func NewJob(
	cfg *Config,
	pool ConnectionPool,
	delegate JobDelegate,
	jobType JobType,
	origin Origin,
	endpoint Endpoint,
	proxy ProxyInfo,
	tlsConf *tls.Config,
	alt *AlternativeService,
	nak NetworkAnonymizationKey,
	priority Priority,
	flags JobFlags,
) *Job {
	runtimex.Assert(cfg != nil)
	runtimex.Assert(pool != nil)
	runtimex.Assert(delegate != nil)

	ctx, cancel := context.WithCancel(context.Background())
	j := &Job{
		id:       NewSpanID(),
		jobType:  jobType,
		origin:   origin,
		endpoint: endpoint,
		proxy:    proxy,
		alt:      alt,
		nak:      nak,
		tlsConf:  tlsConf,
		pool:     pool,
		delegate: delegate,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		parkCh:   make(chan struct{}, 1),
		done:     make(chan struct{}),
		priority: priority,
		flags:    flags,
	}
	return j
}

// ID returns the Job's span identifier.
func (j *Job) ID() string { return j.id }

// Type returns the Job's type.
func (j *Job) Type() JobType { return j.jobType }

// Origin returns the Job's target origin.
func (j *Job) Origin() Origin { return j.origin }

// Proxy returns the proxy configuration this Job attempts through.
func (j *Job) Proxy() ProxyInfo { return j.proxy }

// StreamKind returns the stream kind this Job was started for.
func (j *Job) StreamKind() StreamKind {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.streamKind
}

// State returns the Job's current state.
func (j *Job) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

func (j *Job) setState(s JobState) {
	j.mu.Lock()
	j.state = s
	j.mu.Unlock()
	j.logEvent("jobStateChange", slog.String("state", s.String()))
}

func (j *Job) logEvent(msg string, attrs ...slog.Attr) {
	args := make([]any, 0, len(attrs)+2)
	args = append(args, slog.String("jobSpanId", j.id), slog.String("jobType", j.jobType.String()))
	for _, a := range attrs {
		args = append(args, a)
	}
	j.cfg.Logger.Info(msg, args...)
}

// IsOrphaned reports whether the controller orphaned this Job.
func (j *Job) IsOrphaned() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.orphaned
}

// Orphan marks the Job as orphaned: it continues running to completion
// for reporting purposes, but its eventual result will be discarded by
// the delegate. Orphaning a Main Job is forbidden.
func (j *Job) Orphan() {
	runtimex.Assert(j.jobType != JobMain)
	j.mu.Lock()
	j.orphaned = true
	j.mu.Unlock()
}

// SetPriority updates the Job's priority. Accepted at any state.
func (j *Job) SetPriority(p Priority) {
	j.mu.Lock()
	j.priority = p
	j.mu.Unlock()
}

func (j *Job) currentPriority() Priority {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.priority
}

// FailedOnDefaultNetwork reports whether this Job's final failure (if
// any) was observed on the default network, for brokenness-reporting
// purposes (§4.C.5).
func (j *Job) FailedOnDefaultNetwork() bool { return j.failedOnDefaultNet.Load() }

// SucceededOnDefaultNetwork reports whether this Job's stream was
// produced on the default network.
func (j *Job) SucceededOnDefaultNetwork() bool { return j.succeededOnDefNet.Load() }

// Cancel stops the Job; implicit on drop in the source, explicit here.
// Any in-flight suspension point observes ctx cancellation at its next
// check.
func (j *Job) Cancel() {
	j.cancel()
}

// Done returns a channel closed when the Job reaches the Done state.
func (j *Job) Done() <-chan struct{} { return j.done }

// Err returns the Job's final error, if any; valid only after Done is
// closed.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// ReleaseStream transfers the produced stream to the caller. It may be
// called only once; subsequent calls return an error.
func (j *Job) ReleaseStream() (ConnectionHandle, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.streamHandle == nil {
		return nil, errors.New("streamfactory: job has no stream to release")
	}
	if j.streamReleased {
		return nil, errors.New("streamfactory: job stream already released")
	}
	j.streamReleased = true
	return j.streamHandle, nil
}

// NegotiatedProtocol returns the protocol negotiated on success.
func (j *Job) NegotiatedProtocol() Protocol {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.negotiatedProtocol
}

// Start begins the state machine for a Job that will yield a bound
// stream. wait, when true, parks the Job in Wait until [Job.Resume] is
// called (used for a main Job blocked by [MainJobGate]).
func (j *Job) Start(streamKind StreamKind, wait bool) {
	j.mu.Lock()
	j.streamKind = streamKind
	j.mu.Unlock()
	go j.run(wait)
}

// Preconnect begins a preconnect-only state machine for n streams; it
// never yields a bound stream.
func (j *Job) Preconnect(n int) {
	go j.runPreconnect(n)
}

// Resume signals a Job parked in Wait (main-job unblock) or
// WaitingUserAction (tunnel-auth resume) to proceed.
func (j *Job) Resume() {
	select {
	case j.parkCh <- struct{}{}:
	default:
	}
}

// restartTunnelWithProxyAuth is the [AuthController] entry point; it is
// equivalent to [Job.Resume] but named for clarity at the call site.
func (j *Job) restartTunnelWithProxyAuth() {
	j.Resume()
}

func (j *Job) run(wait bool) {
	defer close(j.done)

	if wait {
		j.setState(JobStateWait)
		if !j.park() {
			return
		}
		j.setState(JobStateWaitComplete)
	}

	for {
		j.setState(JobStateInitConnection)
		if j.jobType == JobAlternative || j.jobType == JobDnsAlpnH3 {
			j.delegate.OnJobReachedInitConnection(j)
		}

		handle, err := j.pool.InitConnection(j.ctx, j.endpoint, j.tlsConf, j.proxy, j.currentPriority(), j.flags)
		j.setState(JobStateInitConnectionComplete)

		if err != nil {
			if parkAndRetry, terminal := j.routeUserActionable(err); terminal {
				j.finishSilently(err)
				return
			} else if parkAndRetry {
				j.setState(JobStateWaitingUserAction)
				if !j.park() {
					return
				}
				j.setState(JobStateRestartTunnelAuth)
				j.setState(JobStateRestartTunnelAuthComplete)
				continue
			}
			j.finishError(err)
			return
		}

		if j.jobType.IsPreconnect() {
			j.setState(JobStateDone)
			j.delegate.OnJobPreconnectComplete(j, nil)
			return
		}

		protocol := handle.Protocol()
		if mismatch := j.checkProtocolMismatch(protocol); mismatch != nil {
			j.finishError(mismatch)
			return
		}

		j.setState(JobStateCreateStream)
		j.mu.Lock()
		j.negotiatedProtocol = protocol
		j.wasAlpnNegotiated = protocol.Kind != ProtocolUnknown
		j.usingSpdy = protocol.Kind == ProtocolHTTP2
		j.streamHandle = handle
		j.mu.Unlock()
		j.setState(JobStateCreateStreamComplete)

		j.succeededOnDefNet.Store(!j.cfg.IgnoreIPAddressChanges)
		j.setState(JobStateDone)
		j.delegate.OnJobStream(j, handle)
		return
	}
}

func (j *Job) runPreconnect(n int) {
	defer close(j.done)
	j.setState(JobStateInitConnection)
	err := j.pool.PreconnectSockets(j.ctx, SessionKey{Origin: j.origin, NAK: j.nak}, n, j.currentPriority())
	j.setState(JobStateInitConnectionComplete)
	j.setState(JobStateDone)
	if err != nil {
		j.mu.Lock()
		j.err = err
		j.mu.Unlock()
	}
	j.delegate.OnJobPreconnectComplete(j, err)
}

// park blocks until Resume is called or the Job's context is
// cancelled. It returns false (and finishes the Job) on cancellation.
func (j *Job) park() bool {
	select {
	case <-j.parkCh:
		return true
	case <-j.ctx.Done():
		j.finishError(j.ctx.Err())
		return false
	}
}

// checkProtocolMismatch enforces that an Alternative Job's socket
// negotiated the protocol it advertised; a Main Job accepts anything.
func (j *Job) checkProtocolMismatch(negotiated Protocol) error {
	if j.jobType != JobAlternative || j.alt == nil {
		return nil
	}
	if negotiated.Kind != j.alt.Protocol.Kind {
		return ErrAlternativeProtocolMismatch
	}
	return nil
}

// routeUserActionable classifies err against the four user-actionable
// kinds (§4.B). parkAndRetry is true only for a proxy-auth challenge,
// which the state machine models as an explicit WaitingUserAction
// detour. terminal is true for the other three: they are forwarded to
// the delegate for user intervention, but this Job's attempt still
// ends (a fresh attempt, if any, is a new Job/Request — routing a
// brand-new client certificate or CA decision back into this exact
// connection attempt is outside the core, §1 Non-goals).
func (j *Job) routeUserActionable(err error) (parkAndRetry, terminal bool) {
	var certErr *CertificateError
	if errors.As(err, &certErr) {
		j.delegate.OnJobCertificateError(j, err)
		return false, true
	}
	var clientAuthErr *ClientAuthRequiredError
	if errors.As(err, &clientAuthErr) {
		j.delegate.OnJobNeedsClientAuth(j)
		return false, true
	}
	var tunnelErr *HTTPSProxyTunnelResponseError
	if errors.As(err, &tunnelErr) {
		j.delegate.OnJobHTTPSProxyTunnelResponse(j, tunnelErr.Conn)
		return false, true
	}
	var proxyAuthErr *ProxyAuthRequiredError
	if errors.As(err, &proxyAuthErr) {
		j.delegate.OnJobNeedsProxyAuth(j, proxyAuthErr.Proxy, &AuthController{job: j})
		return true, false
	}
	return false, false
}

// finishError records err as the Job's final result and notifies the
// delegate via OnJobFailed.
func (j *Job) finishError(err error) {
	j.mu.Lock()
	j.err = err
	j.mu.Unlock()
	j.failedOnDefaultNet.Store(!errors.Is(err, ErrNetworkChanged) && !j.cfg.IgnoreIPAddressChanges)
	j.setState(JobStateDone)
	j.delegate.OnJobFailed(j, err)
}

// finishSilently records err without calling OnJobFailed: a specific
// user-actionable delegate method already informed the controller.
func (j *Job) finishSilently(err error) {
	j.mu.Lock()
	j.err = err
	j.mu.Unlock()
	j.setState(JobStateDone)
}
