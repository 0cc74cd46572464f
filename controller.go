// SPDX-License-Identifier: GPL-3.0-or-later

package streamfactory

import (
	"context"
	"crypto/tls"
	"errors"
	"net/url"
	"sync"

	"github.com/bassosimone/runtimex"
)

// Controller is Component C: for one Request, it plans and races the
// Jobs, arbitrates their results, binds the winner, and reports
// brokenness, per §4.C.
//
// Per §5's Go translation, Controller owns a [sync.Mutex] guarding its
// own fields (job slots, gate, bound job); each Job reports results
// back through the [JobDelegate] methods below, which acquire this
// mutex before touching controller state.
type Controller struct {
	cfg      *Config
	pool     ConnectionPool
	registry *Registry
	resolver ProxyResolver

	method  string
	url     *url.URL
	origin  Origin
	nak     NetworkAnonymizationKey
	tlsConf *tls.Config

	onComplete func(*Controller)

	ctx    context.Context
	cancel context.CancelFunc

	mu sync.Mutex

	flags      JobFlags
	priority   Priority
	streamKind StreamKind
	delegate   RequestDelegate

	proxies       ProxyInfoList
	proxyIdx      int
	presetProxies ProxyInfoList

	mainJob    *Job
	altJob     *Job
	dnsAlpnJob *Job
	altInfo    *AlternativeService

	boundJob      *Job
	gate          MainJobGate
	unblockCancel context.CancelFunc

	generation      int
	pendingJobs     int
	terminalSent    bool
	requestReleased bool
	brokennessDone  bool
	factoryNotified bool
}

// NewController constructs a [*Controller] for one request/origin pair.
// onComplete is called exactly once, after every created Job has
// terminated and the Request has been released, per data-model
// invariant 4.
func NewController(
	cfg *Config,
	pool ConnectionPool,
	registry *Registry,
	resolver ProxyResolver,
	method string,
	u *url.URL,
	origin Origin,
	nak NetworkAnonymizationKey,
	tlsConf *tls.Config,
	flags JobFlags,
	onComplete func(*Controller),
) *Controller {
	runtimex.Assert(cfg != nil)
	runtimex.Assert(pool != nil)
	runtimex.Assert(registry != nil)
	runtimex.Assert(resolver != nil)
	runtimex.Assert(onComplete != nil)

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		cfg:        cfg,
		pool:       pool,
		registry:   registry,
		resolver:   resolver,
		method:     method,
		url:        u,
		origin:     origin,
		nak:        nak,
		tlsConf:    tlsConf,
		flags:      flags,
		onComplete: onComplete,
		ctx:        ctx,
		cancel:     cancel,
		gate:       OpenGate(),
	}
}

// Start resolves the proxy list (may suspend), plans the Job set, and
// starts racing it, returning the caller's [*Request] handle.
func (c *Controller) Start(streamKind StreamKind, priority Priority, delegate RequestDelegate) *Request {
	c.mu.Lock()
	c.streamKind = streamKind
	c.priority = priority
	c.delegate = delegate
	c.mu.Unlock()

	req := newRequest(c, streamKind, priority)
	go c.run()
	return req
}

// Preconnect starts one preconnect-only Job: a DNS-ALPN-H3 preconnect
// when DNS-ALPN-H3 is eligible for the origin, an ordinary preconnect
// otherwise. No ordinary preconnect is started as a backup to the
// DNS-ALPN-H3 one.
func (c *Controller) Preconnect(n int, priority Priority) {
	c.mu.Lock()
	c.priority = priority
	c.mu.Unlock()
	go c.runPreconnect(n)
}

// setPresetProxies pins the proxy list a preconnect-only Controller
// uses, skipping its own proxy resolution: the Factory resolves once
// up front so it can apply preconnect deduplication before creating the
// Controller at all.
func (c *Controller) setPresetProxies(proxies ProxyInfoList) {
	c.mu.Lock()
	c.presetProxies = proxies
	c.mu.Unlock()
}

func (c *Controller) run() {
	proxies, err := c.resolver.Resolve(c.ctx, c.url, c.method, c.nak)
	if err != nil {
		c.surfaceFatal(err)
		return
	}
	c.mu.Lock()
	c.proxies = proxies
	c.proxyIdx = 0
	c.mu.Unlock()
	c.planAndStart()
}

func (c *Controller) runPreconnect(n int) {
	c.mu.Lock()
	preset := c.presetProxies
	c.mu.Unlock()

	proxies := preset
	if proxies == nil {
		resolved, err := c.resolver.Resolve(c.ctx, c.url, c.method, c.nak)
		if err != nil {
			c.mu.Lock()
			c.requestReleased = true
			c.mu.Unlock()
			c.finishPreconnect(err)
			return
		}
		proxies = resolved
	}

	c.mu.Lock()
	c.proxies = proxies
	c.proxyIdx = 0
	proxy := c.currentProxyLocked()
	eligible := c.dnsAlpnEligibleLocked(proxy)
	c.mu.Unlock()

	jobType := JobPreconnect
	if eligible {
		jobType = JobPreconnectDnsAlpnH3
	}
	j := c.newJobLocked(jobType, proxy, nil)
	c.mu.Lock()
	c.pendingJobs = 1
	// A preconnect has no caller-held Request to release it, so mark it
	// released up front: completion is driven entirely by pendingJobs
	// reaching zero.
	c.requestReleased = true
	gen := c.generation
	c.mu.Unlock()
	c.cfg.Metrics.JobStarted(jobType)
	go c.awaitJobDone(j, gen)
	j.Preconnect(n)
}

func (c *Controller) finishPreconnect(err error) {
	c.mu.Lock()
	c.terminalSent = true
	c.mu.Unlock()
	c.maybeNotifyFactory()
}

// currentProxyLocked returns the proxy configuration currently in use.
// Callers must hold c.mu.
func (c *Controller) currentProxyLocked() ProxyInfo {
	if c.proxyIdx < len(c.proxies) {
		return c.proxies[c.proxyIdx]
	}
	return ProxyInfo{Direct: true}
}

// dnsAlpnEligibleLocked decides DNS-ALPN-H3 eligibility per §4.C.1:
// HTTPS scheme, direct connection, QUIC enabled, origin allow-listed.
// Callers must hold c.mu.
func (c *Controller) dnsAlpnEligibleLocked(proxy ProxyInfo) bool {
	return c.origin.Scheme == "https" &&
		proxy.Direct &&
		c.cfg.EnableQUIC &&
		c.cfg.quicHostAllowed(c.origin.Host)
}

// pickAlternativeLocked applies §4.C.1's filters to the Registry's
// alternatives for the origin and returns the first survivor, if any.
// Callers must hold c.mu.
func (c *Controller) pickAlternativeLocked() *AlternativeService {
	candidates := c.registry.GetAlternatives(c.origin, c.nak)
	for i := range candidates {
		alt := candidates[i]
		if c.registry.IsBroken(alt, c.nak) {
			continue
		}
		if alt.Port < 1024 && !c.flags.AllowUserAlternateProtocolPorts && !c.cfg.EnableUserAlternateProtocolPorts {
			continue
		}
		switch alt.Protocol.Kind {
		case ProtocolHTTP2:
			if !c.cfg.EnableHTTP2 {
				continue
			}
		case ProtocolQUIC:
			if !c.cfg.EnableQUIC {
				continue
			}
		default:
			continue
		}
		return &alt
	}
	return nil
}

// planAndStart implements §4.C steps 1-3: choose the Job set, clear
// inappropriate Jobs, decide the main-job blocking policy, and start
// every created Job.
func (c *Controller) planAndStart() {
	c.mu.Lock()

	proxy := c.currentProxyLocked()
	c.altInfo = c.pickAlternativeLocked()
	dnsAlpnEligible := c.dnsAlpnEligibleLocked(proxy)

	var altEndpoint Endpoint
	createAlt := c.altInfo != nil
	if createAlt {
		host := c.altInfo.Host
		if host == "" {
			host = c.origin.Host
		}
		altEndpoint = Endpoint{Host: host, Port: c.altInfo.Port, Protocol: c.altInfo.Protocol}
	}

	var dnsAlpnEndpoint Endpoint
	if dnsAlpnEligible {
		versions := c.cfg.SupportedQUICVersions
		var version QUICVersion
		if len(versions) > 0 {
			version = versions[0]
		}
		dnsAlpnEndpoint = Endpoint{Host: c.origin.Host, Port: c.origin.Port, Protocol: Protocol{Kind: ProtocolQUIC, QUICVersion: version}}
	}

	// Clear inappropriate Jobs (§4.C.2): a cached QUIC session for the
	// DNS-ALPN-H3 destination makes Main and Alternative redundant; an
	// Alternative targeting the same destination as DNS-ALPN-H3 makes
	// the latter redundant.
	if dnsAlpnEligible {
		key := SessionKey{Origin: c.origin, NAK: c.nak}
		if _, ok := c.pool.AcquireQUICSession(key, c.cfg.SupportedQUICVersions); ok {
			createAlt = false
			dnsAlpnEligible = true
			c.mu.Unlock()
			c.startDnsAlpnOnly(dnsAlpnEndpoint, proxy)
			return
		}
	}
	if createAlt && dnsAlpnEligible && altEndpoint.Host == dnsAlpnEndpoint.Host && altEndpoint.Port == dnsAlpnEndpoint.Port && c.altInfo.Protocol.Kind == ProtocolQUIC {
		dnsAlpnEligible = false
	}

	// Blocking policy (§4.C.3): block Main unless no alternative/DNS-
	// ALPN-H3 Job exists, or a reusable session is already cached for
	// the main destination.
	mainKey := SessionKey{Origin: c.origin, NAK: c.nak}
	_, hasHTTP2Session := c.pool.AcquireHTTP2Session(mainKey)
	_, hasQUICSession := c.pool.AcquireQUICSession(mainKey, c.cfg.SupportedQUICVersions)
	hasSession := (hasHTTP2Session && !c.cfg.DelayMainJobWithAvailableSpdySession) || hasQUICSession
	shouldBlock := (createAlt || dnsAlpnEligible) && !hasSession

	if shouldBlock {
		c.gate = BlockedGate()
	} else {
		c.gate = OpenGate()
	}

	mainEndpoint := Endpoint{Host: c.origin.Host, Port: c.origin.Port}
	c.mainJob = c.newJobLockedNoMu(JobMain, mainEndpoint, proxy, nil)
	c.pendingJobs = 1
	wait := c.gate.IsBlocking()

	var altJob, dnsAlpnJob *Job
	if createAlt {
		altJob = c.newJobLockedNoMu(JobAlternative, altEndpoint, proxy, c.altInfo)
		c.altJob = altJob
		c.pendingJobs++
	}
	if dnsAlpnEligible {
		dnsAlpnJob = c.newJobLockedNoMu(JobDnsAlpnH3, dnsAlpnEndpoint, proxy, nil)
		c.dnsAlpnJob = dnsAlpnJob
		c.pendingJobs++
	}
	mainJob := c.mainJob
	gen := c.generation
	c.mu.Unlock()

	c.cfg.Metrics.JobStarted(JobMain)
	go c.awaitJobDone(mainJob, gen)
	mainJob.Start(c.streamKindSnapshot(), wait)

	if altJob != nil {
		c.cfg.Metrics.JobStarted(JobAlternative)
		go c.awaitJobDone(altJob, gen)
		altJob.Start(c.streamKindSnapshot(), false)
	}
	if dnsAlpnJob != nil {
		c.cfg.Metrics.JobStarted(JobDnsAlpnH3)
		go c.awaitJobDone(dnsAlpnJob, gen)
		dnsAlpnJob.Start(c.streamKindSnapshot(), false)
	}
}

// startDnsAlpnOnly handles the §4.C.2 case where a cached QUIC session
// for the DNS-ALPN-H3 destination makes Main and Alternative redundant.
func (c *Controller) startDnsAlpnOnly(ep Endpoint, proxy ProxyInfo) {
	c.mu.Lock()
	j := c.newJobLockedNoMu(JobDnsAlpnH3, ep, proxy, nil)
	c.dnsAlpnJob = j
	c.pendingJobs = 1
	c.gate = OpenGate()
	gen := c.generation
	c.mu.Unlock()

	c.cfg.Metrics.JobStarted(JobDnsAlpnH3)
	go c.awaitJobDone(j, gen)
	j.Start(c.streamKindSnapshot(), false)
}

func (c *Controller) streamKindSnapshot() StreamKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streamKind
}

// newJobLockedNoMu constructs a Job. Callers must already hold c.mu.
func (c *Controller) newJobLockedNoMu(jobType JobType, ep Endpoint, proxy ProxyInfo, alt *AlternativeService) *Job {
	return NewJob(c.cfg, c.pool, c, jobType, c.origin, ep, proxy, c.tlsConf, alt, c.nak, c.priority, c.flags)
}

// newJobLocked constructs a Job while acquiring c.mu itself.
func (c *Controller) newJobLocked(jobType JobType, proxy ProxyInfo, alt *AlternativeService) *Job {
	c.mu.Lock()
	ep := Endpoint{Host: c.origin.Host, Port: c.origin.Port}
	j := c.newJobLockedNoMu(jobType, ep, proxy, alt)
	c.mu.Unlock()
	return j
}

// awaitJobDone waits for j to finish and decrements the pending-Job
// count for the round it was started in. gen guards against a Job from
// a proxy-fallback round that has already been superseded (§4.C.6):
// once fallbackToNextProxy bumps c.generation, a stale round's
// completion no longer drives teardown.
func (c *Controller) awaitJobDone(j *Job, gen int) {
	<-j.Done()
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.pendingJobs--
	done := c.pendingJobs == 0
	c.mu.Unlock()
	if done {
		c.finalizeBrokenness()
		c.maybeNotifyFactory()
	}
}

// --- JobDelegate ---

var _ JobDelegate = (*Controller)(nil)

// OnJobReachedInitConnection schedules a bounded unblock of a blocked
// main Job, per §4.C.3.
func (c *Controller) OnJobReachedInitConnection(j *Job) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if j == c.mainJob || c.gate.State() != GateBlocked {
		return
	}
	deadline := c.cfg.TimeNow().Add(c.cfg.MainJobMaxDelay)
	c.gate.SchedulePending(deadline)

	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.MainJobMaxDelay)
	c.unblockCancel = cancel
	mainJob := c.mainJob
	context.AfterFunc(ctx, func() {
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return
		}
		c.mu.Lock()
		c.gate.Open()
		c.mu.Unlock()
		if mainJob != nil {
			mainJob.Resume()
		}
	})
}

// OnJobStream implements binding (§4.C.4): the first Job to produce a
// stream wins.
func (c *Controller) OnJobStream(j *Job, conn ConnectionHandle) {
	c.mu.Lock()
	if c.boundJob != nil || c.terminalSent {
		c.mu.Unlock()
		// A losing Job that raced in after binding already happened (or
		// after a proxy fallback reset the slots): nobody will ever call
		// ReleaseStream on it, so close its stream here instead of
		// leaking the connection.
		if stream := conn.Stream(); stream != nil {
			stream.Close()
		}
		return
	}
	c.boundJob = j
	c.terminalSent = true
	c.openGateLocked()

	main, alt, dnsAlpn := c.mainJob, c.altJob, c.dnsAlpnJob
	var toCancel []*Job
	switch j {
	case main:
		if alt != nil {
			alt.Orphan()
			c.cfg.Metrics.JobOrphaned(JobAlternative)
		}
		if dnsAlpn != nil {
			dnsAlpn.Orphan()
			c.cfg.Metrics.JobOrphaned(JobDnsAlpnH3)
		}
	case alt:
		if dnsAlpn != nil {
			dnsAlpn.Orphan()
			c.cfg.Metrics.JobOrphaned(JobDnsAlpnH3)
		}
		if main != nil && alt.SucceededOnDefaultNetwork() && dnsAlpn == nil {
			toCancel = append(toCancel, main)
			c.cfg.Metrics.JobDropped(JobMain)
		}
	case dnsAlpn:
		if alt != nil {
			alt.Orphan()
			c.cfg.Metrics.JobOrphaned(JobAlternative)
		}
		if main != nil && dnsAlpn.SucceededOnDefaultNetwork() && alt == nil {
			toCancel = append(toCancel, main)
			c.cfg.Metrics.JobDropped(JobMain)
		}
	}
	delegate := c.delegate
	streamKind := c.streamKind
	proxy := j.Proxy()
	protocol := j.NegotiatedProtocol()
	c.cfg.Metrics.JobWon(j.Type())
	c.mu.Unlock()

	for _, cj := range toCancel {
		cj.Cancel()
	}

	if delegate == nil {
		return
	}
	switch streamKind {
	case BidirectionalStream:
		delegate.OnBidirectionalStreamReady(proxy, protocol, conn)
	case WebSocketHandshake:
		delegate.OnWebSocketHandshakeStreamReady(proxy, protocol, conn)
	default:
		delegate.OnStreamReady(proxy, protocol, conn)
	}
}

// OnJobFailed implements failure escalation (§4.C.4/§7) and proxy
// fallback (§4.C.6).
func (c *Controller) OnJobFailed(j *Job, err error) {
	c.mu.Lock()

	if j == c.mainJob {
		c.mainJob = nil
	} else if j == c.altJob {
		c.altJob = nil
	} else if j == c.dnsAlpnJob {
		c.dnsAlpnJob = nil
	}
	stillLive := c.mainJob != nil || c.altJob != nil || c.dnsAlpnJob != nil
	bound := c.boundJob != nil

	var reconsiderable *ProxyReconsiderableError
	isReconsiderable := errors.As(err, &reconsiderable)

	if !bound && isReconsiderable && !stillLive {
		hasNext := c.proxyIdx+1 < len(c.proxies)
		c.mu.Unlock()
		if hasNext {
			c.fallbackToNextProxy()
			return
		}
		c.surfaceFatal(ErrNoFallbackProxy)
		return
	}

	if !bound && !stillLive && !c.terminalSent {
		c.terminalSent = true
		delegate := c.delegate
		proxy := j.Proxy()
		c.mu.Unlock()
		if delegate != nil {
			delegate.OnStreamFailed(err, proxy)
		}
		return
	}

	c.mu.Unlock()
}

func (c *Controller) fallbackToNextProxy() {
	c.mu.Lock()
	c.proxyIdx++
	c.mainJob, c.altJob, c.dnsAlpnJob = nil, nil, nil
	c.gate = OpenGate()
	c.generation++
	if c.unblockCancel != nil {
		c.unblockCancel()
		c.unblockCancel = nil
	}
	c.mu.Unlock()
	c.cfg.Metrics.ProxyFallback()
	c.planAndStart()
}

func (c *Controller) surfaceFatal(err error) {
	c.mu.Lock()
	if c.terminalSent {
		c.mu.Unlock()
		return
	}
	c.terminalSent = true
	delegate := c.delegate
	proxy := c.currentProxyLocked()
	c.mu.Unlock()
	if delegate != nil {
		delegate.OnStreamFailed(err, proxy)
	}
	c.maybeNotifyFactory()
}

// OnJobCertificateError routes a certificate error verbatim, per §4.B/§7.
func (c *Controller) OnJobCertificateError(j *Job, err error) {
	c.mu.Lock()
	delegate := c.delegate
	released := c.requestReleased
	c.mu.Unlock()
	if delegate != nil && !released {
		delegate.OnCertificateError(err)
	}
}

// OnJobNeedsProxyAuth routes a proxy-auth challenge verbatim.
func (c *Controller) OnJobNeedsProxyAuth(j *Job, proxy ProxyInfo, authCtl *AuthController) {
	c.mu.Lock()
	delegate := c.delegate
	released := c.requestReleased
	c.mu.Unlock()
	if delegate != nil && !released {
		delegate.OnNeedsProxyAuth(proxy, authCtl)
	}
}

// OnJobNeedsClientAuth routes a client-auth request verbatim.
func (c *Controller) OnJobNeedsClientAuth(j *Job) {
	c.mu.Lock()
	delegate := c.delegate
	released := c.requestReleased
	c.mu.Unlock()
	if delegate != nil && !released {
		delegate.OnNeedsClientAuth()
	}
}

// OnJobHTTPSProxyTunnelResponse routes a raw tunnel response verbatim.
func (c *Controller) OnJobHTTPSProxyTunnelResponse(j *Job, conn ConnectionHandle) {
	c.mu.Lock()
	delegate := c.delegate
	released := c.requestReleased
	c.mu.Unlock()
	if delegate != nil && !released {
		delegate.OnHTTPSProxyTunnelResponse(conn)
	}
}

// OnJobPreconnectComplete records a preconnect Job's completion.
func (c *Controller) OnJobPreconnectComplete(j *Job, err error) {
	c.mu.Lock()
	c.terminalSent = true
	c.mu.Unlock()
}

func (c *Controller) openGateLocked() {
	c.gate.Open()
	if c.unblockCancel != nil {
		c.unblockCancel()
		c.unblockCancel = nil
	}
}

// finalizeBrokenness implements §4.C.5: exactly-once brokenness
// reporting after every created Job has reached Done.
func (c *Controller) finalizeBrokenness() {
	c.mu.Lock()
	if c.brokennessDone {
		c.mu.Unlock()
		return
	}
	c.brokennessDone = true
	altJob := c.altJob
	mainJob := c.mainJob
	altInfo := c.altInfo
	nak := c.nak
	c.mu.Unlock()

	if altJob == nil || altInfo == nil {
		return
	}

	altErr := altJob.Err()
	switch {
	case altErr == nil && altJob.SucceededOnDefaultNetwork():
		// No report: succeeded on the default network.
	case altErr == nil:
		c.registry.MarkBrokenUntilDefaultNetworkChanges(*altInfo, nak)
		c.cfg.Metrics.BrokenReported()
		c.notifyQUICBroken(altInfo)
	case neverReportedAsBrokenness(altErr):
		// No report: an excluded sentinel kind.
	case mainJob != nil && mainJob.Err() == nil:
		c.registry.MarkBroken(*altInfo, nak)
		c.cfg.Metrics.BrokenReported()
		c.notifyQUICBroken(altInfo)
	}
}

func (c *Controller) notifyQUICBroken(alt *AlternativeService) {
	if alt.Protocol.Kind != ProtocolQUIC {
		return
	}
	c.mu.Lock()
	delegate := c.delegate
	released := c.requestReleased
	c.mu.Unlock()
	if delegate != nil && !released {
		delegate.OnQUICBroken()
	}
}

func (c *Controller) maybeNotifyFactory() {
	c.mu.Lock()
	if c.factoryNotified || c.pendingJobs > 0 || !c.requestReleased {
		c.mu.Unlock()
		return
	}
	c.factoryNotified = true
	c.mu.Unlock()
	c.cancel()
	c.onComplete(c)
}

// --- RequestHelper ---

var _ RequestHelper = (*Controller)(nil)

// SetPriority propagates a priority change to every live Job.
func (c *Controller) SetPriority(p Priority) {
	c.mu.Lock()
	c.priority = p
	jobs := []*Job{c.mainJob, c.altJob, c.dnsAlpnJob}
	c.mu.Unlock()
	for _, j := range jobs {
		if j != nil {
			j.SetPriority(p)
		}
	}
}

// RestartTunnelWithProxyAuth forwards to the bound Job, or the main Job
// if none is bound yet.
func (c *Controller) RestartTunnelWithProxyAuth() {
	c.mu.Lock()
	j := c.boundJob
	if j == nil {
		j = c.mainJob
	}
	c.mu.Unlock()
	if j != nil {
		j.restartTunnelWithProxyAuth()
	}
}

// OnRequestComplete notifies the controller that the Request handle was
// released. If no Job has been bound yet it cancels the main Job;
// Alternative and DNS-ALPN-H3 Jobs are left running so they can still
// report brokenness. A bound Job has already reached Done.
func (c *Controller) OnRequestComplete() {
	c.mu.Lock()
	if c.requestReleased {
		c.mu.Unlock()
		return
	}
	c.requestReleased = true
	bound := c.boundJob
	var toCancel []*Job
	if bound == nil {
		if c.mainJob != nil {
			toCancel = append(toCancel, c.mainJob)
		}
	}
	c.mu.Unlock()

	for _, j := range toCancel {
		j.Cancel()
	}
	// Unblock an in-flight proxy resolution (Start hasn't reached
	// planAndStart yet) so a released Request doesn't keep resolving.
	c.cancel()
	c.maybeNotifyFactory()
}

// LoadState returns the load state of the controller's current dominant
// Job: bound Job if present, else Main, else Alt, else DNS-ALPN-H3.
func (c *Controller) LoadState() JobState {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.boundJob != nil:
		return c.boundJob.State()
	case c.mainJob != nil:
		return c.mainJob.State()
	case c.altJob != nil:
		return c.altJob.State()
	case c.dnsAlpnJob != nil:
		return c.dnsAlpnJob.State()
	default:
		return JobStateDone
	}
}
