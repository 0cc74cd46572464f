// SPDX-License-Identifier: GPL-3.0-or-later

package streamfactory

import (
	"context"
	"crypto/tls"
	"io"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeControllerPool is a [ConnectionPool] test double whose
// InitConnection result is scripted per endpoint host.
type fakeControllerPool struct {
	mu       sync.Mutex
	initFunc func(ctx context.Context, ep Endpoint, proxy ProxyInfo) (ConnectionHandle, error)
	calls    []Endpoint
}

func (p *fakeControllerPool) InitConnection(ctx context.Context, ep Endpoint, ssl *tls.Config, proxy ProxyInfo, priority Priority, flags JobFlags) (ConnectionHandle, error) {
	p.mu.Lock()
	p.calls = append(p.calls, ep)
	fn := p.initFunc
	p.mu.Unlock()
	return fn(ctx, ep, proxy)
}

func (p *fakeControllerPool) AcquireHTTP2Session(key SessionKey) (HTTP2Session, bool) {
	return nil, false
}

func (p *fakeControllerPool) AcquireQUICSession(key SessionKey, versions []QUICVersion) (QUICSession, bool) {
	return nil, false
}

func (p *fakeControllerPool) PreconnectSockets(ctx context.Context, pool SessionKey, n int, priority Priority) error {
	return nil
}

func (p *fakeControllerPool) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// fakeControllerConn is a minimal [ConnectionHandle] that tracks whether
// its stream was closed, so tests can detect a leaked losing Job stream.
type fakeControllerConn struct {
	protocol Protocol
	mu       sync.Mutex
	closed   bool
}

func (c *fakeControllerConn) Protocol() Protocol         { return c.protocol }
func (c *fakeControllerConn) Stream() io.ReadWriteCloser { return (*fakeControllerStream)(c) }

type fakeControllerStream fakeControllerConn

func (s *fakeControllerStream) Read(p []byte) (int, error)  { return 0, io.EOF }
func (s *fakeControllerStream) Write(p []byte) (int, error) { return len(p), nil }
func (s *fakeControllerStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// fakeResolver is a [ProxyResolver] test double.
type fakeResolver struct {
	proxies ProxyInfoList
	err     error
}

func (r *fakeResolver) Resolve(ctx context.Context, u *url.URL, method string, nak NetworkAnonymizationKey) (ProxyInfoList, error) {
	return r.proxies, r.err
}

// fakeRequestDelegate records every [RequestDelegate] callback.
type fakeRequestDelegate struct {
	mu sync.Mutex

	streamProxy    *ProxyInfo
	streamProtocol Protocol
	streamConn     ConnectionHandle
	bidiCalled     bool
	wsCalled       bool

	failedErr   error
	failedProxy ProxyInfo
	terminal    bool

	certErr        error
	proxyAuthCtl   *AuthController
	proxyAuthProxy ProxyInfo
	needsClientAuth bool
	tunnelResp     ConnectionHandle
	quicBrokenHits int
}

func (d *fakeRequestDelegate) OnStreamReady(proxy ProxyInfo, protocol Protocol, conn ConnectionHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.streamProxy, d.streamProtocol, d.streamConn = &proxy, protocol, conn
	d.terminal = true
}

func (d *fakeRequestDelegate) OnBidirectionalStreamReady(proxy ProxyInfo, protocol Protocol, conn ConnectionHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bidiCalled = true
	d.terminal = true
}

func (d *fakeRequestDelegate) OnWebSocketHandshakeStreamReady(proxy ProxyInfo, protocol Protocol, conn ConnectionHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.wsCalled = true
	d.terminal = true
}

func (d *fakeRequestDelegate) OnStreamFailed(err error, proxy ProxyInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failedErr, d.failedProxy = err, proxy
	d.terminal = true
}

func (d *fakeRequestDelegate) OnCertificateError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.certErr = err
}

func (d *fakeRequestDelegate) OnNeedsProxyAuth(proxy ProxyInfo, authCtl *AuthController) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.proxyAuthProxy, d.proxyAuthCtl = proxy, authCtl
}

func (d *fakeRequestDelegate) OnNeedsClientAuth() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.needsClientAuth = true
}

func (d *fakeRequestDelegate) OnHTTPSProxyTunnelResponse(conn ConnectionHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tunnelResp = conn
}

func (d *fakeRequestDelegate) OnQUICBroken() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.quicBrokenHits++
}

func (d *fakeRequestDelegate) isTerminal() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.terminal
}

func (d *fakeRequestDelegate) snapshot() fakeRequestDelegate {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fakeRequestDelegate{
		streamProxy: d.streamProxy, streamProtocol: d.streamProtocol, streamConn: d.streamConn,
		bidiCalled: d.bidiCalled, wsCalled: d.wsCalled,
		failedErr: d.failedErr, failedProxy: d.failedProxy, terminal: d.terminal,
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	require.True(t, cond(), "condition did not become true within %s", timeout)
}

func testOrigin() Origin {
	return Origin{Scheme: "https", Host: "example.test", Port: 443}
}

func testURL(t *testing.T) *url.URL {
	u, err := url.Parse("https://example.test/")
	require.NoError(t, err)
	return u
}

func newTestController(t *testing.T, cfg *Config, pool ConnectionPool, registry *Registry, resolver ProxyResolver, delegate RequestDelegate) (*Controller, *Request) {
	if cfg == nil {
		cfg = NewConfig()
	}
	if registry == nil {
		registry = NewRegistry(cfg)
	}
	origin := testOrigin()
	tlsConf := &tls.Config{ServerName: origin.Host}
	var onCompleteCalls int
	var mu sync.Mutex
	onComplete := func(c *Controller) {
		mu.Lock()
		onCompleteCalls++
		mu.Unlock()
	}
	c := NewController(cfg, pool, registry, resolver, "GET", testURL(t), origin, NetworkAnonymizationKey{}, tlsConf, JobFlags{}, onComplete)
	req := c.Start(HttpStream, 0, delegate)
	return c, req
}

func TestControllerMainOnlySuccess(t *testing.T) {
	conn := &fakeControllerConn{protocol: Protocol{Kind: ProtocolHTTP1_1}}
	pool := &fakeControllerPool{initFunc: func(ctx context.Context, ep Endpoint, proxy ProxyInfo) (ConnectionHandle, error) {
		return conn, nil
	}}
	resolver := &fakeResolver{proxies: ProxyInfoList{{Direct: true}}}
	delegate := &fakeRequestDelegate{}

	// With QUIC disabled no DNS-ALPN-H3 Job is eligible, so Main is the
	// only Job.
	cfg := NewConfig()
	cfg.EnableQUIC = false
	_, _ = newTestController(t, cfg, pool, nil, resolver, delegate)

	waitUntil(t, time.Second, delegate.isTerminal)
	snap := delegate.snapshot()
	require.NotNil(t, snap.streamProxy)
	assert.True(t, snap.streamProxy.Direct)
	assert.Nil(t, snap.failedErr)
}

func TestControllerAltWinsRace(t *testing.T) {
	cfg := NewConfig()
	registry := NewRegistry(cfg)
	origin := testOrigin()
	registry.SetAlternatives(origin, NetworkAnonymizationKey{}, []AlternativeService{
		{Protocol: Protocol{Kind: ProtocolHTTP2}, Host: "alt.example.test", Port: 443, Expiration: time.Now().Add(time.Hour)},
	})

	altConn := &fakeControllerConn{protocol: Protocol{Kind: ProtocolHTTP2}}
	pool := &fakeControllerPool{initFunc: func(ctx context.Context, ep Endpoint, proxy ProxyInfo) (ConnectionHandle, error) {
		if ep.Host == "alt.example.test" {
			return altConn, nil
		}
		// Main stays parked in Wait behind the gate; the call that lands
		// here is the DNS-ALPN-H3 Job's, which blocks until cancelled.
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	resolver := &fakeResolver{proxies: ProxyInfoList{{Direct: true}}}
	delegate := &fakeRequestDelegate{}

	c, _ := newTestController(t, cfg, pool, registry, resolver, delegate)

	waitUntil(t, time.Second, delegate.isTerminal)
	snap := delegate.snapshot()
	assert.Nil(t, snap.failedErr)
	assert.NotNil(t, snap.streamProxy)

	c.mu.Lock()
	bound := c.boundJob
	altJob := c.altJob
	c.mu.Unlock()
	require.NotNil(t, bound)
	assert.Equal(t, JobAlternative, bound.Type())
	assert.Same(t, altJob, bound)
}

func TestControllerBrokenAltIsFilteredOut(t *testing.T) {
	cfg := NewConfig()
	registry := NewRegistry(cfg)
	origin := testOrigin()
	alt := AlternativeService{Protocol: Protocol{Kind: ProtocolHTTP2}, Host: "alt.example.test", Port: 443, Expiration: time.Now().Add(time.Hour)}
	registry.SetAlternatives(origin, NetworkAnonymizationKey{}, []AlternativeService{alt})
	registry.MarkBroken(alt, NetworkAnonymizationKey{})

	conn := &fakeControllerConn{protocol: Protocol{Kind: ProtocolHTTP1_1}}
	pool := &fakeControllerPool{initFunc: func(ctx context.Context, ep Endpoint, proxy ProxyInfo) (ConnectionHandle, error) {
		assert.Equal(t, origin.Host, ep.Host)
		return conn, nil
	}}
	resolver := &fakeResolver{proxies: ProxyInfoList{{Direct: true}}}
	delegate := &fakeRequestDelegate{}

	c, _ := newTestController(t, cfg, pool, registry, resolver, delegate)

	waitUntil(t, time.Second, delegate.isTerminal)
	c.mu.Lock()
	altJob := c.altJob
	c.mu.Unlock()
	assert.Nil(t, altJob, "a broken alternative must never spawn a Job")
}

func TestControllerProxyFallbackOnReconsiderableError(t *testing.T) {
	proxy1 := ProxyInfo{Scheme: "http", Host: "proxy1.test", Port: 8080}
	proxy2 := ProxyInfo{Scheme: "http", Host: "proxy2.test", Port: 8080}
	conn := &fakeControllerConn{protocol: Protocol{Kind: ProtocolHTTP1_1}}
	pool := &fakeControllerPool{initFunc: func(ctx context.Context, ep Endpoint, proxy ProxyInfo) (ConnectionHandle, error) {
		if proxy.Host == proxy1.Host {
			return nil, &ProxyReconsiderableError{Err: assertErr("proxy1 unreachable")}
		}
		return conn, nil
	}}
	resolver := &fakeResolver{proxies: ProxyInfoList{proxy1, proxy2}}
	delegate := &fakeRequestDelegate{}

	c, _ := newTestController(t, nil, pool, nil, resolver, delegate)

	waitUntil(t, time.Second, delegate.isTerminal)
	snap := delegate.snapshot()
	assert.Nil(t, snap.failedErr)
	require.NotNil(t, snap.streamProxy)
	assert.Equal(t, proxy2.Host, snap.streamProxy.Host)

	c.mu.Lock()
	idx := c.proxyIdx
	c.mu.Unlock()
	assert.Equal(t, 1, idx)
}

func TestControllerNoFallbackProxyExhausted(t *testing.T) {
	proxy1 := ProxyInfo{Scheme: "http", Host: "proxy1.test", Port: 8080}
	pool := &fakeControllerPool{initFunc: func(ctx context.Context, ep Endpoint, proxy ProxyInfo) (ConnectionHandle, error) {
		return nil, &ProxyReconsiderableError{Err: assertErr("proxy1 unreachable")}
	}}
	resolver := &fakeResolver{proxies: ProxyInfoList{proxy1}}
	delegate := &fakeRequestDelegate{}

	newTestController(t, nil, pool, nil, resolver, delegate)

	waitUntil(t, time.Second, delegate.isTerminal)
	snap := delegate.snapshot()
	assert.ErrorIs(t, snap.failedErr, ErrNoFallbackProxy)
}

func TestControllerCertificateErrorIsNotTerminalFailure(t *testing.T) {
	var once sync.Once
	pool := &fakeControllerPool{initFunc: func(ctx context.Context, ep Endpoint, proxy ProxyInfo) (ConnectionHandle, error) {
		var err error
		once.Do(func() { err = &CertificateError{Err: assertErr("bad cert")} })
		if err != nil {
			return nil, err
		}
		return &fakeControllerConn{}, nil
	}}
	resolver := &fakeResolver{proxies: ProxyInfoList{{Direct: true}}}
	delegate := &fakeRequestDelegate{}

	newTestController(t, nil, pool, nil, resolver, delegate)

	waitUntil(t, time.Second, func() bool {
		delegate.mu.Lock()
		defer delegate.mu.Unlock()
		return delegate.certErr != nil
	})
	assert.False(t, delegate.isTerminal(), "certificate error must not be treated as a terminal stream failure")
}

func TestControllerProxyAuthRestart(t *testing.T) {
	var calls int
	var mu sync.Mutex
	pool := &fakeControllerPool{initFunc: func(ctx context.Context, ep Endpoint, proxy ProxyInfo) (ConnectionHandle, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			return nil, &ProxyAuthRequiredError{Proxy: proxy}
		}
		return &fakeControllerConn{}, nil
	}}
	resolver := &fakeResolver{proxies: ProxyInfoList{{Direct: true}}}
	delegate := &fakeRequestDelegate{}

	newTestController(t, nil, pool, nil, resolver, delegate)

	waitUntil(t, time.Second, func() bool {
		delegate.mu.Lock()
		defer delegate.mu.Unlock()
		return delegate.proxyAuthCtl != nil
	})
	delegate.mu.Lock()
	ctl := delegate.proxyAuthCtl
	delegate.mu.Unlock()
	require.NotNil(t, ctl)
	ctl.RestartWithProxyAuth()

	waitUntil(t, time.Second, delegate.isTerminal)
	assert.Nil(t, delegate.snapshot().failedErr)
}

func TestControllerSetPriorityFansOutToLiveJobs(t *testing.T) {
	block := make(chan struct{})
	pool := &fakeControllerPool{initFunc: func(ctx context.Context, ep Endpoint, proxy ProxyInfo) (ConnectionHandle, error) {
		<-block
		return &fakeControllerConn{}, nil
	}}
	resolver := &fakeResolver{proxies: ProxyInfoList{{Direct: true}}}
	delegate := &fakeRequestDelegate{}

	_, req := newTestController(t, nil, pool, nil, resolver, delegate)

	waitUntil(t, time.Second, func() bool { return pool.callCount() > 0 })
	req.SetPriority(5)

	close(block)
	waitUntil(t, time.Second, delegate.isTerminal)
}

func TestControllerLoadStateReflectsDominantJob(t *testing.T) {
	block := make(chan struct{})
	pool := &fakeControllerPool{initFunc: func(ctx context.Context, ep Endpoint, proxy ProxyInfo) (ConnectionHandle, error) {
		<-block
		return &fakeControllerConn{}, nil
	}}
	resolver := &fakeResolver{proxies: ProxyInfoList{{Direct: true}}}
	delegate := &fakeRequestDelegate{}

	_, req := newTestController(t, nil, pool, nil, resolver, delegate)

	// The default config also starts a DNS-ALPN-H3 Job, which blocks Main
	// in Wait; with nothing bound, LoadState reports Main's state.
	waitUntil(t, time.Second, func() bool { return req.LoadState() == JobStateWait })
	close(block)
	waitUntil(t, time.Second, delegate.isTerminal)
	assert.Equal(t, JobStateDone, req.LoadState())
}

func TestControllerReleaseBeforeBindCancelsMain(t *testing.T) {
	pool := &fakeControllerPool{initFunc: func(ctx context.Context, ep Endpoint, proxy ProxyInfo) (ConnectionHandle, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	resolver := &fakeResolver{proxies: ProxyInfoList{{Direct: true}}}
	delegate := &fakeRequestDelegate{}

	c, req := newTestController(t, nil, pool, nil, resolver, delegate)

	waitUntil(t, time.Second, func() bool { return pool.callCount() > 0 })
	req.Release()

	waitUntil(t, time.Second, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.mainJob == nil || c.mainJob.Err() != nil
	})
}

// assertErr is a tiny error constructor used where only a distinct
// identity matters, not a specific sentinel.
type assertErr string

func (e assertErr) Error() string { return string(e) }
