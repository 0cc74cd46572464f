//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"sync"

	sf "github.com/bassosimone/streamfactory"

	"github.com/bassosimone/runtimex"
)

// HTTP1H2Pool wraps [*ConnectFunc], [*TLSHandshakeFunc] and
// [*HTTPConnFunc] into the plain-HTTP/HTTP2 half of [sf.ConnectionPool],
// per §4.F: dial, TLS-handshake, then build an ALPN-negotiated
// [*HTTPConn], caching one per [sf.SessionKey] for HTTP/2 reuse.
//
// Endpoint carries no TLS-required flag of its own; this pool always
// handshakes, since the core always supplies a non-nil ssl config (see
// [Factory.newController] in the core package). A plaintext-only caller
// should use a resolver/pool pair that never asks for HTTPS origins.
type HTTP1H2Pool struct {
	cfg    *Config
	logger sf.SLogger

	mu       sync.Mutex
	sessions map[sf.SessionKey]*httpSession
}

// NewHTTP1H2Pool returns a [*HTTP1H2Pool] wired to cfg.
func NewHTTP1H2Pool(cfg *Config, logger sf.SLogger) *HTTP1H2Pool {
	runtimex.Assert(cfg != nil)
	return &HTTP1H2Pool{cfg: cfg, logger: logger, sessions: make(map[sf.SessionKey]*httpSession)}
}

// httpSession adapts an [*HTTPConn] into a [sf.HTTP2Session].
type httpSession struct {
	hc  *HTTPConn
	key sf.SessionKey
}

var _ sf.HTTP2Session = &httpSession{}

func (s *httpSession) Key() sf.SessionKey { return s.key }

// httpConnHandle adapts an [*HTTPConn] into a [sf.ConnectionHandle]: the
// raw connection is the caller-owned stream; the ALPN-selected
// [http.RoundTripper] stays reachable via [HTTPConn.RoundTripper] for
// callers that want HTTP semantics instead of raw bytes.
type httpConnHandle struct {
	hc       *HTTPConn
	protocol sf.Protocol
}

var _ sf.ConnectionHandle = &httpConnHandle{}

func (h *httpConnHandle) Protocol() sf.Protocol      { return h.protocol }
func (h *httpConnHandle) Stream() io.ReadWriteCloser { return h.hc.Conn() }

// Dial resolves ep, dials and TLS-handshakes a connection, and builds an
// [*HTTPConn] over it, caching the result under key when ALPN negotiates
// HTTP/2.
func (p *HTTP1H2Pool) Dial(ctx context.Context, ep sf.Endpoint, ssl *tls.Config, key sf.SessionKey) (sf.ConnectionHandle, error) {
	runtimex.Assert(ssl != nil)

	addr, err := p.resolve(ctx, ep)
	if err != nil {
		return nil, err
	}

	// Dial, then arrange for ctx cancellation to close the socket
	// promptly rather than waiting for the TLS handshake's own deadline.
	// The watcher logs under a fresh span ID for this dial; the pool is
	// not given the Job's jobSpanId, so the two IDs are not linked.
	dial := Compose2(NewConnectFunc(p.cfg, "tcp", p.logger), NewCancelWatchFunc(p.logger, sf.NewSpanID()))
	conn, err := dial.Call(ctx, addr)
	if err != nil {
		return nil, err
	}

	tconn, err := NewTLSHandshakeFunc(p.cfg, ssl, p.logger).Call(ctx, conn)
	if err != nil {
		return nil, classifyTLSError(err)
	}

	hc, err := NewHTTPConnFuncTLS(p.cfg, p.logger).Call(ctx, tconn)
	if err != nil {
		return nil, err
	}

	kind := sf.ProtocolHTTP1_1
	if tconn.ConnectionState().NegotiatedProtocol == "h2" {
		kind = sf.ProtocolHTTP2
	}

	if kind == sf.ProtocolHTTP2 {
		p.mu.Lock()
		p.sessions[key] = &httpSession{hc: hc, key: key}
		p.mu.Unlock()
	}

	return &httpConnHandle{hc: hc, protocol: sf.Protocol{Kind: kind}}, nil
}

func (p *HTTP1H2Pool) resolve(ctx context.Context, ep sf.Endpoint) (netip.AddrPort, error) {
	if addr, err := netip.ParseAddr(ep.Host); err == nil {
		return netip.AddrPortFrom(addr, uint16(ep.Port)), nil
	}
	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", ep.Host)
	if err != nil {
		return netip.AddrPort{}, err
	}
	if len(addrs) == 0 {
		return netip.AddrPort{}, fmt.Errorf("transport: no address found for %q", ep.Host)
	}
	return netip.AddrPortFrom(addrs[0], uint16(ep.Port)), nil
}

// classifyTLSError wraps a certificate-verification failure into a
// [sf.CertificateError], the same set of `errors.As` checks the teacher
// uses in [TLSHandshakeFunc.peerCerts], so the Job routes it as
// user-actionable rather than a final failure, per §4.F.
func classifyTLSError(err error) error {
	var hostnameErr x509.HostnameError
	var authorityErr x509.UnknownAuthorityError
	var invalidErr x509.CertificateInvalidError
	if errors.As(err, &hostnameErr) || errors.As(err, &authorityErr) || errors.As(err, &invalidErr) {
		return &sf.CertificateError{Err: err}
	}
	return err
}

// AcquireHTTP2Session returns a cached HTTP/2 session for key, if any.
func (p *HTTP1H2Pool) AcquireHTTP2Session(key sf.SessionKey) (sf.HTTP2Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sess, ok := p.sessions[key]
	return sess, ok
}

// PreconnectSockets warms up n connections for pool, each establishing
// its own socket: unlike QUIC/HTTP2 multiplexing, plain HTTP/1.1 needs
// one socket per concurrent stream.
func (p *HTTP1H2Pool) PreconnectSockets(ctx context.Context, pool sf.SessionKey, n int, priority sf.Priority) error {
	ep := sf.Endpoint{Host: pool.Origin.Host, Port: pool.Origin.Port}
	ssl := &tls.Config{ServerName: pool.Origin.Host}
	for i := 0; i < n; i++ {
		if _, err := p.Dial(ctx, ep, ssl, pool); err != nil {
			return err
		}
	}
	return nil
}
