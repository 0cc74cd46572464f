// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"context"
	"crypto/tls"

	sf "github.com/bassosimone/streamfactory"
)

// Pool composes [*HTTP1H2Pool] and [*QUICPool] into a single
// [sf.ConnectionPool], dispatching each call to whichever adapter
// matches the requested [sf.Protocol], per §4.F.
type Pool struct {
	HTTP *HTTP1H2Pool
	QUIC *QUICPool
}

var _ sf.ConnectionPool = &Pool{}

// NewPool returns a [*Pool] wired to cfg.
func NewPool(cfg *Config, logger sf.SLogger) *Pool {
	return &Pool{
		HTTP: NewHTTP1H2Pool(cfg, logger),
		QUIC: NewQUICPool(),
	}
}

// InitConnection implements [sf.ConnectionPool].
func (p *Pool) InitConnection(ctx context.Context, ep sf.Endpoint, ssl *tls.Config, proxy sf.ProxyInfo, priority sf.Priority, flags sf.JobFlags) (sf.ConnectionHandle, error) {
	key := sf.SessionKey{Origin: sf.Origin{Scheme: "https", Host: ep.Host, Port: ep.Port}}
	if ep.Protocol.Kind == sf.ProtocolQUIC {
		return p.QUIC.Dial(ctx, ep, ssl, key)
	}
	return p.HTTP.Dial(ctx, ep, ssl, key)
}

// AcquireHTTP2Session implements [sf.ConnectionPool].
func (p *Pool) AcquireHTTP2Session(key sf.SessionKey) (sf.HTTP2Session, bool) {
	return p.HTTP.AcquireHTTP2Session(key)
}

// AcquireQUICSession implements [sf.ConnectionPool].
func (p *Pool) AcquireQUICSession(key sf.SessionKey, versions []sf.QUICVersion) (sf.QUICSession, bool) {
	return p.QUIC.AcquireQUICSession(key, versions)
}

// PreconnectSockets implements [sf.ConnectionPool]. It warms up the
// HTTP/1.1/HTTP2 pool only: a preconnect request does not know in
// advance whether the caller will end up needing QUIC, and QUIC sessions
// are opportunistically created the moment a QUIC Job actually dials.
func (p *Pool) PreconnectSockets(ctx context.Context, pool sf.SessionKey, n int, priority sf.Priority) error {
	return p.HTTP.PreconnectSockets(ctx, pool, n, priority)
}
