//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: github.com/quic-go/quic-go session-dialing examples.
//

package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"sync"

	sf "github.com/bassosimone/streamfactory"

	"github.com/quic-go/quic-go"
)

// QUICPool is a thin adapter over [github.com/quic-go/quic-go] session
// dialing, satisfying the QUIC half of [sf.ConnectionPool]
// (AcquireQUICSession/InitConnection) for Quic(version) Jobs, per §4.F.
//
// The zero value is not ready to use; construct with [NewQUICPool].
type QUICPool struct {
	mu       sync.Mutex
	sessions map[sf.SessionKey]*quicSession
}

// NewQUICPool returns an empty [*QUICPool].
func NewQUICPool() *QUICPool {
	return &QUICPool{sessions: make(map[sf.SessionKey]*quicSession)}
}

// quicSession adapts a [*quic.Conn] into a [sf.QUICSession].
type quicSession struct {
	conn    *quic.Conn
	key     sf.SessionKey
	version sf.QUICVersion
}

var _ sf.QUICSession = &quicSession{}

func (s *quicSession) Key() sf.SessionKey      { return s.key }
func (s *quicSession) Version() sf.QUICVersion { return s.version }

// quicHandle adapts a [*quic.Stream] into a [sf.ConnectionHandle].
type quicHandle struct {
	stream *quic.Stream
}

var _ sf.ConnectionHandle = &quicHandle{}

func (h *quicHandle) Protocol() sf.Protocol {
	return sf.Protocol{Kind: sf.ProtocolQUIC, QUICVersion: sf.QUICVersion1}
}

func (h *quicHandle) Stream() io.ReadWriteCloser { return h.stream }

// Dial establishes (or reuses) a QUIC session to ep and opens a new
// bidirectional stream on it, implementing the QUIC half of
// [sf.ConnectionPool.InitConnection].
func (p *QUICPool) Dial(ctx context.Context, ep sf.Endpoint, ssl *tls.Config, key sf.SessionKey) (sf.ConnectionHandle, error) {
	sess, err := p.session(ctx, ep, ssl, key)
	if err != nil {
		return nil, err
	}
	stream, err := sess.conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return &quicHandle{stream: stream}, nil
}

func (p *QUICPool) session(ctx context.Context, ep sf.Endpoint, ssl *tls.Config, key sf.SessionKey) (*quicSession, error) {
	p.mu.Lock()
	sess, ok := p.sessions[key]
	p.mu.Unlock()
	if ok {
		return sess, nil
	}

	tlsConf := ssl.Clone()
	if len(tlsConf.NextProtos) == 0 {
		tlsConf.NextProtos = []string{"h3"}
	}
	addr := net.JoinHostPort(ep.Host, fmt.Sprintf("%d", ep.Port))
	conn, err := quic.DialAddr(ctx, addr, tlsConf, &quic.Config{})
	if err != nil {
		return nil, err
	}

	sess = &quicSession{conn: conn, key: key, version: sf.QUICVersion1}
	p.mu.Lock()
	p.sessions[key] = sess
	p.mu.Unlock()
	return sess, nil
}

// AcquireQUICSession returns a cached QUIC session for key restricted to
// versions, if any.
func (p *QUICPool) AcquireQUICSession(key sf.SessionKey, versions []sf.QUICVersion) (sf.QUICSession, bool) {
	p.mu.Lock()
	sess, ok := p.sessions[key]
	p.mu.Unlock()
	if !ok {
		return nil, false
	}
	for _, v := range versions {
		if v == sess.version {
			return sess, true
		}
	}
	return nil, false
}

// PreconnectSockets warms up a QUIC session for pool. A QUIC session
// already multiplexes every stream a caller will need, so n only bounds
// how many times a fresh session attempt is retried if dialing fails;
// one live session satisfies any n >= 1.
func (p *QUICPool) PreconnectSockets(ctx context.Context, pool sf.SessionKey, n int, priority sf.Priority) error {
	if n <= 0 {
		return nil
	}
	ep := sf.Endpoint{
		Host:     pool.Origin.Host,
		Port:     pool.Origin.Port,
		Protocol: sf.Protocol{Kind: sf.ProtocolQUIC, QUICVersion: sf.QUICVersion1},
	}
	ssl := &tls.Config{ServerName: pool.Origin.Host}
	var err error
	for i := 0; i < n; i++ {
		if _, err = p.session(ctx, ep, ssl, pool); err == nil {
			return nil
		}
	}
	return err
}
