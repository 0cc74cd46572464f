// SPDX-License-Identifier: GPL-3.0-or-later

package streamfactory

import (
	"context"
	"crypto/tls"
	"io"
	"net/url"
)

// Priority is the caller-assigned request priority, forwarded to the
// connect subsystem and fanned out to live Jobs by [Controller.SetPriority].
type Priority int

// JobFlags carries per-request flags that influence Job creation, such
// as whether ports below 1024 are permitted for alternative services.
type JobFlags struct {
	// AllowUserAlternateProtocolPorts permits alternative services that
	// advertise a port below 1024.
	AllowUserAlternateProtocolPorts bool
}

// Endpoint is a destination a [ConnectionPool] is asked to connect to:
// a host/port pair plus the protocol constraint the Job imposes.
type Endpoint struct {
	Host     string
	Port     int
	Protocol Protocol
}

// ProxyInfo identifies a single proxy configuration (or the direct
// connection) that a Job attempts.
type ProxyInfo struct {
	// Direct is true when this entry means "connect directly, no proxy".
	Direct bool

	// Scheme is the proxy scheme ("http", "https", "socks5", ...); empty
	// when Direct is true.
	Scheme string

	// Host and Port identify the proxy server; zero when Direct is true.
	Host string
	Port int
}

// String returns a human-readable representation, useful for log fields.
func (p ProxyInfo) String() string {
	if p.Direct {
		return "direct"
	}
	return p.Scheme + "://" + p.Host
}

// ProxyInfoList is an ordered list of proxy configurations to try in
// sequence, as returned by [ProxyResolver.Resolve].
type ProxyInfoList []ProxyInfo

// SessionKey uniquely identifies a reusable multiplexed session (HTTP/2
// or QUIC) in the session pool.
type SessionKey struct {
	Origin      Origin
	NAK         NetworkAnonymizationKey
	PrivacyMode bool
}

// ConnectionHandle is an opaque handle to an established connection
// returned by [ConnectionPool.InitConnection]. The core never looks
// inside it; it forwards it to [Job.ReleaseStream] verbatim.
type ConnectionHandle interface {
	// Protocol returns the protocol negotiated on this connection.
	Protocol() Protocol

	// Stream returns the bidirectional byte stream the caller will own
	// after the Job releases it.
	Stream() io.ReadWriteCloser
}

// HTTP2Session is a reusable HTTP/2 session handle as returned by
// [ConnectionPool.AcquireHTTP2Session].
type HTTP2Session interface {
	// Key returns the session's identifying key.
	Key() SessionKey
}

// QUICSession is a reusable QUIC session handle as returned by
// [ConnectionPool.AcquireQUICSession].
type QUICSession interface {
	// Key returns the session's identifying key.
	Key() SessionKey

	// Version returns the negotiated QUIC version.
	Version() QUICVersion
}

// ConnectionPool is the socket/session-pool collaborator consumed by
// Jobs. The core calls these; they may suspend (block on ctx).
type ConnectionPool interface {
	// InitConnection establishes (or reuses) a connection to ep through
	// proxy, honoring priority and flags.
	InitConnection(ctx context.Context, ep Endpoint, ssl *tls.Config, proxy ProxyInfo, priority Priority, flags JobFlags) (ConnectionHandle, error)

	// AcquireHTTP2Session returns a cached HTTP/2 session for key, if any.
	AcquireHTTP2Session(key SessionKey) (HTTP2Session, bool)

	// AcquireQUICSession returns a cached QUIC session for key restricted
	// to versions, if any.
	AcquireQUICSession(key SessionKey, versions []QUICVersion) (QUICSession, bool)

	// PreconnectSockets warms up n sockets/sessions for pool without
	// handing a stream back to any caller.
	PreconnectSockets(ctx context.Context, pool SessionKey, n int, priority Priority) error
}

// ProxyResolver resolves which proxy configurations (or direct
// connection) should be attempted for a request.
type ProxyResolver interface {
	// Resolve returns the ordered list of proxy configurations to try.
	Resolve(ctx context.Context, u *url.URL, method string, nak NetworkAnonymizationKey) (ProxyInfoList, error)
}

// HostMappingRules rewrites a (host, port) pair before it becomes an
// [Origin], e.g. to redirect test traffic. Rewrite must be pure.
type HostMappingRules interface {
	Rewrite(host string, port int) (string, int)
}

// IdentityHostMapping is the default [HostMappingRules]: it returns
// host and port unchanged. The zero value is ready to use.
type IdentityHostMapping struct{}

var _ HostMappingRules = IdentityHostMapping{}

// Rewrite implements [HostMappingRules].
func (IdentityHostMapping) Rewrite(host string, port int) (string, int) {
	return host, port
}
