// SPDX-License-Identifier: GPL-3.0-or-later

package streamfactory

// StreamKind is the kind of stream a [Request] originally asked for.
type StreamKind int

const (
	// HttpStream is a plain HTTP request/response stream.
	HttpStream StreamKind = iota

	// BidirectionalStream is a bidirectional stream (e.g. gRPC, HTTP/2
	// extended CONNECT).
	BidirectionalStream

	// WebSocketHandshake is a stream used to perform a WebSocket
	// handshake.
	WebSocketHandshake
)

// String implements [fmt.Stringer].
func (k StreamKind) String() string {
	switch k {
	case BidirectionalStream:
		return "bidirectional-stream"
	case WebSocketHandshake:
		return "websocket-handshake"
	default:
		return "http-stream"
	}
}

// JobType is one of `{ Main, Alternative, DnsAlpnH3, Preconnect,
// PreconnectDnsAlpnH3 }`, per the data model.
type JobType int

const (
	// JobMain uses the origin's own (host, port) with whatever protocol
	// negotiates.
	JobMain JobType = iota

	// JobAlternative is locked to the protocol advertised in its
	// AlternativeService.
	JobAlternative

	// JobDnsAlpnH3 requires the DNS-layer HTTPS record to advertise h3.
	JobDnsAlpnH3

	// JobPreconnect performs no stream handoff; it only warms sockets.
	JobPreconnect

	// JobPreconnectDnsAlpnH3 is the DNS-ALPN-H3 variant of JobPreconnect.
	JobPreconnectDnsAlpnH3
)

// String implements [fmt.Stringer].
func (t JobType) String() string {
	switch t {
	case JobAlternative:
		return "alternative"
	case JobDnsAlpnH3:
		return "dns-alpn-h3"
	case JobPreconnect:
		return "preconnect"
	case JobPreconnectDnsAlpnH3:
		return "preconnect-dns-alpn-h3"
	default:
		return "main"
	}
}

// IsPreconnect reports whether t is one of the two preconnect-only
// Job types, which never yield a bound stream.
func (t JobType) IsPreconnect() bool {
	return t == JobPreconnect || t == JobPreconnectDnsAlpnH3
}
