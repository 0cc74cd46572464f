// SPDX-License-Identifier: GPL-3.0-or-later

package streamfactory

// ProtocolKind is the transport protocol a [Job] either targets or
// negotiates. The zero value, [ProtocolUnknown], means "whatever the
// socket negotiates" and is only valid for a Main Job.
type ProtocolKind int

const (
	// ProtocolUnknown means no specific protocol is required.
	ProtocolUnknown ProtocolKind = iota

	// ProtocolHTTP1_1 is plain HTTP/1.1.
	ProtocolHTTP1_1

	// ProtocolHTTP2 is HTTP/2, negotiated via ALPN "h2".
	ProtocolHTTP2

	// ProtocolQUIC is HTTP/3 over QUIC.
	ProtocolQUIC
)

// String implements [fmt.Stringer].
func (k ProtocolKind) String() string {
	switch k {
	case ProtocolHTTP1_1:
		return "http/1.1"
	case ProtocolHTTP2:
		return "h2"
	case ProtocolQUIC:
		return "h3"
	default:
		return "unknown"
	}
}

// QUICVersion identifies a QUIC wire version. The exact numeric encoding
// is implementation-defined; the core only compares and lists versions.
type QUICVersion uint32

// QUICVersion1 is RFC 9000 QUIC version 1.
const QUICVersion1 QUICVersion = 1

// DefaultQUICVersions returns the QUIC versions offered when a
// [*Config] does not set SupportedQUICVersions explicitly.
func DefaultQUICVersions() []QUICVersion {
	return []QUICVersion{QUICVersion1}
}

// Protocol is the sum `{ Http1_1, Http2, Quic(quic_version) }` from the
// data model: a transport protocol plus, for QUIC, the negotiated
// version. QUICVersion is meaningful only when Kind is [ProtocolQUIC].
type Protocol struct {
	Kind        ProtocolKind
	QUICVersion QUICVersion
}

// NextProto maps Protocol to the ALPN token a TLS/QUIC handshake would
// offer or negotiate for it. ProtocolUnknown maps to the empty string.
func (p Protocol) NextProto() string {
	switch p.Kind {
	case ProtocolHTTP1_1:
		return "http/1.1"
	case ProtocolHTTP2:
		return "h2"
	case ProtocolQUIC:
		return "h3"
	default:
		return ""
	}
}

// ProtocolNextProto maps a [Protocol] to an ALPN token, for wiring into
// real TLS/QUIC configuration. It is equivalent to [Protocol.NextProto].
func ProtocolNextProto(p Protocol) string {
	return p.NextProto()
}
