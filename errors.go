// SPDX-License-Identifier: GPL-3.0-or-later

package streamfactory

import "errors"

// Sentinel errors compared with [errors.Is], per §7: kinds, not typed
// exceptions.
var (
	// ErrDNSNoMatchingSupportedAlpn means a DNS-ALPN-H3 or alternative
	// Job's DNS-layer lookup did not advertise a protocol this session
	// supports. Never reported as brokenness.
	ErrDNSNoMatchingSupportedAlpn = errors.New("streamfactory: no matching supported ALPN")

	// ErrNetworkChanged means the default network changed mid-attempt.
	// Never reported as brokenness.
	ErrNetworkChanged = errors.New("streamfactory: network changed")

	// ErrInternetDisconnected means there is no network connectivity at
	// all. Never reported as brokenness.
	ErrInternetDisconnected = errors.New("streamfactory: internet disconnected")

	// ErrAltNameNotResolved means the alternative hostname, which is
	// equal to the origin hostname, failed to resolve. Never reported as
	// brokenness (it is an origin-wide DNS failure, not specific to the
	// alternative).
	ErrAltNameNotResolved = errors.New("streamfactory: alternative hostname not resolved")

	// ErrNoFallbackProxy means the proxy list is exhausted after a
	// proxy-reconsiderable failure. Fatal: surfaced, no further retries.
	ErrNoFallbackProxy = errors.New("streamfactory: no fallback proxy remains")

	// ErrRequestCancelled means the Request was released (dropped)
	// before any Job completed.
	ErrRequestCancelled = errors.New("streamfactory: request cancelled")

	// ErrJobOrphaned names the outcome of a Job whose result the
	// controller decided not to bind. No code path in this package
	// records or returns it; an orphaned Job keeps its own result.
	ErrJobOrphaned = errors.New("streamfactory: job orphaned")

	// ErrAlternativeProtocolMismatch means an Alternative Job's socket
	// negotiated a protocol other than the one advertised.
	ErrAlternativeProtocolMismatch = errors.New("streamfactory: alternative job negotiated unexpected protocol")
)

// CertificateError wraps a TLS certificate verification failure, routed
// verbatim to the caller for user intervention rather than treated as a
// final Job failure.
type CertificateError struct{ Err error }

func (e *CertificateError) Error() string { return "certificate error: " + e.Err.Error() }
func (e *CertificateError) Unwrap() error { return e.Err }

// ClientAuthRequiredError means the peer requested a TLS client
// certificate.
type ClientAuthRequiredError struct{}

func (e *ClientAuthRequiredError) Error() string { return "client certificate requested" }

// ProxyAuthRequiredError means an HTTPS proxy responded 407 to a
// CONNECT request; the Job parks in WaitingUserAction until
// [AuthController.RestartWithProxyAuth] is called.
type ProxyAuthRequiredError struct{ Proxy ProxyInfo }

func (e *ProxyAuthRequiredError) Error() string { return "proxy authentication required" }

// HTTPSProxyTunnelResponseError wraps the raw CONNECT response from an
// HTTPS proxy tunnel, routed verbatim to the caller.
type HTTPSProxyTunnelResponseError struct{ Conn ConnectionHandle }

func (e *HTTPSProxyTunnelResponseError) Error() string { return "https proxy tunnel response" }

// ProxyReconsiderableError wraps a proxy-side failure that another
// proxy configuration in the list could fix (§7).
type ProxyReconsiderableError struct{ Err error }

func (e *ProxyReconsiderableError) Error() string { return e.Err.Error() }
func (e *ProxyReconsiderableError) Unwrap() error { return e.Err }

// TransportRetryableError wraps a connection reset/abort/close observed
// during handshake. The controller gives it no special handling: it is a
// final failure of the Job like any other error, and no retry is made.
type TransportRetryableError struct{ Err error }

func (e *TransportRetryableError) Error() string { return e.Err.Error() }
func (e *TransportRetryableError) Unwrap() error { return e.Err }

// errKind classifies an error for propagation-policy purposes (§7):
// kinds, not types.
type errKind int

const (
	errKindFatal errKind = iota
	errKindTransportRetryable
	errKindProxyReconsiderable
	errKindUserActionable
	errKindAltServiceSpecific
)

// neverReportedAsBrokenness reports whether err must never cause a
// brokenness report, regardless of which Job observed it, per §4.C.5.
func neverReportedAsBrokenness(err error) bool {
	return errors.Is(err, ErrDNSNoMatchingSupportedAlpn) ||
		errors.Is(err, ErrNetworkChanged) ||
		errors.Is(err, ErrInternetDisconnected) ||
		errors.Is(err, ErrAltNameNotResolved)
}
