// SPDX-License-Identifier: GPL-3.0-or-later

package streamfactory

import "time"

// Config holds the session parameters consumed by the core (§6) plus the
// ambient dependencies (logging, error classification, clock, metrics).
//
// Pass this to [NewFactory] to pre-wire dependencies. All fields have
// sensible defaults set by [NewConfig].
type Config struct {
	// EnableHTTP2 allows Jobs to negotiate HTTP/2.
	//
	// Set by [NewConfig] to true.
	EnableHTTP2 bool

	// EnableQUIC allows alternative-service and DNS-ALPN-H3 Jobs targeting QUIC.
	//
	// Set by [NewConfig] to true.
	EnableQUIC bool

	// SupportedQUICVersions lists the QUIC versions this session can speak,
	// most preferred first.
	//
	// Set by [NewConfig] to [DefaultQUICVersions].
	SupportedQUICVersions []QUICVersion

	// HostMapping rewrites (host, port) pairs before origin resolution.
	//
	// Set by [NewConfig] to [IdentityHostMapping], which performs no rewrite.
	HostMapping HostMappingRules

	// QUICHostAllowlist restricts DNS-ALPN-H3 Jobs to an explicit set of
	// origin hostnames. It is not consulted for Alt-Svc alternatives. An
	// empty set disables the allowlist check entirely (every host is
	// allowed).
	//
	// Set by [NewConfig] to an empty set.
	QUICHostAllowlist map[string]struct{}

	// EnableUserAlternateProtocolPorts allows alternative services whose port
	// is below 1024, which are rejected by default.
	//
	// Set by [NewConfig] to false.
	EnableUserAlternateProtocolPorts bool

	// DelayMainJobWithAvailableSpdySession forces the main Job to pause even
	// when a reusable HTTP/2 session is already available for the origin.
	//
	// Set by [NewConfig] to false.
	DelayMainJobWithAvailableSpdySession bool

	// IgnoreIPAddressChanges controls whether default-network-change signals
	// reach the [Registry]. When true, [Factory.OnDefaultNetworkChanged] is a
	// no-op.
	//
	// Set by [NewConfig] to false.
	IgnoreIPAddressChanges bool

	// MaxPreconnectingProxyServers bounds the Factory's proxy preconnect
	// dedup set (§4.E, invariant 5).
	//
	// Set by [NewConfig] to 3.
	MaxPreconnectingProxyServers int

	// InitialBrokenDelay is the backoff applied the first time an
	// alternative service is marked broken.
	//
	// Set by [NewConfig] to 5 seconds.
	InitialBrokenDelay time.Duration

	// BrokenDelayCap bounds the exponential backoff applied to repeatedly
	// broken alternative services.
	//
	// Set by [NewConfig] to 2 minutes.
	BrokenDelayCap time.Duration

	// MainJobThrottleDelay is a pause length for the main Job when the
	// origin's last known working protocol is HTTP/2. No component reads
	// it: the main Job never pauses for HTTP/2 throttling, only behind
	// the [MainJobGate].
	//
	// Set by [NewConfig] to 300 milliseconds.
	MainJobThrottleDelay time.Duration

	// MainJobMaxDelay bounds how long the main Job can be blocked waiting for
	// an alternative or DNS-ALPN-H3 Job to reach InitConnection (spec §5,
	// MAX_DELAY).
	//
	// Set by [NewConfig] to 3 seconds.
	MainJobMaxDelay time.Duration

	// Logger is the [SLogger] used for structured logging across every
	// component.
	//
	// Set by [NewConfig] to [DefaultSLogger].
	Logger SLogger

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewConfig] to [DefaultErrClassifier].
	ErrClassifier ErrClassifier

	// TimeNow returns the current time.
	//
	// Set by [NewConfig] to [time.Now].
	TimeNow func() time.Time

	// Metrics receives counters for jobs, brokenness reports, and preconnect
	// dedup hits.
	//
	// Set by [NewConfig] to [DefaultMetrics].
	Metrics Metrics
}

// NewConfig creates a [*Config] with sensible defaults.
func NewConfig() *Config {
	return &Config{
		EnableHTTP2:                          true,
		EnableQUIC:                           true,
		SupportedQUICVersions:                DefaultQUICVersions(),
		HostMapping:                          IdentityHostMapping{},
		QUICHostAllowlist:                    map[string]struct{}{},
		EnableUserAlternateProtocolPorts:     false,
		DelayMainJobWithAvailableSpdySession: false,
		IgnoreIPAddressChanges:               false,
		MaxPreconnectingProxyServers:         3,
		InitialBrokenDelay:                   5 * time.Second,
		BrokenDelayCap:                       2 * time.Minute,
		MainJobThrottleDelay:                 300 * time.Millisecond,
		MainJobMaxDelay:                      3 * time.Second,
		Logger:                               DefaultSLogger(),
		ErrClassifier:                        DefaultErrClassifier,
		TimeNow:                              time.Now,
		Metrics:                              DefaultMetrics(),
	}
}

// quicHostAllowed reports whether host passes the QUIC host allowlist: an
// empty allowlist admits every host.
func (c *Config) quicHostAllowed(host string) bool {
	if len(c.QUICHostAllowlist) == 0 {
		return true
	}
	_, ok := c.QUICHostAllowlist[host]
	return ok
}
