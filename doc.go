// SPDX-License-Identifier: GPL-3.0-or-later

// Package streamfactory implements the core of an HTTP stream factory: given
// a request for a transport (HTTP/1.1, HTTP/2, or QUIC/HTTP/3) to some
// origin, it produces a ready-to-use bidirectional byte stream.
//
// # Components
//
// The package is organized around five collaborating components, built
// bottom-up:
//
//   - [Registry] (alternative-service registry): records which origins have
//     advertised alternative services and tracks their brokenness.
//   - [Job]: one attempted path to a transport — main, alternative-service,
//     DNS-ALPN-H3, or preconnect.
//   - [Controller]: orchestrates the Jobs for a single [Request], races them,
//     and binds the winner.
//   - [Request]: the caller's handle to an in-flight stream request.
//   - [Factory]: the process-wide entry point; owns the set of Controllers.
//
// # Collaborators
//
// The factory never opens sockets, never speaks TLS, and never performs DNS
// resolution directly. Those concerns are reached through the narrow
// interfaces in iface.go ([ConnectionPool], [ProxyResolver],
// [HostMappingRules]). Package github.com/bassosimone/streamfactory/transport
// ships reference implementations of these interfaces, built from the same
// primitives used elsewhere in this module: a dialer, a TLS engine, an
// HTTP/1.1-or-HTTP/2 round tripper selected by ALPN, a QUIC session pool,
// and a DNS HTTPS-record resolver.
//
// # Observability
//
// All components support structured logging via [SLogger] (compatible with
// [log/slog]) and pluggable error classification via [ErrClassifier]. Both
// default to no-ops; set [Config.Logger] to enable logging.
//
// # Concurrency
//
// The [Registry] is safe for concurrent readers and a single writer at a
// time. Every other component — [Job], [Controller], [Request], [Factory] —
// serializes its own mutable state behind a mutex: a [Job] runs its state
// machine on its own goroutine and reports results to its [Controller]
// through [JobDelegate] methods, which acquire the Controller's lock. This
// preserves the ordering guarantees (delegate callbacks are strictly
// ordered, terminal callbacks are final) without requiring callers to run
// everything on a single logical thread.
package streamfactory
