// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"context"
	"log/slog"
	"net"

	sf "github.com/bassosimone/streamfactory"
)

// NewCancelWatchFunc returns a new [*CancelWatchFunc] that logs the socket
// teardown it performs under spanID (see [sf.NewSpanID]).
func NewCancelWatchFunc(logger sf.SLogger, spanID string) *CancelWatchFunc {
	return &CancelWatchFunc{Logger: logger, SpanID: spanID}
}

// CancelWatchFunc arranges for the connection to be closed when the context
// is done (cancelled or deadline exceeded), so a Job's own cancellation (the
// losing half of a race, or a controller shutdown) tears down the socket
// without waiting for the TLS handshake's or round-trip's own deadline.
//
// The returned connection wraps the input connection. Closing the returned
// connection unregisters the context watcher and closes the underlying
// connection. This ensures no goroutine leaks even if the context is
// never cancelled.
type CancelWatchFunc struct {
	// Logger receives the "dialCancelled" event when ctx fires before the
	// caller closes the connection through the ordinary path.
	Logger sf.SLogger

	// SpanID identifies the dial this watcher belongs to and tags its
	// log line.
	SpanID string
}

var _ Func[net.Conn, net.Conn] = &CancelWatchFunc{}

// Call registers a context watcher using [context.AfterFunc] that closes
// the connection when the context is done. The returned [net.Conn] wraps
// the input: closing it unregisters the watcher and closes the underlying
// connection.
func (op *CancelWatchFunc) Call(ctx context.Context, conn net.Conn) (net.Conn, error) {
	stop := context.AfterFunc(ctx, func() {
		op.Logger.Info("dialCancelled", slog.String("spanId", op.SpanID), slog.Any("err", ctx.Err()))
		conn.Close()
	})
	return &cancelWatchedConn{Conn: conn, stop: stop}, nil
}

// cancelWatchedConn wraps a [net.Conn] with a context cancellation watcher.
type cancelWatchedConn struct {
	net.Conn
	stop func() bool
}

// Close unregisters the context watcher and closes the underlying connection.
func (c *cancelWatchedConn) Close() error {
	c.stop()
	return c.Conn.Close()
}
