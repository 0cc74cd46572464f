// SPDX-License-Identifier: GPL-3.0-or-later

package streamfactory

import (
	"context"
	"crypto/tls"
	"net/url"
	"strconv"
	"sync"

	"github.com/bassosimone/runtimex"
)

// Factory is Component E: the process-wide entry point. It owns the set
// of live Controllers and a small LRU-ish set of proxy servers currently
// being preconnected, used to suppress duplicate proxy preconnects,
// per §4.E.
type Factory struct {
	cfg      *Config
	pool     ConnectionPool
	registry *Registry
	resolver ProxyResolver

	mu              sync.Mutex
	controllers     map[*Controller]struct{}
	preconnecting   map[preconnectKey]struct{}
	preconnectOrder []preconnectKey
}

// preconnectKey identifies a proxy server + privacy-mode pair in the
// Factory's preconnect-dedup set.
type preconnectKey struct {
	Proxy       ProxyInfo
	PrivacyMode bool
}

// NewFactory constructs a [*Factory] wired to its collaborators. cfg
// supplies the [Registry]'s backoff parameters and every other ambient
// knob; pool and resolver are the caller's socket-pool and proxy-
// resolution collaborators.
func NewFactory(cfg *Config, pool ConnectionPool, resolver ProxyResolver) *Factory {
	runtimex.Assert(cfg != nil)
	runtimex.Assert(pool != nil)
	runtimex.Assert(resolver != nil)
	return &Factory{
		cfg:           cfg,
		pool:          pool,
		registry:      NewRegistry(cfg),
		resolver:      resolver,
		controllers:   make(map[*Controller]struct{}),
		preconnecting: make(map[preconnectKey]struct{}),
	}
}

// Registry returns the Factory's [*Registry], for callers that want to
// inspect or seed alternative-service state directly (mainly tests).
func (f *Factory) Registry() *Registry { return f.registry }

// defaultPortForScheme returns the default TCP port for scheme, or 0 if
// unknown.
func defaultPortForScheme(scheme string) int {
	switch scheme {
	case "https", "wss":
		return 443
	case "http", "ws":
		return 80
	default:
		return 0
	}
}

// originFromURL builds an [Origin] from u, applying the Factory's
// host-mapping rules.
func (f *Factory) originFromURL(u *url.URL) Origin {
	host := u.Hostname()
	port := defaultPortForScheme(u.Scheme)
	if p := u.Port(); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			port = n
		}
	}
	host, port = f.cfg.HostMapping.Rewrite(host, port)
	return Origin{Scheme: u.Scheme, Host: host, Port: port}
}

// newController allocates a [*Controller] for u, registered in the
// Factory's controller set.
func (f *Factory) newController(method string, u *url.URL, nak NetworkAnonymizationKey, flags JobFlags) *Controller {
	origin := f.originFromURL(u)
	tlsConf := &tls.Config{ServerName: origin.Host}
	c := NewController(f.cfg, f.pool, f.registry, f.resolver, method, u, origin, nak, tlsConf, flags, f.onJobControllerComplete)
	f.mu.Lock()
	f.controllers[c] = struct{}{}
	f.mu.Unlock()
	return c
}

// RequestStream requests a plain HTTP stream to u.
func (f *Factory) RequestStream(u *url.URL, method string, priority Priority, delegate RequestDelegate, flags JobFlags, nak NetworkAnonymizationKey) *Request {
	c := f.newController(method, u, nak, flags)
	return c.Start(HttpStream, priority, delegate)
}

// RequestBidirectionalStream requests a bidirectional stream to u.
func (f *Factory) RequestBidirectionalStream(u *url.URL, method string, priority Priority, delegate RequestDelegate, flags JobFlags, nak NetworkAnonymizationKey) *Request {
	c := f.newController(method, u, nak, flags)
	return c.Start(BidirectionalStream, priority, delegate)
}

// RequestWebSocketHandshakeStream requests a stream for a WebSocket
// handshake to u.
func (f *Factory) RequestWebSocketHandshakeStream(u *url.URL, method string, priority Priority, delegate RequestDelegate, flags JobFlags, nak NetworkAnonymizationKey) *Request {
	c := f.newController(method, u, nak, flags)
	return c.Start(WebSocketHandshake, priority, delegate)
}

// PreconnectStreams preconnects n streams to u. An invalid/unroutable u
// is silently accepted as a no-op, per §4.E.
//
// Proxy resolution happens here, up front, rather than inside the
// Controller: deduplication needs the resolved proxy before a Controller
// (and its Jobs) are even created.
func (f *Factory) PreconnectStreams(n int, u *url.URL, nak NetworkAnonymizationKey) {
	if u == nil || u.Hostname() == "" {
		return
	}
	proxies, err := f.resolver.Resolve(context.Background(), u, "GET", nak)
	if err != nil || len(proxies) == 0 {
		return
	}
	proxy := proxies[0]
	key := preconnectKey{Proxy: proxy, PrivacyMode: nak != (NetworkAnonymizationKey{})}

	if isPriorityCapableProxy(proxy) {
		f.mu.Lock()
		if _, dup := f.preconnecting[key]; dup {
			f.mu.Unlock()
			f.cfg.Metrics.PreconnectDedupHit()
			return
		}
		f.insertPreconnectingLocked(key)
		f.mu.Unlock()
	}

	c := f.newController("GET", u, nak, JobFlags{})
	c.setPresetProxies(proxies)
	c.Preconnect(n, 0)
}

// isPriorityCapableProxy reports whether proxy is the kind of proxy
// worth deduplicating preconnects against: an HTTPS proxy, which (unlike
// a direct connection) multiplexes many origins over one session.
func isPriorityCapableProxy(proxy ProxyInfo) bool {
	return !proxy.Direct && proxy.Scheme == "https"
}

// insertPreconnectingLocked adds key to the preconnect-dedup set,
// evicting the oldest entry if the set is already at capacity. Callers
// must hold f.mu.
func (f *Factory) insertPreconnectingLocked(key preconnectKey) {
	capacity := f.cfg.MaxPreconnectingProxyServers
	if capacity <= 0 {
		capacity = 3
	}
	if len(f.preconnectOrder) >= capacity {
		oldest := f.preconnectOrder[0]
		f.preconnectOrder = f.preconnectOrder[1:]
		delete(f.preconnecting, oldest)
	}
	f.preconnecting[key] = struct{}{}
	f.preconnectOrder = append(f.preconnectOrder, key)
}

// ProcessAlternativeServices parses an Alt-Svc header value and writes
// the result into the Registry, per §4.E. Invalid entries are skipped,
// not rejected; a "clear" token clears the origin's stored list.
func (f *Factory) ProcessAlternativeServices(headerValue string, origin Origin, nak NetworkAnonymizationKey) {
	now := f.cfg.TimeNow()
	entries := ParseAltSvc(headerValue, now)
	if len(entries) == 0 {
		return
	}
	if entries[0].Clear {
		f.registry.SetAlternatives(origin, nak, nil)
		return
	}

	list := make([]AlternativeService, 0, len(entries))
	for _, e := range entries {
		switch e.Protocol.Kind {
		case ProtocolHTTP2:
			if !f.cfg.EnableHTTP2 {
				continue
			}
		case ProtocolQUIC:
			if !f.cfg.EnableQUIC {
				continue
			}
		case ProtocolHTTP1_1:
			// Valid but never a useful alternative-service target; the
			// teacher's upstream skips these the same way.
			continue
		default:
			continue
		}
		if e.Port <= 0 || e.Port > 65535 {
			continue
		}
		host := e.Host
		if host == "" {
			host = origin.Host
		}
		host, port := f.cfg.HostMapping.Rewrite(host, e.Port)
		list = append(list, AlternativeService{
			Protocol:               e.Protocol,
			Host:                   host,
			Port:                   port,
			Expiration:             e.Expiration,
			AdvertisedQUICVersions: e.AdvertisedQUICVersions,
		})
	}
	f.registry.SetAlternatives(origin, nak, list)
}

// OnDefaultNetworkChanged forwards a default-network-change signal to
// the Registry, unless the Factory is configured to ignore IP address
// changes entirely.
func (f *Factory) OnDefaultNetworkChanged() {
	if f.cfg.IgnoreIPAddressChanges {
		return
	}
	f.registry.OnDefaultNetworkChanged()
}

// onJobControllerComplete removes c from the Factory's controller set,
// per §4.E.
func (f *Factory) onJobControllerComplete(c *Controller) {
	f.mu.Lock()
	delete(f.controllers, c)
	f.mu.Unlock()
}

// ControllerCount returns the number of live Controllers, mainly useful
// for tests.
func (f *Factory) ControllerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.controllers)
}
