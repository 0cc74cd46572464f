// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"context"
	"net/url"

	sf "github.com/bassosimone/streamfactory"
)

// NoProxyResolver always resolves to a direct connection, per §4.F.
//
// The zero value is ready to use.
type NoProxyResolver struct{}

var _ sf.ProxyResolver = NoProxyResolver{}

// Resolve implements [sf.ProxyResolver].
func (NoProxyResolver) Resolve(ctx context.Context, u *url.URL, method string, nak sf.NetworkAnonymizationKey) (sf.ProxyInfoList, error) {
	return sf.ProxyInfoList{{Direct: true}}, nil
}

// StaticProxyResolver always returns the same fixed proxy list, regardless
// of the request URL, per §4.F. An empty Proxies list falls back to a
// direct connection rather than returning no candidates.
type StaticProxyResolver struct {
	Proxies sf.ProxyInfoList
}

var _ sf.ProxyResolver = StaticProxyResolver{}

// Resolve implements [sf.ProxyResolver].
func (r StaticProxyResolver) Resolve(ctx context.Context, u *url.URL, method string, nak sf.NetworkAnonymizationKey) (sf.ProxyInfoList, error) {
	if len(r.Proxies) == 0 {
		return sf.ProxyInfoList{{Direct: true}}, nil
	}
	return r.Proxies, nil
}
