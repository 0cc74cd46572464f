// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"context"
	"net/url"
	"testing"

	sf "github.com/bassosimone/streamfactory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoProxyResolverAlwaysDirect(t *testing.T) {
	u, err := url.Parse("https://example.test/")
	require.NoError(t, err)

	proxies, err := NoProxyResolver{}.Resolve(context.Background(), u, "GET", sf.NetworkAnonymizationKey{})
	require.NoError(t, err)
	require.Len(t, proxies, 1)
	assert.True(t, proxies[0].Direct)
}

func TestStaticProxyResolverReturnsConfiguredList(t *testing.T) {
	u, err := url.Parse("https://example.test/")
	require.NoError(t, err)

	want := sf.ProxyInfoList{
		{Scheme: "https", Host: "proxy1.test", Port: 443},
		{Scheme: "https", Host: "proxy2.test", Port: 443},
	}
	r := StaticProxyResolver{Proxies: want}

	got, err := r.Resolve(context.Background(), u, "GET", sf.NetworkAnonymizationKey{})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStaticProxyResolverFallsBackToDirect(t *testing.T) {
	u, err := url.Parse("https://example.test/")
	require.NoError(t, err)

	r := StaticProxyResolver{}
	got, err := r.Resolve(context.Background(), u, "GET", sf.NetworkAnonymizationKey{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Direct)
}
