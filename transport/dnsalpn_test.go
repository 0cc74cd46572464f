// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
)

func TestNewDNSAlpnResolverSetsUpClient(t *testing.T) {
	r := NewDNSAlpnResolver("8.8.8.8:53")
	assert.Equal(t, "8.8.8.8:53", r.Server)
	assert.NotNil(t, r.Client)
	assert.Equal(t, 5*time.Second, r.Client.Timeout)
}

func TestSvcbParamAdvertisesH3(t *testing.T) {
	tests := []struct {
		name   string
		params []dns.SVCBKeyValue
		want   bool
	}{
		{
			name:   "no params",
			params: nil,
			want:   false,
		},
		{
			name:   "alpn without h3",
			params: []dns.SVCBKeyValue{&dns.SVCBAlpn{Alpn: []string{"h2"}}},
			want:   false,
		},
		{
			name:   "alpn with h3",
			params: []dns.SVCBKeyValue{&dns.SVCBAlpn{Alpn: []string{"h2", "h3"}}},
			want:   true,
		},
		{
			name:   "non-alpn param ignored",
			params: []dns.SVCBKeyValue{&dns.SVCBPort{Port: 443}},
			want:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svcbParamAdvertisesH3(tt.params))
		})
	}
}
