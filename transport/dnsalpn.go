//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/miekg/dns exchange-based client pattern,
// used by the teacher's DNSOverHTTPSConn/DNSOverTLSConn/DNSOverUDPConn for
// query/response exchanges, here adapted to resource-record inspection.
//

package transport

import (
	"context"
	"time"

	"github.com/miekg/dns"
)

// DNSAlpnResolver resolves the DNS HTTPS (type 65) resource record for an
// origin and reports whether its ALPN SvcParam advertises "h3". Nothing
// else in this module calls it: the core decides DNS-ALPN-H3 eligibility
// from configuration alone and [Pool] does not consult it, so a
// DNS-ALPN-H3 Job starts without any HTTPS-record lookup.
//
// All fields are safe to modify after construction but before first use.
type DNSAlpnResolver struct {
	// Client performs the DNS exchange.
	//
	// Set by [NewDNSAlpnResolver] to a plain UDP client with a 5 second
	// timeout.
	Client *dns.Client

	// Server is the DNS server to query, in "host:port" form.
	//
	// Set by [NewDNSAlpnResolver] to the user-provided value.
	Server string
}

// NewDNSAlpnResolver returns a [*DNSAlpnResolver] querying server (a
// "host:port" address; use "8.8.8.8:53" or similar when unsure).
func NewDNSAlpnResolver(server string) *DNSAlpnResolver {
	return &DNSAlpnResolver{
		Client: &dns.Client{Timeout: 5 * time.Second},
		Server: server,
	}
}

// SupportsH3 reports whether host advertises "h3" in an HTTPS (type 65)
// record's ALPN SvcParam. A lookup failure is reported as (false, err);
// callers should treat it the same as "not eligible" rather than fatal,
// since DNS-ALPN-H3 eligibility is just one more candidate Job to skip.
func (r *DNSAlpnResolver) SupportsH3(ctx context.Context, host string) (bool, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), dns.TypeHTTPS)

	resp, _, err := r.Client.ExchangeContext(ctx, msg, r.Server)
	if err != nil {
		return false, err
	}
	for _, rr := range resp.Answer {
		https, ok := rr.(*dns.HTTPS)
		if !ok {
			continue
		}
		if svcbParamAdvertisesH3(https.Value) {
			return true, nil
		}
	}
	return false, nil
}

func svcbParamAdvertisesH3(params []dns.SVCBKeyValue) bool {
	for _, kv := range params {
		alpn, ok := kv.(*dns.SVCBAlpn)
		if !ok {
			continue
		}
		for _, proto := range alpn.Alpn {
			if proto == "h3" {
				return true
			}
		}
	}
	return false
}
