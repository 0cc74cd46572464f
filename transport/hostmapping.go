// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import sf "github.com/bassosimone/streamfactory"

// IdentityHostMappingRules is a transport-local alias for [sf.IdentityHostMapping],
// re-exported so callers configuring the transport package need not import
// the core package just for the default no-op rule.
type IdentityHostMappingRules = sf.IdentityHostMapping

// TableHostMappingRules rewrites a host (and, optionally, its port) using
// a fixed lookup table, the same shape of substitution session params
// apply via a host_mapping_rules table, per §4.F.
//
// The zero value has empty tables and rewrites nothing.
type TableHostMappingRules struct {
	// Hosts maps an origin host to its replacement. A missing entry
	// leaves the host unchanged.
	Hosts map[string]string

	// Ports maps an origin host to its replacement port, keyed by the
	// *original* host (before any [TableHostMappingRules.Hosts]
	// substitution). A missing entry leaves the port unchanged.
	Ports map[string]int
}

var _ sf.HostMappingRules = TableHostMappingRules{}

// Rewrite implements [sf.HostMappingRules].
func (t TableHostMappingRules) Rewrite(host string, port int) (string, int) {
	if p, ok := t.Ports[host]; ok {
		port = p
	}
	if h, ok := t.Hosts[host]; ok {
		host = h
	}
	return host, port
}
