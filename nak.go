// SPDX-License-Identifier: GPL-3.0-or-later

package streamfactory

// NetworkAnonymizationKey (NAK) is a per-partition isolation key used to
// separate alternative-service state across privacy contexts. It is a
// plain comparable struct so it can be used directly as a map key.
//
// The zero value is the "no isolation" key, appropriate when the caller
// does not partition state by top-frame site.
type NetworkAnonymizationKey struct {
	// TopFrameSite identifies the top-level site the request is made on
	// behalf of.
	TopFrameSite string

	// IsCrossSite is true when the request's origin differs from
	// TopFrameSite.
	IsCrossSite bool
}
