// SPDX-License-Identifier: GPL-3.0-or-later

package streamfactory

import "time"

// AlternativeService describes a server's advertisement that a given
// origin is also reachable at another (host, port) speaking some
// protocol, per the data model.
type AlternativeService struct {
	Protocol Protocol
	Host     string
	Port     int

	// Expiration is the time after which this entry is no longer
	// usable. A read at time t MUST filter entries with Expiration <= t.
	Expiration time.Time

	// AdvertisedQUICVersions is the server's offered QUIC version list,
	// meaningful only when Protocol.Kind is [ProtocolQUIC].
	AdvertisedQUICVersions []QUICVersion
}

// Expired reports whether this entry is expired as of now. Boundary is
// expired: Expiration <= now.
func (a AlternativeService) Expired(now time.Time) bool {
	return !a.Expiration.After(now)
}

// AltServiceKey identifies an alternative-service *destination*,
// independent of its expiration time, suitable as a brokenness-record
// map key: `(alt_service, nak)` per §4.A.
type AltServiceKey struct {
	ProtocolKind ProtocolKind
	QUICVersion  QUICVersion
	Host         string
	Port         int
}

// Key returns the brokenness-record key for this alternative service.
func (a AlternativeService) Key() AltServiceKey {
	return AltServiceKey{
		ProtocolKind: a.Protocol.Kind,
		QUICVersion:  a.Protocol.QUICVersion,
		Host:         a.Host,
		Port:         a.Port,
	}
}

// AlternativeServiceInfo is the read-facing view of an
// [AlternativeService] returned by [Registry.GetAlternatives]: the same
// data, already filtered for expiration and brokenness is queried
// separately via [Registry.IsBroken].
type AlternativeServiceInfo = AlternativeService
