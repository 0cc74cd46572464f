// SPDX-License-Identifier: GPL-3.0-or-later

package streamfactory

import (
	"sync"
	"time"

	"github.com/bassosimone/runtimex"
)

// registryKey groups the Registry's two mappings by (origin, nak).
type registryKey struct {
	Origin Origin
	NAK    NetworkAnonymizationKey
}

// brokenKey identifies one brokenness record by (alt_service, nak).
type brokenKey struct {
	Alt AltServiceKey
	NAK NetworkAnonymizationKey
}

// Registry is Component A: it translates an origin + network key into
// an ordered list of currently usable alternative services, and absorbs
// feedback about which ones are broken.
//
// Registry MAY be accessed concurrently by multiple task sequences; all
// methods hold an internal [sync.RWMutex] and are safe for concurrent
// readers and exclusive writers, per §5.
type Registry struct {
	mu sync.RWMutex

	alternatives map[registryKey][]AlternativeService
	broken       map[brokenKey]*brokenRecord

	initialBrokenDelay time.Duration
	brokenDelayCap     time.Duration
	timeNow            func() time.Time
}

// NewRegistry returns an empty [*Registry] configured from cfg.
func NewRegistry(cfg *Config) *Registry {
	runtimex.Assert(cfg != nil)
	return &Registry{
		alternatives:       make(map[registryKey][]AlternativeService),
		broken:             make(map[brokenKey]*brokenRecord),
		initialBrokenDelay: cfg.InitialBrokenDelay,
		brokenDelayCap:     cfg.BrokenDelayCap,
		timeNow:            cfg.TimeNow,
	}
}

// SetAlternatives replaces the stored list for (origin, nak). The list
// order expresses server preference; ties in later ordering are broken
// by the order given here.
//
// Invariant maintained: if a service is absent from the resulting list
// it is also removed from the brokenness mapping.
func (r *Registry) SetAlternatives(origin Origin, nak NetworkAnonymizationKey, list []AlternativeService) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := registryKey{Origin: origin, NAK: nak}
	stored := make([]AlternativeService, len(list))
	copy(stored, list)
	r.alternatives[key] = stored

	keep := make(map[AltServiceKey]struct{}, len(stored))
	for _, alt := range stored {
		keep[alt.Key()] = struct{}{}
	}
	for bk := range r.broken {
		if bk.NAK != nak {
			continue
		}
		if _, ok := keep[bk.Alt]; !ok {
			delete(r.broken, bk)
		}
	}
}

// GetAlternatives returns the non-expired entries for (origin, nak), in
// stored order.
func (r *Registry) GetAlternatives(origin Origin, nak NetworkAnonymizationKey) []AlternativeServiceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := registryKey{Origin: origin, NAK: nak}
	stored := r.alternatives[key]
	if len(stored) == 0 {
		return nil
	}
	now := r.timeNow()
	out := make([]AlternativeServiceInfo, 0, len(stored))
	for _, alt := range stored {
		if alt.Expired(now) {
			continue
		}
		out = append(out, alt)
	}
	return out
}

// IsBroken reports whether a brokenness record forbids use of alt for
// nak, at the current time.
func (r *Registry) IsBroken(alt AlternativeService, nak NetworkAnonymizationKey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isBrokenLocked(alt.Key(), nak)
}

func (r *Registry) isBrokenLocked(key AltServiceKey, nak NetworkAnonymizationKey) bool {
	rec, ok := r.broken[brokenKey{Alt: key, NAK: nak}]
	if !ok {
		return false
	}
	switch rec.status {
	case BrokenUntilDefaultNetworkChanges:
		return true
	case Broken:
		return r.timeNow().Before(rec.retryAt)
	default:
		return false
	}
}

// MarkBroken sets the Broken status for (alt, nak). Subsequent
// scheduling avoids this alternative until an exponential backoff
// elapses. Idempotent in observable effect: calling it twice leaves the
// record Broken, but the backoff delay after the second call is >= the
// delay after the first.
func (r *Registry) MarkBroken(alt AlternativeService, nak NetworkAnonymizationKey) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bk := brokenKey{Alt: alt.Key(), NAK: nak}
	rec, ok := r.broken[bk]
	if !ok {
		rec = &brokenRecord{}
		r.broken[bk] = rec
	}
	rec.delay = nextBackoff(rec.delay, r.initialBrokenDelay, r.brokenDelayCap)
	rec.status = Broken
	rec.retryAt = r.timeNow().Add(rec.delay)
}

// MarkBrokenUntilDefaultNetworkChanges sets the softer
// BrokenUntilDefaultNetworkChanges status for (alt, nak); it clears
// automatically on the next [Registry.OnDefaultNetworkChanged] call.
func (r *Registry) MarkBrokenUntilDefaultNetworkChanges(alt AlternativeService, nak NetworkAnonymizationKey) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bk := brokenKey{Alt: alt.Key(), NAK: nak}
	rec, ok := r.broken[bk]
	if !ok {
		rec = &brokenRecord{}
		r.broken[bk] = rec
	}
	rec.status = BrokenUntilDefaultNetworkChanges
}

// OnDefaultNetworkChanged clears the softer brokenness state
// (BrokenUntilDefaultNetworkChanges) for all entries. Persistent
// [Broken] records are left untouched: within one network-change
// epoch, no record transitions from Broken back to Working except
// through explicit clearing, per the monotonicity invariant.
func (r *Registry) OnDefaultNetworkChanged() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.broken {
		if rec.status == BrokenUntilDefaultNetworkChanges {
			rec.status = Working
		}
	}
}
