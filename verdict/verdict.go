// Package verdict holds the per-product entitlement verdicts, the fallback
// policy that governs cached answers, and the durable cache that persists
// them.
package verdict

import (
	"time"

	"purchasekit/store"
)

// Verdict is the cached, timestamped entitlement computation for one
// product.
type Verdict struct {
	// ComputedAt is when the verdict was last derived from a freshly
	// verified record.
	ComputedAt time.Time `json:"computed_at"`
	// Active is false when the store revoked the purchase. Revocation wins
	// over every fallback rule.
	Active bool `json:"active"`
	// HardExpiresAt is the store-side expiration boundary, when present.
	// It bounds fallback answers even for non-authoritative verdicts.
	HardExpiresAt *time.Time `json:"hard_expires_at,omitempty"`
	// Authoritative is true only for verdicts computed in this session from
	// a verified record. It is deliberately not persisted: anything read
	// back from storage answers under the fallback policy.
	Authoritative bool `json:"-"`
}

// FromTransaction derives a fresh, authoritative verdict from a verified
// transaction.
func FromTransaction(tx *store.Transaction, now time.Time) Verdict {
	v := Verdict{
		ComputedAt:    now,
		Active:        tx.RevokedAt == nil,
		Authoritative: true,
	}
	if tx.ExpiresAt != nil {
		t := *tx.ExpiresAt
		v.HardExpiresAt = &t
	}
	return v
}

// Equal reports whether two verdicts carry identical content.
func (v Verdict) Equal(o Verdict) bool {
	if !v.ComputedAt.Equal(o.ComputedAt) || v.Active != o.Active || v.Authoritative != o.Authoritative {
		return false
	}
	switch {
	case v.HardExpiresAt == nil && o.HardExpiresAt == nil:
		return true
	case v.HardExpiresAt == nil || o.HardExpiresAt == nil:
		return false
	default:
		return v.HardExpiresAt.Equal(*o.HardExpiresAt)
	}
}
