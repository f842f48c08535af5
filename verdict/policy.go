package verdict

import "time"

// FallbackPolicy governs how long a cached, non-authoritative verdict may
// still answer "entitled" while the store service is unreachable. The
// choice is closed: either fallback is off, or a verdict stays usable for a
// fixed number of days past its computation.
type FallbackPolicy struct {
	enabled bool
	days    int
}

// FallbackOff disables fallback. An unreachable store always yields "not
// entitled" for non-authoritative verdicts.
func FallbackOff() FallbackPolicy {
	return FallbackPolicy{}
}

// FallbackDays keeps a cached verdict usable for n days past ComputedAt,
// additionally bounded by the verdict's hard expiration.
func FallbackDays(n int) FallbackPolicy {
	return FallbackPolicy{enabled: true, days: n}
}

func (p FallbackPolicy) allows(v Verdict, now time.Time) bool {
	if !p.enabled {
		return false
	}
	if now.After(v.ComputedAt.Add(time.Duration(p.days) * 24 * time.Hour)) {
		return false
	}
	if v.HardExpiresAt != nil && now.After(*v.HardExpiresAt) {
		return false
	}
	return true
}
