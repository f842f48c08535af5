package verdict

import (
	"testing"
	"time"

	"purchasekit/store"
)

func TestFromTransaction(t *testing.T) {
	now := time.Now()
	expiry := now.Add(30 * 24 * time.Hour)
	revoked := now.Add(-time.Hour)

	tests := []struct {
		name       string
		tx         store.Transaction
		wantActive bool
		wantExpiry *time.Time
	}{
		{name: "plain purchase", tx: store.Transaction{ProductID: "p1"}, wantActive: true},
		{name: "subscription", tx: store.Transaction{ProductID: "p2", ExpiresAt: &expiry}, wantActive: true, wantExpiry: &expiry},
		{name: "revoked", tx: store.Transaction{ProductID: "p3", RevokedAt: &revoked}, wantActive: false},
	}

	for _, tt := range tests {
		v := FromTransaction(&tt.tx, now)
		if v.Active != tt.wantActive {
			t.Fatalf("%s: Active = %t, want %t", tt.name, v.Active, tt.wantActive)
		}
		if !v.Authoritative {
			t.Fatalf("%s: fresh verdict must be authoritative", tt.name)
		}
		if !v.ComputedAt.Equal(now) {
			t.Fatalf("%s: ComputedAt = %v, want %v", tt.name, v.ComputedAt, now)
		}
		if (v.HardExpiresAt == nil) != (tt.wantExpiry == nil) {
			t.Fatalf("%s: HardExpiresAt presence mismatch", tt.name)
		}
		if tt.wantExpiry != nil && !v.HardExpiresAt.Equal(*tt.wantExpiry) {
			t.Fatalf("%s: HardExpiresAt = %v, want %v", tt.name, v.HardExpiresAt, tt.wantExpiry)
		}
	}
}

func TestVerdictEqual(t *testing.T) {
	now := time.Now()
	exp := now.Add(time.Hour)
	base := Verdict{ComputedAt: now, Active: true}

	if !base.Equal(Verdict{ComputedAt: now, Active: true}) {
		t.Fatalf("identical verdicts must compare equal")
	}
	if base.Equal(Verdict{ComputedAt: now, Active: false}) {
		t.Fatalf("active flag must affect equality")
	}
	if base.Equal(Verdict{ComputedAt: now.Add(time.Second), Active: true}) {
		t.Fatalf("computation time must affect equality")
	}
	if base.Equal(Verdict{ComputedAt: now, Active: true, HardExpiresAt: &exp}) {
		t.Fatalf("hard expiry presence must affect equality")
	}
	if base.Equal(Verdict{ComputedAt: now, Active: true, Authoritative: true}) {
		t.Fatalf("authoritative flag must affect equality")
	}
}

func TestFallbackPolicy(t *testing.T) {
	now := time.Now()
	soon := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		name   string
		policy FallbackPolicy
		v      Verdict
		want   bool
	}{
		{name: "off never allows", policy: FallbackOff(),
			v: Verdict{ComputedAt: now, Active: true}, want: false},
		{name: "within window", policy: FallbackDays(7),
			v: Verdict{ComputedAt: now.Add(-6 * 24 * time.Hour), Active: true}, want: true},
		{name: "window just open", policy: FallbackDays(7),
			v: Verdict{ComputedAt: now.Add(-7*24*time.Hour + time.Minute), Active: true}, want: true},
		{name: "window expired", policy: FallbackDays(7),
			v: Verdict{ComputedAt: now.Add(-7*24*time.Hour - time.Minute), Active: true}, want: false},
		{name: "ten day old verdict under seven day policy", policy: FallbackDays(7),
			v: Verdict{ComputedAt: now.Add(-10 * 24 * time.Hour), Active: true}, want: false},
		{name: "hard expiry bounds window", policy: FallbackDays(7),
			v: Verdict{ComputedAt: now.Add(-time.Hour), Active: true, HardExpiresAt: &past}, want: false},
		{name: "future hard expiry", policy: FallbackDays(7),
			v: Verdict{ComputedAt: now.Add(-time.Hour), Active: true, HardExpiresAt: &soon}, want: true},
	}

	for _, tt := range tests {
		if got := tt.policy.allows(tt.v, now); got != tt.want {
			t.Fatalf("%s: allows = %t, want %t", tt.name, got, tt.want)
		}
	}
}
