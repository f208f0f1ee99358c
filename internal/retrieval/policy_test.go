package retrieval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDomainPolicy_Tier(t *testing.T) {
	p := NewDomainPolicy([]string{"gov.my", " Bernama.com ", "www.ukm.my"}, []string{"spam.example", "bad.gov.my"})

	tests := []struct {
		domain string
		want   Tier
	}{
		{"parlimen.gov.my", TierTrusted},
		{"gov.my", TierTrusted},
		{"www.bernama.com", TierTrusted},
		{"ukm.my", TierTrusted},
		{"notgov.my", TierNeutral},
		{"bad.gov.my", TierBlocked},
		{"x.bad.gov.my", TierBlocked},
		{"spam.example", TierBlocked},
		{"example.com", TierNeutral},
		{"", TierNeutral},
	}
	for _, tc := range tests {
		t.Run(tc.domain, func(t *testing.T) {
			assert.Equal(t, tc.want, p.Tier(tc.domain))
		})
	}
}

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"scheme and www", "https://www.Bernama.com/bm/news", "bernama.com/bm/news"},
		{"trailing slash", "http://bernama.com/bm/news/", "bernama.com/bm/news"},
		{"fragment", "https://bernama.com/bm/news#top", "bernama.com/bm/news"},
		{"tracking params", "https://bernama.com/a?utm_source=x&fbclid=1&id=7", "bernama.com/a?id=7"},
		{"params sorted", "https://bernama.com/a?z=1&a=2", "bernama.com/a?a=2&z=1"},
		{"root", "https://bernama.com/", "bernama.com"},
		{"no host", "not a url", ""},
		{"empty", "", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CanonicalURL(tc.in))
		})
	}
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, Fingerprint("Nasi  Lemak\nsedap"), Fingerprint("nasi lemak sedap"))
	assert.NotEqual(t, Fingerprint("nasi lemak"), Fingerprint("nasi goreng"))
	assert.Len(t, Fingerprint("x"), 64)
}

func TestFreshness_Multiplier(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	f := Freshness{Bonus: 0.5, HalfLife: 24 * time.Hour}
	at := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}

	assert.Equal(t, 1.0, f.Multiplier(nil, now))
	assert.InDelta(t, 1.5, f.Multiplier(at(0), now), 1e-9)
	assert.InDelta(t, 1.25, f.Multiplier(at(24*time.Hour), now), 1e-9)
	assert.InDelta(t, 1.125, f.Multiplier(at(48*time.Hour), now), 1e-9)
	assert.InDelta(t, 1.5, f.Multiplier(at(-time.Hour), now), 1e-9, "future timestamps are age zero")
	assert.Equal(t, 1.0, Freshness{}.Multiplier(at(0), now))
}
