package retrieval

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"net/url"
	"strings"
	"time"
)

// DomainPolicy classifies hosts by suffix. Blocked wins over trusted.
type DomainPolicy struct {
	trusted []string
	blocked []string
}

// NewDomainPolicy builds a policy from host suffix lists such as "gov.my" or
// "bernama.com".
func NewDomainPolicy(trusted, blocked []string) DomainPolicy {
	return DomainPolicy{trusted: cleanSuffixes(trusted), blocked: cleanSuffixes(blocked)}
}

func cleanSuffixes(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.Trim(strings.ToLower(strings.TrimSpace(s)), ".")
		s = strings.TrimPrefix(s, "www.")
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Tier returns the tier of domain. Unknown or empty domains are neutral.
func (p DomainPolicy) Tier(domain string) Tier {
	domain = strings.TrimPrefix(strings.ToLower(domain), "www.")
	if domain == "" {
		return TierNeutral
	}
	if matchSuffix(domain, p.blocked) {
		return TierBlocked
	}
	if matchSuffix(domain, p.trusted) {
		return TierTrusted
	}
	return TierNeutral
}

// matchSuffix matches on label boundaries: "gov.my" matches "www.pmo.gov.my"
// but not "notgov.my".
func matchSuffix(domain string, suffixes []string) bool {
	for _, s := range suffixes {
		if domain == s || strings.HasSuffix(domain, "."+s) {
			return true
		}
	}
	return false
}

// Freshness boosts recent documents: 1 + bonus * 2^(-age/halfLife).
type Freshness struct {
	Bonus    float64
	HalfLife time.Duration
}

// Multiplier returns the freshness multiplier at now. Documents without a
// timestamp get 1; future timestamps count as age zero.
func (f Freshness) Multiplier(published *time.Time, now time.Time) float64 {
	if published == nil || f.Bonus <= 0 || f.HalfLife <= 0 {
		return 1
	}
	age := now.Sub(*published)
	if age < 0 {
		age = 0
	}
	return 1 + f.Bonus*math.Exp2(-float64(age)/float64(f.HalfLife))
}

var trackingParams = map[string]bool{
	"fbclid": true, "gclid": true, "mc_cid": true, "mc_eid": true, "ref": true,
}

// CanonicalURL strips scheme, "www.", fragment, tracking parameters and the
// trailing slash so that trivially different links compare equal. Returns ""
// when raw has no host.
func CanonicalURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")

	q := u.Query()
	for k := range q {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "utm_") || trackingParams[lk] {
			q.Del(k)
		}
	}
	var sb strings.Builder
	sb.WriteString(host)
	sb.WriteString(strings.TrimRight(u.EscapedPath(), "/"))
	if len(q) > 0 {
		sb.WriteByte('?')
		sb.WriteString(q.Encode()) // sorted by key
	}
	return sb.String()
}

// Fingerprint is the sha256 of the lowercased, whitespace-folded text.
func Fingerprint(content string) string {
	folded := strings.Join(strings.Fields(strings.ToLower(content)), " ")
	sum := sha256.Sum256([]byte(folded))
	return hex.EncodeToString(sum[:])
}

// dedupKey identifies the same document across sources.
func dedupKey(c Candidate) string {
	if canon := CanonicalURL(c.URL); canon != "" {
		return "url:" + canon
	}
	return "fp:" + Fingerprint(c.Content)
}
