package contentrules

import (
	"math"
	"strings"
)

// ClassifyUserAgent maps a request's user-agent header to one of the
// reconnaissance canonical kinds. A honeypot sees each attacker for a
// single short-lived session far more often than a repeat visitor, so
// unlike a production WAF's rotation tracker this classifier decides from
// one string: known scanner tooling, a crawler claim that fails the
// "compatible" shape real crawlers use, or a low-entropy/empty value
// typical of hand-rolled scripts.
func ClassifyUserAgent(ua string) (kind string, description string, ok bool) {
	lower := strings.ToLower(ua)

	for _, scanner := range ScannerUserAgents {
		if strings.Contains(lower, scanner) {
			return "suspicious_user_agent", "known scanner tool user-agent", true
		}
	}

	for _, claim := range FakeCrawlerClaims {
		if strings.Contains(lower, claim) && !strings.Contains(lower, "compatible") {
			return "fake_crawler", "crawler claim without standard compatibility token", true
		}
	}

	if ua == "" {
		return "suspicious_user_agent", "empty user-agent", true
	}

	if shannonEntropy(ua) < 2.0 && len(ua) < 12 {
		return "suspicious_user_agent", "low-entropy user-agent typical of scripted clients", true
	}

	return "", "", false
}

func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	counts := make(map[rune]int)
	for _, r := range s {
		counts[r]++
	}
	n := float64(len(s))
	var h float64
	for _, c := range counts {
		p := float64(c) / n
		h -= p * math.Log2(p)
	}
	return h
}
