package contentrules

import (
	"net/url"
	"strings"
)

// SMTPSessionFacts is the subset of a finished SMTP session's state the
// close-time content rule needs.
type SMTPSessionFacts struct {
	RcptCount      int
	VrfyExpnCount  int
	RcptDomains    map[string]struct{}
	DataBody       string
}

// EvaluateSMTPSession applies the three close-time SMTP content rules in
// order: harvesting, relay attempt, spam. Only the first match is
// reported, matching the single internal_kind-per-observation contract.
func EvaluateSMTPSession(f SMTPSessionFacts) (internalKind, description string, ok bool) {
	if f.RcptCount > 10 || f.VrfyExpnCount > 5 {
		return "email_harvesting", "excessive RCPT TO / VRFY / EXPN in one session", true
	}

	if f.RcptCount > 5 && len(f.RcptDomains) > 3 {
		return "smtp_relay_attempt", "RCPT TO spans many distinct domains", true
	}

	if isSpamBody(f.DataBody) {
		return "smtp_spam_attempt", "spam heuristic matched on DATA body", true
	}

	return "", "", false
}

func isSpamBody(body string) bool {
	if body == "" {
		return false
	}
	lower := strings.ToLower(body)

	if countURLs(lower) > 10 {
		return true
	}
	if strings.Contains(lower, "display:none") || strings.Contains(lower, "visibility:hidden") {
		return true
	}
	for _, phrase := range SpamPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func countURLs(s string) int {
	count := 0
	for _, scheme := range []string{"http://", "https://"} {
		idx := 0
		for {
			pos := strings.Index(s[idx:], scheme)
			if pos < 0 {
				break
			}
			idx += pos + len(scheme)
			count++
		}
	}
	return count
}

// ExtractDomain returns the domain part of an RCPT TO address, used to
// build the distinct-domain set for the relay-attempt rule.
func ExtractDomain(addr string) string {
	addr = strings.Trim(addr, "<>")
	at := strings.LastIndex(addr, "@")
	if at < 0 || at == len(addr)-1 {
		return ""
	}
	return strings.ToLower(addr[at+1:])
}

// NormalizeRcptTarget applies best-effort unescaping to an RCPT TO/MAIL
// FROM parameter before ExtractDomain, since some clients send
// URL-encoded local parts as a probing technique.
func NormalizeRcptTarget(raw string) string {
	if decoded, err := url.QueryUnescape(raw); err == nil {
		return decoded
	}
	return raw
}
