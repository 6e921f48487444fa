// Package classification implements the classification adapter (C2): a
// deterministic, table-driven mapping from a listener's free-form internal
// kind to a canonical attack record.
package classification

import (
	"strings"
	"time"

	"github.com/oriongate/sentryhive/internal/domain"
)

// internalKindMap is the closed set of internal-kind strings every
// listener is allowed to emit, mapped directly to a canonical kind. Kinds
// not present here fall through to the evidence-aware refinement rules,
// then to DefaultKind.
var internalKindMap = map[string]domain.Kind{
	"suspicious_user_agent": domain.KindSuspiciousUserAgent,
	"directory_listing":     domain.KindDirectoryListing,
	"excessive_404":         domain.KindExcessive404,
	"suspicious_query":      domain.KindSuspiciousQuery,
	"fake_crawler":          domain.KindFakeCrawler,
	"rate_limit_breach":     domain.KindRateLimitBreach,
	"api_abuse":             domain.KindAPIAbuse,
	"port_scan":             domain.KindPortScan,
	"comment_spam":          domain.KindCommentSpam,
	"credential_stuffing":   domain.KindCredentialStuffing,
	"xss_attempt":           domain.KindXSSAttempt,
	"csrf_attempt":          domain.KindCSRFAttempt,
	"path_traversal":        domain.KindPathTraversal,
	"auth_breach":           domain.KindAuthBreach,
	"sqli_attempt":          domain.KindSQLiAttempt,
	"ssh_bruteforce":        domain.KindSSHBruteforce,
	"http_flood":            domain.KindHTTPFlood,
	"mail_spam":             domain.KindMailSpam,
	"command_injection":     domain.KindCommandInjection,
	"http_injection":        domain.KindHTTPInjection,
	"data_exfiltration":     domain.KindDataExfiltration,
	"botnet_activity":       domain.KindBotnetActivity,
	"ransomware":            domain.KindRansomware,
	"ddos":                  domain.KindDDoS,
	"targeted_attack":       domain.KindTargetedAttack,
	"manual":                domain.KindManual,
	"tor_exit":              domain.KindTorExit,
	"proxy_abuse":           domain.KindProxyAbuse,
	"vpn_abuse":             domain.KindVPNAbuse,
	"honeypot":              domain.KindHoneypot,

	// Protocol-specific internal labels that map onto an existing
	// canonical kind rather than introducing a new one.
	"ftp_bruteforce":     domain.KindCredentialStuffing,
	"pop3_bruteforce":    domain.KindCredentialStuffing,
	"imap_bruteforce":    domain.KindCredentialStuffing,
	"http_bruteforce":    domain.KindCredentialStuffing,
	"smtp_bruteforce":    domain.KindCredentialStuffing,
	"mysql_auth_attempt": domain.KindAuthBreach,
	"email_harvesting":   domain.KindAPIAbuse,
	"smtp_relay_attempt": domain.KindMailSpam,
	"smtp_spam_attempt":  domain.KindMailSpam,

	// Rapid-connection rule labels, one per protocol (checkRapidConnection
	// emits "<protocol>_bruteforce_scan"). SSH keeps its own dedicated
	// canonical kind per the taxonomy; every other protocol maps onto the
	// same credential-stuffing kind its own *_bruteforce label uses, since
	// a burst of rapid reconnects against an auth-gated protocol is the
	// same underlying behavior the bruteforce rule already names.
	"bruteforce_scan":       domain.KindPortScan,
	"ssh_bruteforce_scan":   domain.KindSSHBruteforce,
	"http_bruteforce_scan":  domain.KindCredentialStuffing,
	"https_bruteforce_scan": domain.KindCredentialStuffing,
	"ftp_bruteforce_scan":   domain.KindCredentialStuffing,
	"smtp_bruteforce_scan":  domain.KindCredentialStuffing,
	"pop3_bruteforce_scan":  domain.KindCredentialStuffing,
	"imap_bruteforce_scan":  domain.KindCredentialStuffing,
	"mysql_bruteforce_scan": domain.KindAuthBreach,
}

// Adapter implements ports.Classifier.
type Adapter struct{}

// New returns a classification adapter. It carries no state: classify is
// a pure function of its inputs plus the caller-supplied frequency hint.
func New() *Adapter { return &Adapter{} }

// Classify implements ports.Classifier.
func (Adapter) Classify(ev *domain.ObservationEvent, frequencyHint int) domain.CanonicalAttackRecord {
	return Classify(ev.InternalKind, ev.Evidence, frequencyHint, ev.Description)
}

// Classify is the pure classification function underlying the adapter,
// exported directly for unit testing without constructing an
// ObservationEvent.
func Classify(internalKind string, evidence []string, frequencyHint int, description string) domain.CanonicalAttackRecord {
	lowered := strings.ToLower(strings.TrimSpace(internalKind))

	kind, ok := internalKindMap[lowered]
	if !ok || lowered == "suspicious_query" {
		kind = refine(lowered, evidence)
	}

	entry, ok := domain.Lookup(kind)
	if !ok {
		kind = domain.DefaultKind
		entry, _ = domain.Lookup(kind)
	}

	severity := deriveSeverity(kind, len(evidence), frequencyHint)

	if description == "" {
		description = string(kind)
	}

	return domain.CanonicalAttackRecord{
		Kind:        kind,
		Category:    entry.Category,
		Severity:    severity,
		BaseScore:   entry.Base,
		Description: description,
		Evidence:    evidence,
		Metadata: domain.EnhancedMetadata{
			OriginalKind:  internalKind,
			BaseScore:     entry.Base,
			EnhancedAt:    time.Now(),
			FrequencyHint: frequencyHint,
		},
	}
}

// refine applies the evidence-aware refinement rules of §4.2, used only
// when the raw internal kind is the generic suspicious_query label (or any
// other kind absent from internalKindMap).
func refine(lowered string, evidence []string) domain.Kind {
	if lowered != "suspicious_query" && lowered != "" {
		// Unmapped, non-generic label: fall through to default rather than
		// guessing from evidence, so unknown listener vocabulary always
		// lands on the documented default.
		return domain.DefaultKind
	}

	joined := strings.ToLower(strings.Join(evidence, "\x1f"))

	switch {
	case strings.Contains(joined, "union select") || strings.Contains(joined, "information_schema"):
		return domain.KindSQLiAttempt
	case strings.Contains(joined, "script") && (strings.Contains(joined, "alert") || strings.Contains(joined, "cookie")):
		return domain.KindXSSAttempt
	case strings.Contains(joined, "../") || strings.Contains(joined, "..%2f"):
		return domain.KindPathTraversal
	default:
		if lowered == "suspicious_query" {
			return domain.KindSuspiciousQuery
		}
		return domain.DefaultKind
	}
}

// baseSeverity is the starting-point severity by category, per §4.2:
// injection/DDoS -> 3-5, brute force -> 4, reconnaissance/honeypot -> 2.
func baseSeverity(k domain.Kind, category domain.Category) int {
	switch {
	case k == domain.KindSSHBruteforce || k == domain.KindCredentialStuffing:
		return 4
	case category == domain.CategoryInjection || category == domain.CategoryDoS:
		return 3
	case category == domain.CategoryReconnaissance || k == domain.KindHoneypot:
		return 2
	default:
		return 3
	}
}

func deriveSeverity(k domain.Kind, evidenceLen, frequencyHint int) int {
	entry, _ := domain.Lookup(k)
	sev := baseSeverity(k, entry.Category)

	if evidenceLen > 3 || frequencyHint > 10 {
		sev++
	}

	return domain.ClampSeverity(sev)
}
