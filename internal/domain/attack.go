package domain

import "time"

// Category is one of the fixed attack categories used for reporting.
type Category string

const (
	CategoryReconnaissance Category = "reconnaissance"
	CategoryAbuse          Category = "abuse"
	CategoryAuthentication Category = "authentication"
	CategoryInjection      Category = "injection"
	CategoryDoS            Category = "dos"
	CategoryIntrusion      Category = "intrusion"
	CategoryMalware        Category = "malware"
	CategoryAnonymity      Category = "anonymity"
	CategoryGeneral        Category = "general"
)

// Kind is a canonical attack kind drawn from the closed taxonomy in
// TaxonomyTable. A Kind value that is not a key of TaxonomyTable must never
// be constructed outside of this package.
type Kind string

const (
	KindSuspiciousUserAgent Kind = "suspicious_user_agent"
	KindDirectoryListing    Kind = "directory_listing"
	KindExcessive404        Kind = "excessive_404"
	KindSuspiciousQuery     Kind = "suspicious_query"
	KindFakeCrawler         Kind = "fake_crawler"
	KindRateLimitBreach     Kind = "rate_limit_breach"
	KindAPIAbuse            Kind = "api_abuse"
	KindPortScan            Kind = "port_scan"
	KindCommentSpam         Kind = "comment_spam"
	KindHoneypot            Kind = "honeypot"
	KindCredentialStuffing  Kind = "credential_stuffing"
	KindXSSAttempt          Kind = "xss_attempt"
	KindCSRFAttempt         Kind = "csrf_attempt"
	KindPathTraversal       Kind = "path_traversal"
	KindAuthBreach          Kind = "auth_breach"
	KindSQLiAttempt         Kind = "sqli_attempt"
	KindSSHBruteforce       Kind = "ssh_bruteforce"
	KindHTTPFlood           Kind = "http_flood"
	KindMailSpam            Kind = "mail_spam"
	KindCommandInjection    Kind = "command_injection"
	KindHTTPInjection       Kind = "http_injection"
	KindDataExfiltration    Kind = "data_exfiltration"
	KindBotnetActivity      Kind = "botnet_activity"
	KindRansomware          Kind = "ransomware"
	KindDDoS                Kind = "ddos"
	KindTargetedAttack      Kind = "targeted_attack"
	KindManual              Kind = "manual"
	KindTorExit             Kind = "tor_exit"
	KindProxyAbuse          Kind = "proxy_abuse"
	KindVPNAbuse            Kind = "vpn_abuse"
)

// TaxonomyEntry is one row of the closed taxonomy table.
type TaxonomyEntry struct {
	Kind     Kind
	Base     int
	Category Category
}

// TaxonomyTable is the fixed, ordered canonical taxonomy. It is the only
// authority on which kinds exist; nothing outside this file may introduce a
// new Kind value.
var TaxonomyTable = []TaxonomyEntry{
	{KindSuspiciousUserAgent, 2, CategoryReconnaissance},
	{KindDirectoryListing, 3, CategoryReconnaissance},
	{KindExcessive404, 3, CategoryReconnaissance},
	{KindSuspiciousQuery, 4, CategoryReconnaissance},
	{KindFakeCrawler, 4, CategoryReconnaissance},
	{KindRateLimitBreach, 6, CategoryAbuse},
	{KindAPIAbuse, 7, CategoryAbuse},
	{KindPortScan, 8, CategoryReconnaissance},
	{KindCommentSpam, 8, CategoryAbuse},
	{KindHoneypot, 9, CategoryGeneral},
	{KindCredentialStuffing, 11, CategoryAuthentication},
	{KindXSSAttempt, 12, CategoryInjection},
	{KindCSRFAttempt, 12, CategoryAuthentication},
	{KindPathTraversal, 13, CategoryInjection},
	{KindAuthBreach, 15, CategoryAuthentication},
	{KindSQLiAttempt, 16, CategoryInjection},
	{KindSSHBruteforce, 18, CategoryAuthentication},
	{KindHTTPFlood, 18, CategoryDoS},
	{KindMailSpam, 19, CategoryAbuse},
	{KindCommandInjection, 20, CategoryInjection},
	{KindHTTPInjection, 22, CategoryInjection},
	{KindDataExfiltration, 25, CategoryIntrusion},
	{KindBotnetActivity, 28, CategoryMalware},
	{KindRansomware, 35, CategoryMalware},
	{KindDDoS, 40, CategoryDoS},
	{KindTargetedAttack, 45, CategoryIntrusion},
	{KindManual, 15, CategoryGeneral},
	{KindTorExit, 10, CategoryAnonymity},
	{KindProxyAbuse, 8, CategoryAnonymity},
	{KindVPNAbuse, 7, CategoryAnonymity},
}

// DefaultKind is returned by the classifier when an internal kind has no
// mapping in TaxonomyTable.
const DefaultKind = KindHoneypot

// taxonomyIndex is built once for O(1) lookup by Kind.
var taxonomyIndex = func() map[Kind]TaxonomyEntry {
	idx := make(map[Kind]TaxonomyEntry, len(TaxonomyTable))
	for _, e := range TaxonomyTable {
		idx[e.Kind] = e
	}
	return idx
}()

// Lookup returns the taxonomy row for k, and whether it was found.
func Lookup(k Kind) (TaxonomyEntry, bool) {
	e, ok := taxonomyIndex[k]
	return e, ok
}

// EnhancedMetadata records the provenance of a CanonicalAttackRecord so the
// original, pre-classification label is never lost even though it is never
// the reported kind.
type EnhancedMetadata struct {
	OriginalKind     string    `json:"original_type"`
	BaseScore        int       `json:"base_score"`
	EnhancedAt       time.Time `json:"enhanced_at"`
	FrequencyHint    int       `json:"frequency,omitempty"`
}

// CanonicalAttackRecord is the output of the classification adapter (C2)
// and the unit of currency for the throttle cache, the spool, and the
// backend API.
type CanonicalAttackRecord struct {
	SourceAddress string           `json:"ip_address"`
	Kind          Kind             `json:"attack_type"`
	Category      Category         `json:"category"`
	Severity      int              `json:"severity"`
	BaseScore     int              `json:"base_score"`
	Description   string           `json:"description"`
	Evidence      []string         `json:"evidence"`
	Metadata      EnhancedMetadata `json:"metadata"`
	Timestamp     time.Time        `json:"-"`
}

// ClampSeverity bounds a severity value to the spec's 1-5 range.
func ClampSeverity(s int) int {
	if s < 1 {
		return 1
	}
	if s > 5 {
		return 5
	}
	return s
}
