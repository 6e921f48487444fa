// Package contentrules implements the protocol-specific content pattern
// checks used by the HTTP and MySQL listeners' detection rules: suspicious
// endpoints, SQL injection, command injection, XSS, path traversal, known
// scanner user agents, and SMTP spam-phrase heuristics.
package contentrules

import "regexp"

// SuspiciousEndpoints are path substrings that alone justify a
// suspicious_query observation, checked before any other content rule.
var SuspiciousEndpoints = []string{
	"/admin", "/wp-admin", "/wp-login", "/.git", "/.env", "/.svn",
	"/phpmyadmin", "/administrator", "/manager", "/config.php",
	"/wp-config", "/.htaccess", "/server-status", "/actuator",
}

// ScannerUserAgents are known automated-tool user agent substrings
// (case-insensitive) that map directly to suspicious_user_agent.
var ScannerUserAgents = []string{
	"sqlmap", "nikto", "nmap", "masscan", "zgrab", "gobuster", "dirbuster",
	"nessus", "acunetix", "wpscan", "nuclei",
}

// FakeCrawlerClaims are the tokens a request must contain in its
// user-agent to claim to be a well-known crawler; a claimant whose
// user-agent lacks the "compatible" token is treated as fake_crawler by
// the HTTP rules. No reverse-DNS or version check is made.
var FakeCrawlerClaims = []string{"googlebot", "bingbot", "yandexbot", "baiduspider"}

var (
	reSQLUnion       = regexp.MustCompile(`(?i)union\s+(all\s+)?select`)
	reSQLTautology   = regexp.MustCompile(`(?i)(\bor\b\s+\d+\s*=\s*\d+|\bor\b\s*'[^']*'\s*=\s*'[^']*')`)
	reSQLSchema      = regexp.MustCompile(`(?i)information_schema`)
	reSQLTiming      = regexp.MustCompile(`(?i)(sleep\s*\(|benchmark\s*\()`)
	reSQLFileOps     = regexp.MustCompile(`(?i)(into\s+outfile|load_file\s*\()`)
	reSQLMutating    = regexp.MustCompile(`(?i)(drop\s+table|delete\s+from|truncate\s+table)`)

	reCmdChain    = regexp.MustCompile(`(?i)(;|\||\|\||&&)\s*(cat|ls|id|whoami|uname|pwd|curl|wget|nc|bash|sh|python|perl|php)\b`)
	reCmdSubshell = regexp.MustCompile("`[^`]+`|\\$\\([^)]+\\)")
	reShellshock  = regexp.MustCompile(`\(\)\s*\{`)

	reXSSScriptTag = regexp.MustCompile(`(?i)(<script[^>]*>|</script>)`)
	reXSSJSProto   = regexp.MustCompile(`(?i)(javascript\s*:|vbscript\s*:)`)
	reXSSEvent     = regexp.MustCompile(`(?i)on(error|load|click|mouse|focus|blur)\s*=`)
	reXSSAlertEval = regexp.MustCompile(`(?i)(alert\s*\(|eval\s*\(|document\.cookie)`)

	reTraversal = regexp.MustCompile(`(\.\./){2,}|\.\.\\|(?i)(%2e%2e[/\\]|%2e%2e%2f)`)
)

// sqliTokens matches the token set from §4.1's MySQL content rule.
var sqliTokens = []string{
	"union select", "or 1=1", "information_schema", "sleep(",
	"benchmark(", "into outfile", "load_file",
}

// SpamPhrases is checked, case-insensitively, against SMTP DATA bodies.
var SpamPhrases = []string{
	"viagra", "cialis", "click here now", "act now", "limited time offer",
	"congratulations you have won", "wire transfer", "nigerian prince",
	"work from home", "make money fast", "risk free", "double your income",
}
