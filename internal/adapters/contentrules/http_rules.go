package contentrules

import (
	"strings"

	"github.com/oriongate/sentryhive/pkg/ahocorasick"
)

// HTTPFinding is the result of evaluating one HTTP request against the
// content rules, ready to become an ObservationEvent's internal kind.
type HTTPFinding struct {
	InternalKind string
	Description  string
	Evidence     []string
}

// HTTPRules holds the pre-filter and pattern set for the HTTP listener.
// Matching order is fixed: suspicious endpoint, SQLi, command injection,
// XSS, path traversal, user-agent.
type HTTPRules struct {
	preFilter *ahocorasick.Matcher
}

// NewHTTPRules builds the Aho-Corasick pre-filter over every keyword that
// any pattern below could match, so most benign requests are rejected in
// one linear scan before the more expensive regex checks run.
func NewHTTPRules() *HTTPRules {
	keywords := []string{
		"union", "select", "or", "1=1", "'", "information_schema", "sleep",
		"benchmark", "outfile", "load_file", "drop", "delete", "truncate",
		";", "|", "&&", "`", "$(", "()",
		"<script", "</script", "javascript", "vbscript", "onerror", "onload", "onclick",
		"onmouse", "onfocus", "onblur", "alert", "eval", "document.cookie",
		"../", "..\\", "%2e%2e",
		"admin", "wp-admin", ".git", ".env", "phpmyadmin",
	}
	return &HTTPRules{preFilter: ahocorasick.New(keywords)}
}

// Evaluate checks one HTTP request's path, query string, and user agent
// against the ordered rule set and returns the first match, or ok=false
// if nothing fired.
func (r *HTTPRules) Evaluate(path, rawQuery, userAgent string) (HTTPFinding, bool) {
	lowerPath := strings.ToLower(path)
	for _, ep := range SuspiciousEndpoints {
		if strings.Contains(lowerPath, ep) {
			return HTTPFinding{
				InternalKind: "suspicious_query",
				Description:  "request to sensitive endpoint",
				Evidence:     []string{path},
			}, true
		}
	}

	query := normalizeForDetection(rawQuery)
	combined := normalizeForDetection(path + "?" + rawQuery)

	if r.preFilter.Match(strings.ToLower(combined)) {
		if reSQLUnion.MatchString(query) || reSQLTautology.MatchString(query) ||
			reSQLSchema.MatchString(query) || reSQLTiming.MatchString(query) ||
			reSQLFileOps.MatchString(query) || reSQLMutating.MatchString(query) {
			return HTTPFinding{
				InternalKind: "sqli_attempt",
				Description:  "SQL injection token in query string",
				Evidence:     []string{rawQuery},
			}, true
		}

		if reCmdChain.MatchString(combined) || reCmdSubshell.MatchString(combined) || reShellshock.MatchString(combined) {
			return HTTPFinding{
				InternalKind: "command_injection",
				Description:  "command chaining token in request",
				Evidence:     []string{combined},
			}, true
		}

		if reXSSScriptTag.MatchString(combined) || reXSSJSProto.MatchString(combined) ||
			reXSSEvent.MatchString(combined) || reXSSAlertEval.MatchString(combined) {
			return HTTPFinding{
				InternalKind: "xss_attempt",
				Description:  "script/event-handler token in request",
				Evidence:     []string{combined},
			}, true
		}

		if reTraversal.MatchString(combined) {
			return HTTPFinding{
				InternalKind: "path_traversal",
				Description:  "directory traversal token in path",
				Evidence:     []string{path},
			}, true
		}
	}

	if kind, desc, ok := ClassifyUserAgent(userAgent); ok {
		return HTTPFinding{InternalKind: kind, Description: desc, Evidence: []string{userAgent}}, true
	}

	return HTTPFinding{}, false
}
