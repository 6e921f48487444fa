package contentrules

import "strings"

// EvaluateMySQLQuery checks a parsed COM_QUERY payload for the SQLi token
// set from §4.1's MySQL content rule, then falls back to the shared
// tokenizer's fingerprint match for obfuscated variants. This is
// best-effort: the MySQL listener never reaches an authenticated state,
// so this check runs defensively on whatever bytes arrive in a query-shaped
// packet without assuming a real query ever executes.
func EvaluateMySQLQuery(query string) (evidence string, ok bool) {
	lower := strings.ToLower(query)
	for _, tok := range sqliTokens {
		if strings.Contains(lower, tok) {
			return query, true
		}
	}

	tokens := Tokenize(query)
	if matched, desc := MatchesSQLiShape(tokens); matched {
		return desc + ": " + query, true
	}
	return "", false
}
