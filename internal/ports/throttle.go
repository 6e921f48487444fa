package ports

import "github.com/oriongate/sentryhive/internal/domain"

// Decision is the outcome of a throttle admission check.
type Decision int

const (
	Admit Decision = iota
	Suppress
)

// ThrottleCache decides whether a canonical event is reportable now for a
// given source address, implementing the admission law of §4.3: at most
// MAX_REPORTS_PER_IP admissions per TTL window, with the first occurrence
// of every distinct kind always admitted.
type ThrottleCache interface {
	Admit(rec domain.CanonicalAttackRecord) Decision
	Close() error
}
