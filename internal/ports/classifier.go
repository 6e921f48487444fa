package ports

import "github.com/oriongate/sentryhive/internal/domain"

// Classifier maps a raw observation event to a canonical attack record.
// Implementations must be pure with respect to their inputs: the same
// event, classified twice, yields the same canonical kind, category, and
// base score (Testable Property 1).
type Classifier interface {
	Classify(ev *domain.ObservationEvent, frequencyHint int) domain.CanonicalAttackRecord
}
