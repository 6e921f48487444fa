package ports

import "time"

// ReputationStore is the classifier's source for the frequency hint used
// by the severity-bump rule in §4.2. It never blocks classification: a
// lookup miss is a valid, common answer.
type ReputationStore interface {
	FrequencyHint(addr string) int
	RecordReport(addr, kind string, at time.Time) error
	Close() error
}
