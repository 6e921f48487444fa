package ports

import "github.com/oriongate/sentryhive/internal/domain"

// AttackObserver receives every admitted or suppressed canonical record
// for push-based consumers (the optional console, in-process test hooks).
// Implementations must return quickly; use buffering internally if the
// downstream sink is slow.
type AttackObserver interface {
	OnRecord(rec domain.CanonicalAttackRecord, admitted bool)
}

// MetricsCollector is the observability sink for the pipeline.
type MetricsCollector interface {
	IncrementObservations(protocol string)
	IncrementReports(kind string)
	IncrementSuppressed()
	SetSpoolDepth(depth int)
	SetHeartbeatFailures(count int)
}

// ModuleStatusProvider exposes the health of one supervised module for the
// /monitor diagnostics endpoint.
type ModuleStatusProvider interface {
	Status() domain.ModuleStatus
}
