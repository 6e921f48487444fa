package ports

import (
	"context"

	"github.com/oriongate/sentryhive/internal/domain"
)

// PingResult is a structured, never-throwing outcome of the diagnostic
// ping probe.
type PingResult struct {
	Success bool
	Status  int
	Message string
}

// ReportSink delivers heartbeats and admitted reports to the backend,
// or spools them when delivery is impossible.
type ReportSink interface {
	SendReport(ctx context.Context, rec domain.CanonicalAttackRecord) error
	SendHeartbeat(ctx context.Context) error
	Ping(ctx context.Context) PingResult
	Diagnostics() domain.HeartbeatDiagnosticRecord
	Close() error
}
