// Package ports defines the boundary between the core detection/reporting
// pipeline and the infrastructure that drives it: protocol listeners,
// the classifier, the throttle cache, the report sink, and observability.
package ports

import (
	"context"

	"github.com/oriongate/sentryhive/internal/domain"
)

// EmitFunc is the sole output side channel a protocol listener uses: it
// never calls the classifier or the API client directly.
type EmitFunc func(ev *domain.ObservationEvent)

// ProtocolListener is the common contract every protocol module
// implements: bind a port, drive sessions, emit observation events.
type ProtocolListener interface {
	// Name identifies the listener for module-status reporting.
	Name() string

	// Start binds the configured port and begins accepting connections.
	// It returns once the listener is bound (or has failed to bind); the
	// accept loop itself runs in background goroutines until Stop.
	Start(ctx context.Context, emit EmitFunc) error

	// Stop closes the listening socket. The HTTP listener also waits for
	// in-flight requests (http.Server.Shutdown); the raw TCP listeners
	// return at once and leave open sessions to end on their own.
	Stop(ctx context.Context) error

	// Port returns the bound TCP port, for module-status reporting.
	Port() int
}
