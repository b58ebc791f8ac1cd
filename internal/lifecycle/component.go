package lifecycle

import "context"

// Component defines the lifecycle interface that all managed components must
// implement. The manager orchestrates startup and shutdown of components in
// dependency order.
type Component interface {
	// Start initializes and starts the component.
	// The provided context can be used to signal shutdown or set deadlines.
	// Returns error if initialization fails.
	Start(ctx context.Context) error

	// Stop gracefully stops the component, letting in-flight work complete
	// within the context deadline. Errors are reported but must not prevent
	// other components from stopping.
	Stop(ctx context.Context) error

	// Name returns the human-readable name of the component, used for
	// logging and dependency declarations. Must be non-empty.
	Name() string
}
