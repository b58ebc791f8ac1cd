package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/attribot/attribot/internal/logging"
)

// Manager orchestrates the lifecycle of multiple components with dependency
// awareness. Components start in dependency order and stop in reverse order
// of startup, each with its own shutdown grace period.
type Manager struct {
	components      []Component
	dependencies    map[Component][]Component
	running         map[Component]bool
	started         []Component // order in which components started
	shutdownTimeout time.Duration
	mu              sync.RWMutex
	logger          *logging.Logger
}

// NewManager creates a new lifecycle manager with a 30-second per-component
// shutdown timeout.
func NewManager() *Manager {
	return &Manager{
		components:      []Component{},
		dependencies:    make(map[Component][]Component),
		running:         make(map[Component]bool),
		shutdownTimeout: 30 * time.Second,
		logger:          logging.GetLogger("lifecycle"),
	}
}

// Register registers a component with optional dependencies. Dependencies
// must already be registered; a component starts only after its dependencies
// and stops before them. Duplicate registration and cycles are rejected.
func (m *Manager) Register(component Component, dependsOn ...Component) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if component == nil {
		return fmt.Errorf("cannot register nil component")
	}
	if component.Name() == "" {
		return fmt.Errorf("component must have a non-empty name")
	}

	for _, c := range m.components {
		if c == component {
			return fmt.Errorf("component %s is already registered", component.Name())
		}
	}

	for _, dep := range dependsOn {
		found := false
		for _, registered := range m.components {
			if registered == dep {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("dependency %s is not registered", dep.Name())
		}
	}

	if m.wouldCreateCycle(component, dependsOn) {
		return fmt.Errorf("registering %s would create a circular dependency", component.Name())
	}

	m.components = append(m.components, component)
	m.dependencies[component] = dependsOn
	m.running[component] = false
	return nil
}

// wouldCreateCycle reports whether adding component with the given
// dependencies introduces a cycle.
func (m *Manager) wouldCreateCycle(component Component, dependsOn []Component) bool {
	visited := make(map[Component]bool)
	var visit func(c Component) bool
	visit = func(c Component) bool {
		if c == component {
			return true
		}
		if visited[c] {
			return false
		}
		visited[c] = true
		for _, dep := range m.dependencies[c] {
			if visit(dep) {
				return true
			}
		}
		return false
	}
	for _, dep := range dependsOn {
		if visit(dep) {
			return true
		}
	}
	return false
}

// Start starts all registered components in dependency order. If any
// component fails, the components already started are stopped in reverse
// order and the error is returned.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.started = []Component{}
	for _, component := range m.topologicalSort() {
		m.logger.Info("Starting %s", component.Name())
		startTime := time.Now()

		if err := component.Start(ctx); err != nil {
			m.logger.Error("Failed to start %s: %v", component.Name(), err)
			m.rollback()
			return fmt.Errorf("initialization failed for %s: %w", component.Name(), err)
		}

		m.running[component] = true
		m.started = append(m.started, component)
		m.logger.Info("%s started (took %dms)", component.Name(), time.Since(startTime).Milliseconds())
	}

	m.logger.Info("All components started")
	return nil
}

// topologicalSort returns components with dependencies before dependents.
func (m *Manager) topologicalSort() []Component {
	visited := make(map[Component]bool)
	sorted := []Component{}

	var visit func(c Component)
	visit = func(c Component) {
		visited[c] = true
		for _, dep := range m.dependencies[c] {
			if !visited[dep] {
				visit(dep)
			}
		}
		sorted = append(sorted, c)
	}

	for _, component := range m.components {
		if !visited[component] {
			visit(component)
		}
	}
	return sorted
}

// rollback stops components started during a failed startup, in reverse order.
func (m *Manager) rollback() {
	for i := len(m.started) - 1; i >= 0; i-- {
		component := m.started[i]
		m.logger.Debug("Rolling back: stopping %s", component.Name())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := component.Stop(ctx); err != nil {
			m.logger.Warn("Error stopping %s during rollback: %v", component.Name(), err)
		}
		cancel()
		m.running[component] = false
	}
	m.started = nil
}

// Stop stops all started components in reverse order of startup. Each
// component receives its own grace period. Shutdown errors are logged but
// never fail the operation.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Info("Stopping all components")

	for i := len(m.started) - 1; i >= 0; i-- {
		component := m.started[i]
		if !m.running[component] {
			continue
		}

		m.logger.Info("Stopping %s", component.Name())
		startTime := time.Now()

		componentCtx, cancel := context.WithTimeout(ctx, m.shutdownTimeout)
		err := component.Stop(componentCtx)
		cancel()

		if err != nil {
			if err == context.DeadlineExceeded {
				m.logger.Warn("Component %s exceeded grace period (%dms), forcing termination",
					component.Name(), m.shutdownTimeout.Milliseconds())
			} else {
				m.logger.Error("Error stopping %s: %v", component.Name(), err)
			}
		} else {
			m.logger.Info("%s stopped (took %dms)", component.Name(), time.Since(startTime).Milliseconds())
		}
		m.running[component] = false
	}

	m.logger.Info("All components stopped")
	return nil
}

// IsRunning reports whether the component started and has not stopped.
func (m *Manager) IsRunning(component Component) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	running, exists := m.running[component]
	return exists && running
}

// SetShutdownTimeout sets the per-component grace period for shutdown.
func (m *Manager) SetShutdownTimeout(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownTimeout = timeout
}
