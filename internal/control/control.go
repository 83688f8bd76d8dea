// ABOUTME: ControlFacade: the narrow surface external collaborators use to manage modules.
// ABOUTME: All lifecycle mutations funnel through the registry as the single authority.

package control

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/bothive/bothive/internal/logbuf"
	"github.com/bothive/bothive/internal/registry"
)

// ErrBadDesiredState indicates a Toggle with a desired state other than
// loaded or unloaded.
var ErrBadDesiredState = errors.New("desired state must be loaded or unloaded")

// Status reports host liveness for the external panel.
type Status struct {
	Alive       bool
	ModuleCount int
	Version     string
}

// Facade is the only component visible across the process boundary. The
// web panel (and the host's own CLI commands) enumerate modules, toggle
// them, read recent logs, and request shutdown exclusively through it;
// nothing external touches the settings file or database directly.
type Facade struct {
	registry *registry.Registry
	logs     *logbuf.Buffer
	logger   *slog.Logger
	version  string
	shutdown func()
}

// New creates a facade over the registry. shutdown is invoked at most
// once when a shutdown is requested; it must not block.
func New(reg *registry.Registry, logs *logbuf.Buffer, logger *slog.Logger, version string, shutdown func()) *Facade {
	return &Facade{
		registry: reg,
		logs:     logs,
		logger:   logger.With("component", "control"),
		version:  version,
		shutdown: shutdown,
	}
}

// ListModules returns all module descriptors in discovery order.
func (f *Facade) ListModules() []registry.Descriptor {
	return f.registry.List()
}

// Toggle moves a module toward the desired state and returns the state it
// ended up in. Toggling a module already in the desired state is a no-op
// that returns the current state without re-running setup. Toggling an
// errored module to loaded retries the load.
func (f *Facade) Toggle(id string, desired registry.State) (registry.State, error) {
	if desired != registry.StateLoaded && desired != registry.StateUnloaded {
		return "", fmt.Errorf("%w: %q", ErrBadDesiredState, desired)
	}

	desc, err := f.registry.Get(id)
	if err != nil {
		return "", err
	}
	if desc.State == desired {
		return desc.State, nil
	}

	switch desired {
	case registry.StateLoaded:
		err = f.registry.Load(id)
	case registry.StateUnloaded:
		err = f.registry.Unload(id)
	}

	desc, getErr := f.registry.Get(id)
	if getErr != nil {
		return "", getErr
	}
	return desc.State, err
}

// Status reports liveness and the current module count.
func (f *Facade) Status() Status {
	return Status{
		Alive:       true,
		ModuleCount: len(f.registry.List()),
		Version:     f.version,
	}
}

// RecentLogLines returns up to limit recent log lines, most recent last.
func (f *Facade) RecentLogLines(limit int) []string {
	return f.logs.Recent(limit)
}

// Shutdown triggers a graceful host shutdown.
func (f *Facade) Shutdown() {
	f.logger.Info("shutdown requested via control facade")
	if f.shutdown != nil {
		f.shutdown()
	}
}
