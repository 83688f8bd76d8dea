// ABOUTME: Lifecycle registry for bot modules: discover, load, unload, reload.
// ABOUTME: Isolates per-module failures so one bad module never takes down the host.

package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bothive/bothive/internal/db"
	"github.com/bothive/bothive/internal/settings"
)

// ErrModuleNotFound indicates an unknown module identifier.
var ErrModuleNotFound = errors.New("module not found")

// ErrModuleBusy indicates a lifecycle operation is already in flight for
// the module.
var ErrModuleBusy = errors.New("module operation in progress")

// ErrSetupMissing indicates the module source does not define a Setup
// entry point.
var ErrSetupMissing = errors.New("module missing Setup entry point")

// ErrSetupTimeout indicates the module's Setup did not finish within the
// configured timeout.
var ErrSetupTimeout = errors.New("module setup timed out")

// DefaultSetupTimeout bounds how long a module's Setup may run before the
// load is forced into the Error state.
const DefaultSetupTimeout = 30 * time.Second

// State is a module's lifecycle state.
type State string

const (
	StateUnloaded State = "unloaded"
	StateLoading  State = "loading"
	StateLoaded   State = "loaded"
	StateError    State = "error"
)

// Descriptor is the registry's public view of one module.
type Descriptor struct {
	ID          string
	Path        string
	State       State
	LastError   string
	Version     string
	Description string
	Disabled    bool // sidecar manifest opted out of autoload
}

type entry struct {
	desc     Descriptor
	busy     bool
	rt       *runtime
	accessor *settings.Accessor
}

// Registry discovers and manages the lifecycle of all modules. Each
// loaded module receives a namespace-scoped settings accessor and the
// shared database accessor; both are borrowed, not owned.
type Registry struct {
	dir          string
	store        *settings.Store
	database     *db.Accessor
	logger       *slog.Logger
	setupTimeout time.Duration

	mu      sync.Mutex
	order   []string
	entries map[string]*entry
}

// Option configures a Registry.
type Option func(*Registry)

// WithSetupTimeout overrides the per-module setup timeout.
func WithSetupTimeout(d time.Duration) Option {
	return func(r *Registry) { r.setupTimeout = d }
}

// New creates a registry scanning dir for module sources.
func New(dir string, store *settings.Store, database *db.Accessor, logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		dir:          dir,
		store:        store,
		database:     database,
		logger:       logger.With("component", "registry"),
		setupTimeout: DefaultSetupTimeout,
		entries:      make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// moduleID derives the module identifier from its source path. Dots are
// replaced with underscores: the identifier doubles as the module's
// settings namespace, which must stay a single dot-path segment.
func moduleID(path string) string {
	id := strings.ToLower(strings.TrimSuffix(filepath.Base(path), ".lua"))
	return strings.ReplaceAll(id, ".", "_")
}

// Discover scans the modules directory for candidate units and updates
// the descriptor set. It never loads anything. Descriptors whose source
// vanished are dropped unless the module is still loaded.
func (r *Registry) Discover() ([]Descriptor, error) {
	matches, err := filepath.Glob(filepath.Join(r.dir, "*.lua"))
	if err != nil {
		return nil, fmt.Errorf("scanning modules directory: %w", err)
	}
	sort.Strings(matches)

	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(matches))
	for _, path := range matches {
		id := moduleID(path)
		seen[id] = true

		sidecar, err := loadSidecar(path)
		if err != nil {
			r.logger.Warn("bad module sidecar, ignoring", "module", id, "error", err)
			sidecar = nil
		}

		e, ok := r.entries[id]
		if !ok {
			e = &entry{desc: Descriptor{ID: id, Path: path, State: StateUnloaded}}
			r.entries[id] = e
			r.order = append(r.order, id)
			r.logger.Debug("module discovered", "module", id, "path", path)
		}
		e.desc.Path = path
		if sidecar != nil {
			e.desc.Disabled = sidecar.Disabled
			if sidecar.Description != "" {
				e.desc.Description = sidecar.Description
			}
		}
	}

	// Drop descriptors whose source is gone, keeping loaded modules
	// visible until they are unloaded.
	kept := r.order[:0]
	for _, id := range r.order {
		e := r.entries[id]
		if !seen[id] && e.desc.State != StateLoaded && e.desc.State != StateLoading {
			delete(r.entries, id)
			r.logger.Debug("module source removed", "module", id)
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept

	return r.listLocked(), nil
}

// List returns a snapshot of all descriptors in discovery order.
func (r *Registry) List() []Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listLocked()
}

func (r *Registry) listLocked() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id].desc)
	}
	return out
}

// Get returns the descriptor for one module.
func (r *Registry) Get(id string) (Descriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrModuleNotFound, id)
	}
	return e.desc, nil
}

// begin marks a module busy and transitions it to Loading (for loads).
// Returns the entry's current descriptor.
func (r *Registry) begin(id string, loading bool) (Descriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrModuleNotFound, id)
	}
	if e.busy {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrModuleBusy, id)
	}
	e.busy = true
	if loading {
		e.desc.State = StateLoading
		e.desc.LastError = ""
	}
	return e.desc, nil
}

// Load transitions a module Unloaded -> Loading -> Loaded. The module
// receives a settings accessor bound to its namespace and the shared
// database handle. Any setup failure (parse error, missing entry point,
// runtime error, timeout) moves the descriptor to Error with the failure
// recorded; other modules are unaffected. Loading an already-loaded
// module is a no-op.
func (r *Registry) Load(id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrModuleNotFound, id)
	}
	if e.desc.State == StateLoaded {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	desc, err := r.begin(id, true)
	if err != nil {
		return err
	}

	started := time.Now()
	source, readErr := os.ReadFile(desc.Path)

	var rt *runtime
	var meta moduleMeta
	var accessor *settings.Accessor
	loadErr := readErr
	if loadErr == nil {
		accessor = r.store.Accessor(id)
		rt, meta, loadErr = launch(id, string(source), r.setupTimeout, accessor, r.database, r.logger)
		if loadErr != nil {
			accessor.Close()
			accessor = nil
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	e.busy = false

	if loadErr != nil {
		e.desc.State = StateError
		e.desc.LastError = loadErr.Error()
		r.logger.Error("module load failed",
			"module", id,
			"error", loadErr,
		)
		return fmt.Errorf("loading module %s: %w", id, loadErr)
	}

	e.rt = rt
	e.accessor = accessor
	e.desc.State = StateLoaded
	e.desc.LastError = ""
	if meta.Version != "" {
		e.desc.Version = meta.Version
	}
	if meta.Description != "" && e.desc.Description == "" {
		e.desc.Description = meta.Description
	}

	r.logger.Info("module loaded",
		"module", id,
		"version", e.desc.Version,
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
	return nil
}

// Unload transitions a module from Loaded or Error back to Unloaded,
// running its Teardown (best effort), closing its interpreter state, and
// invalidating its settings accessor. The module's persisted settings
// remain. Unloading an already-unloaded module is a no-op.
func (r *Registry) Unload(id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrModuleNotFound, id)
	}
	if e.desc.State == StateUnloaded {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	if _, err := r.begin(id, false); err != nil {
		return err
	}

	r.mu.Lock()
	rt := e.rt
	accessor := e.accessor
	e.rt = nil
	e.accessor = nil
	r.mu.Unlock()

	if rt != nil {
		if err := rt.teardown(); err != nil {
			r.logger.Warn("module teardown failed", "module", id, "error", err)
		}
		rt.close()
	}
	if accessor != nil {
		accessor.Close()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	e.busy = false
	e.desc.State = StateUnloaded
	e.desc.LastError = ""
	r.logger.Info("module unloaded", "module", id)
	return nil
}

// Reload unloads then loads a module, re-reading its source from disk so
// on-disk edits take effect without restarting the host. Modules keep no
// implicit cross-reload state; anything that must survive belongs in the
// settings store or the database.
func (r *Registry) Reload(id string) error {
	if err := r.Unload(id); err != nil {
		return err
	}
	return r.Load(id)
}

// LoadAll loads every discovered module in discovery order, skipping
// sidecar-disabled ones. One module's failure never stops the loop.
// Returns the number of modules that loaded successfully.
func (r *Registry) LoadAll() int {
	r.mu.Lock()
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	r.mu.Unlock()

	loaded := 0
	for _, id := range ids {
		desc, err := r.Get(id)
		if err != nil {
			continue
		}
		if desc.Disabled {
			r.logger.Debug("module disabled, skipping", "module", id)
			continue
		}
		if err := r.Load(id); err == nil {
			loaded++
		}
	}
	return loaded
}

// Close unloads every loaded module. Called once at host shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	r.mu.Unlock()

	for _, id := range ids {
		if err := r.Unload(id); err != nil && !errors.Is(err, ErrModuleNotFound) {
			r.logger.Warn("unload at shutdown failed", "module", id, "error", err)
		}
	}
}
