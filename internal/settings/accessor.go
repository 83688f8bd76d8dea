// ABOUTME: Namespace-bound settings accessor handed to modules at load time.
// ABOUTME: Carries its namespace explicitly and is invalidated at unload.

package settings

import (
	"errors"
	"sync"
)

// ErrAccessorClosed indicates use of an accessor after its module was
// unloaded.
var ErrAccessorClosed = errors.New("settings accessor closed")

// Accessor is a borrowed, namespace-scoped view of the store. The
// namespace is assigned once, when the module is loaded; it is never
// guessed from call context, so a module cannot accidentally write into
// another module's space.
type Accessor struct {
	store     *Store
	namespace string

	mu     sync.Mutex
	closed bool
}

// Namespace returns the namespace this accessor is bound to.
func (a *Accessor) Namespace() string {
	return a.namespace
}

func (a *Accessor) check() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrAccessorClosed
	}
	return nil
}

// GetOrCreate returns the existing value at the namespaced path, or
// inserts and returns the default.
func (a *Accessor) GetOrCreate(path string, def any) (any, error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	return a.store.GetOrCreate(a.namespace, path, def)
}

// Put upserts the namespaced path, enforcing the declared type.
func (a *Accessor) Put(path string, value any) error {
	if err := a.check(); err != nil {
		return err
	}
	return a.store.Put(a.namespace, path, value, false)
}

// PutCoerce upserts the namespaced path, converting the value to the
// declared type when the kinds differ.
func (a *Accessor) PutCoerce(path string, value any) error {
	if err := a.check(); err != nil {
		return err
	}
	return a.store.Put(a.namespace, path, value, true)
}

// Get reads the namespaced path without side effects.
func (a *Accessor) Get(path string) (any, error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	return a.store.Get(a.namespace, path)
}

// Close invalidates the accessor. The module's settings remain in the
// persisted document. Safe to call multiple times.
func (a *Accessor) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
}
