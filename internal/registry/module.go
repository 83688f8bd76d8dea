// ABOUTME: Per-module Lua interpreter lifecycle: run source, call Setup, Teardown.
// ABOUTME: Setup runs under a context deadline so a hung script cannot stall the host.

package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/bothive/bothive/internal/db"
	"github.com/bothive/bothive/internal/settings"
)

// teardownTimeout bounds a module's optional Teardown at unload.
const teardownTimeout = 5 * time.Second

// moduleMeta holds the optional metadata a script declares in its global
// Module table.
type moduleMeta struct {
	Version     string
	Description string
}

// runtime is a loaded module: one interpreter state per module, so a
// crashing script can never corrupt another module or the host.
type runtime struct {
	L           *lua.LState
	hasTeardown bool
}

// launch runs the module source in a fresh interpreter and invokes its
// Setup entry point with the host handle. The whole sequence runs under
// the setup timeout; on any failure the interpreter is closed and an
// error describing the failure is returned.
func launch(id, source string, timeout time.Duration, accessor *settings.Accessor, database *db.Accessor, logger *slog.Logger) (*runtime, moduleMeta, error) {
	L := lua.NewState()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	L.SetContext(ctx)

	if err := L.DoString(source); err != nil {
		L.Close()
		if ctx.Err() != nil {
			return nil, moduleMeta{}, fmt.Errorf("%w after %s", ErrSetupTimeout, timeout)
		}
		return nil, moduleMeta{}, fmt.Errorf("running module source: %w", err)
	}

	meta := readModuleTable(L)

	setupFn := L.GetGlobal("Setup")
	if setupFn.Type() != lua.LTFunction {
		L.Close()
		return nil, moduleMeta{}, ErrSetupMissing
	}

	host := buildHost(L, id, accessor, database, logger)
	if err := L.CallByParam(lua.P{Fn: setupFn, NRet: 0, Protect: true}, host); err != nil {
		L.Close()
		if ctx.Err() != nil {
			return nil, moduleMeta{}, fmt.Errorf("%w after %s", ErrSetupTimeout, timeout)
		}
		return nil, moduleMeta{}, fmt.Errorf("module setup: %w", err)
	}

	// Setup finished; lift the deadline so later calls are not cancelled.
	L.RemoveContext()

	return &runtime{
		L:           L,
		hasTeardown: L.GetGlobal("Teardown").Type() == lua.LTFunction,
	}, meta, nil
}

// teardown invokes the module's optional Teardown under its own deadline.
func (rt *runtime) teardown() error {
	if !rt.hasTeardown {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	rt.L.SetContext(ctx)
	defer rt.L.RemoveContext()

	fn := rt.L.GetGlobal("Teardown")
	if err := rt.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err != nil {
		return fmt.Errorf("module teardown: %w", err)
	}
	return nil
}

// close releases the interpreter state.
func (rt *runtime) close() {
	rt.L.Close()
}

// readModuleTable extracts version and description from the optional
// global Module table.
func readModuleTable(L *lua.LState) moduleMeta {
	var meta moduleMeta

	tbl, ok := L.GetGlobal("Module").(*lua.LTable)
	if !ok {
		return meta
	}
	if v := tbl.RawGetString("version"); v.Type() == lua.LTString {
		meta.Version = lua.LVAsString(v)
	}
	if v := tbl.RawGetString("description"); v.Type() == lua.LTString {
		meta.Description = lua.LVAsString(v)
	}
	return meta
}
