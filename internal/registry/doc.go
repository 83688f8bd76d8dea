// Package registry manages the lifecycle of bot modules.
//
// # Modules
//
// A module is a Lua script in the configured modules directory, executed
// in its own interpreter state by gopher-lua. The script must define a
// Setup(host) entry point; absence is a load error, not a crash. An
// optional Teardown() runs at unload, and an optional Module table
// declares version and description:
//
//	Module = { name = "moderation", version = "1.0" }
//
//	function Setup(host)
//	    local threshold = host.settings.get_or_create("warn_threshold", 3)
//	    host.log("info", "moderation ready")
//	end
//
// An optional TOML sidecar (<name>.toml) can disable a module or
// override its description without touching the source.
//
// # Lifecycle
//
// Unloaded -> Loading -> {Loaded | Error} -> Unloaded. Discover scans
// for candidates without loading. Load hands the module a settings
// accessor pre-bound to its namespace and the shared database accessor,
// then runs Setup under a timeout. Reload closes the interpreter and
// re-reads the source from disk, so on-disk edits take effect without a
// host restart; any state a module needs across reloads belongs in the
// settings store or the database.
//
// # Failure isolation
//
// Every script runs in its own interpreter. A failed load records the
// error on the module's descriptor (state Error, visible via List) and
// never aborts the host or blocks other modules.
package registry
