// Package control exposes the facade through which everything outside
// the host interacts with it.
//
// The web panel lives in a separate process and talks to the host only
// over this package's HTTP JSON API; it never reads the settings file or
// opens the database. In-process callers (the CLI subcommands) use the
// same Facade methods.
//
// # Wire contract
//
//	GET  /api/status          -> {alive, module_count, version}
//	GET  /api/modules         -> {modules: [{id, state, error?, ...}]}
//	POST /api/toggle          {id, desired} -> {id, state}
//	GET  /api/logs?limit=N    -> {lines: [...]} most recent last
//	POST /api/shutdown        -> 200, then graceful stop
//
// Every non-2xx response carries {"error": "..."}. Toggle is idempotent:
// toggling a module already in the desired state returns the current
// state without re-running its setup.
package control
