// Package db provides the shared embedded database accessor.
//
// One Accessor exists per process. The SQLite file (modernc.org/sqlite,
// WAL mode) is created lazily on first use and torn down exactly once at
// graceful shutdown. The host passes the accessor explicitly to every
// consumer; nothing else may open a second connection to the file.
//
// Execute runs statements inside a shared transaction that is begun
// lazily and flushed only by an explicit Commit, letting a module batch
// several statements as one unit. Failures come back as *DatabaseError
// carrying the offending query and the underlying cause.
package db
