// Copyright 2026 The Wayward Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides the SQLite connection pool wayward's
// structured storage sits on. The decision journal uses it; anything
// else that grows a need for local queryable state should too.
//
// It wraps zombiezen.com/go/sqlite with fixed defaults: WAL journal
// mode, NORMAL synchronous, a busy timeout instead of immediate
// SQLITE_BUSY, and memory-backed temp storage. NORMAL synchronous
// means a transaction survives a daemon crash but not necessarily a
// power cut; that trade is fine here because the journal is an audit
// trail, not the source of truth. Authorization decisions live in the
// fsync'd store file.
//
// Callers [Pool.Take] a connection, do their work, and [Pool.Put] it
// back. Connections are not safe for concurrent use; each goroutine
// holds its own for the duration of its work.
//
// The package is deliberately thin. There is no query builder and no
// ORM: callers write SQL and use sqlitex.Execute / ExecuteScript /
// ImmediateTransaction from the underlying library directly. The
// OnConnect hook is where a caller installs its schema.
package sqlitepool
