// Copyright 2026 The Wayward Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for wayward packages.
//
// [RequireReceive], [RequireSend], and [RequireClosed] encapsulate the
// timeout safety valve pattern (select with a time.After fallback) so
// individual tests never hang forever on a channel that a bug left
// silent. They are the only sanctioned use of the real clock in tests;
// everything else goes through clock.Fake.
//
// [SocketDir] creates a short-named temporary directory directly under
// /tmp for Unix domain sockets, because sun_path is limited to 108
// bytes and t.TempDir() can exceed that under some test runners.
//
// All helpers call t.Fatalf on failure rather than returning errors;
// test setup failures are not recoverable.
package testutil
