// Copyright 2026 The Wayward Authors
// SPDX-License-Identifier: Apache-2.0

// Package control is the daemon's operator surface: a CBOR
// request/response protocol on a Unix socket in the user's runtime
// directory. Each connection carries exactly one request and one
// response. Requests are maps with an "action" field naming the
// operation; responses are an {ok, error, data} envelope.
//
// Read actions (status, outputs, records, history) are open to any
// peer that can reach the socket. Mutating actions (allow, deny,
// forget) additionally require the peer's SO_PEERCRED uid to match
// the daemon's uid, or root. The socket file itself is mode 0600, so
// the credential check is a second fence, not the only one.
package control
