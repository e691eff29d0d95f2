// Copyright 2026 The Wayward Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides wayward's standard CBOR configuration.
//
// Everything internal to wayward is CBOR: the authorization store file
// and the control-socket protocol. JSON appears only at external
// surfaces — the compositor IPC protocols (which are JSON by
// definition), the hand-edited seed file, and CLI --json output.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2): the same
// records always produce identical bytes, which is what lets the store
// detect external edits by comparing checksums rather than parsing.
//
// Struct tag convention: fields serialized only internally use `cbor`
// tags; fields that also cross an external JSON surface use `json`
// tags, which this package's modes honor as a fallback. A field never
// carries both.
package codec
