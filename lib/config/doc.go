// Copyright 2026 The Wayward Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the wayward
// daemon.
//
// Configuration is loaded from a single file named by either the
// WAYWARD_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no ~/.config discovery and no automatic
// file search; a desktop daemon must come up on a box with no file at
// all, so [Load] falls back to [Default] when WAYWARD_CONFIG is unset.
//
// Two environment variables override their file counterparts after
// loading: WAYWARD_STATE_DIR and WAYWARD_CONTROL_SOCKET. Variable
// expansion is performed on path fields: ${HOME},
// ${WAYWARD_STATE_DIR}, and ${VAR:-default} patterns are expanded.
// Nothing else in the environment changes configuration.
//
// Key exports:
//
//   - [Config] -- the daemon configuration
//   - [Default] -- defaults for a single-user desktop install
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other wayward packages.
package config
