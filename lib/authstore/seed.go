// Copyright 2026 The Wayward Authors
// SPDX-License-Identifier: Apache-2.0

package authstore

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/wayward-foundation/wayward/lib/display"
	"github.com/wayward-foundation/wayward/lib/policy"
)

// SeedEntry is one pre-authorized decision from a seed file.
type SeedEntry struct {
	Identity    display.Identity `json:"identity"`
	Decision    policy.Decision  `json:"decision"`
	Description string           `json:"description,omitempty"`
}

// LoadSeed parses a seed file: a JSONC array of entries, hand-edited
// by whoever provisions the machine, so comments are allowed:
//
//	[
//	  // built-in panel, always on
//	  {"identity": "eDP-1", "decision": "allowed"},
//	  {"identity": "DP-3", "decision": "denied", "description": "lobby screen"}
//	]
//
// Identities and decisions are validated during decoding; duplicates
// are rejected.
func LoadSeed(path string) ([]SeedEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}

	var entries []SeedEntry
	if err := json.Unmarshal(jsonc.ToJSON(data), &entries); err != nil {
		return nil, fmt.Errorf("parsing seed file %s: %w", path, err)
	}

	seen := make(map[display.Identity]bool, len(entries))
	for _, entry := range entries {
		if seen[entry.Identity] {
			return nil, fmt.Errorf("seed file %s: duplicate identity %s", path, entry.Identity)
		}
		seen[entry.Identity] = true
	}
	return entries, nil
}

// Seed installs entries into a store that has no records yet and
// persists once. Seeding a non-empty store is refused: the seed file
// provisions first boot, it never overrides decisions made since.
func (s *Store) Seed(entries []SeedEntry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.records) != 0 {
		return fmt.Errorf("refusing to seed a store holding %d records", len(s.records))
	}

	now := s.clock.Now().UTC()
	for _, entry := range entries {
		s.records[entry.Identity] = policy.Record{
			Identity:    entry.Identity,
			Decision:    entry.Decision,
			Description: entry.Description,
			FirstSeen:   now,
			LastUpdated: now,
		}
	}
	s.logger.Info("seeded authorization store", "records", len(entries))
	return s.persistLocked()
}
