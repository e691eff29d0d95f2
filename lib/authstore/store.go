// Copyright 2026 The Wayward Authors
// SPDX-License-Identifier: Apache-2.0

// Package authstore persists display authorization records.
//
// The store is a single CBOR file: a deterministically encoded payload
// (format version plus the record map) wrapped in an envelope that
// carries a keyed blake3 checksum of the payload. Deterministic
// encoding makes the checksum double as a cheap change detector: a
// reload can compare checksums instead of decoding, and the daemon's
// own writes are recognized as no-ops when the file watcher reports
// them back.
//
// Every mutation persists immediately with an atomic write (temporary
// file, fsync, rename, parent directory sync), so a crash never leaves
// a partial file. A file that fails decoding or checksum verification
// is quarantined beside the store and the daemon starts over with an
// empty record set: losing authorizations fails closed, since absent
// records mean Denied.
package authstore

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/wayward-foundation/wayward/lib/clock"
	"github.com/wayward-foundation/wayward/lib/codec"
	"github.com/wayward-foundation/wayward/lib/display"
	"github.com/wayward-foundation/wayward/lib/policy"
)

// ErrCorrupt marks a store file that exists but cannot be used: the
// envelope does not decode, the checksum does not match, or the
// payload version is unknown. Callers that see it from Open still get
// a usable empty store.
var ErrCorrupt = errors.New("corrupt authorization store")

// fileVersion is the payload format version this build writes.
const fileVersion = 1

// checksumKey is the blake3 domain-separation key for store payloads.
// Exactly 32 bytes.
var checksumKey = []byte("wayward.authstore.records.v1....")

// storePayload is the deterministically encoded inner document.
type storePayload struct {
	Version int                                `cbor:"version"`
	Records map[display.Identity]policy.Record `cbor:"records"`
}

// storeEnvelope is the on-disk document: the encoded payload plus its
// keyed checksum.
type storeEnvelope struct {
	Payload  codec.RawMessage `cbor:"payload"`
	Checksum []byte           `cbor:"checksum"`
}

// Config configures Open.
type Config struct {
	// Path is the store file location. Empty means volatile: the
	// store lives only in memory and never touches disk.
	Path string

	// Clock stamps FirstSeen/LastUpdated. Required.
	Clock clock.Clock

	// Logger receives load/quarantine/reload messages. Required.
	Logger *slog.Logger
}

func (c Config) validate() error {
	if c.Clock == nil {
		return fmt.Errorf("authstore: Clock is required")
	}
	if c.Logger == nil {
		return fmt.Errorf("authstore: Logger is required")
	}
	return nil
}

// Store holds the authorization records for all display identities the
// daemon has ever seen. Safe for concurrent use: the reconciler
// mutates while the control surface reads copies.
type Store struct {
	path   string
	clock  clock.Clock
	logger *slog.Logger

	mu       sync.RWMutex
	records  map[display.Identity]policy.Record
	checksum []byte
}

// Open loads all records from the configured path. A missing file is
// a first run and yields an empty store. A corrupt file is quarantined
// beside the store path and Open returns a usable empty store together
// with an error wrapping ErrCorrupt, so the caller can report the data
// loss and keep running. Any other read failure returns a nil store.
func Open(cfg Config) (*Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	s := &Store{
		path:    cfg.Path,
		clock:   cfg.Clock,
		logger:  cfg.Logger.With("component", "authstore"),
		records: make(map[display.Identity]policy.Record),
	}
	if s.path == "" {
		s.logger.Info("running with a volatile store, decisions will not survive restart")
		return s, nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Info("no store file, starting empty", "path", s.path)
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading authorization store: %w", err)
	}

	records, checksum, err := decodeStore(data)
	if err != nil {
		quarantine := fmt.Sprintf("%s.corrupt-%d", s.path, s.clock.Now().Unix())
		if renameErr := os.Rename(s.path, quarantine); renameErr != nil {
			s.logger.Error("quarantining corrupt store failed", "error", renameErr)
		} else {
			s.logger.Error("store file corrupt, quarantined and starting empty",
				"path", s.path, "quarantine", quarantine, "error", err)
		}
		return s, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	s.records = records
	s.checksum = checksum
	s.logger.Info("authorization store loaded", "path", s.path, "records", len(records))
	return s, nil
}

// decodeStore verifies and decodes an on-disk document, returning the
// records and the payload checksum.
func decodeStore(data []byte) (map[display.Identity]policy.Record, []byte, error) {
	var envelope storeEnvelope
	if err := codec.Unmarshal(data, &envelope); err != nil {
		return nil, nil, fmt.Errorf("decoding envelope: %w", err)
	}
	if got := payloadChecksum(envelope.Payload); !bytes.Equal(got, envelope.Checksum) {
		return nil, nil, fmt.Errorf("checksum mismatch (file damaged or truncated)")
	}
	var payload storePayload
	if err := codec.Unmarshal(envelope.Payload, &payload); err != nil {
		return nil, nil, fmt.Errorf("decoding payload: %w", err)
	}
	if payload.Version != fileVersion {
		return nil, nil, fmt.Errorf("unsupported store version %d", payload.Version)
	}
	records := payload.Records
	if records == nil {
		records = make(map[display.Identity]policy.Record)
	}
	return records, envelope.Checksum, nil
}

// payloadChecksum returns the keyed blake3 checksum of an encoded
// payload.
func payloadChecksum(payload []byte) []byte {
	hasher, err := blake3.NewKeyed(checksumKey)
	if err != nil {
		panic("authstore: blake3 key setup failed: " + err.Error())
	}
	hasher.Write(payload)
	return hasher.Sum(nil)
}

// Decision returns the stored decision for an identity. Absent
// identities are Denied; the store can only fail closed.
func (s *Store) Decision(id display.Identity) policy.Decision {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[id].Decision
}

// Get returns the record for an identity and whether one exists.
func (s *Store) Get(id display.Identity) (policy.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	return record, ok
}

// Records returns a copy of all records sorted by identity. The copy
// is the caller's; the control surface hands it to clients without
// exposing live state.
func (s *Store) Records() []policy.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]policy.Record, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Identity < records[j].Identity })
	return records
}

// View returns a copy of the record map keyed by identity, the shape
// the policy engine consumes.
func (s *Store) View() map[display.Identity]policy.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	view := make(map[display.Identity]policy.Record, len(s.records))
	for id, record := range s.records {
		view[id] = record
	}
	return view
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Path returns the backing file path, empty for a volatile store.
func (s *Store) Path() string { return s.path }

// Checksum returns the checksum of the last loaded or persisted
// payload, nil for a volatile or never-persisted store.
func (s *Store) Checksum() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]byte(nil), s.checksum...)
}

// Set records a decision for an identity, creating the record if
// needed, and persists. A call that changes nothing does not touch
// disk. On write failure the in-memory record is kept and the error
// reported; the decision stays effective until restart.
func (s *Store) Set(id display.Identity, decision policy.Decision, description string) (policy.Record, error) {
	if err := display.ValidateIdentity(id); err != nil {
		return policy.Record{}, fmt.Errorf("invalid identity: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now().UTC()
	record, exists := s.records[id]
	if exists && record.Decision == decision && (description == "" || record.Description == description) {
		return record, nil
	}

	if !exists {
		record = policy.Record{Identity: id, FirstSeen: now}
	}
	record.Decision = decision
	if description != "" {
		record.Description = description
	}
	record.LastUpdated = now
	s.records[id] = record

	return record, s.persistLocked()
}

// Forget removes the record for an identity and persists. Returns
// whether a record existed. A still-connected display becomes unseen
// and is re-admitted as Denied on the next cycle.
func (s *Store) Forget(id display.Identity) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[id]; !exists {
		return false, nil
	}
	delete(s.records, id)
	return true, s.persistLocked()
}

// Apply applies a plan's mutations in order and persists once for the
// whole batch. In-memory state reflects every mutation even when the
// write fails.
func (s *Store) Apply(mutations []policy.Mutation) error {
	if len(mutations) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now().UTC()
	for _, mutation := range mutations {
		record, exists := s.records[mutation.Identity]
		if !exists {
			record = policy.Record{Identity: mutation.Identity, FirstSeen: now}
		}
		record.Decision = mutation.Decision
		if mutation.Description != "" {
			record.Description = mutation.Description
		}
		record.LastUpdated = now
		s.records[mutation.Identity] = record
	}

	return s.persistLocked()
}

// ReloadIfChanged re-reads the backing file and swaps in its records
// when the payload checksum differs from what is in memory. The
// daemon's file watcher calls this on every write event; self-writes
// match the checksum and cost one file read. A corrupt on-disk state
// keeps the in-memory records and reports ErrCorrupt.
func (s *Store) ReloadIfChanged() (bool, error) {
	if s.path == "" {
		return false, nil
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		// Deleted out from under us. Keep memory; the next mutation
		// recreates the file.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("re-reading authorization store: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var envelope storeEnvelope
	if err := codec.Unmarshal(data, &envelope); err != nil {
		return false, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if bytes.Equal(envelope.Checksum, s.checksum) {
		return false, nil
	}

	records, checksum, err := decodeStore(data)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	s.records = records
	s.checksum = checksum
	s.logger.Info("authorization store reloaded after external change", "records", len(records))
	return true, nil
}

// persistLocked encodes the current records and atomically replaces
// the store file. Caller holds s.mu. Volatile stores skip disk but
// still succeed.
func (s *Store) persistLocked() error {
	if s.path == "" {
		return nil
	}

	payload, err := codec.Marshal(storePayload{Version: fileVersion, Records: s.records})
	if err != nil {
		return fmt.Errorf("encoding authorization store: %w", err)
	}
	checksum := payloadChecksum(payload)
	data, err := codec.Marshal(storeEnvelope{Payload: payload, Checksum: checksum})
	if err != nil {
		return fmt.Errorf("encoding store envelope: %w", err)
	}

	if err := writeFileAtomic(s.path, data); err != nil {
		return err
	}
	s.checksum = checksum
	return nil
}

// writeFileAtomic writes data to path via a temporary file in the same
// directory: write, sync, close, rename, then sync the parent
// directory so the rename survives power loss. Readers never see a
// partial file.
func writeFileAtomic(path string, data []byte) error {
	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating temporary store file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary store file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary store file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary store file: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming store file into place: %w", err)
	}

	if parent, err := os.Open(filepath.Dir(path)); err == nil {
		parent.Sync()
		parent.Close()
	}
	return nil
}
