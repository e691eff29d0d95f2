// Copyright 2026 The Wayward Authors
// SPDX-License-Identifier: Apache-2.0

package compositor

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/wayward-foundation/wayward/lib/display"
)

// The i3 IPC protocol, which sway implements: every message is the
// 6-byte magic, a little-endian u32 payload length, a little-endian
// u32 message type, then the JSON payload. Events are replies with the
// high bit set in the type.
const (
	swayMagic      = "i3-ipc"
	swayHeaderSize = 6 + 4 + 4

	swayMsgRunCommand = 0
	swayMsgSubscribe  = 2
	swayMsgGetOutputs = 3

	swayEventBit      = 0x80000000
	swayEventOutput   = swayEventBit | 1
	swayEventShutdown = swayEventBit | 6

	// swayMaxPayload caps inbound payloads. GET_OUTPUTS responses are
	// a few kilobytes; anything near the cap is a protocol error.
	swayMaxPayload = 1 << 20

	// swayRequestTimeout bounds a command round-trip when the caller's
	// context carries no deadline.
	swayRequestTimeout = 30 * time.Second
)

// SwayConfig configures NewSway.
type SwayConfig struct {
	// SocketPath is the sway IPC socket, normally $SWAYSOCK.
	SocketPath string

	// Logger is required.
	Logger *slog.Logger
}

// Sway is the Gateway for sway. Commands use a fresh connection per
// request, the way swaymsg does; subscriptions hold a dedicated
// connection for the event stream.
type Sway struct {
	socketPath string
	logger     *slog.Logger

	mu      sync.Mutex
	subConn net.Conn
	closed  bool
}

// NewSway returns a sway gateway. The socket is not dialed until the
// first call, so construction succeeds even while the compositor is
// still starting; the reconciler's connect loop handles the rest.
func NewSway(cfg SwayConfig) (*Sway, error) {
	if cfg.SocketPath == "" {
		return nil, fmt.Errorf("sway gateway: socket path is required (is $SWAYSOCK set?)")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("sway gateway: logger is required")
	}
	return &Sway{
		socketPath: cfg.SocketPath,
		logger:     cfg.Logger.With("component", "compositor", "gateway", "sway"),
	}, nil
}

// Name implements Gateway.
func (s *Sway) Name() string { return "sway" }

// swayOutput is the subset of sway's GET_OUTPUTS reply wayward reads.
type swayOutput struct {
	Name        string    `json:"name"`
	Make        string    `json:"make"`
	Model       string    `json:"model"`
	Serial      string    `json:"serial"`
	Active      bool      `json:"active"`
	Scale       float64   `json:"scale"`
	Rect        swayRect  `json:"rect"`
	CurrentMode *swayMode `json:"current_mode"`
}

type swayRect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type swayMode struct {
	Width   int `json:"width"`
	Height  int `json:"height"`
	Refresh int `json:"refresh"`
}

// swayCommandResult is one element of a RUN_COMMAND reply.
type swayCommandResult struct {
	Success    bool   `json:"success"`
	ParseError bool   `json:"parse_error"`
	Error      string `json:"error"`
}

// Outputs implements Gateway.
func (s *Sway) Outputs(ctx context.Context) ([]display.Snapshot, error) {
	payload, err := s.request(ctx, swayMsgGetOutputs, nil)
	if err != nil {
		return nil, fmt.Errorf("querying outputs: %w", err)
	}

	var outputs []swayOutput
	if err := json.Unmarshal(payload, &outputs); err != nil {
		return nil, fmt.Errorf("parsing GET_OUTPUTS reply: %w", err)
	}

	snapshots := make([]display.Snapshot, 0, len(outputs))
	for _, output := range outputs {
		snapshot := display.Snapshot{
			Identity:    display.Identity(output.Name),
			Description: describeOutput(output.Make, output.Model, output.Serial),
			Enabled:     output.Active,
			Geometry: display.Geometry{
				Position: display.Position{X: output.Rect.X, Y: output.Rect.Y},
				Scale:    output.Scale,
			},
		}
		if output.CurrentMode != nil {
			snapshot.Geometry.Mode = display.Mode{
				Width:      output.CurrentMode.Width,
				Height:     output.CurrentMode.Height,
				RefreshMHz: output.CurrentMode.Refresh,
			}
		}
		if err := display.ValidateIdentity(snapshot.Identity); err != nil {
			s.logger.Warn("skipping output with unusable name", "name", output.Name, "error", err)
			continue
		}
		snapshots = append(snapshots, snapshot)
	}
	display.SortSnapshots(snapshots)
	return snapshots, nil
}

// Enable implements Gateway.
func (s *Sway) Enable(ctx context.Context, id display.Identity) error {
	return s.runCommand(ctx, fmt.Sprintf("output %s enable", id))
}

// Disable implements Gateway.
func (s *Sway) Disable(ctx context.Context, id display.Identity) error {
	return s.runCommand(ctx, fmt.Sprintf("output %s disable", id))
}

// runCommand executes one sway command and folds the reply into an
// error: nil on success, RejectedError when sway refused it.
func (s *Sway) runCommand(ctx context.Context, command string) error {
	payload, err := s.request(ctx, swayMsgRunCommand, []byte(command))
	if err != nil {
		return fmt.Errorf("sending %q: %w", command, err)
	}

	var results []swayCommandResult
	if err := json.Unmarshal(payload, &results); err != nil {
		return fmt.Errorf("parsing reply to %q: %w", command, err)
	}
	for _, result := range results {
		if result.Success {
			continue
		}
		reason := result.Error
		if reason == "" {
			reason = "unspecified failure"
		}
		if result.ParseError {
			reason = "parse error: " + reason
		}
		return &RejectedError{Reason: reason}
	}
	return nil
}

// request performs one round-trip on a fresh connection. The context
// deadline bounds dial, write, and read; without one a fallback
// timeout applies so a wedged compositor cannot hang a cycle.
func (s *Sway) request(ctx context.Context, messageType uint32, payload []byte) ([]byte, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("gateway closed")
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", s.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to sway socket: %w", err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(swayRequestTimeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("setting deadline: %w", err)
	}

	if err := swayWriteMessage(conn, messageType, payload); err != nil {
		return nil, err
	}
	replyType, reply, err := swayReadMessage(conn)
	if err != nil {
		return nil, err
	}
	if replyType != messageType {
		return nil, fmt.Errorf("reply type %#x does not match request type %#x", replyType, messageType)
	}
	return reply, nil
}

// swayWriteMessage frames and writes one message.
func swayWriteMessage(w io.Writer, messageType uint32, payload []byte) error {
	header := make([]byte, swayHeaderSize, swayHeaderSize+len(payload))
	copy(header, swayMagic)
	binary.LittleEndian.PutUint32(header[6:10], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[10:14], messageType)
	if _, err := w.Write(append(header, payload...)); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	return nil
}

// swayReadMessage reads one framed message.
func swayReadMessage(r io.Reader) (uint32, []byte, error) {
	header := make([]byte, swayHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, fmt.Errorf("reading header: %w", err)
	}
	if string(header[:6]) != swayMagic {
		return 0, nil, fmt.Errorf("not an i3-ipc stream (magic %q)", header[:6])
	}
	length := binary.LittleEndian.Uint32(header[6:10])
	messageType := binary.LittleEndian.Uint32(header[10:14])
	if length > swayMaxPayload {
		return 0, nil, fmt.Errorf("payload of %d bytes exceeds limit", length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("reading payload: %w", err)
	}
	return messageType, payload, nil
}

// Subscribe implements Gateway. It dials a dedicated event
// connection, subscribes to output and shutdown events, takes a
// baseline output query, and then translates each notification into
// typed events by re-querying and diffing.
func (s *Sway) Subscribe(ctx context.Context) (<-chan display.ChangeEvent, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", s.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting event stream: %w", err)
	}

	if err := swaySubscribe(conn); err != nil {
		conn.Close()
		return nil, err
	}

	baseline, err := s.Outputs(ctx)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("taking baseline: %w", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return nil, fmt.Errorf("gateway closed")
	}
	s.subConn = conn
	s.mu.Unlock()

	events := make(chan display.ChangeEvent, eventBuffer)

	// Unblock the reader when the caller gives up.
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	go func() {
		defer close(events)
		defer close(done)
		defer conn.Close()
		previous := baseline

		for {
			messageType, _, err := swayReadMessage(conn)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Warn("event stream lost", "error", err)
				}
				return
			}

			switch messageType {
			case swayEventShutdown:
				s.logger.Info("compositor announced shutdown")
				return
			case swayEventOutput:
				// The payload says only that something changed;
				// re-query for the actual state.
				current, err := s.Outputs(ctx)
				if err != nil {
					if ctx.Err() == nil {
						s.logger.Warn("output re-query failed, dropping stream", "error", err)
					}
					return
				}
				if !emit(ctx, events, display.Diff(previous, current)) {
					return
				}
				previous = current
			default:
				// Events we did not subscribe to do not arrive;
				// anything else is noise.
			}
		}
	}()

	return events, nil
}

// swaySubscribe performs the SUBSCRIBE handshake on conn.
func swaySubscribe(conn net.Conn) error {
	conn.SetDeadline(time.Now().Add(swayRequestTimeout))
	defer conn.SetDeadline(time.Time{})

	if err := swayWriteMessage(conn, swayMsgSubscribe, []byte(`["output", "shutdown"]`)); err != nil {
		return err
	}
	replyType, reply, err := swayReadMessage(conn)
	if err != nil {
		return err
	}
	if replyType != swayMsgSubscribe {
		return fmt.Errorf("subscribe reply type %#x", replyType)
	}
	var ack struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(reply, &ack); err != nil {
		return fmt.Errorf("parsing subscribe reply: %w", err)
	}
	if !ack.Success {
		return fmt.Errorf("compositor refused event subscription")
	}
	return nil
}

// Close implements Gateway.
func (s *Sway) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.subConn != nil {
		s.subConn.Close()
		s.subConn = nil
	}
	return nil
}

// describeOutput joins the non-empty EDID fields into the operator
// facing description.
func describeOutput(manufacturer, model, serial string) string {
	var fields []string
	for _, field := range []string{manufacturer, model, serial} {
		field = strings.TrimSpace(field)
		if field != "" && field != "Unknown" {
			fields = append(fields, field)
		}
	}
	return strings.Join(fields, " ")
}
