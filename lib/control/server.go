// Copyright 2026 The Wayward Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/wayward-foundation/wayward/lib/codec"
)

// ActionFunc processes a control request. The raw parameter is the
// full CBOR request (including the "action" field); the handler
// decodes its action-specific fields from it.
//
// Return a value to include in the success response, or an error for
// a failure response. A nil value produces a bare {ok: true}.
type ActionFunc func(ctx context.Context, raw []byte) (any, error)

type handlerEntry struct {
	fn       ActionFunc
	mutating bool
}

// Server serves the control protocol on a Unix socket. Each
// connection handles exactly one request-response cycle. Actions are
// registered with Handle or HandleMutating before Serve.
type Server struct {
	socketPath string
	ownerUID   uint32
	handlers   map[string]handlerEntry
	logger     *slog.Logger

	// activeConnections tracks in-flight request handlers so Serve
	// can drain them before returning.
	activeConnections sync.WaitGroup
}

// NewServer creates a server that will listen on socketPath.
func NewServer(socketPath string, logger *slog.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		ownerUID:   uint32(os.Getuid()),
		handlers:   make(map[string]handlerEntry),
		logger:     logger.With("component", "control"),
	}
}

// Handle registers a read-only action. Panics on duplicate
// registration.
func (s *Server) Handle(action string, fn ActionFunc) {
	s.register(action, fn, false)
}

// HandleMutating registers an action that changes authorization
// state. Requests are rejected unless the peer's uid matches the
// daemon's uid or is root.
func (s *Server) HandleMutating(action string, fn ActionFunc) {
	s.register(action, fn, true)
}

func (s *Server) register(action string, fn ActionFunc, mutating bool) {
	if _, exists := s.handlers[action]; exists {
		panic(fmt.Sprintf("control.Server: duplicate handler for action %q", action))
	}
	s.handlers[action] = handlerEntry{fn: fn, mutating: mutating}
}

// Serve accepts connections and dispatches requests until ctx is
// cancelled, then stops accepting and waits for active handlers.
//
// The socket's parent directory is created mode 0700 and any stale
// socket file is removed first. The socket file is mode 0600 and is
// removed on return.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o700); err != nil {
		return fmt.Errorf("creating control socket directory: %w", err)
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		return fmt.Errorf("restricting socket permissions: %w", err)
	}

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("control socket listening", "path", s.socketPath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

// readTimeout is how long we wait for the client to send its request.
// A well-behaved client sends the request immediately after
// connecting.
const readTimeout = 30 * time.Second

// writeTimeout is how long we wait for the response to be written.
const writeTimeout = 10 * time.Second

// maxRequestSize caps a single CBOR request. Control requests are an
// action name plus a display identity; 1 MB is far beyond generous.
const maxRequestSize = 1024 * 1024

// handleConnection processes one request-response cycle.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	// Decode one CBOR value from the connection. CBOR is self-
	// delimiting so no framing protocol is needed. LimitReader
	// prevents a malicious client from exhausting memory.
	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			// Client connected but sent nothing.
			return
		}
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}

	var header struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if header.Action == "" {
		s.writeError(conn, "missing required field: action")
		return
	}

	entry, exists := s.handlers[header.Action]
	if !exists {
		s.writeError(conn, fmt.Sprintf("unknown action %q", header.Action))
		return
	}

	if entry.mutating {
		cred, err := peerCredentials(conn)
		if err != nil {
			s.logger.Warn("cannot resolve peer credentials", "action", header.Action, "error", err)
			s.writeError(conn, "cannot verify peer credentials")
			return
		}
		if cred.Uid != s.ownerUID && cred.Uid != 0 {
			s.logger.Warn("rejecting mutating action from foreign uid",
				"action", header.Action,
				"peer_uid", cred.Uid,
				"peer_pid", cred.Pid,
			)
			s.writeError(conn, fmt.Sprintf("action %q requires the daemon owner or root", header.Action))
			return
		}
	}

	result, err := entry.fn(ctx, []byte(raw))
	if err != nil {
		s.logger.Debug("action failed",
			"action", header.Action,
			"error", err,
		)
		s.writeError(conn, err.Error())
		return
	}

	s.writeSuccess(conn, result)
}

// peerCredentials reads the connecting process's credentials from the
// socket. Unix domain sockets carry these in the kernel; they cannot
// be forged by the peer.
func peerCredentials(conn net.Conn) (*unix.Ucred, error) {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return nil, fmt.Errorf("connection is %T, not a Unix socket", conn)
	}
	rawConn, err := unixConn.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("accessing raw connection: %w", err)
	}
	var cred *unix.Ucred
	var credErr error
	if err := rawConn.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return nil, fmt.Errorf("reading SO_PEERCRED: %w", err)
	}
	if credErr != nil {
		return nil, fmt.Errorf("reading SO_PEERCRED: %w", credErr)
	}
	return cred, nil
}

// writeError sends a failure response: {ok: false, error: "..."}.
// Write failures are logged at debug level; the connection is closing
// regardless.
func (s *Server) writeError(conn net.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(Response{
		OK:    false,
		Error: message,
	}); err != nil {
		s.logger.Debug("failed to write error response", "error", err)
	}
}

// writeSuccess sends a success response. A nil result produces
// {ok: true}; anything else is marshaled into the "data" field.
func (s *Server) writeSuccess(conn net.Conn, result any) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	response := Response{OK: true}

	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.writeError(conn, fmt.Sprintf("internal: marshaling response: %v", err))
			return
		}
		response.Data = data
	}

	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("failed to write success response", "error", err)
	}
}
