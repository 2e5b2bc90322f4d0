// Copyright 2026 © The Social Robotics Authors
// SPDX-License-Identifier: Apache-2.0

// Package server accepts TCP connections from dialogue agents and runs
// one session per connection. Sessions are fully isolated: each owns a
// fresh model, and no state is shared across connections.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/MCHalbi/social-robotics/pkg/session"
	"github.com/MCHalbi/social-robotics/pkg/telemetry"
)

// Server listens for connections and spawns sessions.
type Server struct {
	addr      string
	logger    *slog.Logger
	metrics   *telemetry.SessionMetrics
	readLimit int

	mu       sync.Mutex
	listener net.Listener
	conns    map[string]net.Conn

	wg sync.WaitGroup
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics attaches session metrics to every spawned session.
func WithMetrics(metrics *telemetry.SessionMetrics) Option {
	return func(s *Server) {
		s.metrics = metrics
	}
}

// WithReadLimit sets the per-frame size bound passed to sessions.
func WithReadLimit(limit int) Option {
	return func(s *Server) {
		if limit > 0 {
			s.readLimit = limit
		}
	}
}

// New creates a server that will listen on addr.
func New(addr string, opts ...Option) *Server {
	s := &Server{
		addr:      addr,
		logger:    slog.Default(),
		readLimit: session.DefaultReadLimit,
		conns:     map[string]net.Conn{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Listen binds the server's address. It must be called before Serve;
// splitting the two lets callers learn the bound address when the
// configured port is 0.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	return nil
}

// Addr returns the bound listen address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ListenAndServe binds the address and serves until the context is
// canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve accepts connections until the context is canceled, then closes
// all live sessions and waits for them to drain.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return fmt.Errorf("serve called before listen")
	}
	s.logger.InfoContext(ctx, "server listening", "addr", listener.Addr().String())

	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			listener.Close()
		case <-stopped:
		}
	}()

	var acceptErr error
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			acceptErr = fmt.Errorf("accept: %w", err)
			break
		}
		s.startSession(ctx, conn)
	}
	close(stopped)
	listener.Close()

	s.mu.Lock()
	for _, conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()

	s.logger.InfoContext(ctx, "server stopped")
	return acceptErr
}

func (s *Server) startSession(ctx context.Context, conn net.Conn) {
	id := uuid.NewString()
	s.mu.Lock()
	s.conns[id] = conn
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "connection accepted",
		"session_id", id, "remote_addr", conn.RemoteAddr().String())

	sess := session.New(conn,
		session.WithID(id),
		session.WithLogger(s.logger),
		session.WithMetrics(s.metrics),
		session.WithReadLimit(s.readLimit),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			conn.Close()
			s.mu.Lock()
			delete(s.conns, id)
			s.mu.Unlock()
		}()
		if err := sess.Run(ctx); err != nil && ctx.Err() == nil {
			s.logger.WarnContext(ctx, "session ended with error",
				"session_id", id, "error", err)
		}
	}()
}
