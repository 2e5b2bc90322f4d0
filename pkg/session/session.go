// Copyright 2026 © The Social Robotics Authors
// SPDX-License-Identifier: Apache-2.0

// Package session runs the responder loop for one connection. Frames
// are newline-delimited JSON; each decoded request is dispatched against
// the session's own model and answered with exactly one reply, in
// arrival order. A decode failure never corrupts the framing of later
// messages: the bad frame is reported or dropped and the loop moves on.
package session

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MCHalbi/social-robotics/pkg/dispatch"
	"github.com/MCHalbi/social-robotics/pkg/errors"
	"github.com/MCHalbi/social-robotics/pkg/model"
	"github.com/MCHalbi/social-robotics/pkg/protocol"
	"github.com/MCHalbi/social-robotics/pkg/telemetry"
)

// DefaultReadLimit bounds the size of a single inbound frame.
const DefaultReadLimit = 1 << 20

// Session owns one connection's model, dispatcher, and responder loop.
type Session struct {
	conn       io.ReadWriter
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
	metrics    *telemetry.SessionMetrics
	tracer     trace.Tracer
	readLimit  int
	id         string
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics attaches session metrics. A nil tracker disables them.
func WithMetrics(metrics *telemetry.SessionMetrics) Option {
	return func(s *Session) {
		s.metrics = metrics
	}
}

// WithReadLimit overrides the maximum inbound frame size.
func WithReadLimit(limit int) Option {
	return func(s *Session) {
		if limit > 0 {
			s.readLimit = limit
		}
	}
}

// WithID tags the session's log records with a connection identifier.
func WithID(id string) Option {
	return func(s *Session) {
		s.id = id
	}
}

// New creates a session over the given connection with a fresh model.
func New(conn io.ReadWriter, opts ...Option) *Session {
	s := &Session{
		conn:       conn,
		dispatcher: dispatch.New(model.New()),
		logger:     slog.Default(),
		tracer:     otel.Tracer("hera/session"),
		readLimit:  DefaultReadLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id != "" {
		s.logger = s.logger.With("session_id", s.id)
	}
	return s
}

// Model exposes the session's model for tests and debug dumps.
func (s *Session) Model() *model.Model {
	return s.dispatcher.Model()
}

// Run processes frames until the connection closes, the context is
// canceled, or reading fails. A clean peer close returns nil.
func (s *Session) Run(ctx context.Context) error {
	s.metrics.SessionStarted(ctx)
	defer s.metrics.SessionEnded(ctx)
	s.logger.InfoContext(ctx, "session started")

	scanner := bufio.NewScanner(s.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), s.readLimit)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame := bytes.TrimSpace(scanner.Bytes())
		if len(frame) == 0 {
			continue
		}
		if err := s.handleFrame(ctx, frame); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		// Cancellation usually surfaces here as a read error on the
		// closed connection.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read frame: %w", err)
	}
	s.logger.InfoContext(ctx, "session closed by peer")
	return nil
}

func (s *Session) handleFrame(ctx context.Context, frame []byte) error {
	msg, err := protocol.Decode(frame)
	if err != nil {
		s.metrics.RecordDecodeFailure(ctx)
		id, ok := recoverID(frame)
		if !ok {
			s.logger.WarnContext(ctx, "dropping malformed frame", "error", err)
			return nil
		}
		s.logger.WarnContext(ctx, "rejecting malformed frame", "id", id, "error", err)
		return s.sendResult(ctx, id, false)
	}

	switch msg.Type {
	case protocol.TypeRequest:
		return s.handleRequest(ctx, msg)
	case protocol.TypeReply:
		// The responder never issues requests, so no reply can match an
		// outstanding identifier.
		uncorrelated := errors.Newf(errors.CodeUnknownCorrelation,
			"no outstanding request with id %d", msg.Reply.ReplyTo)
		s.logger.WarnContext(ctx, "ignoring uncorrelated reply",
			"reply_to", msg.Reply.ReplyTo, "error", uncorrelated)
		return nil
	}
	return nil
}

func (s *Session) handleRequest(ctx context.Context, msg *protocol.Message) error {
	ctx, span := s.tracer.Start(ctx, "session.dispatch", trace.WithAttributes(
		attribute.Int("request.id", msg.ID),
		attribute.String("request.field", string(msg.Request.Field)),
		attribute.String("request.method", string(msg.Request.Method)),
	))
	defer span.End()

	start := time.Now()
	result, err := s.dispatcher.Dispatch(msg.Request)
	elapsed := time.Since(start)
	s.metrics.RecordRequest(ctx, string(msg.Request.Field), string(msg.Request.Method), err == nil, elapsed)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		s.logger.WarnContext(ctx, "request failed",
			"id", msg.ID,
			"field", msg.Request.Field,
			"method", msg.Request.Method,
			"code", errors.CodeOf(err),
			"error", err)
		return s.sendResult(ctx, msg.ID, false)
	}
	s.logger.DebugContext(ctx, "request handled",
		"id", msg.ID,
		"field", msg.Request.Field,
		"method", msg.Request.Method,
		"duration", elapsed)
	return s.sendResult(ctx, msg.ID, result)
}

func (s *Session) sendResult(ctx context.Context, id int, result any) error {
	reply, err := protocol.NewReply(id, result)
	if err != nil {
		return err
	}
	data, err := protocol.Encode(reply)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := s.conn.Write(data); err != nil {
		return fmt.Errorf("write reply %d: %w", id, err)
	}
	return nil
}

// recoverID pulls the envelope identifier out of a frame the codec
// rejected, so the failure can still be answered with a false result.
func recoverID(frame []byte) (int, bool) {
	var partial struct {
		ID *int `json:"id"`
	}
	if err := json.Unmarshal(frame, &partial); err != nil {
		return 0, false
	}
	if partial.ID == nil || *partial.ID < 0 {
		return 0, false
	}
	return *partial.ID, true
}
