// Copyright 2026 © The Social Robotics Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"reflect"
	"strconv"
	"testing"
	"time"

	"github.com/MCHalbi/social-robotics/pkg/model"
	"github.com/MCHalbi/social-robotics/pkg/session"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestClient wires a client to a live session over an in-memory pipe.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	s := session.New(serverConn, session.WithLogger(discardLogger()))
	go func() {
		_ = s.Run(context.Background())
		serverConn.Close()
	}()
	c := New(clientConn, WithLogger(discardLogger()), WithTimeout(5*time.Second))
	t.Cleanup(func() {
		c.Close()
		serverConn.Close()
	})
	return c
}

func TestRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	if err := c.SetDescription(ctx, "Care robot dilemma"); err != nil {
		t.Fatalf("SetDescription failed: %v", err)
	}
	description, err := c.Description(ctx)
	if err != nil {
		t.Fatalf("Description failed: %v", err)
	}
	if description != "Care robot dilemma" {
		t.Fatalf("expected description round trip, got %q", description)
	}

	if err := c.AddActions(ctx, "A1", "A2"); err != nil {
		t.Fatalf("AddActions failed: %v", err)
	}
	actions, err := c.Actions(ctx)
	if err != nil {
		t.Fatalf("Actions failed: %v", err)
	}
	if !reflect.DeepEqual(actions, []string{"A1", "A2"}) {
		t.Fatalf("expected [A1 A2], got %v", actions)
	}
}

func TestFullModelLifecycle(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	if err := c.AddActions(ctx, "A1"); err != nil {
		t.Fatalf("AddActions failed: %v", err)
	}
	if err := c.AddBackgrounds(ctx, "B1"); err != nil {
		t.Fatalf("AddBackgrounds failed: %v", err)
	}
	if err := c.AddConsequences(ctx, "C1", "C2"); err != nil {
		t.Fatalf("AddConsequences failed: %v", err)
	}
	if err := c.AddMechanism(ctx, "C1", "A1", "B1"); err != nil {
		t.Fatalf("AddMechanism failed: %v", err)
	}
	if err := c.SetUtility(ctx, "C1", 10, true); err != nil {
		t.Fatalf("SetUtility failed: %v", err)
	}
	if err := c.AddIntentions(ctx, "A1", "C1"); err != nil {
		t.Fatalf("AddIntentions failed: %v", err)
	}

	mechanisms, err := c.Mechanisms(ctx)
	if err != nil {
		t.Fatalf("Mechanisms failed: %v", err)
	}
	if !reflect.DeepEqual(mechanisms, map[string][]string{"C1": {"A1", "B1"}}) {
		t.Fatalf("unexpected mechanisms: %v", mechanisms)
	}

	utilities, err := c.Utilities(ctx)
	if err != nil {
		t.Fatalf("Utilities failed: %v", err)
	}
	want := map[string]model.Utility{"C1": {Value: 10, Affirmation: true}}
	if !reflect.DeepEqual(utilities, want) {
		t.Fatalf("unexpected utilities: %v", utilities)
	}

	intentions, err := c.Intentions(ctx)
	if err != nil {
		t.Fatalf("Intentions failed: %v", err)
	}
	if !reflect.DeepEqual(intentions, map[string][]string{"A1": {"C1"}}) {
		t.Fatalf("unexpected intentions: %v", intentions)
	}

	if err := c.RenameConsequence(ctx, "C1", "C9"); err != nil {
		t.Fatalf("RenameConsequence failed: %v", err)
	}
	intentions, err = c.Intentions(ctx)
	if err != nil {
		t.Fatalf("Intentions failed: %v", err)
	}
	if !reflect.DeepEqual(intentions, map[string][]string{"A1": {"C9"}}) {
		t.Fatalf("expected rename to follow into intentions, got %v", intentions)
	}

	if err := c.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	actions, err := c.Actions(ctx)
	if err != nil {
		t.Fatalf("Actions failed: %v", err)
	}
	if len(actions) != 0 {
		t.Fatalf("expected empty action set after reset, got %v", actions)
	}
}

func TestRejectedMutation(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	err := c.AddMechanism(ctx, "C1", "A1")
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}

func TestUtilityRemoveNeedsAffirmation(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	if err := c.AddConsequences(ctx, "C1"); err != nil {
		t.Fatalf("AddConsequences failed: %v", err)
	}
	if err := c.SetUtility(ctx, "C1", -4, false); err != nil {
		t.Fatalf("SetUtility failed: %v", err)
	}
	if err := c.RemoveUtility(ctx, "C1", false); !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if err := c.RemoveUtility(ctx, "C1", true); err != nil {
		t.Fatalf("affirmed RemoveUtility failed: %v", err)
	}
	utilities, err := c.Utilities(ctx)
	if err != nil {
		t.Fatalf("Utilities failed: %v", err)
	}
	if len(utilities) != 0 {
		t.Fatalf("expected empty utility mapping, got %v", utilities)
	}
}

// scriptedPeer reads request frames and answers each with the frames its
// script produces for that request.
func scriptedPeer(t *testing.T, script func(id int) []string) io.ReadWriteCloser {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	go func() {
		defer serverConn.Close()
		scanner := bufio.NewScanner(serverConn)
		for scanner.Scan() {
			var envelope struct {
				ID int `json:"id"`
			}
			if err := json.Unmarshal(scanner.Bytes(), &envelope); err != nil {
				continue
			}
			for _, frame := range script(envelope.ID) {
				if _, err := serverConn.Write([]byte(frame + "\n")); err != nil {
					return
				}
			}
		}
	}()
	return clientConn
}

func TestStrayReplyIsIgnored(t *testing.T) {
	conn := scriptedPeer(t, func(id int) []string {
		return []string{
			`{"id":999,"type":"reply","query":{"reply_to":999,"result":true}}`,
			`{"id":` + itoa(id) + `,"type":"reply","query":{"reply_to":` + itoa(id) + `,"result":true}}`,
		}
	})
	c := New(conn, WithLogger(discardLogger()), WithTimeout(5*time.Second))
	defer c.Close()

	if err := c.Reset(context.Background()); err != nil {
		t.Fatalf("expected call to survive stray reply, got %v", err)
	}
}

func TestIdentifiersAreSequential(t *testing.T) {
	var seen []int
	conn := scriptedPeer(t, func(id int) []string {
		seen = append(seen, id)
		return []string{`{"id":` + itoa(id) + `,"type":"reply","query":{"reply_to":` + itoa(id) + `,"result":true}}`}
	})
	c := New(conn, WithLogger(discardLogger()), WithTimeout(5*time.Second))
	defer c.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := c.Reset(ctx); err != nil {
			t.Fatalf("Reset %d failed: %v", i, err)
		}
	}
	if !reflect.DeepEqual(seen, []int{0, 1, 2}) {
		t.Fatalf("expected sequential identifiers, got %v", seen)
	}
}

func TestCallTimesOutWithoutReply(t *testing.T) {
	conn := scriptedPeer(t, func(id int) []string { return nil })
	c := New(conn, WithLogger(discardLogger()), WithTimeout(50*time.Millisecond))
	defer c.Close()

	err := c.Reset(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestClosedConnectionFailsCalls(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	c := New(clientConn, WithLogger(discardLogger()), WithTimeout(time.Second))
	serverConn.Close()

	// Give the reader loop a moment to observe the close.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if err := c.Reset(context.Background()); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected calls to fail after the connection closed")
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
