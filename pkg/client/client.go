// Copyright 2026 © The Social Robotics Authors
// SPDX-License-Identifier: Apache-2.0

// Package client implements the initiator side of the hera protocol: it
// assigns request identifiers, correlates replies to outstanding calls,
// and exposes typed helpers for every model operation.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/MCHalbi/social-robotics/pkg/errors"
	"github.com/MCHalbi/social-robotics/pkg/model"
	"github.com/MCHalbi/social-robotics/pkg/protocol"
)

// ErrRejected reports that the server answered a mutating call with a
// false result. The wire protocol flattens all validation failures into
// that flag, so no finer-grained cause is available on this side.
var ErrRejected = stderrors.New("request rejected by server")

// Option configures the client.
type Option func(*Client)

// Client drives one connection to a hera server. It is safe for
// concurrent use; replies are matched to callers by identifier, so calls
// may overlap even though the server handles them in order.
type Client struct {
	conn    io.ReadWriteCloser
	logger  *slog.Logger
	timeout time.Duration

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  int
	pending map[int]chan json.RawMessage
	readErr error
	done    chan struct{}
}

// New creates a client over an existing connection and starts its reader
// loop. Closing the client closes the connection.
func New(conn io.ReadWriteCloser, opts ...Option) *Client {
	client := &Client{
		conn:    conn,
		logger:  slog.Default(),
		timeout: 10 * time.Second,
		pending: map[int]chan json.RawMessage{},
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	go client.readLoop()
	return client
}

// Dial connects to a hera server and returns a client over the
// connection.
func Dial(addr string, opts ...Option) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return New(conn, opts...), nil
}

// WithTimeout sets a per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Close tears down the connection and fails all outstanding calls.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) readLoop() {
	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		frame := scanner.Bytes()
		if len(frame) == 0 {
			continue
		}
		msg, err := protocol.Decode(frame)
		if err != nil {
			c.logger.Warn("dropping malformed frame", "error", err)
			continue
		}
		if msg.Type != protocol.TypeReply {
			c.logger.Warn("ignoring non-reply message", "id", msg.ID, "type", msg.Type)
			continue
		}
		c.resolve(msg.Reply)
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	c.failAll(err)
}

func (c *Client) resolve(reply *protocol.Reply) {
	c.mu.Lock()
	waiter, ok := c.pending[reply.ReplyTo]
	if ok {
		delete(c.pending, reply.ReplyTo)
	}
	c.mu.Unlock()
	if !ok {
		uncorrelated := errors.Newf(errors.CodeUnknownCorrelation,
			"no outstanding request with id %d", reply.ReplyTo)
		c.logger.Warn("ignoring uncorrelated reply", "reply_to", reply.ReplyTo, "error", uncorrelated)
		return
	}
	waiter <- reply.Result
}

func (c *Client) failAll(err error) {
	c.mu.Lock()
	c.readErr = err
	c.pending = map[int]chan json.RawMessage{}
	close(c.done)
	c.mu.Unlock()
}

// Call sends one request and waits for its reply, returning the raw
// result payload.
func (c *Client) Call(ctx context.Context, field protocol.Field, method protocol.Method, arguments any) (json.RawMessage, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	c.mu.Lock()
	if c.readErr != nil {
		err := c.readErr
		c.mu.Unlock()
		return nil, fmt.Errorf("connection closed: %w", err)
	}
	id := c.nextID
	c.nextID++
	waiter := make(chan json.RawMessage, 1)
	c.pending[id] = waiter
	c.mu.Unlock()

	msg, err := protocol.NewRequest(id, field, method, arguments)
	if err != nil {
		c.abandon(id)
		return nil, err
	}
	data, err := protocol.Encode(msg)
	if err != nil {
		c.abandon(id)
		return nil, err
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	_, err = c.conn.Write(data)
	c.writeMu.Unlock()
	if err != nil {
		c.abandon(id)
		return nil, fmt.Errorf("write request %d: %w", id, err)
	}

	select {
	case result := <-waiter:
		return result, nil
	case <-ctx.Done():
		c.abandon(id)
		return nil, ctx.Err()
	case <-c.done:
		c.mu.Lock()
		err := c.readErr
		c.mu.Unlock()
		return nil, fmt.Errorf("connection closed: %w", err)
	}
}

func (c *Client) abandon(id int) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// mutate sends a request whose result is a success flag. A false result
// means the server rejected the call.
func (c *Client) mutate(ctx context.Context, field protocol.Field, method protocol.Method, arguments any) error {
	raw, err := c.Call(ctx, field, method, arguments)
	if err != nil {
		return err
	}
	var ok bool
	if err := json.Unmarshal(raw, &ok); err != nil {
		return errors.Newf(errors.CodeMalformedMessage,
			"expected boolean result for %s %s, got %s", method, field, raw)
	}
	if !ok {
		return fmt.Errorf("%s %s: %w", method, field, ErrRejected)
	}
	return nil
}

func (c *Client) query(ctx context.Context, field protocol.Field, into any) error {
	raw, err := c.Call(ctx, field, protocol.MethodGet, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return errors.Newf(errors.CodeMalformedMessage,
			"unexpected result shape for GET %s: %s", field, raw)
	}
	return nil
}

// Reset clears the server's model back to its empty state.
func (c *Client) Reset(ctx context.Context) error {
	return c.mutate(ctx, protocol.FieldModule, protocol.MethodReset, nil)
}

// SetDescription replaces the model description.
func (c *Client) SetDescription(ctx context.Context, description string) error {
	return c.mutate(ctx, protocol.FieldDescription, protocol.MethodSet, description)
}

// Description returns the model description.
func (c *Client) Description(ctx context.Context) (string, error) {
	var description string
	err := c.query(ctx, protocol.FieldDescription, &description)
	return description, err
}

// AddActions adds names to the action set.
func (c *Client) AddActions(ctx context.Context, names ...string) error {
	return c.mutate(ctx, protocol.FieldAction, protocol.MethodAdd, names)
}

// RemoveActions removes names from the action set.
func (c *Client) RemoveActions(ctx context.Context, names ...string) error {
	return c.mutate(ctx, protocol.FieldAction, protocol.MethodRemove, names)
}

// RenameAction renames one action.
func (c *Client) RenameAction(ctx context.Context, old, new string) error {
	return c.mutate(ctx, protocol.FieldAction, protocol.MethodRename, renameArguments{Old: old, New: new})
}

// Actions returns the action set in insertion order.
func (c *Client) Actions(ctx context.Context) ([]string, error) {
	var names []string
	err := c.query(ctx, protocol.FieldAction, &names)
	return names, err
}

// AddBackgrounds adds names to the background condition set.
func (c *Client) AddBackgrounds(ctx context.Context, names ...string) error {
	return c.mutate(ctx, protocol.FieldBackground, protocol.MethodAdd, names)
}

// RemoveBackgrounds removes names from the background condition set.
func (c *Client) RemoveBackgrounds(ctx context.Context, names ...string) error {
	return c.mutate(ctx, protocol.FieldBackground, protocol.MethodRemove, names)
}

// RenameBackground renames one background condition.
func (c *Client) RenameBackground(ctx context.Context, old, new string) error {
	return c.mutate(ctx, protocol.FieldBackground, protocol.MethodRename, renameArguments{Old: old, New: new})
}

// Backgrounds returns the background condition set in insertion order.
func (c *Client) Backgrounds(ctx context.Context) ([]string, error) {
	var names []string
	err := c.query(ctx, protocol.FieldBackground, &names)
	return names, err
}

// AddConsequences adds names to the consequence set.
func (c *Client) AddConsequences(ctx context.Context, names ...string) error {
	return c.mutate(ctx, protocol.FieldConsequence, protocol.MethodAdd, names)
}

// RemoveConsequences removes names from the consequence set.
func (c *Client) RemoveConsequences(ctx context.Context, names ...string) error {
	return c.mutate(ctx, protocol.FieldConsequence, protocol.MethodRemove, names)
}

// RenameConsequence renames one consequence.
func (c *Client) RenameConsequence(ctx context.Context, old, new string) error {
	return c.mutate(ctx, protocol.FieldConsequence, protocol.MethodRename, renameArguments{Old: old, New: new})
}

// Consequences returns the consequence set in insertion order.
func (c *Client) Consequences(ctx context.Context) ([]string, error) {
	var names []string
	err := c.query(ctx, protocol.FieldConsequence, &names)
	return names, err
}

// AddMechanism extends the variable set causally producing a
// consequence.
func (c *Client) AddMechanism(ctx context.Context, consequence string, variables ...string) error {
	return c.mutate(ctx, protocol.FieldMechanism, protocol.MethodAdd,
		mechanismArguments{Consequence: consequence, Variables: variables})
}

// RemoveMechanism removes variables from a consequence's mechanism.
func (c *Client) RemoveMechanism(ctx context.Context, consequence string, variables ...string) error {
	return c.mutate(ctx, protocol.FieldMechanism, protocol.MethodRemove,
		mechanismArguments{Consequence: consequence, Variables: variables})
}

// Mechanisms returns the full mechanism mapping.
func (c *Client) Mechanisms(ctx context.Context) (map[string][]string, error) {
	mechanisms := map[string][]string{}
	err := c.query(ctx, protocol.FieldMechanism, &mechanisms)
	return mechanisms, err
}

// SetUtility upserts the utility entry for a consequence.
func (c *Client) SetUtility(ctx context.Context, consequence string, value int, affirmation bool) error {
	return c.mutate(ctx, protocol.FieldUtility, protocol.MethodSet,
		utilitySetArguments{Consequence: consequence, Value: &value, Affirmation: &affirmation})
}

// RemoveUtility removes the utility entry for a consequence. The
// affirmation flag must be true for the server to accept the removal.
func (c *Client) RemoveUtility(ctx context.Context, consequence string, affirmation bool) error {
	return c.mutate(ctx, protocol.FieldUtility, protocol.MethodRemove,
		utilityRemoveArguments{Consequence: consequence, Affirmation: &affirmation})
}

// Utilities returns the full utility mapping.
func (c *Client) Utilities(ctx context.Context) (map[string]model.Utility, error) {
	utilities := map[string]model.Utility{}
	err := c.query(ctx, protocol.FieldUtility, &utilities)
	return utilities, err
}

// AddIntentions adds consequences to an action's intention set.
func (c *Client) AddIntentions(ctx context.Context, action string, consequences ...string) error {
	return c.mutate(ctx, protocol.FieldIntention, protocol.MethodAdd,
		intentionArguments{Action: action, Consequences: consequences})
}

// RemoveIntentions removes consequences from an action's intention set.
func (c *Client) RemoveIntentions(ctx context.Context, action string, consequences ...string) error {
	return c.mutate(ctx, protocol.FieldIntention, protocol.MethodRemove,
		intentionArguments{Action: action, Consequences: consequences})
}

// Intentions returns the full intention mapping.
func (c *Client) Intentions(ctx context.Context) (map[string][]string, error) {
	intentions := map[string][]string{}
	err := c.query(ctx, protocol.FieldIntention, &intentions)
	return intentions, err
}

type renameArguments struct {
	Old string `json:"old"`
	New string `json:"new"`
}

type mechanismArguments struct {
	Consequence string   `json:"consequence"`
	Variables   []string `json:"variables"`
}

type utilitySetArguments struct {
	Consequence string `json:"consequence"`
	Value       *int   `json:"value"`
	Affirmation *bool  `json:"affirmation"`
}

type utilityRemoveArguments struct {
	Consequence string `json:"consequence"`
	Affirmation *bool  `json:"affirmation"`
}

type intentionArguments struct {
	Action       string   `json:"action"`
	Consequences []string `json:"consequences"`
}
