// Copyright 2026 © The Social Robotics Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the wire envelope spoken between the dialogue
// agent and the hera model server, and the codec that translates between
// raw frames and typed messages. The codec is a pure transform: it
// checks structural shape and the closed field/method enumerations, and
// leaves argument and result payloads opaque for the dispatcher.
package protocol

import (
	"encoding/json"

	"github.com/MCHalbi/social-robotics/pkg/errors"
)

// MessageType discriminates the two envelope kinds.
type MessageType string

const (
	// TypeRequest marks a message carrying a Request query.
	TypeRequest MessageType = "request"
	// TypeReply marks a message carrying a Reply query.
	TypeReply MessageType = "reply"
)

// Field is the model collection a request addresses.
type Field string

const (
	FieldModule      Field = "module"
	FieldDescription Field = "description"
	FieldAction      Field = "action"
	FieldBackground  Field = "background"
	FieldConsequence Field = "consequence"
	FieldMechanism   Field = "mechanism"
	FieldUtility     Field = "utility"
	FieldIntention   Field = "intention"
)

// Method is the verb a request applies to its field.
type Method string

const (
	MethodReset  Method = "RESET"
	MethodSet    Method = "SET"
	MethodGet    Method = "GET"
	MethodAdd    Method = "ADD"
	MethodRemove Method = "REMOVE"
	MethodRename Method = "RENAME"
)

var fields = map[Field]struct{}{
	FieldModule:      {},
	FieldDescription: {},
	FieldAction:      {},
	FieldBackground:  {},
	FieldConsequence: {},
	FieldMechanism:   {},
	FieldUtility:     {},
	FieldIntention:   {},
}

var methods = map[Method]struct{}{
	MethodReset:  {},
	MethodSet:    {},
	MethodGet:    {},
	MethodAdd:    {},
	MethodRemove: {},
	MethodRename: {},
}

// Request is the query payload of a request message. Arguments stays
// raw: its shape varies per (field, method) pair and is decoded by the
// dispatcher.
type Request struct {
	Field     Field           `json:"field"`
	Method    Method          `json:"method"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Reply is the query payload of a reply message. Result is either the
// GET-shaped value of the queried field or a boolean success flag; it is
// opaque to the codec.
type Reply struct {
	ReplyTo int             `json:"reply_to"`
	Result  json.RawMessage `json:"result"`
}

// Message is the wire envelope. Exactly one of Request and Reply is set,
// matching Type.
type Message struct {
	ID      int
	Type    MessageType
	Request *Request
	Reply   *Reply
}

// NewRequest builds a request message. Arguments may be nil for methods
// that take none; any other value is marshaled into the envelope.
func NewRequest(id int, field Field, method Method, arguments any) (*Message, error) {
	req := &Request{Field: field, Method: method}
	if arguments != nil {
		raw, err := json.Marshal(arguments)
		if err != nil {
			return nil, errors.New(errors.CodeInternal, "marshal request arguments", err)
		}
		req.Arguments = raw
	}
	return &Message{ID: id, Type: TypeRequest, Request: req}, nil
}

// NewReply builds a reply message answering the request with the given
// identifier. The envelope reuses the request identifier.
func NewReply(replyTo int, result any) (*Message, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "marshal reply result", err)
	}
	return &Message{
		ID:    replyTo,
		Type:  TypeReply,
		Reply: &Reply{ReplyTo: replyTo, Result: raw},
	}, nil
}

type envelope struct {
	ID    *int            `json:"id"`
	Type  MessageType     `json:"type"`
	Query json.RawMessage `json:"query"`
}

// Decode parses one frame into a Message. Structural failures and
// unrecognized field/method names yield a MALFORMED_MESSAGE error; no
// semantic validation happens here.
func Decode(data []byte) (*Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.New(errors.CodeMalformedMessage, "envelope does not parse", err)
	}
	if env.ID == nil {
		return nil, errors.Newf(errors.CodeMalformedMessage, "envelope is missing id")
	}
	if *env.ID < 0 {
		return nil, errors.Newf(errors.CodeMalformedMessage, "id %d is negative", *env.ID)
	}
	if len(env.Query) == 0 {
		return nil, errors.Newf(errors.CodeMalformedMessage, "envelope is missing query")
	}

	msg := &Message{ID: *env.ID, Type: env.Type}
	switch env.Type {
	case TypeRequest:
		var req Request
		if err := json.Unmarshal(env.Query, &req); err != nil {
			return nil, errors.New(errors.CodeMalformedMessage, "request query does not parse", err)
		}
		if _, ok := fields[req.Field]; !ok {
			return nil, errors.Newf(errors.CodeMalformedMessage, "unrecognized field %q", req.Field)
		}
		if _, ok := methods[req.Method]; !ok {
			return nil, errors.Newf(errors.CodeMalformedMessage, "unrecognized method %q", req.Method)
		}
		msg.Request = &req
	case TypeReply:
		var rep struct {
			ReplyTo *int            `json:"reply_to"`
			Result  json.RawMessage `json:"result"`
		}
		if err := json.Unmarshal(env.Query, &rep); err != nil {
			return nil, errors.New(errors.CodeMalformedMessage, "reply query does not parse", err)
		}
		if rep.ReplyTo == nil {
			return nil, errors.Newf(errors.CodeMalformedMessage, "reply is missing reply_to")
		}
		if len(rep.Result) == 0 {
			return nil, errors.Newf(errors.CodeMalformedMessage, "reply is missing result")
		}
		msg.Reply = &Reply{ReplyTo: *rep.ReplyTo, Result: rep.Result}
	default:
		return nil, errors.Newf(errors.CodeMalformedMessage, "unrecognized message type %q", env.Type)
	}
	return msg, nil
}

// Encode renders a Message as one canonical frame: envelope fields in
// the order id, type, query; request fields in the order field, method,
// arguments; reply fields in the order reply_to, result. Raw argument
// and result bytes pass through verbatim, so decode followed by encode
// is byte-identical for canonical input.
func Encode(msg *Message) ([]byte, error) {
	var query any
	switch msg.Type {
	case TypeRequest:
		if msg.Request == nil {
			return nil, errors.Newf(errors.CodeInternal, "request message without request query")
		}
		query = msg.Request
	case TypeReply:
		if msg.Reply == nil {
			return nil, errors.Newf(errors.CodeInternal, "reply message without reply query")
		}
		query = msg.Reply
	default:
		return nil, errors.Newf(errors.CodeInternal, "unrecognized message type %q", msg.Type)
	}

	raw, err := json.Marshal(struct {
		ID    int         `json:"id"`
		Type  MessageType `json:"type"`
		Query any         `json:"query"`
	}{ID: msg.ID, Type: msg.Type, Query: query})
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "marshal envelope", err)
	}
	return raw, nil
}
