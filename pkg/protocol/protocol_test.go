// Copyright 2026 © The Social Robotics Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"testing"

	"github.com/MCHalbi/social-robotics/pkg/errors"
)

func TestDecodeRequest(t *testing.T) {
	raw := []byte(`{"id":3,"type":"request","query":{"field":"action","method":"ADD","arguments":["A1","A2"]}}`)
	msg, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if msg.ID != 3 {
		t.Errorf("expected id 3, got %d", msg.ID)
	}
	if msg.Type != TypeRequest || msg.Request == nil {
		t.Fatalf("expected request message, got %+v", msg)
	}
	if msg.Request.Field != FieldAction || msg.Request.Method != MethodAdd {
		t.Errorf("expected action/ADD, got %s/%s", msg.Request.Field, msg.Request.Method)
	}
	if string(msg.Request.Arguments) != `["A1","A2"]` {
		t.Errorf("expected raw arguments preserved, got %s", msg.Request.Arguments)
	}
}

func TestDecodeReply(t *testing.T) {
	raw := []byte(`{"id":3,"type":"reply","query":{"reply_to":3,"result":true}}`)
	msg, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if msg.Type != TypeReply || msg.Reply == nil {
		t.Fatalf("expected reply message, got %+v", msg)
	}
	if msg.Reply.ReplyTo != 3 {
		t.Errorf("expected reply_to 3, got %d", msg.Reply.ReplyTo)
	}
	if string(msg.Reply.Result) != "true" {
		t.Errorf("expected result true, got %s", msg.Reply.Result)
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"invalid json", `{"id":1,`},
		{"missing id", `{"type":"request","query":{"field":"action","method":"GET"}}`},
		{"negative id", `{"id":-1,"type":"request","query":{"field":"action","method":"GET"}}`},
		{"missing query", `{"id":1,"type":"request"}`},
		{"unknown type", `{"id":1,"type":"notify","query":{}}`},
		{"unknown field", `{"id":1,"type":"request","query":{"field":"belief","method":"GET"}}`},
		{"unknown method", `{"id":1,"type":"request","query":{"field":"action","method":"DROP"}}`},
		{"reply missing reply_to", `{"id":1,"type":"reply","query":{"result":true}}`},
		{"reply missing result", `{"id":1,"type":"reply","query":{"reply_to":1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			if err == nil {
				t.Fatalf("expected decode error for %s", tt.raw)
			}
			if code := errors.CodeOf(err); code != errors.CodeMalformedMessage {
				t.Errorf("expected MALFORMED_MESSAGE, got %s", code)
			}
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{
			"request with list arguments",
			`{"id":1,"type":"request","query":{"field":"action","method":"ADD","arguments":["A1","A2"]}}`,
		},
		{
			"request without arguments",
			`{"id":2,"type":"request","query":{"field":"mechanism","method":"GET"}}`,
		},
		{
			"request with object arguments",
			`{"id":7,"type":"request","query":{"field":"utility","method":"SET","arguments":{"consequence":"C1","value":10,"affirmation":true}}}`,
		},
		{
			"reply with boolean result",
			`{"id":7,"type":"reply","query":{"reply_to":7,"result":true}}`,
		},
		{
			"reply with list result",
			`{"id":9,"type":"reply","query":{"reply_to":9,"result":["A1","A2"]}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.raw))
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			out, err := Encode(msg)
			if err != nil {
				t.Fatalf("encode failed: %v", err)
			}
			if string(out) != tt.raw {
				t.Errorf("round trip not byte-identical:\n in: %s\nout: %s", tt.raw, out)
			}
		})
	}
}

func TestNewRequest(t *testing.T) {
	msg, err := NewRequest(4, FieldDescription, MethodSet, "A careworker robot")
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	out, err := Encode(msg)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	want := `{"id":4,"type":"request","query":{"field":"description","method":"SET","arguments":"A careworker robot"}}`
	if string(out) != want {
		t.Errorf("expected %s, got %s", want, out)
	}
}

func TestNewRequestWithoutArguments(t *testing.T) {
	msg, err := NewRequest(0, FieldModule, MethodReset, nil)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	out, err := Encode(msg)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	want := `{"id":0,"type":"request","query":{"field":"module","method":"RESET"}}`
	if string(out) != want {
		t.Errorf("expected %s, got %s", want, out)
	}
}

func TestNewReplyReusesRequestID(t *testing.T) {
	msg, err := NewReply(12, false)
	if err != nil {
		t.Fatalf("NewReply failed: %v", err)
	}
	if msg.ID != 12 || msg.Reply.ReplyTo != 12 {
		t.Errorf("expected envelope id to mirror reply_to, got id=%d reply_to=%d", msg.ID, msg.Reply.ReplyTo)
	}
	out, err := Encode(msg)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	want := `{"id":12,"type":"reply","query":{"reply_to":12,"result":false}}`
	if string(out) != want {
		t.Errorf("expected %s, got %s", want, out)
	}
}

func TestEncodeRejectsInconsistentMessage(t *testing.T) {
	if _, err := Encode(&Message{ID: 1, Type: TypeRequest}); err == nil {
		t.Errorf("expected error for request message without query")
	}
	if _, err := Encode(&Message{ID: 1, Type: "notify"}); err == nil {
		t.Errorf("expected error for unknown message type")
	}
}
