// Copyright 2026 © The Social Robotics Authors
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MarshalJSON renders the whole model as a single JSON object with a
// fixed field order, matching the layout the reasoning module logs.
func (m *Model) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	writeField := func(name string, value any) error {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return err
		}
		buf.Write(key)
		buf.WriteByte(':')
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		buf.Write(raw)
		return nil
	}

	fields := []struct {
		name  string
		value any
	}{
		{"description", m.description},
		{"actions", m.Names(KindAction)},
		{"background", m.Names(KindBackground)},
		{"consequences", m.Names(KindConsequence)},
		{"mechanisms", m.Mechanisms()},
		{"utilities", m.Utilities()},
		{"intentions", m.Intentions()},
	}
	for _, field := range fields {
		if err := writeField(field.name, field.value); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// String returns the JSON rendering of the model, for debug logging.
func (m *Model) String() string {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Sprintf("model{marshal error: %v}", err)
	}
	return string(raw)
}

// Validate re-checks the referential invariants. Mutations maintain them
// by construction; this exists so tests and debugging can assert them
// independently after any operation sequence.
func (m *Model) Validate() error {
	for pair := m.mechanisms.Oldest(); pair != nil; pair = pair.Next() {
		if _, ok := m.consequences.Get(pair.Key); !ok {
			return fmt.Errorf("mechanism key %q is no consequence", pair.Key)
		}
		seen := make(map[string]struct{}, len(pair.Value))
		for _, variable := range pair.Value {
			if !m.isVariable(variable) {
				return fmt.Errorf("mechanism variable %q for %q is no action or background", variable, pair.Key)
			}
			if _, ok := seen[variable]; ok {
				return fmt.Errorf("mechanism variable %q for %q appears twice", variable, pair.Key)
			}
			seen[variable] = struct{}{}
		}
		if len(pair.Value) == 0 {
			return fmt.Errorf("mechanism for %q has an empty variable set", pair.Key)
		}
	}
	for pair := m.utilities.Oldest(); pair != nil; pair = pair.Next() {
		if _, ok := m.consequences.Get(pair.Key); !ok {
			return fmt.Errorf("utility key %q is no consequence", pair.Key)
		}
	}
	for pair := m.intentions.Oldest(); pair != nil; pair = pair.Next() {
		if _, ok := m.actions.Get(pair.Key); !ok {
			return fmt.Errorf("intention key %q is no action", pair.Key)
		}
		for _, consequence := range pair.Value {
			if _, ok := m.consequences.Get(consequence); !ok {
				return fmt.Errorf("intended consequence %q for %q is no consequence", consequence, pair.Key)
			}
		}
		if len(pair.Value) == 0 {
			return fmt.Errorf("intention set for %q is empty", pair.Key)
		}
	}
	return nil
}
