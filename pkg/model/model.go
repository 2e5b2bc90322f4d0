// Copyright 2026 © The Social Robotics Authors
// SPDX-License-Identifier: Apache-2.0

// Package model implements the utility-based causal agency model that the
// hera reasoning module maintains on behalf of the dialogue agent. The
// model is a passive data structure: six typed collections plus the
// mutation operations that keep them referentially consistent. All
// collections preserve insertion order so query output is deterministic.
package model

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/MCHalbi/social-robotics/pkg/errors"
)

// Kind selects one of the three name collections.
type Kind string

const (
	// KindAction addresses the set of action names.
	KindAction Kind = "action"
	// KindBackground addresses the set of background condition names.
	KindBackground Kind = "background"
	// KindConsequence addresses the set of consequence names.
	KindConsequence Kind = "consequence"
)

// Utility is the value attached to a consequence. Affirmation records
// whether the value applies to reaching the consequence (true) or to not
// reaching it (false).
type Utility struct {
	Value       int  `json:"value"`
	Affirmation bool `json:"affirmation"`
}

// Model is the mutable domain aggregate. It is exclusively owned by the
// session processing requests against it, so it carries no lock.
type Model struct {
	description  string
	actions      *orderedmap.OrderedMap[string, struct{}]
	backgrounds  *orderedmap.OrderedMap[string, struct{}]
	consequences *orderedmap.OrderedMap[string, struct{}]
	mechanisms   *orderedmap.OrderedMap[string, []string]
	utilities    *orderedmap.OrderedMap[string, Utility]
	intentions   *orderedmap.OrderedMap[string, []string]
}

// New creates an empty model.
func New() *Model {
	m := &Model{}
	m.Reset()
	return m
}

// Reset restores the model to its empty default state.
func (m *Model) Reset() {
	m.description = ""
	m.actions = orderedmap.New[string, struct{}]()
	m.backgrounds = orderedmap.New[string, struct{}]()
	m.consequences = orderedmap.New[string, struct{}]()
	m.mechanisms = orderedmap.New[string, []string]()
	m.utilities = orderedmap.New[string, Utility]()
	m.intentions = orderedmap.New[string, []string]()
}

// SetDescription replaces the model description.
func (m *Model) SetDescription(description string) {
	m.description = description
}

// Description returns the model description.
func (m *Model) Description() string {
	return m.description
}

func (m *Model) set(kind Kind) *orderedmap.OrderedMap[string, struct{}] {
	switch kind {
	case KindAction:
		return m.actions
	case KindBackground:
		return m.backgrounds
	default:
		return m.consequences
	}
}

func (m *Model) kindName(kind Kind) string {
	switch kind {
	case KindAction:
		return "action"
	case KindBackground:
		return "background condition"
	default:
		return "consequence"
	}
}

// Add inserts names into the collection selected by kind. The operation
// is atomic: if any name is already present, or the argument list names
// the same entry twice, nothing is inserted.
func (m *Model) Add(kind Kind, names []string) error {
	set := m.set(kind)
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, ok := set.Get(name); ok {
			return errors.Newf(errors.CodeInvalidArguments,
				"%q is already a %s of the model", name, m.kindName(kind))
		}
		if _, ok := seen[name]; ok {
			return errors.Newf(errors.CodeInvalidArguments,
				"%q appears twice in the argument list", name)
		}
		seen[name] = struct{}{}
	}
	for _, name := range names {
		set.Set(name, struct{}{})
	}
	return nil
}

// Remove deletes names from the collection selected by kind and cascades
// into every structure that references them, so no dangling reference
// survives. Atomic: if any name is absent nothing is removed.
func (m *Model) Remove(kind Kind, names []string) error {
	set := m.set(kind)
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, ok := set.Get(name); !ok {
			return errors.Newf(errors.CodeUnknownReference,
				"%q is no %s of the model", name, m.kindName(kind))
		}
		if _, ok := seen[name]; ok {
			return errors.Newf(errors.CodeInvalidArguments,
				"%q appears twice in the argument list", name)
		}
		seen[name] = struct{}{}
	}
	for _, name := range names {
		set.Delete(name)
		m.cascadeRemove(kind, name)
	}
	return nil
}

// Rename replaces one member of the collection selected by kind and
// rewrites every reference to it. Renaming onto an existing name is
// rejected to preserve set uniqueness.
func (m *Model) Rename(kind Kind, old, new string) error {
	set := m.set(kind)
	if _, ok := set.Get(old); !ok {
		return errors.Newf(errors.CodeUnknownReference,
			"%q is no %s of the model", old, m.kindName(kind))
	}
	if _, ok := set.Get(new); ok {
		return errors.Newf(errors.CodeInvalidArguments,
			"%q is already a %s of the model", new, m.kindName(kind))
	}
	renameKey(set, old, new)
	m.cascadeRename(kind, old, new)
	return nil
}

// cascadeRemove strips every reference to a name that just left the
// collection selected by kind. A name present in both actions and
// backgrounds still backs mechanism variables through its other role, in
// which case the variables stay.
func (m *Model) cascadeRemove(kind Kind, name string) {
	switch kind {
	case KindConsequence:
		m.mechanisms.Delete(name)
		m.utilities.Delete(name)
		m.stripFromLists(m.intentions, name)
	case KindAction:
		m.intentions.Delete(name)
		if !m.isVariable(name) {
			m.stripFromLists(m.mechanisms, name)
		}
	case KindBackground:
		if !m.isVariable(name) {
			m.stripFromLists(m.mechanisms, name)
		}
	}
}

// cascadeRename rewrites every reference from old to new after a rename
// in the collection selected by kind. Mechanism variables follow the
// rename only when old does not survive under its other role.
func (m *Model) cascadeRename(kind Kind, old, new string) {
	switch kind {
	case KindConsequence:
		if _, ok := m.mechanisms.Get(old); ok {
			renameKey(m.mechanisms, old, new)
		}
		if _, ok := m.utilities.Get(old); ok {
			renameKey(m.utilities, old, new)
		}
		replaceInLists(m.intentions, old, new)
	case KindAction:
		if _, ok := m.intentions.Get(old); ok {
			renameKey(m.intentions, old, new)
		}
		if !m.isVariable(old) {
			replaceInLists(m.mechanisms, old, new)
		}
	case KindBackground:
		if !m.isVariable(old) {
			replaceInLists(m.mechanisms, old, new)
		}
	}
}

// isVariable reports whether name is a member of actions ∪ backgrounds.
func (m *Model) isVariable(name string) bool {
	if _, ok := m.actions.Get(name); ok {
		return true
	}
	_, ok := m.backgrounds.Get(name)
	return ok
}

// AddMechanism extends the variable set causally producing a consequence,
// creating the entry if absent. Every variable must already be an action
// or background condition.
func (m *Model) AddMechanism(consequence string, variables []string) error {
	if _, ok := m.consequences.Get(consequence); !ok {
		return errors.Newf(errors.CodeUnknownReference,
			"%q is no consequence of the model", consequence)
	}
	current, _ := m.mechanisms.Get(consequence)
	seen := make(map[string]struct{}, len(variables))
	for _, variable := range variables {
		if !m.isVariable(variable) {
			return errors.Newf(errors.CodeUnknownReference,
				"%q is no action or background condition of the model", variable)
		}
		if contains(current, variable) {
			return errors.Newf(errors.CodeInvalidArguments,
				"%q is already a variable of the mechanism for %q", variable, consequence)
		}
		if _, ok := seen[variable]; ok {
			return errors.Newf(errors.CodeInvalidArguments,
				"%q appears twice in the argument list", variable)
		}
		seen[variable] = struct{}{}
	}
	m.mechanisms.Set(consequence, append(current, variables...))
	return nil
}

// RemoveMechanism deletes variables from a consequence's mechanism. The
// entry is dropped once its variable set is empty.
func (m *Model) RemoveMechanism(consequence string, variables []string) error {
	if _, ok := m.consequences.Get(consequence); !ok {
		return errors.Newf(errors.CodeUnknownReference,
			"%q is no consequence of the model", consequence)
	}
	current, ok := m.mechanisms.Get(consequence)
	if !ok {
		return errors.Newf(errors.CodeUnknownReference,
			"the model has no mechanism for %q", consequence)
	}
	seen := make(map[string]struct{}, len(variables))
	for _, variable := range variables {
		if !contains(current, variable) {
			return errors.Newf(errors.CodeUnknownReference,
				"%q is no variable of the mechanism for %q", variable, consequence)
		}
		if _, ok := seen[variable]; ok {
			return errors.Newf(errors.CodeInvalidArguments,
				"%q appears twice in the argument list", variable)
		}
		seen[variable] = struct{}{}
	}
	remaining := removeAll(current, seen)
	if len(remaining) == 0 {
		m.mechanisms.Delete(consequence)
		return nil
	}
	m.mechanisms.Set(consequence, remaining)
	return nil
}

// SetUtility upserts the utility attached to a consequence.
func (m *Model) SetUtility(consequence string, value int, affirmation bool) error {
	if _, ok := m.consequences.Get(consequence); !ok {
		return errors.Newf(errors.CodeUnknownReference,
			"%q is no consequence of the model", consequence)
	}
	m.utilities.Set(consequence, Utility{Value: value, Affirmation: affirmation})
	return nil
}

// RemoveUtility deletes the utility entry for a consequence.
func (m *Model) RemoveUtility(consequence string) error {
	if _, ok := m.consequences.Get(consequence); !ok {
		return errors.Newf(errors.CodeUnknownReference,
			"%q is no consequence of the model", consequence)
	}
	if _, ok := m.utilities.Get(consequence); !ok {
		return errors.Newf(errors.CodeUnknownReference,
			"the model has no utility for %q", consequence)
	}
	m.utilities.Delete(consequence)
	return nil
}

// AddIntentions extends the set of consequences an action is meant to
// bring about, creating the entry if absent.
func (m *Model) AddIntentions(action string, consequences []string) error {
	if _, ok := m.actions.Get(action); !ok {
		return errors.Newf(errors.CodeUnknownReference,
			"%q is no action of the model", action)
	}
	current, _ := m.intentions.Get(action)
	seen := make(map[string]struct{}, len(consequences))
	for _, consequence := range consequences {
		if _, ok := m.consequences.Get(consequence); !ok {
			return errors.Newf(errors.CodeUnknownReference,
				"%q is no consequence of the model", consequence)
		}
		if contains(current, consequence) {
			return errors.Newf(errors.CodeInvalidArguments,
				"%q is already intended by %q", consequence, action)
		}
		if _, ok := seen[consequence]; ok {
			return errors.Newf(errors.CodeInvalidArguments,
				"%q appears twice in the argument list", consequence)
		}
		seen[consequence] = struct{}{}
	}
	m.intentions.Set(action, append(current, consequences...))
	return nil
}

// RemoveIntentions deletes consequences from an action's intention set.
// The entry is dropped once the set is empty.
func (m *Model) RemoveIntentions(action string, consequences []string) error {
	if _, ok := m.actions.Get(action); !ok {
		return errors.Newf(errors.CodeUnknownReference,
			"%q is no action of the model", action)
	}
	current, ok := m.intentions.Get(action)
	if !ok {
		return errors.Newf(errors.CodeUnknownReference,
			"the model has no intentions for %q", action)
	}
	seen := make(map[string]struct{}, len(consequences))
	for _, consequence := range consequences {
		if !contains(current, consequence) {
			return errors.Newf(errors.CodeUnknownReference,
				"%q is not intended by %q", consequence, action)
		}
		if _, ok := seen[consequence]; ok {
			return errors.Newf(errors.CodeInvalidArguments,
				"%q appears twice in the argument list", consequence)
		}
		seen[consequence] = struct{}{}
	}
	remaining := removeAll(current, seen)
	if len(remaining) == 0 {
		m.intentions.Delete(action)
		return nil
	}
	m.intentions.Set(action, remaining)
	return nil
}

// Names returns the members of the collection selected by kind in
// insertion order. The slice is always non-nil.
func (m *Model) Names(kind Kind) []string {
	set := m.set(kind)
	names := make([]string, 0, set.Len())
	for pair := set.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// Mechanisms returns an insertion-ordered copy of the mechanism mapping.
func (m *Model) Mechanisms() *orderedmap.OrderedMap[string, []string] {
	return copyListMap(m.mechanisms)
}

// Utilities returns an insertion-ordered copy of the utility mapping.
func (m *Model) Utilities() *orderedmap.OrderedMap[string, Utility] {
	out := orderedmap.New[string, Utility]()
	for pair := m.utilities.Oldest(); pair != nil; pair = pair.Next() {
		out.Set(pair.Key, pair.Value)
	}
	return out
}

// Intentions returns an insertion-ordered copy of the intention mapping.
func (m *Model) Intentions() *orderedmap.OrderedMap[string, []string] {
	return copyListMap(m.intentions)
}

func renameKey[V any](om *orderedmap.OrderedMap[string, V], old, new string) {
	// The ordered map has no in-place key rename; rebuild it with the key
	// swapped so the entry keeps its position.
	keys := make([]string, 0, om.Len())
	values := make([]V, 0, om.Len())
	for pair := om.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
		values = append(values, pair.Value)
	}
	for _, key := range keys {
		om.Delete(key)
	}
	for i, key := range keys {
		if key == old {
			key = new
		}
		om.Set(key, values[i])
	}
}

// stripFromLists removes name from every list value, dropping entries
// whose list becomes empty.
func (m *Model) stripFromLists(om *orderedmap.OrderedMap[string, []string], name string) {
	var drop []string
	for pair := om.Oldest(); pair != nil; pair = pair.Next() {
		if !contains(pair.Value, name) {
			continue
		}
		remaining := removeAll(pair.Value, map[string]struct{}{name: {}})
		if len(remaining) == 0 {
			drop = append(drop, pair.Key)
			continue
		}
		om.Set(pair.Key, remaining)
	}
	for _, key := range drop {
		om.Delete(key)
	}
}

// replaceInLists rewrites old to new in every list value. When new is
// already a member of a list, old is dropped from it instead, so a
// rename onto a name holding the other role cannot introduce duplicates.
func replaceInLists(om *orderedmap.OrderedMap[string, []string], old, new string) {
	for pair := om.Oldest(); pair != nil; pair = pair.Next() {
		if !contains(pair.Value, old) {
			continue
		}
		if contains(pair.Value, new) {
			om.Set(pair.Key, removeAll(pair.Value, map[string]struct{}{old: {}}))
			continue
		}
		for i, entry := range pair.Value {
			if entry == old {
				pair.Value[i] = new
			}
		}
	}
}

func copyListMap(om *orderedmap.OrderedMap[string, []string]) *orderedmap.OrderedMap[string, []string] {
	out := orderedmap.New[string, []string]()
	for pair := om.Oldest(); pair != nil; pair = pair.Next() {
		out.Set(pair.Key, append([]string(nil), pair.Value...))
	}
	return out
}

func contains(list []string, name string) bool {
	for _, entry := range list {
		if entry == name {
			return true
		}
	}
	return false
}

func removeAll(list []string, names map[string]struct{}) []string {
	remaining := make([]string, 0, len(list))
	for _, entry := range list {
		if _, ok := names[entry]; !ok {
			remaining = append(remaining, entry)
		}
	}
	return remaining
}
