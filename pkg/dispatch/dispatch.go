// Copyright 2026 © The Social Robotics Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatch maps (field, method) pairs onto model operations. The
// table is the closed set of legal combinations; each entry decodes the
// raw arguments into the shape its method expects before touching the
// model. Validation runs in a fixed order: legal pair, argument shape,
// referential checks inside the model, then the mutation itself.
package dispatch

import (
	"encoding/json"

	"github.com/MCHalbi/social-robotics/pkg/errors"
	"github.com/MCHalbi/social-robotics/pkg/model"
	"github.com/MCHalbi/social-robotics/pkg/protocol"
)

type key struct {
	field  protocol.Field
	method protocol.Method
}

type operation func(m *model.Model, arguments json.RawMessage) (any, error)

// Dispatcher applies decoded requests to the model it owns. It is not
// safe for concurrent use; each session drives exactly one dispatcher.
type Dispatcher struct {
	model *model.Model
}

// New creates a dispatcher over the given model.
func New(m *model.Model) *Dispatcher {
	return &Dispatcher{model: m}
}

// Model exposes the dispatcher's model, mainly for tests and debug dumps.
func (d *Dispatcher) Model() *model.Model {
	return d.model
}

// Dispatch executes one request. On success the result is the GET value
// or true for mutating methods. On failure the error carries the typed
// code; the caller folds it into a result of false.
func (d *Dispatcher) Dispatch(req *protocol.Request) (any, error) {
	op, ok := table[key{req.Field, req.Method}]
	if !ok {
		return nil, errors.Newf(errors.CodeUnsupportedMethod,
			"method %s is not supported for field %s", req.Method, req.Field)
	}
	return op(d.model, req.Arguments)
}

var table = map[key]operation{
	{protocol.FieldModule, protocol.MethodReset}: func(m *model.Model, arguments json.RawMessage) (any, error) {
		if err := requireNoArguments(arguments); err != nil {
			return nil, err
		}
		m.Reset()
		return true, nil
	},

	{protocol.FieldDescription, protocol.MethodSet}: func(m *model.Model, arguments json.RawMessage) (any, error) {
		var description string
		if err := decodeArguments(arguments, &description); err != nil {
			return nil, err
		}
		m.SetDescription(description)
		return true, nil
	},
	{protocol.FieldDescription, protocol.MethodGet}: getter(func(m *model.Model) any {
		return m.Description()
	}),

	{protocol.FieldAction, protocol.MethodAdd}:         nameOp(model.KindAction, (*model.Model).Add),
	{protocol.FieldAction, protocol.MethodRemove}:      nameOp(model.KindAction, (*model.Model).Remove),
	{protocol.FieldAction, protocol.MethodRename}:      renameOp(model.KindAction),
	{protocol.FieldAction, protocol.MethodGet}:         nameGetter(model.KindAction),
	{protocol.FieldBackground, protocol.MethodAdd}:     nameOp(model.KindBackground, (*model.Model).Add),
	{protocol.FieldBackground, protocol.MethodRemove}:  nameOp(model.KindBackground, (*model.Model).Remove),
	{protocol.FieldBackground, protocol.MethodRename}:  renameOp(model.KindBackground),
	{protocol.FieldBackground, protocol.MethodGet}:     nameGetter(model.KindBackground),
	{protocol.FieldConsequence, protocol.MethodAdd}:    nameOp(model.KindConsequence, (*model.Model).Add),
	{protocol.FieldConsequence, protocol.MethodRemove}: nameOp(model.KindConsequence, (*model.Model).Remove),
	{protocol.FieldConsequence, protocol.MethodRename}: renameOp(model.KindConsequence),
	{protocol.FieldConsequence, protocol.MethodGet}:    nameGetter(model.KindConsequence),

	{protocol.FieldMechanism, protocol.MethodAdd}: func(m *model.Model, arguments json.RawMessage) (any, error) {
		args, err := decodeMechanismArguments(arguments)
		if err != nil {
			return nil, err
		}
		if err := m.AddMechanism(args.Consequence, args.Variables); err != nil {
			return nil, err
		}
		return true, nil
	},
	{protocol.FieldMechanism, protocol.MethodRemove}: func(m *model.Model, arguments json.RawMessage) (any, error) {
		args, err := decodeMechanismArguments(arguments)
		if err != nil {
			return nil, err
		}
		if err := m.RemoveMechanism(args.Consequence, args.Variables); err != nil {
			return nil, err
		}
		return true, nil
	},
	{protocol.FieldMechanism, protocol.MethodGet}: getter(func(m *model.Model) any {
		return m.Mechanisms()
	}),

	{protocol.FieldUtility, protocol.MethodSet}: func(m *model.Model, arguments json.RawMessage) (any, error) {
		var args struct {
			Consequence string `json:"consequence"`
			Value       *int   `json:"value"`
			Affirmation *bool  `json:"affirmation"`
		}
		if err := decodeArguments(arguments, &args); err != nil {
			return nil, err
		}
		if args.Consequence == "" {
			return nil, errors.Newf(errors.CodeInvalidArguments, "consequence name must be a non-empty string")
		}
		if args.Value == nil {
			return nil, errors.Newf(errors.CodeInvalidArguments, "utility value must be an integer")
		}
		if args.Affirmation == nil {
			return nil, errors.Newf(errors.CodeInvalidArguments, "affirmation must be a boolean")
		}
		if err := m.SetUtility(args.Consequence, *args.Value, *args.Affirmation); err != nil {
			return nil, err
		}
		return true, nil
	},
	{protocol.FieldUtility, protocol.MethodRemove}: func(m *model.Model, arguments json.RawMessage) (any, error) {
		var args struct {
			Consequence string `json:"consequence"`
			Affirmation *bool  `json:"affirmation"`
		}
		if err := decodeArguments(arguments, &args); err != nil {
			return nil, err
		}
		if args.Consequence == "" {
			return nil, errors.Newf(errors.CodeInvalidArguments, "consequence name must be a non-empty string")
		}
		if args.Affirmation == nil {
			return nil, errors.Newf(errors.CodeInvalidArguments, "affirmation must be a boolean")
		}
		// The affirmation flag is a confirmation gate: utility removal must
		// be explicitly affirmed by the caller.
		if !*args.Affirmation {
			return nil, errors.Newf(errors.CodePreconditionFailed,
				"utility removal for %q was not affirmed", args.Consequence)
		}
		if err := m.RemoveUtility(args.Consequence); err != nil {
			return nil, err
		}
		return true, nil
	},
	{protocol.FieldUtility, protocol.MethodGet}: getter(func(m *model.Model) any {
		return m.Utilities()
	}),

	{protocol.FieldIntention, protocol.MethodAdd}: func(m *model.Model, arguments json.RawMessage) (any, error) {
		args, err := decodeIntentionArguments(arguments)
		if err != nil {
			return nil, err
		}
		if err := m.AddIntentions(args.Action, args.Consequences); err != nil {
			return nil, err
		}
		return true, nil
	},
	{protocol.FieldIntention, protocol.MethodRemove}: func(m *model.Model, arguments json.RawMessage) (any, error) {
		args, err := decodeIntentionArguments(arguments)
		if err != nil {
			return nil, err
		}
		if err := m.RemoveIntentions(args.Action, args.Consequences); err != nil {
			return nil, err
		}
		return true, nil
	},
	{protocol.FieldIntention, protocol.MethodGet}: getter(func(m *model.Model) any {
		return m.Intentions()
	}),
}

func getter(get func(m *model.Model) any) operation {
	return func(m *model.Model, arguments json.RawMessage) (any, error) {
		if err := requireNoArguments(arguments); err != nil {
			return nil, err
		}
		return get(m), nil
	}
}

func nameGetter(kind model.Kind) operation {
	return getter(func(m *model.Model) any {
		return m.Names(kind)
	})
}

func nameOp(kind model.Kind, apply func(*model.Model, model.Kind, []string) error) operation {
	return func(m *model.Model, arguments json.RawMessage) (any, error) {
		names, err := decodeNameList(arguments)
		if err != nil {
			return nil, err
		}
		if err := apply(m, kind, names); err != nil {
			return nil, err
		}
		return true, nil
	}
}

func renameOp(kind model.Kind) operation {
	return func(m *model.Model, arguments json.RawMessage) (any, error) {
		var args struct {
			Old string `json:"old"`
			New string `json:"new"`
		}
		if err := decodeArguments(arguments, &args); err != nil {
			return nil, err
		}
		if args.Old == "" || args.New == "" {
			return nil, errors.Newf(errors.CodeInvalidArguments, "rename requires non-empty old and new names")
		}
		if err := m.Rename(kind, args.Old, args.New); err != nil {
			return nil, err
		}
		return true, nil
	}
}

func decodeArguments(arguments json.RawMessage, target any) error {
	if len(arguments) == 0 {
		return errors.Newf(errors.CodeInvalidArguments, "missing arguments")
	}
	if err := json.Unmarshal(arguments, target); err != nil {
		return errors.New(errors.CodeInvalidArguments, "arguments do not match the expected shape", err)
	}
	return nil
}

func requireNoArguments(arguments json.RawMessage) error {
	if len(arguments) != 0 && string(arguments) != "null" {
		return errors.Newf(errors.CodeInvalidArguments, "method takes no arguments")
	}
	return nil
}

func decodeNameList(arguments json.RawMessage) ([]string, error) {
	var names []string
	if err := decodeArguments(arguments, &names); err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, errors.Newf(errors.CodeInvalidArguments, "argument list names no entries")
	}
	for _, name := range names {
		if name == "" {
			return nil, errors.Newf(errors.CodeInvalidArguments, "a name must be a non-empty string")
		}
	}
	return names, nil
}

type mechanismArguments struct {
	Consequence string   `json:"consequence"`
	Variables   []string `json:"variables"`
}

func decodeMechanismArguments(arguments json.RawMessage) (*mechanismArguments, error) {
	var args mechanismArguments
	if err := decodeArguments(arguments, &args); err != nil {
		return nil, err
	}
	if args.Consequence == "" {
		return nil, errors.Newf(errors.CodeInvalidArguments, "consequence name must be a non-empty string")
	}
	if len(args.Variables) == 0 {
		return nil, errors.Newf(errors.CodeInvalidArguments, "variable list names no entries")
	}
	for _, variable := range args.Variables {
		if variable == "" {
			return nil, errors.Newf(errors.CodeInvalidArguments, "a variable must be a non-empty string")
		}
	}
	return &args, nil
}

type intentionArguments struct {
	Action       string   `json:"action"`
	Consequences []string `json:"consequences"`
}

func decodeIntentionArguments(arguments json.RawMessage) (*intentionArguments, error) {
	var args intentionArguments
	if err := decodeArguments(arguments, &args); err != nil {
		return nil, err
	}
	if args.Action == "" {
		return nil, errors.Newf(errors.CodeInvalidArguments, "action name must be a non-empty string")
	}
	if len(args.Consequences) == 0 {
		return nil, errors.Newf(errors.CodeInvalidArguments, "consequence list names no entries")
	}
	for _, consequence := range args.Consequences {
		if consequence == "" {
			return nil, errors.Newf(errors.CodeInvalidArguments, "a consequence must be a non-empty string")
		}
	}
	return &args, nil
}
