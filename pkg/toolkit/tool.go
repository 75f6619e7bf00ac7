// Package toolkit registers Go functions as model-callable tools:
// schema derivation from argument types, lenient argument decoding,
// result shaping via jq, and a YAML manifest for operator overrides.
package toolkit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

// Tool is one callable function with its derived argument schema.
// Tools without an invoke function are declaration-only: they appear in
// session tool definitions but are handled above the registry (handoff
// targets) or rejected at dispatch.
type Tool struct {
	name        string
	description string
	schema      *jsonschema.Schema
	transform   *JQExpr
	invoke      func(ctx context.Context, argsJSON string) (any, error)
}

// Name returns the wire name of the tool.
func (t *Tool) Name() string { return t.name }

// Description returns the model-facing description.
func (t *Tool) Description() string { return t.description }

// Schema returns the argument schema.
func (t *Tool) Schema() *jsonschema.Schema { return t.schema }

// Option configures tool construction.
type Option[Arg any] interface {
	apply(*toolBuild)
}

type toolBuild struct {
	typeSchemas map[reflect.Type]*jsonschema.Schema
}

// WithSchema overrides the derived schema for values of type T anywhere
// inside the argument struct.
func WithSchema[T any](s *jsonschema.Schema) Option[any] {
	return &typeSchemaOption{t: reflect.TypeFor[T](), s: s}
}

type typeSchemaOption struct {
	t reflect.Type
	s *jsonschema.Schema
}

func (o *typeSchemaOption) apply(b *toolBuild) { b.typeSchemas[o.t] = o.s }

// Func builds a tool from a typed function. The argument schema is
// derived from Arg; model-sent JSON is repaired before decoding when
// malformed.
func Func[Arg any](name, description string, fn func(ctx context.Context, arg Arg) (any, error), opts ...Option[Arg]) (*Tool, error) {
	build := &toolBuild{typeSchemas: make(map[reflect.Type]*jsonschema.Schema)}
	for _, opt := range opts {
		opt.apply(build)
	}

	schema, err := jsonschema.For[Arg](&jsonschema.ForOptions{
		TypeSchemas: build.typeSchemas,
	})
	if err != nil {
		return nil, fmt.Errorf("toolkit: schema for %s: %w", name, err)
	}

	return &Tool{
		name:        name,
		description: description,
		schema:      schema,
		invoke: func(ctx context.Context, argsJSON string) (any, error) {
			var arg Arg
			if err := unmarshalLenient([]byte(argsJSON), &arg); err != nil {
				return nil, fmt.Errorf("decode arguments %q: %w", argsJSON, err)
			}
			return fn(ctx, arg)
		},
	}, nil
}

// MustFunc is Func that panics on schema derivation failure. Use for
// static tool tables.
func MustFunc[Arg any](name, description string, fn func(ctx context.Context, arg Arg) (any, error), opts ...Option[Arg]) *Tool {
	tool, err := Func(name, description, fn, opts...)
	if err != nil {
		panic(err)
	}
	return tool
}

// Declare builds a declaration-only tool: visible to the model, never
// dispatched locally.
func Declare(name, description string, schema *jsonschema.Schema) *Tool {
	return &Tool{name: name, description: description, schema: schema}
}

// call runs the tool. On any failure the returned output is a JSON
// error object the session can relay conversationally, and the error
// carries the detail for logging.
func (t *Tool) call(ctx context.Context, argsJSON string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("toolkit: tool %s panicked: %v", t.name, r)
			out = errorOutput(err)
		}
	}()

	if t.invoke == nil {
		err = fmt.Errorf("toolkit: tool %q is not dispatchable", t.name)
		return errorOutput(err), err
	}

	result, err := t.invoke(ctx, argsJSON)
	if err != nil {
		err = fmt.Errorf("toolkit: tool %s: %w", t.name, err)
		return errorOutput(err), err
	}

	data, err := json.Marshal(result)
	if err != nil {
		err = fmt.Errorf("toolkit: tool %s result: %w", t.name, err)
		return errorOutput(err), err
	}

	if t.transform != nil && t.transform.Query != nil {
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			err = fmt.Errorf("toolkit: tool %s transform input: %w", t.name, err)
			return errorOutput(err), err
		}
		shaped, err := t.transform.Run(v)
		if err != nil {
			err = fmt.Errorf("toolkit: tool %s transform: %w", t.name, err)
			return errorOutput(err), err
		}
		return shaped, nil
	}

	return string(data), nil
}

func errorOutput(err error) string {
	data, merr := json.Marshal(map[string]string{"error": err.Error()})
	if merr != nil {
		return `{"error":"tool failed"}`
	}
	return string(data)
}

// unmarshalLenient decodes JSON, repairing syntax errors first. Models
// occasionally emit truncated or quasi-JSON arguments; repairing beats
// failing the whole turn.
func unmarshalLenient(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		fixed, repairErr := jsonrepair.JSONRepair(string(data))
		if repairErr != nil {
			return err
		}
		return json.Unmarshal([]byte(fixed), v)
	}
	return err
}
