package toolkit

import (
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"
	"gopkg.in/yaml.v3"
)

// JQExpr is a jq expression parsed at load time, so a bad expression
// fails configuration instead of the first call that hits it.
type JQExpr struct {
	Expr  string      // original expression
	Query *gojq.Query // parsed form, nil for the empty expression
}

// ParseJQ parses an expression. The empty expression yields a no-op.
func ParseJQ(expr string) (*JQExpr, error) {
	e := &JQExpr{}
	if err := e.set(expr); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *JQExpr) set(expr string) error {
	e.Expr = expr
	e.Query = nil
	if expr == "" {
		return nil
	}
	query, err := gojq.Parse(expr)
	if err != nil {
		return fmt.Errorf("invalid jq expression %q: %w", expr, err)
	}
	e.Query = query
	return nil
}

// MarshalJSON implements json.Marshaler.
func (e JQExpr) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Expr)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *JQExpr) UnmarshalJSON(data []byte) error {
	var expr string
	if err := json.Unmarshal(data, &expr); err != nil {
		return err
	}
	return e.set(expr)
}

// MarshalYAML implements yaml.Marshaler.
func (e JQExpr) MarshalYAML() (any, error) {
	return e.Expr, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (e *JQExpr) UnmarshalYAML(node *yaml.Node) error {
	var expr string
	if err := node.Decode(&expr); err != nil {
		return err
	}
	return e.set(expr)
}

// Run applies the expression to input (plain decoded JSON values) and
// returns the first result re-marshaled as JSON. A nil or empty
// expression returns the input unchanged.
func (e *JQExpr) Run(input any) (string, error) {
	if e == nil || e.Query == nil {
		data, err := json.Marshal(input)
		if err != nil {
			return "", fmt.Errorf("marshal input: %w", err)
		}
		return string(data), nil
	}

	iter := e.Query.Run(input)
	v, ok := iter.Next()
	if !ok {
		return "", fmt.Errorf("jq expression %q returned no result", e.Expr)
	}
	if err, ok := v.(error); ok {
		return "", fmt.Errorf("jq expression %q: %w", e.Expr, err)
	}
	result, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal jq result: %w", err)
	}
	return string(result), nil
}
