// internal/decision/errors.go
package decision

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoRuleMatched is returned when no rule of a first-hit table applies.
var ErrNoRuleMatched = errors.New("no rule matched the input")

// NodeError reports a failure inside one node of the table: the input check ("request"),
// a single rule, or the rule set as a whole ("rules").
type NodeError struct {
	NodeID string
	Source error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %q failed: %v", e.NodeID, e.Source)
}

func (e *NodeError) Unwrap() error {
	return e.Source
}

// Issue is one rejected field of the input document.
type Issue struct {
	Message string `json:"message"`
	Path    string `json:"path"`
}

// ValidationFailure is returned when the input document does not satisfy the table's input schema.
// Its text form is the JSON envelope {"source":{"errors":[...]},"type":"Validation"}.
type ValidationFailure struct {
	Issues []Issue
}

func (e *ValidationFailure) Error() string {
	envelope := struct {
		Source struct {
			Errors []Issue `json:"errors"`
		} `json:"source"`
		Type string `json:"type"`
	}{Type: "Validation"}
	envelope.Source.Errors = e.Issues

	raw, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Sprintf("validation failed with %d issue(s)", len(e.Issues))
	}
	return string(raw)
}

// ExpressionError wraps a CEL runtime failure.
type ExpressionError struct {
	Expression string
	Err        error
}

func (e *ExpressionError) Error() string {
	return fmt.Sprintf("evaluate expression %q: %v", e.Expression, e.Err)
}

func (e *ExpressionError) Unwrap() error {
	return e.Err
}

// LoadError reports a table that cannot be parsed or compiled.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load decision table %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
