// internal/decision/engine.go
package decision

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/cel-go/cel"

	"eligibility-engine/internal/common/validation"
)

const (
	costLimit = 1000000

	requestNode = "request"
	rulesNode   = "rules"
)

type program struct {
	id         string
	expression string
	prg        cel.Program
}

type compiledRule struct {
	program
	output map[string]interface{}
}

// Engine evaluates documents against one compiled table. It holds no mutable state and
// is safe for concurrent use.
type Engine struct {
	table   *Table
	schema  *validation.Schema
	rules   []compiledRule
	derived []program
}

func NewEngine(t *Table) (*Engine, error) {
	if t == nil {
		return nil, &LoadError{Source: "engine", Err: fmt.Errorf("nil table")}
	}
	source := t.Name

	env, err := cel.NewEnv(cel.Variable("input", cel.DynType))
	if err != nil {
		return nil, &LoadError{Source: source, Err: fmt.Errorf("create CEL environment: %w", err)}
	}

	e := &Engine{table: t}

	if len(t.InputSchema) > 0 {
		e.schema, err = validation.CompileJSON(t.InputSchema)
		if err != nil {
			return nil, &LoadError{Source: source, Err: fmt.Errorf("input schema: %w", err)}
		}
	}

	for _, r := range t.Rules {
		prg, err := compileBool(env, r.When)
		if err != nil {
			return nil, &LoadError{Source: source, Err: fmt.Errorf("rule %q: %w", r.ID, err)}
		}
		e.rules = append(e.rules, compiledRule{
			program: program{id: r.ID, expression: r.When, prg: prg},
			output:  r.Output,
		})
	}

	names := make([]string, 0, len(t.Derived))
	for name := range t.Derived {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		prg, err := compileBool(env, t.Derived[name])
		if err != nil {
			return nil, &LoadError{Source: source, Err: fmt.Errorf("derived field %q: %w", name, err)}
		}
		e.derived = append(e.derived, program{id: name, expression: t.Derived[name], prg: prg})
	}

	return e, nil
}

func compileBool(env *cel.Env, expression string) (cel.Program, error) {
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}

	out := ast.OutputType()
	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("expression %q yields %s, want bool", expression, out)
	}

	prg, err := env.Program(ast, cel.CostLimit(costLimit))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}
	return prg, nil
}

func (e *Engine) Name() string    { return e.table.Name }
func (e *Engine) Version() string { return e.table.Version }

// Evaluate validates doc against the input schema and returns the result of the first
// matching rule as {output, input, <derived fields>}.
func (e *Engine) Evaluate(ctx context.Context, doc map[string]interface{}) (map[string]interface{}, error) {
	if err := e.validate(doc); err != nil {
		return nil, err
	}

	input, _ := doc["input"].(map[string]interface{})
	if input == nil {
		input = map[string]interface{}{}
	}
	vars := map[string]interface{}{"input": input}

	var matched *compiledRule
	for i := range e.rules {
		r := &e.rules[i]
		ok, err := r.eval(ctx, vars)
		if err != nil {
			return nil, &NodeError{NodeID: r.id, Source: err}
		}
		if ok {
			matched = r
			break
		}
	}
	if matched == nil {
		return nil, &NodeError{NodeID: rulesNode, Source: ErrNoRuleMatched}
	}

	result := map[string]interface{}{
		"output": copyValue(matched.output),
		"input":  copyValue(input),
	}
	for i := range e.derived {
		d := &e.derived[i]
		v, err := d.eval(ctx, vars)
		if err != nil {
			return nil, &NodeError{NodeID: d.id, Source: err}
		}
		result[d.id] = v
	}

	return result, nil
}

func (e *Engine) validate(doc map[string]interface{}) error {
	if e.schema == nil {
		return nil
	}

	res, err := e.schema.Validate(doc)
	if err != nil {
		return &NodeError{NodeID: requestNode, Source: err}
	}
	if res.Valid {
		return nil
	}

	validation.SortByPath(res.Errors)
	issues := make([]Issue, 0, len(res.Errors))
	for _, ve := range res.Errors {
		issues = append(issues, Issue{Message: ve.Message, Path: ve.Path})
	}
	return &NodeError{NodeID: requestNode, Source: &ValidationFailure{Issues: issues}}
}

func (p *program) eval(ctx context.Context, vars map[string]interface{}) (bool, error) {
	out, _, err := p.prg.ContextEval(ctx, vars)
	if err != nil {
		return false, &ExpressionError{Expression: p.expression, Err: err}
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, &ExpressionError{
			Expression: p.expression,
			Err:        fmt.Errorf("result is %T, want bool", out.Value()),
		}
	}
	return b, nil
}

func copyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = copyValue(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	default:
		return val
	}
}
