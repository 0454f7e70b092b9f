// internal/eligibility/adapter.go
package eligibility

import (
	"context"
	"encoding/json"
	"errors"

	apperrors "eligibility-engine/internal/common/errors"
	"eligibility-engine/internal/decision"
)

// RuleEngine evaluates a generic input document against a loaded decision table.
type RuleEngine interface {
	Evaluate(ctx context.Context, doc map[string]interface{}) (map[string]interface{}, error)
	Version() string
}

// Adapter owns one decision table for the life of the process.
type Adapter struct {
	engine RuleEngine
}

func NewAdapter(engine RuleEngine) *Adapter {
	return &Adapter{engine: engine}
}

// LoadAdapter builds the adapter from the table at path, or from the bundled table when
// path is empty. Any failure is a TABLE_LOAD_FAILED error and should abort startup.
func LoadAdapter(path string) (*Adapter, error) {
	var (
		table *decision.Table
		err   error
	)
	source := path
	if path == "" {
		source = "embedded"
		table, err = decision.Default()
	} else {
		table, err = decision.LoadFile(path)
	}
	if err != nil {
		return nil, apperrors.NewTableLoadError(source, err)
	}

	engine, err := decision.NewEngine(table)
	if err != nil {
		return nil, apperrors.NewTableLoadError(source, err)
	}

	return NewAdapter(engine), nil
}

func (a *Adapter) TableVersion() string {
	return a.engine.Version()
}

// Evaluate submits req to the engine and returns the raw result document. Engine failures
// come back uninterpreted, wrapped as ENGINE_EVALUATION_FAILED.
func (a *Adapter) Evaluate(ctx context.Context, req CanonicalRequest) (map[string]interface{}, error) {
	doc, err := toDocument(req)
	if err != nil {
		return nil, apperrors.NewSerializationError(err)
	}

	result, err := a.engine.Evaluate(ctx, doc)
	if err != nil {
		return nil, apperrors.NewEngineEvaluationError(err)
	}
	if result == nil {
		return nil, apperrors.NewEngineEvaluationError(errors.New("engine returned an empty result"))
	}
	return result, nil
}

func toDocument(req CanonicalRequest) (map[string]interface{}, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
