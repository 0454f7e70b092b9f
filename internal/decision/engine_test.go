package decision

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDefaultEngine(t *testing.T) *Engine {
	t.Helper()
	table, err := Default()
	require.NoError(t, err)
	engine, err := NewEngine(table)
	require.NoError(t, err)
	return engine
}

func doc(fields map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{"input": fields}
}

func TestEngine_BundledTableCases(t *testing.T) {
	engine := newDefaultEngine(t)

	tests := []struct {
		name        string
		input       map[string]interface{}
		wantCase    string
		wantBenefit float64
		wantElig    bool
		wantRelOK   bool
	}{
		{
			name:        "illness care",
			input:       map[string]interface{}{"relationship": "mother", "situation": "illness", "is_single_parent": false},
			wantCase:    "A",
			wantBenefit: 725,
			wantElig:    true,
			wantRelOK:   true,
		},
		{
			name:        "accident care by son",
			input:       map[string]interface{}{"relationship": "son", "situation": "accident", "is_single_parent": false, "total_children_after": 0.0},
			wantCase:    "A",
			wantBenefit: 725,
			wantElig:    true,
			wantRelOK:   true,
		},
		{
			name:        "third child",
			input:       map[string]interface{}{"relationship": "mother", "situation": "birth", "is_single_parent": false, "total_children_after": 3.0},
			wantCase:    "B",
			wantBenefit: 500,
			wantElig:    true,
			wantRelOK:   true,
		},
		{
			name:        "adoption",
			input:       map[string]interface{}{"relationship": "father", "situation": "adoption", "is_single_parent": false, "total_children_after": 1.0},
			wantCase:    "C",
			wantBenefit: 500,
			wantElig:    true,
			wantRelOK:   true,
		},
		{
			name:        "multiple foster care",
			input:       map[string]interface{}{"relationship": "foster_parent", "situation": "multiple_foster_care", "is_single_parent": false, "total_children_after": 2.0},
			wantCase:    "D",
			wantBenefit: 500,
			wantElig:    true,
			wantRelOK:   true,
		},
		{
			name:        "single parent birth",
			input:       map[string]interface{}{"relationship": "mother", "situation": "birth", "is_single_parent": true, "total_children_after": 1.0},
			wantCase:    "E",
			wantBenefit: 500,
			wantElig:    true,
			wantRelOK:   true,
		},
		{
			name:        "second child with both parents",
			input:       map[string]interface{}{"relationship": "mother", "situation": "birth", "is_single_parent": false, "total_children_after": 2.0},
			wantCase:    "",
			wantBenefit: 0,
			wantElig:    false,
			wantRelOK:   true,
		},
		{
			name:        "birth reported by a son",
			input:       map[string]interface{}{"relationship": "son", "situation": "birth", "is_single_parent": false},
			wantCase:    "",
			wantBenefit: 0,
			wantElig:    false,
			wantRelOK:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := engine.Evaluate(context.Background(), doc(tt.input))
			require.NoError(t, err)

			output, ok := result["output"].(map[string]interface{})
			require.True(t, ok)
			assert.Equal(t, tt.wantCase, output["case"])
			assert.Equal(t, tt.wantBenefit, output["monthly_benefit"])
			assert.Equal(t, tt.wantElig, output["potentially_eligible"])
			assert.Equal(t, tt.wantRelOK, result["relationship_valid"])
			assert.Equal(t, tt.input, result["input"])
		})
	}
}

func TestEngine_InvalidEnumIsValidationFailure(t *testing.T) {
	engine := newDefaultEngine(t)

	_, err := engine.Evaluate(context.Background(), doc(map[string]interface{}{
		"relationship":     "brother",
		"situation":        "birth",
		"is_single_parent": false,
	}))
	require.Error(t, err)

	var nodeErr *NodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, "request", nodeErr.NodeID)

	var vf *ValidationFailure
	require.ErrorAs(t, err, &vf)
	require.Len(t, vf.Issues, 1)
	assert.Equal(t, "/input/relationship", vf.Issues[0].Path)
	assert.True(t, strings.HasPrefix(vf.Issues[0].Message, "brother is not one of the allowed values ("))
	assert.NotContains(t, vf.Issues[0].Message, ",")
}

func TestValidationFailure_ErrorIsEnvelope(t *testing.T) {
	vf := &ValidationFailure{Issues: []Issue{{Message: "bad", Path: "/input/situation"}}}

	text := vf.Error()
	assert.Equal(t, `{"source":{"errors":[{"message":"bad","path":"/input/situation"}]},"type":"Validation"}`, text)

	var decoded struct {
		Source struct {
			Errors []Issue `json:"errors"`
		} `json:"source"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &decoded))
	assert.Equal(t, vf.Issues, decoded.Source.Errors)
}

func TestEngine_SchemaViolations(t *testing.T) {
	engine := newDefaultEngine(t)

	tests := []struct {
		name     string
		input    map[string]interface{}
		wantPath string
	}{
		{
			name:     "missing situation",
			input:    map[string]interface{}{"relationship": "mother", "is_single_parent": false},
			wantPath: "/input/situation",
		},
		{
			name:     "wrong boolean type",
			input:    map[string]interface{}{"relationship": "mother", "situation": "birth", "is_single_parent": "yes"},
			wantPath: "/input/is_single_parent",
		},
		{
			name:     "negative children",
			input:    map[string]interface{}{"relationship": "mother", "situation": "birth", "is_single_parent": false, "total_children_after": -1.0},
			wantPath: "/input/total_children_after",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Evaluate(context.Background(), doc(tt.input))

			var vf *ValidationFailure
			require.ErrorAs(t, err, &vf)
			require.NotEmpty(t, vf.Issues)
			assert.Equal(t, tt.wantPath, vf.Issues[0].Path)
		})
	}
}

func TestEngine_MissingInputEnvelope(t *testing.T) {
	engine := newDefaultEngine(t)

	_, err := engine.Evaluate(context.Background(), map[string]interface{}{})

	var vf *ValidationFailure
	require.ErrorAs(t, err, &vf)
}

const minimalTable = `{
  "name": "test",
  "version": "1",
  "hitPolicy": "first",
  "inputSchema": {"type": "object"},
  "rules": [
    {"id": "only", "when": %s, "output": {"case": "X"}}
  ]
}`

func engineWithCondition(t *testing.T, when string) *Engine {
	t.Helper()
	raw, err := json.Marshal(when)
	require.NoError(t, err)
	table, err := Load([]byte(strings.Replace(minimalTable, "%s", string(raw), 1)))
	require.NoError(t, err)
	engine, err := NewEngine(table)
	require.NoError(t, err)
	return engine
}

func TestEngine_NoRuleMatched(t *testing.T) {
	engine := engineWithCondition(t, "input.situation == 'never'")

	_, err := engine.Evaluate(context.Background(), doc(map[string]interface{}{"situation": "birth"}))

	assert.True(t, errors.Is(err, ErrNoRuleMatched))
	var nodeErr *NodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, "rules", nodeErr.NodeID)
}

func TestEngine_ExpressionRuntimeError(t *testing.T) {
	engine := engineWithCondition(t, "input.missing_field == 1.0")

	_, err := engine.Evaluate(context.Background(), doc(map[string]interface{}{"situation": "birth"}))

	var exprErr *ExpressionError
	require.ErrorAs(t, err, &exprErr)
	assert.Equal(t, "input.missing_field == 1.0", exprErr.Expression)

	var nodeErr *NodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, "only", nodeErr.NodeID)
}

func TestEngine_DynamicNonBooleanResult(t *testing.T) {
	engine := engineWithCondition(t, "input.situation")

	_, err := engine.Evaluate(context.Background(), doc(map[string]interface{}{"situation": "birth"}))

	var exprErr *ExpressionError
	assert.ErrorAs(t, err, &exprErr)
}

func TestEngine_ResultDoesNotAliasTable(t *testing.T) {
	engine := newDefaultEngine(t)
	in := map[string]interface{}{"relationship": "mother", "situation": "illness", "is_single_parent": false}

	first, err := engine.Evaluate(context.Background(), doc(in))
	require.NoError(t, err)
	first["output"].(map[string]interface{})["case"] = "tampered"

	second, err := engine.Evaluate(context.Background(), doc(in))
	require.NoError(t, err)
	assert.Equal(t, "A", second["output"].(map[string]interface{})["case"])
}

func TestEngine_ConcurrentEvaluations(t *testing.T) {
	engine := newDefaultEngine(t)

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			situation := "illness"
			want := "A"
			if i%2 == 1 {
				situation = "multiple_birth"
				want = "D"
			}
			result, err := engine.Evaluate(context.Background(), doc(map[string]interface{}{
				"relationship": "parent", "situation": situation, "is_single_parent": false,
			}))
			if err != nil {
				errs <- err
				return
			}
			if got := result["output"].(map[string]interface{})["case"]; got != want {
				errs <- errors.New("unexpected case")
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestEngine_Metadata(t *testing.T) {
	engine := newDefaultEngine(t)
	assert.Equal(t, "unpaid-leave-assistance", engine.Name())
	assert.Equal(t, "2025.1", engine.Version())
}
