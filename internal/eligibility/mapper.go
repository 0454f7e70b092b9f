// internal/eligibility/mapper.go
package eligibility

import (
	"encoding/json"
	"fmt"
	"strings"

	apperrors "eligibility-engine/internal/common/errors"
	"eligibility-engine/internal/common/validation"
)

const responseSchema = `{
  "type": "object",
  "required": ["output"],
  "properties": {
    "output": {
      "type": "object",
      "required": ["description", "monthly_benefit", "case", "potentially_eligible"],
      "properties": {
        "description": {"type": "string"},
        "monthly_benefit": {"type": "integer"},
        "additional_requirements": {"type": "string"},
        "case": {"type": "string"},
        "potentially_eligible": {"type": "boolean"},
        "errores": {"type": "array", "items": {"type": "string"}},
        "warnings": {"type": "array", "items": {"type": "string"}}
      }
    },
    "input": {"type": ["object", "null"]},
    "relationship_valid": {"type": ["boolean", "null"]}
  }
}`

// Mapper turns engine result documents into responses.
type Mapper struct {
	schema *validation.Schema
}

func NewMapper() (*Mapper, error) {
	schema, err := validation.CompileJSON([]byte(responseSchema))
	if err != nil {
		return nil, err
	}
	return &Mapper{schema: schema}, nil
}

// Map decodes a result document. A document that does not fit the response shape is a
// SERIALIZATION_FAILED error: the table or the engine is at fault, not the caller.
func (m *Mapper) Map(doc map[string]interface{}) (*EvaluationResponse, error) {
	res, err := m.schema.Validate(doc)
	if err != nil {
		return nil, apperrors.NewSerializationError(err)
	}
	if !res.Valid {
		validation.SortByPath(res.Errors)
		return nil, apperrors.NewSerializationError(fmt.Errorf("%s", strings.Join(validation.GetErrorMessages(res), "; ")))
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, apperrors.NewSerializationError(err)
	}

	var resp EvaluationResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, apperrors.NewSerializationError(err)
	}

	if resp.Output.Errores == nil {
		resp.Output.Errores = []string{}
	}
	if resp.Output.Warnings == nil {
		resp.Output.Warnings = []string{}
	}
	return &resp, nil
}

// ValidationFailure wraps recovered validation errors as the caller-facing error.
func (m *Mapper) ValidationFailure(errs []ValidationError) error {
	return apperrors.NewValidationFailedError(errs)
}

// RenderToolResult is the text content returned to tool callers on success.
func RenderToolResult(resp *EvaluationResponse) (string, error) {
	raw, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// RenderToolError is the text content returned to tool callers on failure.
func RenderToolError(err error) string {
	stdErr, ok := apperrors.As(err)
	if !ok {
		return "Internal error: " + err.Error()
	}

	switch stdErr.Code {
	case apperrors.ErrCodeValidationFailed:
		var b strings.Builder
		b.WriteString("Validation errors:\n")
		for _, fe := range stdErr.Validation {
			fmt.Fprintf(&b, "  - Field '%s': %s\n", fe.Path, fe.Message)
		}
		return b.String()
	case apperrors.ErrCodeMalformedInput:
		return "Invalid input: " + stdErr.Message
	case apperrors.ErrCodeIsolationFailure:
		return "Internal error: " + stdErr.Message
	default:
		return "Evaluation error: " + stdErr.Message
	}
}
