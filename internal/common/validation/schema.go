// internal/common/validation/schema.go
package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError is one schema violation. Path is a JSON pointer ("/input/relationship").
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Schema is a compiled JSON schema, safe for concurrent use.
type Schema struct {
	schema *gojsonschema.Schema
}

func Compile(schema map[string]interface{}) (*Schema, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Schema{schema: compiled}, nil
}

func CompileJSON(raw []byte) (*Schema, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Schema{schema: compiled}, nil
}

// Validate checks document against the schema. The error return is reserved for documents
// that cannot be loaded at all; violations come back in the result.
func (s *Schema) Validate(document interface{}) (*ValidationResult, error) {
	result, err := s.schema.Validate(gojsonschema.NewGoLoader(document))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	if result.Valid() {
		return &ValidationResult{Valid: true}, nil
	}

	errs := make([]ValidationError, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		errs = append(errs, toValidationError(desc))
	}

	return &ValidationResult{Valid: false, Errors: errs}, nil
}

func toValidationError(desc gojsonschema.ResultError) ValidationError {
	details := desc.Details()
	path := FieldToPointer(desc.Field())

	switch desc.Type() {
	case "required":
		if prop, ok := details["property"].(string); ok {
			path = joinPointer(path, prop)
		}
		return ValidationError{Path: path, Message: "required property is missing", Code: "REQUIRED_FIELD_MISSING"}

	case "enum":
		return ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%v is not one of the allowed values (%s)", desc.Value(), allowedValues(details)),
			Code:    "ENUM_MISMATCH",
		}

	case "invalid_type":
		return ValidationError{
			Path:    path,
			Message: fmt.Sprintf("expected %v but got %v", details["expected"], details["given"]),
			Code:    "INVALID_TYPE",
		}

	case "additional_property_not_allowed":
		if prop, ok := details["property"].(string); ok {
			path = joinPointer(path, prop)
		}
		return ValidationError{Path: path, Message: "property is not allowed", Code: "EXTRA_FIELD"}
	}

	return ValidationError{
		Path:    path,
		Message: desc.Description(),
		Code:    strings.ToUpper(desc.Type()),
	}
}

// allowedValues turns gojsonschema's `"a", "b"` rendering into a|b, which keeps the
// message free of quotes and commas.
func allowedValues(details gojsonschema.ErrorDetails) string {
	raw, _ := details["allowed"].(string)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), `"`)
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "|")
}

// FieldToPointer converts gojsonschema's dotted field ("input.relationship", "(root)") to a JSON pointer.
func FieldToPointer(field string) string {
	if field == "" || field == gojsonschema.STRING_CONTEXT_ROOT || field == "(root)" {
		return ""
	}
	field = strings.TrimPrefix(field, gojsonschema.STRING_CONTEXT_ROOT+".")
	return "/" + strings.ReplaceAll(field, ".", "/")
}

func joinPointer(base, prop string) string {
	if strings.HasSuffix(base, "/"+prop) {
		return base
	}
	return base + "/" + prop
}

func GetErrorMessages(result *ValidationResult) []string {
	messages := make([]string, len(result.Errors))
	for i, err := range result.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Path, err.Message)
	}
	return messages
}

// SortByPath orders errors by path, keeping the engine's output stable across runs.
func SortByPath(errs []ValidationError) {
	sort.SliceStable(errs, func(i, j int) bool {
		return errs[i].Path < errs[j].Path
	})
}
