// internal/eligibility/normalizer.go
package eligibility

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	apperrors "eligibility-engine/internal/common/errors"
)

// DecodePayload reads a flat JSON payload. Numbers are kept as json.Number so Normalize
// sees them exactly as sent.
func DecodePayload(raw []byte) (CallerPayload, error) {
	var p CallerPayload
	if len(bytes.TrimSpace(raw)) == 0 {
		return p, apperrors.NewMalformedInputError("arguments", "", "missing arguments")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			field := typeErr.Field
			if field == "" {
				field = "arguments"
			}
			return p, apperrors.NewMalformedInputError(field, typeErr.Value,
				fmt.Sprintf("invalid type for %s: expected %s, got %s", field, typeErr.Type, typeErr.Value))
		}
		return p, apperrors.NewMalformedInputError("arguments", "", fmt.Sprintf("invalid payload: %s", err))
	}
	return p, nil
}

// Normalize coerces a caller payload into the canonical request. Relationship and
// situation pass through untouched; the decision table owns their vocabulary.
func Normalize(p CallerPayload) (CanonicalRequest, error) {
	single, err := coerceBool("is_single_parent", p.IsSingleParent)
	if err != nil {
		return CanonicalRequest{}, err
	}

	children, err := coerceOptionalFloat("total_children_after", p.TotalChildrenAfter)
	if err != nil {
		return CanonicalRequest{}, err
	}

	return CanonicalRequest{
		Input: Input{
			Relationship:       p.Relationship,
			Situation:          p.Situation,
			IsSingleParent:     single,
			TotalChildrenAfter: children,
		},
	}, nil
}

func coerceBool(field string, v interface{}) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		switch strings.ToLower(val) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return false, apperrors.NewMalformedInputError(field, val, fmt.Sprintf("invalid boolean string: %s", val))
	case nil:
		return false, apperrors.NewMalformedInputError(field, nil, fmt.Sprintf("missing field `%s`", field))
	default:
		return false, apperrors.NewMalformedInputError(field, val,
			fmt.Sprintf("invalid type for %s: expected bool or string, got %T", field, val))
	}
}

func coerceOptionalFloat(field string, v interface{}) (*float64, error) {
	var f float64

	switch val := v.(type) {
	case nil:
		return nil, nil
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		f = float64(val)
	case int32:
		f = float64(val)
	case int64:
		f = float64(val)
	case uint:
		f = float64(val)
	case uint32:
		f = float64(val)
	case uint64:
		f = float64(val)
	case json.Number:
		parsed, err := strconv.ParseFloat(val.String(), 64)
		if err != nil {
			return nil, apperrors.NewMalformedInputError(field, val, fmt.Sprintf("invalid number string: %s", val))
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
			return nil, apperrors.NewMalformedInputError(field, val, fmt.Sprintf("invalid number string: %s", val))
		}
		f = parsed
	default:
		return nil, apperrors.NewMalformedInputError(field, val,
			fmt.Sprintf("invalid type for %s: expected number, string or null, got %T", field, val))
	}

	return &f, nil
}
