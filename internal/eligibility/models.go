// internal/eligibility/models.go
package eligibility

import (
	apperrors "eligibility-engine/internal/common/errors"
)

// CallerPayload is the flat tool input as decoded from JSON. The two loosely typed fields
// keep whatever the decoder produced and are coerced by Normalize.
type CallerPayload struct {
	Relationship       string      `json:"relationship"`
	Situation          string      `json:"situation"`
	IsSingleParent     interface{} `json:"is_single_parent"`
	TotalChildrenAfter interface{} `json:"total_children_after,omitempty"`
}

type Input struct {
	Relationship       string   `json:"relationship"`
	Situation          string   `json:"situation"`
	IsSingleParent     bool     `json:"is_single_parent"`
	TotalChildrenAfter *float64 `json:"total_children_after,omitempty"`
}

// CanonicalRequest is the document shape the decision table expects.
type CanonicalRequest struct {
	Input Input `json:"input"`
}

type Output struct {
	Description            string   `json:"description"`
	MonthlyBenefit         int      `json:"monthly_benefit"`
	AdditionalRequirements string   `json:"additional_requirements"`
	Case                   string   `json:"case"`
	PotentiallyEligible    bool     `json:"potentially_eligible"`
	Errores                []string `json:"errores"`
	Warnings               []string `json:"warnings"`
}

type EvaluationResponse struct {
	Output            Output `json:"output"`
	Input             *Input `json:"input,omitempty"`
	RelationshipValid *bool  `json:"relationship_valid,omitempty"`
}

type ValidationError = apperrors.FieldError

// Outcome labels used by audit records and telemetry.
const (
	OutcomeEligible           = "eligible"
	OutcomeNotEligible        = "not_eligible"
	OutcomeMalformedInput     = "malformed_input"
	OutcomeValidationFailed   = "validation_failed"
	OutcomeEngineError        = "engine_error"
	OutcomeSerializationError = "serialization_error"
	OutcomeIsolationFailure   = "isolation_failure"
)

// OutcomeOf classifies a finished evaluation.
func OutcomeOf(resp *EvaluationResponse, err error) string {
	if err == nil {
		if resp != nil && resp.Output.PotentiallyEligible {
			return OutcomeEligible
		}
		return OutcomeNotEligible
	}

	switch apperrors.CodeOf(err) {
	case apperrors.ErrCodeMalformedInput:
		return OutcomeMalformedInput
	case apperrors.ErrCodeValidationFailed:
		return OutcomeValidationFailed
	case apperrors.ErrCodeSerializationFailed:
		return OutcomeSerializationError
	case apperrors.ErrCodeIsolationFailure:
		return OutcomeIsolationFailure
	default:
		return OutcomeEngineError
	}
}
