// internal/workers/eligibility/evaluate-unpaid-leave/models.go
package evaluateunpaidleave

import "eligibility-engine/internal/eligibility"

// Output is merged into the process instance variables on completion.
type Output struct {
	Eligibility *eligibility.EvaluationResponse `json:"eligibility"`
}
