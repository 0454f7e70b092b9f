// internal/audit/record.go
package audit

import (
	"context"
	"encoding/json"
	"time"
)

// Record is one finished evaluation as kept in the audit trail.
type Record struct {
	ID                  string          `json:"id"`
	TableVersion        string          `json:"table_version"`
	Input               json.RawMessage `json:"input,omitempty"`
	Outcome             string          `json:"outcome"`
	Case                string          `json:"case"`
	MonthlyBenefit      int             `json:"monthly_benefit"`
	PotentiallyEligible bool            `json:"potentially_eligible"`
	ErrorCode           string          `json:"error_code,omitempty"`
	DurationMs          int64           `json:"duration_ms"`
	CreatedAt           time.Time       `json:"created_at"`
}

// Writer persists records to one backend.
type Writer interface {
	Name() string
	Write(ctx context.Context, rec Record) error
}
