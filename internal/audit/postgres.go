// internal/audit/postgres.go
package audit

import (
	"context"

	"eligibility-engine/internal/common/database"
	apperrors "eligibility-engine/internal/common/errors"
)

const createTableSQL = `
	CREATE TABLE IF NOT EXISTS eligibility_evaluations (
		id                   UUID PRIMARY KEY,
		table_version        TEXT NOT NULL,
		input                JSONB,
		outcome              TEXT NOT NULL,
		case_label           TEXT NOT NULL DEFAULT '',
		monthly_benefit      INTEGER NOT NULL DEFAULT 0,
		potentially_eligible BOOLEAN NOT NULL DEFAULT FALSE,
		error_code           TEXT NOT NULL DEFAULT '',
		duration_ms          BIGINT NOT NULL,
		created_at           TIMESTAMPTZ NOT NULL
	)`

const insertSQL = `
	INSERT INTO eligibility_evaluations (
		id, table_version, input, outcome, case_label, monthly_benefit,
		potentially_eligible, error_code, duration_ms, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

type PostgresStore struct {
	db *database.PostgresClient
}

func NewPostgresStore(db *database.PostgresClient) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Name() string { return "postgres" }

// EnsureSchema creates the audit table when it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createTableSQL); err != nil {
		return apperrors.NewDatabaseInsertFailedError(err)
	}
	return nil
}

func (s *PostgresStore) Write(ctx context.Context, rec Record) error {
	var input interface{}
	if len(rec.Input) > 0 {
		input = []byte(rec.Input)
	}

	_, err := s.db.Exec(ctx, insertSQL,
		rec.ID,
		rec.TableVersion,
		input,
		rec.Outcome,
		rec.Case,
		rec.MonthlyBenefit,
		rec.PotentiallyEligible,
		rec.ErrorCode,
		rec.DurationMs,
		rec.CreatedAt,
	)
	if err != nil {
		return apperrors.NewDatabaseInsertFailedError(err)
	}
	return nil
}
