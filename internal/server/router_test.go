package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "eligibility-engine/internal/common/errors"
	"eligibility-engine/internal/common/logger"
	"eligibility-engine/internal/common/metrics"
	"eligibility-engine/internal/common/workerpool"
	"eligibility-engine/internal/eligibility"
	"eligibility-engine/internal/transport/mcp"
	"eligibility-engine/pkg/registry"
)

type evaluatorFunc func(ctx context.Context, payload eligibility.CallerPayload) (*eligibility.EvaluationResponse, error)

func (f evaluatorFunc) EvaluateJSON(ctx context.Context, raw []byte) (*eligibility.EvaluationResponse, error) {
	payload, err := eligibility.DecodePayload(raw)
	if err != nil {
		return nil, err
	}
	return f(ctx, payload)
}

func failingWith(err error) Evaluator {
	return evaluatorFunc(func(context.Context, eligibility.CallerPayload) (*eligibility.EvaluationResponse, error) {
		return nil, err
	})
}

type errorBody struct {
	Error apperrors.StandardError `json:"error"`
}

func newServiceRouter(t *testing.T) (http.Handler, *prometheus.Registry) {
	t.Helper()
	log := logger.NewTestLogger(t)

	reg := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(reg)
	require.NoError(t, err)

	adapter, err := eligibility.LoadAdapter("")
	require.NoError(t, err)
	pool := workerpool.New(2, 8, log)
	t.Cleanup(func() { _ = pool.Close() })

	svc, err := eligibility.NewService(eligibility.ServiceOptions{Adapter: adapter, Pool: pool, Metrics: collector, Logger: log})
	require.NoError(t, err)

	mcpServer, err := mcp.NewServer(svc, registry.Default(), log)
	require.NoError(t, err)

	return NewRouter(Options{
		Evaluator: svc,
		MCP:       mcp.NewHTTPHandler(mcpServer),
		Gatherer:  reg,
		Logger:    log,
	}), reg
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_EvaluateSuccess(t *testing.T) {
	h, _ := newServiceRouter(t)

	rec := do(h, http.MethodPost, "/api/v1/evaluate",
		`{"relationship":"mother","situation":"adoption","is_single_parent":false,"total_children_after":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp eligibility.EvaluationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "C", resp.Output.Case)
	assert.Equal(t, 500, resp.Output.MonthlyBenefit)
}

func TestRouter_EvaluateErrorStatuses(t *testing.T) {
	h, _ := newServiceRouter(t)

	tests := []struct {
		name     string
		body     string
		status   int
		wantCode apperrors.ErrorCode
	}{
		{
			name:     "malformed boolean",
			body:     `{"relationship":"son","situation":"illness","is_single_parent":"maybe"}`,
			status:   http.StatusBadRequest,
			wantCode: apperrors.ErrCodeMalformedInput,
		},
		{
			name:     "broken json",
			body:     `{"relationship":`,
			status:   http.StatusBadRequest,
			wantCode: apperrors.ErrCodeMalformedInput,
		},
		{
			name:     "relationship outside vocabulary",
			body:     `{"relationship":"brother","situation":"illness","is_single_parent":false}`,
			status:   http.StatusUnprocessableEntity,
			wantCode: apperrors.ErrCodeValidationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, http.MethodPost, "/api/v1/evaluate", tt.body)
			require.Equal(t, tt.status, rec.Code)

			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Error.Code)
		})
	}
}

func TestRouter_ValidationErrorsInBody(t *testing.T) {
	h, _ := newServiceRouter(t)

	rec := do(h, http.MethodPost, "/api/v1/evaluate", `{"relationship":"brother","situation":"illness","is_single_parent":false}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Error.Validation)
	assert.Equal(t, "/input/relationship", body.Error.Validation[0].Path)
}

func TestRouter_InternalStatuses(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   apperrors.ErrorCode
	}{
		{name: "isolation", err: apperrors.NewIsolationFailureError(errors.New("closed")), status: http.StatusServiceUnavailable, code: apperrors.ErrCodeIsolationFailure},
		{name: "engine", err: apperrors.NewEngineEvaluationError(errors.New("boom")), status: http.StatusInternalServerError, code: apperrors.ErrCodeEngineEvaluationFailed},
		{name: "serialization", err: apperrors.NewSerializationError(errors.New("shape")), status: http.StatusInternalServerError, code: apperrors.ErrCodeSerializationFailed},
		{name: "plain", err: errors.New("kaput"), status: http.StatusInternalServerError, code: apperrors.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewRouter(Options{Evaluator: failingWith(tt.err), Logger: logger.NewTestLogger(t)})

			rec := do(h, http.MethodPost, "/api/v1/evaluate", `{"relationship":"son","situation":"illness","is_single_parent":false}`)
			require.Equal(t, tt.status, rec.Code)

			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Error.Code)
		})
	}
}

func TestRouter_HealthAndReady(t *testing.T) {
	healthy := ReadinessCheck{Name: "postgres", Check: func(context.Context) error { return nil }}
	broken := ReadinessCheck{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }}

	h := NewRouter(Options{Checks: []ReadinessCheck{healthy}})
	rec := do(h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(h, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ready":true,"checks":{"postgres":"ok"}}`, rec.Body.String())

	h = NewRouter(Options{Checks: []ReadinessCheck{healthy, broken}})
	rec = do(h, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"ready":false,"checks":{"postgres":"ok","redis":"connection refused"}}`, rec.Body.String())
}

func TestRouter_ListTools(t *testing.T) {
	h := NewRouter(Options{})

	rec := do(h, http.MethodGet, "/api/v1/tools", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var reg registry.ToolRegistry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reg))
	_, ok := reg.Find(mcp.EvaluateToolName)
	assert.True(t, ok)
}

func TestRouter_MetricsAfterEvaluation(t *testing.T) {
	h, _ := newServiceRouter(t)

	do(h, http.MethodPost, "/api/v1/evaluate", `{"relationship":"son","situation":"accident","is_single_parent":false}`)

	rec := do(h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "eligibility_requests_total 1")
	assert.Contains(t, rec.Body.String(), "eligibility_request_duration_seconds_bucket")
}

func TestRouter_UndecodablePayloadIsCounted(t *testing.T) {
	h, _ := newServiceRouter(t)

	rec := do(h, http.MethodPost, "/api/v1/evaluate", `{"relationship":5,"situation":"birth","is_single_parent":true}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, http.MethodGet, "/metrics", "")
	assert.Contains(t, rec.Body.String(), "eligibility_requests_total 1")
	assert.Contains(t, rec.Body.String(), "eligibility_errors_total 1")
}

func TestRouter_MCPRoute(t *testing.T) {
	h, _ := newServiceRouter(t)

	rec := do(h, http.MethodPost, "/mcp", `{"jsonrpc":"2.0","id":1,"method":"initialize"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(mcp.SessionHeader))
	assert.Contains(t, rec.Body.String(), `"serverInfo":{"name":"eligibility-engine","version":"1.0.0"}`)
}

func TestRouter_RateLimit(t *testing.T) {
	calls := 0
	h := NewRouter(Options{
		Evaluator: evaluatorFunc(func(context.Context, eligibility.CallerPayload) (*eligibility.EvaluationResponse, error) {
			calls++
			return &eligibility.EvaluationResponse{}, nil
		}),
		RateLimitPerMinute: 2,
	})

	body := `{"relationship":"son","situation":"illness","is_single_parent":false}`
	assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "/api/v1/evaluate", body).Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "/api/v1/evaluate", body).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(h, http.MethodPost, "/api/v1/evaluate", body).Code)
	assert.Equal(t, 2, calls)

	// health is outside the limited group
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/health", "").Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusFor(apperrors.NewMalformedInputError("f", "v", "bad")))
	assert.Equal(t, http.StatusUnprocessableEntity, StatusFor(apperrors.NewValidationFailedError(nil)))
	assert.Equal(t, http.StatusServiceUnavailable, StatusFor(apperrors.NewIsolationFailureError(errors.New("x"))))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("x")))
}
