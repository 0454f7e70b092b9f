package eligibility

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eligibility-engine/internal/audit"
	apperrors "eligibility-engine/internal/common/errors"
	"eligibility-engine/internal/common/logger"
	"eligibility-engine/internal/common/workerpool"
)

type countingSink struct {
	requests  int64
	errors    int64
	durations int64
	active    int64
}

func (c *countingSink) IncRequests()                  { atomic.AddInt64(&c.requests, 1) }
func (c *countingSink) IncErrors()                    { atomic.AddInt64(&c.errors, 1) }
func (c *countingSink) ObserveDuration(time.Duration) { atomic.AddInt64(&c.durations, 1) }
func (c *countingSink) IncActive()                    { atomic.AddInt64(&c.active, 1) }
func (c *countingSink) DecActive()                    { atomic.AddInt64(&c.active, -1) }

func (c *countingSink) snapshot() (requests, errs, durations, active int64) {
	return atomic.LoadInt64(&c.requests), atomic.LoadInt64(&c.errors),
		atomic.LoadInt64(&c.durations), atomic.LoadInt64(&c.active)
}

type stubEngine struct {
	evaluate func(ctx context.Context, doc map[string]interface{}) (map[string]interface{}, error)
	calls    int64
}

func (s *stubEngine) Evaluate(ctx context.Context, doc map[string]interface{}) (map[string]interface{}, error) {
	atomic.AddInt64(&s.calls, 1)
	return s.evaluate(ctx, doc)
}

func (s *stubEngine) Version() string { return "test" }

type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	err     error
}

func (m *memoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, false, m.err
	}
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *memoryCache) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries[key] = value
	return nil
}

type auditRecorder struct {
	mu      sync.Mutex
	records []audit.Record
}

func (a *auditRecorder) Dispatch(rec audit.Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
}

type alertRecorder struct {
	mu    sync.Mutex
	codes []apperrors.ErrorCode
}

func (a *alertRecorder) Alert(ctx context.Context, err *apperrors.StandardError) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.codes = append(a.codes, err.Code)
}

type fixture struct {
	svc     *Service
	sink    *countingSink
	audit   *auditRecorder
	alerts  *alertRecorder
	pool    *workerpool.Pool
	adapter *Adapter
}

func newFixture(t *testing.T, adapter *Adapter, mutate func(*ServiceOptions)) *fixture {
	t.Helper()

	if adapter == nil {
		var err error
		adapter, err = LoadAdapter("")
		require.NoError(t, err)
	}

	f := &fixture{
		sink:    &countingSink{},
		audit:   &auditRecorder{},
		alerts:  &alertRecorder{},
		pool:    workerpool.New(2, 8, logger.NewNoOpLogger()),
		adapter: adapter,
	}
	t.Cleanup(func() { _ = f.pool.Close() })

	opts := ServiceOptions{
		Adapter: adapter,
		Pool:    f.pool,
		Metrics: f.sink,
		Logger:  logger.NewTestLogger(t),
		Audit:   f.audit,
		Alerter: f.alerts,
	}
	if mutate != nil {
		mutate(&opts)
	}

	svc, err := NewService(opts)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) assertCounted(t *testing.T, wantRequests, wantErrors int64) {
	t.Helper()
	requests, errs, durations, active := f.sink.snapshot()
	assert.Equal(t, wantRequests, requests, "requests")
	assert.Equal(t, wantErrors, errs, "errors")
	assert.Equal(t, wantRequests, durations, "durations")
	assert.Equal(t, int64(0), active, "active")
}

func TestService_Scenarios(t *testing.T) {
	tests := []struct {
		name        string
		payload     CallerPayload
		wantCase    string
		wantBenefit int
	}{
		{
			name:        "sick family member",
			payload:     CallerPayload{Relationship: "mother", Situation: "illness", IsSingleParent: false},
			wantCase:    "A",
			wantBenefit: 725,
		},
		{
			name:        "single parent birth",
			payload:     CallerPayload{Relationship: "mother", Situation: "birth", IsSingleParent: true, TotalChildrenAfter: 1.0},
			wantCase:    "E",
			wantBenefit: 500,
		},
		{
			name:        "third child",
			payload:     CallerPayload{Relationship: "mother", Situation: "birth", IsSingleParent: false, TotalChildrenAfter: 3.0},
			wantCase:    "B",
			wantBenefit: 500,
		},
		{
			name:        "string typed fields",
			payload:     CallerPayload{Relationship: "mother", Situation: "birth", IsSingleParent: "False", TotalChildrenAfter: "3"},
			wantCase:    "B",
			wantBenefit: 500,
		},
	}

	f := newFixture(t, nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := f.svc.Evaluate(context.Background(), tt.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCase, resp.Output.Case)
			assert.Equal(t, tt.wantBenefit, resp.Output.MonthlyBenefit)
			assert.True(t, resp.Output.PotentiallyEligible)
			require.NotNil(t, resp.RelationshipValid)
			assert.True(t, *resp.RelationshipValid)
		})
	}
	f.assertCounted(t, int64(len(tests)), 0)
}

func TestService_UnknownRelationshipIsValidationError(t *testing.T) {
	f := newFixture(t, nil, nil)

	resp, err := f.svc.Evaluate(context.Background(), CallerPayload{
		Relationship: "brother", Situation: "birth", IsSingleParent: false,
	})
	require.Error(t, err)
	assert.Nil(t, resp)

	stdErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeValidationFailed, stdErr.Code)
	require.Len(t, stdErr.Validation, 1)
	assert.Equal(t, "/input/relationship", stdErr.Validation[0].Path)
	assert.Contains(t, stdErr.Validation[0].Message, "brother is not one of")

	assert.Contains(t, RenderToolError(err), "  - Field '/input/relationship': brother is not one of")
	f.assertCounted(t, 1, 1)
	assert.Empty(t, f.alerts.codes)
}

func TestService_MalformedInputNeverReachesEngine(t *testing.T) {
	engine := &stubEngine{evaluate: func(context.Context, map[string]interface{}) (map[string]interface{}, error) {
		t.Fatal("engine must not be called")
		return nil, nil
	}}
	f := newFixture(t, NewAdapter(engine), nil)

	_, err := f.svc.Evaluate(context.Background(), CallerPayload{
		Relationship: "mother", Situation: "birth", IsSingleParent: "maybe",
	})

	assert.Equal(t, apperrors.ErrCodeMalformedInput, apperrors.CodeOf(err))
	assert.Equal(t, "Invalid input: invalid boolean string: maybe", RenderToolError(err))
	assert.Equal(t, int64(0), atomic.LoadInt64(&engine.calls))
	f.assertCounted(t, 1, 1)

	require.Len(t, f.audit.records, 1)
	assert.Equal(t, OutcomeMalformedInput, f.audit.records[0].Outcome)
	assert.Empty(t, f.audit.records[0].Input)
}

func TestService_EvaluateJSON_DecodeFailuresAreCounted(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty arguments", raw: ""},
		{name: "wrong field type", raw: `{"relationship":5,"situation":"birth","is_single_parent":true}`},
		{name: "not an object", raw: `[1,2]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &stubEngine{evaluate: func(context.Context, map[string]interface{}) (map[string]interface{}, error) {
				t.Fatal("engine must not be called")
				return nil, nil
			}}
			f := newFixture(t, NewAdapter(engine), nil)

			resp, err := f.svc.EvaluateJSON(context.Background(), []byte(tt.raw))

			assert.Nil(t, resp)
			assert.Equal(t, apperrors.ErrCodeMalformedInput, apperrors.CodeOf(err))
			f.assertCounted(t, 1, 1)
			require.Len(t, f.audit.records, 1)
			assert.Equal(t, OutcomeMalformedInput, f.audit.records[0].Outcome)
		})
	}
}

func TestService_EvaluateJSON_Success(t *testing.T) {
	f := newFixture(t, nil, nil)

	resp, err := f.svc.EvaluateJSON(context.Background(),
		[]byte(`{"relationship":"mother","situation":"adoption","is_single_parent":"false"}`))

	require.NoError(t, err)
	assert.Equal(t, "C", resp.Output.Case)
	f.assertCounted(t, 1, 0)
}

func TestService_OpaqueEngineError(t *testing.T) {
	engine := &stubEngine{evaluate: func(context.Context, map[string]interface{}) (map[string]interface{}, error) {
		return nil, errors.New("graph cycle detected")
	}}
	f := newFixture(t, NewAdapter(engine), nil)

	_, err := f.svc.Evaluate(context.Background(), CallerPayload{Relationship: "x", Situation: "y", IsSingleParent: true})

	assert.Equal(t, apperrors.ErrCodeEngineEvaluationFailed, apperrors.CodeOf(err))
	assert.Equal(t, "Evaluation error: graph cycle detected", RenderToolError(err))
	f.assertCounted(t, 1, 1)
	assert.Equal(t, []apperrors.ErrorCode{apperrors.ErrCodeEngineEvaluationFailed}, f.alerts.codes)
}

func TestService_SerializationError(t *testing.T) {
	engine := &stubEngine{evaluate: func(context.Context, map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"output": map[string]interface{}{"case": "A"}}, nil
	}}
	f := newFixture(t, NewAdapter(engine), nil)

	_, err := f.svc.Evaluate(context.Background(), CallerPayload{Relationship: "x", Situation: "y", IsSingleParent: true})

	assert.Equal(t, apperrors.ErrCodeSerializationFailed, apperrors.CodeOf(err))
	assert.Contains(t, RenderToolError(err), "Evaluation error: Serialization error: ")
	f.assertCounted(t, 1, 1)
	assert.Equal(t, []apperrors.ErrorCode{apperrors.ErrCodeSerializationFailed}, f.alerts.codes)
}

func TestService_PanicIsIsolationFailure(t *testing.T) {
	engine := &stubEngine{evaluate: func(context.Context, map[string]interface{}) (map[string]interface{}, error) {
		panic("corrupted state")
	}}
	f := newFixture(t, NewAdapter(engine), nil)

	_, err := f.svc.Evaluate(context.Background(), CallerPayload{Relationship: "x", Situation: "y", IsSingleParent: true})

	assert.Equal(t, apperrors.ErrCodeIsolationFailure, apperrors.CodeOf(err))
	var pe *workerpool.PanicError
	assert.ErrorAs(t, err, &pe)
	assert.Equal(t, "Internal error: task panicked: corrupted state", RenderToolError(err))
	f.assertCounted(t, 1, 1)
}

func TestService_CancelledCallerGetsIsolationFailure(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var finished int32

	engine := &stubEngine{evaluate: func(ctx context.Context, doc map[string]interface{}) (map[string]interface{}, error) {
		close(started)
		<-release
		// the detached task still sees a live context
		if ctx.Err() == nil {
			atomic.StoreInt32(&finished, 1)
		}
		return nil, errors.New("discarded")
	}}
	f := newFixture(t, NewAdapter(engine), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Evaluate(ctx, CallerPayload{Relationship: "x", Situation: "y", IsSingleParent: true})
		done <- err
	}()

	<-started
	cancel()
	err := <-done

	assert.Equal(t, apperrors.ErrCodeIsolationFailure, apperrors.CodeOf(err))
	assert.ErrorIs(t, err, context.Canceled)
	f.assertCounted(t, 1, 1)

	close(release)
	require.NoError(t, f.pool.Close())
	assert.Equal(t, int32(1), atomic.LoadInt32(&finished))
}

func TestService_ClosedPoolIsIsolationFailure(t *testing.T) {
	f := newFixture(t, nil, nil)
	require.NoError(t, f.pool.Close())

	_, err := f.svc.Evaluate(context.Background(), CallerPayload{Relationship: "mother", Situation: "illness", IsSingleParent: false})

	assert.Equal(t, apperrors.ErrCodeIsolationFailure, apperrors.CodeOf(err))
	assert.ErrorIs(t, err, workerpool.ErrPoolClosed)
}

func TestService_IdempotentAndCached(t *testing.T) {
	cache := &memoryCache{entries: map[string][]byte{}}
	engine := &stubEngine{}
	bundled, err := LoadAdapter("")
	require.NoError(t, err)
	engine.evaluate = bundled.engine.Evaluate

	f := newFixture(t, NewAdapter(engine), func(o *ServiceOptions) { o.Cache = cache })
	payload := CallerPayload{Relationship: "father", Situation: "adoption", IsSingleParent: false, TotalChildrenAfter: "1"}

	first, err := f.svc.Evaluate(context.Background(), payload)
	require.NoError(t, err)
	second, err := f.svc.Evaluate(context.Background(), payload)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "C", second.Output.Case)
	assert.Equal(t, int64(1), atomic.LoadInt64(&engine.calls))
	assert.Len(t, cache.entries, 1)
	f.assertCounted(t, 2, 0)
}

func TestService_IdempotentWithoutCache(t *testing.T) {
	f := newFixture(t, nil, nil)
	payload := CallerPayload{Relationship: "wife", Situation: "accident", IsSingleParent: false}

	first, err := f.svc.Evaluate(context.Background(), payload)
	require.NoError(t, err)
	second, err := f.svc.Evaluate(context.Background(), payload)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestService_CacheFailureDoesNotFailRequest(t *testing.T) {
	cache := &memoryCache{entries: map[string][]byte{}, err: errors.New("redis down")}
	f := newFixture(t, nil, func(o *ServiceOptions) { o.Cache = cache })

	resp, err := f.svc.Evaluate(context.Background(), CallerPayload{Relationship: "mother", Situation: "illness", IsSingleParent: false})
	require.NoError(t, err)
	assert.Equal(t, "A", resp.Output.Case)
	f.assertCounted(t, 1, 0)
}

func TestService_AuditRecord(t *testing.T) {
	f := newFixture(t, nil, nil)

	_, err := f.svc.Evaluate(context.Background(), CallerPayload{Relationship: "mother", Situation: "illness", IsSingleParent: false})
	require.NoError(t, err)

	require.Len(t, f.audit.records, 1)
	rec := f.audit.records[0]
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "2025.1", rec.TableVersion)
	assert.Equal(t, OutcomeEligible, rec.Outcome)
	assert.Equal(t, "A", rec.Case)
	assert.Equal(t, 725, rec.MonthlyBenefit)
	assert.True(t, rec.PotentiallyEligible)
	assert.Empty(t, rec.ErrorCode)
	assert.JSONEq(t, `{"relationship":"mother","situation":"illness","is_single_parent":false}`, string(rec.Input))
}

func TestService_ConcurrentRequestsAreIndependent(t *testing.T) {
	f := newFixture(t, nil, nil)

	payloads := []CallerPayload{
		{Relationship: "mother", Situation: "illness", IsSingleParent: false},
		{Relationship: "brother", Situation: "birth", IsSingleParent: false},
		{Relationship: "mother", Situation: "birth", IsSingleParent: "maybe"},
		{Relationship: "parent", Situation: "multiple_adoption", IsSingleParent: false},
	}

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = f.svc.Evaluate(context.Background(), payloads[i%len(payloads)])
		}(i)
	}
	wg.Wait()

	// two of the four payloads fail
	f.assertCounted(t, 40, 20)
}

func TestNewService_RequiresCollaborators(t *testing.T) {
	_, err := NewService(ServiceOptions{})
	assert.Error(t, err)

	adapter, err := LoadAdapter("")
	require.NoError(t, err)
	_, err = NewService(ServiceOptions{Adapter: adapter})
	assert.Error(t, err)
}

func TestLoadAdapter_BadPathIsTableLoadError(t *testing.T) {
	_, err := LoadAdapter("/nonexistent/table.json")
	assert.Equal(t, apperrors.ErrCodeTableLoadFailed, apperrors.CodeOf(err))
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, OutcomeEligible, OutcomeOf(&EvaluationResponse{Output: Output{PotentiallyEligible: true}}, nil))
	assert.Equal(t, OutcomeNotEligible, OutcomeOf(&EvaluationResponse{}, nil))
	assert.Equal(t, OutcomeValidationFailed, OutcomeOf(nil, apperrors.NewValidationFailedError(nil)))
	assert.Equal(t, OutcomeEngineError, OutcomeOf(nil, errors.New("plain")))
}
