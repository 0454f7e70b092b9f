// internal/eligibility/service.go
package eligibility

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"eligibility-engine/internal/audit"
	apperrors "eligibility-engine/internal/common/errors"
	"eligibility-engine/internal/common/logger"
	"eligibility-engine/internal/common/metrics"
	"eligibility-engine/internal/common/observability"
	"eligibility-engine/internal/common/workerpool"
)

// ResultCache stores encoded responses by key.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

type AuditSink interface {
	Dispatch(rec audit.Record)
}

// Alerter is told about failures that point at a defective table or engine. It must not block.
type Alerter interface {
	Alert(ctx context.Context, err *apperrors.StandardError)
}

type Telemetry interface {
	Tracer() trace.Tracer
	RecordEvaluation(ctx context.Context, outcome string, duration time.Duration)
}

type ServiceOptions struct {
	Adapter   *Adapter
	Pool      *workerpool.Pool
	Metrics   metrics.Sink
	Logger    logger.Logger
	Extractor *Extractor
	Mapper    *Mapper

	// Optional collaborators.
	Cache     ResultCache
	Audit     AuditSink
	Alerter   Alerter
	Telemetry Telemetry
}

// Service runs the evaluation pipeline for one request at a time per caller goroutine.
type Service struct {
	adapter   *Adapter
	pool      *workerpool.Pool
	metrics   metrics.Sink
	logger    logger.Logger
	extractor *Extractor
	mapper    *Mapper
	cache     ResultCache
	audit     AuditSink
	alerter   Alerter
	telemetry Telemetry
}

func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Adapter == nil {
		return nil, errors.New("eligibility service requires an adapter")
	}
	if opts.Pool == nil {
		return nil, errors.New("eligibility service requires a worker pool")
	}

	s := &Service{
		adapter:   opts.Adapter,
		pool:      opts.Pool,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		extractor: opts.Extractor,
		mapper:    opts.Mapper,
		cache:     opts.Cache,
		audit:     opts.Audit,
		alerter:   opts.Alerter,
		telemetry: opts.Telemetry,
	}

	if s.metrics == nil {
		s.metrics = metrics.Nop{}
	}
	if s.logger == nil {
		s.logger = logger.NewNoOpLogger()
	}
	s.logger = s.logger.WithFields(map[string]interface{}{"component": "eligibility"})
	if s.extractor == nil {
		s.extractor = NewExtractor()
	}
	if s.mapper == nil {
		m, err := NewMapper()
		if err != nil {
			return nil, fmt.Errorf("create result mapper: %w", err)
		}
		s.mapper = m
	}
	if s.telemetry == nil {
		s.telemetry = observability.NewNoop()
	}

	return s, nil
}

func (s *Service) TableVersion() string {
	return s.adapter.TableVersion()
}

// Evaluate runs one request through normalization, the isolated engine call and result
// mapping. Every outcome counts one request; every failure counts one error.
func (s *Service) Evaluate(ctx context.Context, payload CallerPayload) (*EvaluationResponse, error) {
	return s.observe(ctx, func(ctx context.Context) (*CanonicalRequest, *EvaluationResponse, error) {
		return s.evaluate(ctx, payload)
	})
}

// EvaluateJSON decodes a flat JSON payload and evaluates it. A payload that does not decode
// is counted like any other failed request.
func (s *Service) EvaluateJSON(ctx context.Context, raw []byte) (*EvaluationResponse, error) {
	return s.observe(ctx, func(ctx context.Context) (*CanonicalRequest, *EvaluationResponse, error) {
		payload, err := DecodePayload(raw)
		if err != nil {
			return nil, nil, err
		}
		return s.evaluate(ctx, payload)
	})
}

func (s *Service) observe(ctx context.Context, run func(context.Context) (*CanonicalRequest, *EvaluationResponse, error)) (*EvaluationResponse, error) {
	start := time.Now()
	s.metrics.IncRequests()
	s.metrics.IncActive()

	ctx, span := s.telemetry.Tracer().Start(ctx, "eligibility.evaluate")
	defer span.End()

	req, resp, err := run(ctx)
	duration := time.Since(start)

	if err != nil {
		s.metrics.IncErrors()
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperrors.CodeOf(err)))
	}
	s.metrics.ObserveDuration(duration)
	s.metrics.DecActive()

	outcome := OutcomeOf(resp, err)
	span.SetAttributes(attribute.String("eligibility.outcome", outcome))
	s.telemetry.RecordEvaluation(ctx, outcome, duration)
	s.report(ctx, req, resp, err, outcome, duration)

	return resp, err
}

func (s *Service) evaluate(ctx context.Context, payload CallerPayload) (*CanonicalRequest, *EvaluationResponse, error) {
	req, err := Normalize(payload)
	if err != nil {
		return nil, nil, err
	}

	key := s.cacheKey(req)
	if resp, ok := s.cached(ctx, key); ok {
		return &req, resp, nil
	}

	doc, err := s.evaluateIsolated(ctx, req)
	if err != nil {
		return &req, nil, err
	}

	resp, err := s.mapper.Map(doc)
	if err != nil {
		return &req, nil, err
	}

	s.store(ctx, key, resp)
	return &req, resp, nil
}

type engineResult struct {
	doc map[string]interface{}
	err error
}

// evaluateIsolated runs the engine on the pool. The task runs detached from ctx so that a
// caller who gives up does not abort an evaluation already in progress.
func (s *Service) evaluateIsolated(ctx context.Context, req CanonicalRequest) (map[string]interface{}, error) {
	detached := context.WithoutCancel(ctx)

	res, err := workerpool.Do(ctx, s.pool, func(context.Context) (engineResult, error) {
		taskCtx, span := s.telemetry.Tracer().Start(detached, "decision.evaluate")
		defer span.End()

		doc, err := s.adapter.Evaluate(taskCtx, req)
		if err != nil {
			span.RecordError(err)
		}
		return engineResult{doc: doc, err: err}, nil
	})
	if err != nil {
		s.logger.Warn("isolated evaluation did not complete", map[string]interface{}{"error": err})
		return nil, apperrors.NewIsolationFailureError(err)
	}

	if res.err == nil {
		return res.doc, nil
	}

	if errs, ok := s.extractor.Extract(res.err); ok {
		return nil, s.mapper.ValidationFailure(errs)
	}
	return nil, res.err
}

func (s *Service) cacheKey(req CanonicalRequest) string {
	if s.cache == nil {
		return ""
	}
	raw, err := json.Marshal(req)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("eligibility:%s:%s", s.adapter.TableVersion(), hex.EncodeToString(sum[:]))
}

func (s *Service) cached(ctx context.Context, key string) (*EvaluationResponse, bool) {
	if key == "" {
		return nil, false
	}

	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("result cache read failed", map[string]interface{}{"error": err, "key": key})
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var resp EvaluationResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		s.logger.Warn("discarding undecodable cache entry", map[string]interface{}{"error": err, "key": key})
		return nil, false
	}
	return &resp, true
}

func (s *Service) store(ctx context.Context, key string, resp *EvaluationResponse) {
	if key == "" {
		return
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw); err != nil {
		s.logger.Warn("result cache write failed", map[string]interface{}{"error": err, "key": key})
	}
}

func (s *Service) report(ctx context.Context, req *CanonicalRequest, resp *EvaluationResponse, err error, outcome string, duration time.Duration) {
	fields := map[string]interface{}{
		"outcome":    outcome,
		"durationMs": duration.Milliseconds(),
	}

	if err != nil {
		stdErr, _ := apperrors.As(err)
		fields["errorCode"] = string(apperrors.CodeOf(err))
		s.logger.Info("evaluation failed", fields)

		if stdErr != nil && s.alerter != nil &&
			(outcome == OutcomeSerializationError || outcome == OutcomeEngineError) {
			s.alerter.Alert(ctx, stdErr)
		}
	} else {
		fields["case"] = resp.Output.Case
		s.logger.Debug("evaluation completed", fields)
	}

	if s.audit == nil {
		return
	}

	rec := audit.Record{
		ID:           uuid.New().String(),
		TableVersion: s.adapter.TableVersion(),
		Outcome:      outcome,
		ErrorCode:    string(apperrors.CodeOf(err)),
		DurationMs:   duration.Milliseconds(),
		CreatedAt:    time.Now().UTC(),
	}
	if req != nil {
		if raw, mErr := json.Marshal(req.Input); mErr == nil {
			rec.Input = raw
		}
	}
	if resp != nil {
		rec.Case = resp.Output.Case
		rec.MonthlyBenefit = resp.Output.MonthlyBenefit
		rec.PotentiallyEligible = resp.Output.PotentiallyEligible
	}
	s.audit.Dispatch(rec)
}
