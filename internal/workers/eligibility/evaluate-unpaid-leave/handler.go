// internal/workers/eligibility/evaluate-unpaid-leave/handler.go
package evaluateunpaidleave

import (
	"context"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "eligibility-engine/internal/common/errors"
	"eligibility-engine/internal/common/logger"
	"eligibility-engine/internal/eligibility"
)

const (
	TaskType = "evaluate-unpaid-leave"
)

type Evaluator interface {
	EvaluateJSON(ctx context.Context, raw []byte) (*eligibility.EvaluationResponse, error)
}

// JobMetrics records job lifecycles; the returned func is called with "" on success.
type JobMetrics interface {
	JobStarted(taskType string) func(errorCode string)
}

type Handler struct {
	config    *Config
	evaluator Evaluator
	metrics   JobMetrics
	errors    *apperrors.ErrorHandler
	logger    logger.Logger
}

func NewHandler(config *Config, evaluator Evaluator, metrics JobMetrics, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:    config,
		evaluator: evaluator,
		metrics:   metrics,
		errors:    apperrors.NewErrorHandler(log),
		logger:    log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	done := func(string) {}
	if h.metrics != nil {
		done = h.metrics.JobStarted(TaskType)
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.Execute(ctx, []byte(job.Variables))
	if err != nil {
		done(string(apperrors.CodeOf(err)))
		h.errors.HandleJobError(ctx, client, job, err)
		return
	}

	if err := h.completeJob(ctx, client, job, output); err != nil {
		done("COMPLETE_FAILED")
		return
	}
	done("")
}

// Execute evaluates the flat payload found in the job variables.
func (h *Handler) Execute(ctx context.Context, variables []byte) (*Output, error) {
	resp, err := h.evaluator.EvaluateJSON(ctx, variables)
	if err != nil {
		return nil, err
	}
	return &Output{Eligibility: resp}, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) error {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}

	h.logger.Info("job completed", map[string]interface{}{
		"jobKey": job.Key,
		"case":   output.Eligibility.Output.Case,
	})
	return nil
}
