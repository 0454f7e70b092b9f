// internal/common/camunda/worker.go
package camunda

import (
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"

	"eligibility-engine/internal/common/config"
	"eligibility-engine/internal/common/logger"
)

// JobHandler processes one activated job and completes, fails or throws on it.
type JobHandler func(client worker.JobClient, job entities.Job)

// Worker is one open job worker subscription.
type Worker struct {
	worker   worker.JobWorker
	logger   logger.Logger
	taskType string
}

// StartWorker opens a job worker for taskType. A zero MaxJobsActive or Timeout in wcfg falls
// back to the camunda section defaults.
func StartWorker(client zbc.Client, taskType string, wcfg config.WorkerConfig, defaults config.CamundaConfig, handler JobHandler, log logger.Logger) *Worker {
	maxJobs := wcfg.MaxJobsActive
	if maxJobs <= 0 {
		maxJobs = defaults.MaxJobsActive
	}
	timeout := wcfg.Timeout
	if timeout <= 0 {
		timeout = defaults.Timeout
	}

	step := client.NewJobWorker().
		JobType(taskType).
		Handler(worker.JobHandler(handler))
	if maxJobs > 0 {
		step = step.MaxJobsActive(maxJobs)
	}
	if timeout > 0 {
		step = step.Timeout(config.GetDuration(timeout))
	}

	log = log.WithFields(map[string]interface{}{"taskType": taskType})
	log.Info("worker started", map[string]interface{}{
		"maxJobsActive": maxJobs,
		"timeout_ms":    timeout,
	})

	return &Worker{worker: step.Open(), logger: log, taskType: taskType}
}

// Stop closes the subscription and waits for in-flight jobs.
func (w *Worker) Stop() {
	w.logger.Info("stopping worker", nil)
	w.worker.Close()
	w.worker.AwaitClose()
}
