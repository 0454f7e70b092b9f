// internal/common/metrics/metrics.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sink receives the evaluation events. Implementations must be safe for concurrent use
// and must never block the caller.
type Sink interface {
	IncRequests()
	IncErrors()
	ObserveDuration(d time.Duration)
	IncActive()
	DecActive()
}

var DurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0}

// Collector is the Prometheus backed Sink. It also carries the job worker metrics.
type Collector struct {
	requestsTotal   prometheus.Counter
	errorsTotal     prometheus.Counter
	requestDuration prometheus.Histogram
	activeRequests  prometheus.Gauge

	jobsCompleted *prometheus.CounterVec
	jobsFailed    *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	jobsActive    *prometheus.GaugeVec
}

// NewCollector registers every metric on reg. Passing a fresh prometheus.NewRegistry keeps
// instances independent, which tests rely on.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eligibility_requests_total",
			Help: "Total number of unpaid leave eligibility evaluation requests",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eligibility_errors_total",
			Help: "Total number of errors in unpaid leave eligibility evaluations",
		}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "eligibility_request_duration_seconds",
			Help:    "Duration of unpaid leave eligibility evaluation requests in seconds",
			Buckets: DurationBuckets,
		}),
		activeRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eligibility_active_requests",
			Help: "Number of active unpaid leave eligibility evaluation requests",
		}),
		jobsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "worker_jobs_completed_total",
				Help: "Total number of jobs completed by worker",
			},
			[]string{"task_type"},
		),
		jobsFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "worker_jobs_failed_total",
				Help: "Total number of jobs failed by worker",
			},
			[]string{"task_type", "error_code"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "worker_job_duration_seconds",
				Help:    "Duration of job processing in seconds",
				Buckets: DurationBuckets,
			},
			[]string{"task_type"},
		),
		jobsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "worker_jobs_active",
				Help: "Number of active jobs per worker",
			},
			[]string{"task_type"},
		),
	}

	for _, col := range []prometheus.Collector{
		c.requestsTotal, c.errorsTotal, c.requestDuration, c.activeRequests,
		c.jobsCompleted, c.jobsFailed, c.jobDuration, c.jobsActive,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func (c *Collector) IncRequests() { c.requestsTotal.Inc() }

func (c *Collector) IncErrors() { c.errorsTotal.Inc() }

func (c *Collector) ObserveDuration(d time.Duration) { c.requestDuration.Observe(d.Seconds()) }

func (c *Collector) IncActive() { c.activeRequests.Inc() }

func (c *Collector) DecActive() { c.activeRequests.Dec() }

// JobStarted marks a job as in flight and returns the function that records its end.
func (c *Collector) JobStarted(taskType string) func(errorCode string) {
	start := time.Now()
	c.jobsActive.WithLabelValues(taskType).Inc()

	return func(errorCode string) {
		c.jobsActive.WithLabelValues(taskType).Dec()
		c.jobDuration.WithLabelValues(taskType).Observe(time.Since(start).Seconds())
		if errorCode == "" {
			c.jobsCompleted.WithLabelValues(taskType).Inc()
			return
		}
		c.jobsFailed.WithLabelValues(taskType, errorCode).Inc()
	}
}

// Nop discards every event.
type Nop struct{}

func (Nop) IncRequests()                  {}
func (Nop) IncErrors()                    {}
func (Nop) ObserveDuration(time.Duration) {}
func (Nop) IncActive()                    {}
func (Nop) DecActive()                    {}
