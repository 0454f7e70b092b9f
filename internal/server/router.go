// internal/server/router.go
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "eligibility-engine/internal/common/errors"
	"eligibility-engine/internal/common/logger"
	"eligibility-engine/internal/eligibility"
	"eligibility-engine/pkg/registry"
)

const maxRequestBody = 1 << 20

type Evaluator interface {
	EvaluateJSON(ctx context.Context, raw []byte) (*eligibility.EvaluationResponse, error)
}

// ReadinessCheck is one backend probed by /ready.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Options struct {
	Evaluator          Evaluator
	MCP                http.Handler
	Registry           *registry.ToolRegistry
	Gatherer           prometheus.Gatherer
	Checks             []ReadinessCheck
	RateLimitPerMinute int
	RequestTimeout     time.Duration
	Logger             logger.Logger
}

type handlers struct {
	evaluator Evaluator
	registry  *registry.ToolRegistry
	checks    []ReadinessCheck
	logger    logger.Logger
}

func NewRouter(opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	log = log.WithFields(map[string]interface{}{"component": "http"})

	reg := opts.Registry
	if reg == nil {
		reg = registry.Default()
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	h := &handlers{evaluator: opts.Evaluator, registry: reg, checks: opts.Checks, logger: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/health", h.health)
	r.Get("/ready", h.ready)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/api/v1/tools", h.listTools)

	r.Group(func(r chi.Router) {
		if opts.RateLimitPerMinute > 0 {
			r.Use(httprate.LimitByIP(opts.RateLimitPerMinute, time.Minute))
		}
		if opts.RequestTimeout > 0 {
			r.Use(middleware.Timeout(opts.RequestTimeout))
		}

		r.Post("/api/v1/evaluate", h.evaluate)
		if opts.MCP != nil {
			r.Handle("/mcp", opts.MCP)
		}
	})

	return r
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[c.Name] = err.Error()
			h.logger.Warn("readiness check failed", map[string]interface{}{"check": c.Name, "error": err.Error()})
			continue
		}
		results[c.Name] = "ok"
	}

	writeJSON(w, status, map[string]interface{}{
		"ready":  status == http.StatusOK,
		"checks": results,
	})
}

func (h *handlers) listTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.registry)
}

func (h *handlers) evaluate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		h.writeError(w, r, apperrors.NewMalformedInputError("body", "", "failed to read request body"))
		return
	}

	resp, err := h.evaluator.EvaluateJSON(r.Context(), body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// StatusFor maps an evaluation error to the HTTP status returned for it.
func StatusFor(err error) int {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrCodeMalformedInput:
		return http.StatusBadRequest
	case apperrors.ErrCodeValidationFailed:
		return http.StatusUnprocessableEntity
	case apperrors.ErrCodeIsolationFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	stdErr, ok := apperrors.As(err)
	if !ok {
		stdErr = apperrors.NewInternalError(err)
	}

	status := StatusFor(stdErr)
	if status >= http.StatusInternalServerError {
		h.logger.Error("evaluation request failed", map[string]interface{}{
			"requestId": middleware.GetReqID(r.Context()),
			"errorCode": string(stdErr.Code),
			"error":     err.Error(),
		})
	}

	writeJSON(w, status, map[string]interface{}{"error": stdErr})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
