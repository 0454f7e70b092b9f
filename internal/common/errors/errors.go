// internal/common/errors/errors.go
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

type ErrorCode string

const (
	// Caller-attributable evaluation failures
	ErrCodeMalformedInput   ErrorCode = "MALFORMED_INPUT"
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	// Engine and table failures
	ErrCodeEngineEvaluationFailed ErrorCode = "ENGINE_EVALUATION_FAILED"
	ErrCodeSerializationFailed    ErrorCode = "SERIALIZATION_FAILED"
	ErrCodeTableLoadFailed        ErrorCode = "TABLE_LOAD_FAILED"

	// Execution context failures
	ErrCodeIsolationFailure ErrorCode = "ISOLATION_FAILURE"
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"

	// Supporting infrastructure
	ErrCodeDatabaseInsertFailed   ErrorCode = "DATABASE_INSERT_FAILED"
	ErrCodeIndexRequestFailed     ErrorCode = "INDEX_REQUEST_FAILED"
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeCacheUnavailable       ErrorCode = "CACHE_UNAVAILABLE"
)

// FieldError identifies one rejected field by JSON pointer path.
type FieldError struct {
	Message string `json:"message"`
	Path    string `json:"path"`
}

type StandardError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	Retryable  bool                   `json:"retryable"`
	Validation []FieldError           `json:"validation_errors,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// Is matches another *StandardError by code, so sentinel values built with New work with errors.Is.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Cause returns the wrapped error, if any.
func (e *StandardError) Cause() error {
	return e.cause
}

// New builds a bare StandardError, mainly for use as an errors.Is target.
func New(code ErrorCode, message string) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// As returns the first StandardError in err's chain.
func As(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// CodeOf returns the code of the first StandardError in err's chain, or "" when there is none.
func CodeOf(err error) ErrorCode {
	if stdErr, ok := As(err); ok {
		return stdErr.Code
	}
	return ""
}

type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	for k, v := range e.ErrorVariables {
		vars[k] = v
	}

	return vars
}

func NewMalformedInputError(field string, value interface{}, reason string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMalformedInput,
		Message:   reason,
		Details:   fmt.Sprintf("field: %s, value: %v", field, value),
		Retryable: false,
		Metadata:  map[string]interface{}{"field": field},
		Timestamp: time.Now().UTC(),
	}
}

func NewValidationFailedError(fieldErrors []FieldError) *StandardError {
	paths := make([]string, len(fieldErrors))
	for i, fe := range fieldErrors {
		paths[i] = fe.Path
	}
	return &StandardError{
		Code:       ErrCodeValidationFailed,
		Message:    "Input rejected by decision table",
		Details:    fmt.Sprintf("fields: %s", strings.Join(paths, ", ")),
		Retryable:  false,
		Validation: fieldErrors,
		Timestamp:  time.Now().UTC(),
	}
}

func NewEngineEvaluationError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeEngineEvaluationFailed,
		Message:   err.Error(),
		Details:   "decision engine evaluation failed",
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewSerializationError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSerializationFailed,
		Message:   fmt.Sprintf("Serialization error: %s", err.Error()),
		Details:   "engine result does not match the response shape",
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewTableLoadError(source string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTableLoadFailed,
		Message:   "Decision table could not be loaded",
		Details:   fmt.Sprintf("source: %s, error: %s", source, err.Error()),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewIsolationFailureError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeIsolationFailure,
		Message:   err.Error(),
		Details:   "isolated evaluation did not complete",
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewInternalError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewDatabaseInsertFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseInsertFailed,
		Message:   "Database insert operation failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewIndexRequestFailedError(index string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeIndexRequestFailed,
		Message:   "Elasticsearch index request failed",
		Details:   fmt.Sprintf("index: %s, error: %s", index, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationSendFailed,
		Message:   "Notification delivery failed",
		Details:   fmt.Sprintf("channel: %s, error: %s", channel, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewCacheUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCacheUnavailable,
		Message:   "Result cache unavailable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewExternalServiceError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "EXTERNAL_SERVICE_ERROR",
		Message:   fmt.Sprintf("External service '%s' error", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewTimeoutError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "TIMEOUT_ERROR",
		Message:   fmt.Sprintf("Service '%s' timeout", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewResourceNotFoundError(service, details string) *StandardError {
	return &StandardError{
		Code:      "RESOURCE_NOT_FOUND",
		Message:   fmt.Sprintf("Resource not found in %s", service),
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewAuthenticationError(details string) *StandardError {
	return &StandardError{
		Code:      "AUTHENTICATION_ERROR",
		Message:   "Authentication failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeMalformedInput:         "ELIGIBILITY_MALFORMED_INPUT",
	ErrCodeValidationFailed:       "ELIGIBILITY_VALIDATION_FAILED",
	ErrCodeEngineEvaluationFailed: "ELIGIBILITY_ENGINE_ERROR",
	ErrCodeSerializationFailed:    "ELIGIBILITY_ENGINE_ERROR",
	ErrCodeTableLoadFailed:        "ELIGIBILITY_ENGINE_ERROR",
	ErrCodeIsolationFailure:       "ELIGIBILITY_UNAVAILABLE",
}

func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseInsertFailed,
		ErrCodeIndexRequestFailed,
		ErrCodeNotificationSendFailed,
		ErrCodeCacheUnavailable:
		return 3

	case ErrCodeIsolationFailure:
		return 2 // the pool may be draining or saturated

	default:
		return 0 // evaluation is deterministic, a retry gives the same answer
	}
}

func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	if len(stdErr.Validation) > 0 {
		vars["validationErrors"] = stdErr.Validation
	}

	return &BPMNError{
		Code:           bpmnCode,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case code == ErrCodeMalformedInput || code == ErrCodeValidationFailed:
		return "INPUT"
	case strings.Contains(codeStr, "ENGINE") || strings.Contains(codeStr, "SERIALIZATION") || strings.Contains(codeStr, "TABLE"):
		return "DECISION"
	case strings.Contains(codeStr, "ISOLATION") || strings.Contains(codeStr, "TIMEOUT"):
		return "RUNTIME"
	case strings.Contains(codeStr, "DATABASE"):
		return "DATABASE"
	case strings.Contains(codeStr, "INDEX"):
		return "SEARCH"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "CACHE"):
		return "CACHE"
	default:
		return "OTHER"
	}
}
