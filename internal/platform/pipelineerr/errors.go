// Package errors provides the pipeline's structured error taxonomy: a
// ServiceError carries a stable code, an HTTP-equivalent status for the
// admin surface, and a Retryable flag that internal/pipeline/retrypolicy
// uses to decide whether a failed run stage is worth retrying.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code for a pipeline run failure.
type ErrorCode string

const (
	// Fetch errors (1xxx): talking to an exchange source.
	ErrCodeSourceUnreachable ErrorCode = "FETCH_1001"
	ErrCodeSourceHTTPStatus  ErrorCode = "FETCH_1002"
	ErrCodeSourceTimeout     ErrorCode = "FETCH_1003"
	ErrCodeDecompressFailed  ErrorCode = "FETCH_1004"

	// Parse errors (2xxx): turning raw bytes into a Frame.
	ErrCodeMalformedRecord  ErrorCode = "PARSE_2001"
	ErrCodeSchemaMismatch   ErrorCode = "PARSE_2002"
	ErrCodeUnknownSymbol    ErrorCode = "PARSE_2003"
	ErrCodeUnsupportedShape ErrorCode = "PARSE_2004"

	// Validation errors (3xxx): business-rule rejections.
	ErrCodeValidationFailed ErrorCode = "VALID_3001"
	ErrCodeOutOfRange       ErrorCode = "VALID_3002"

	// Idempotency/dedup errors (4xxx).
	ErrCodeAlreadyProcessed ErrorCode = "IDEMP_4001"
	ErrCodeMarkerConflict   ErrorCode = "IDEMP_4002"

	// Circuit breaker / retry errors (5xxx).
	ErrCodeCircuitOpen     ErrorCode = "CB_5001"
	ErrCodeRetriesExceeded ErrorCode = "CB_5002"

	// Warehouse/storage errors (6xxx).
	ErrCodeWarehouseLoadFailed ErrorCode = "WH_6001"
	ErrCodeLakeWriteFailed     ErrorCode = "WH_6002"

	// Internal/config errors (7xxx).
	ErrCodeInternal    ErrorCode = "SVC_7001"
	ErrCodeConfigError ErrorCode = "SVC_7002"
	ErrCodeTimeout     ErrorCode = "SVC_7003"
)

// ServiceError is a structured pipeline error with a stable code, an
// HTTP-equivalent status for the admin/trigger API, and a Retryable flag
// consumed by internal/pipeline/retrypolicy.
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Retryable  bool                   `json:"retryable"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails adds additional structured context to the error.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a non-retryable ServiceError.
func New(code ErrorCode, message string, httpStatus int) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus}
}

// Wrap creates a non-retryable ServiceError wrapping an underlying cause.
func Wrap(code ErrorCode, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

// WrapRetryable creates a ServiceError marked retryable, wrapping an
// underlying cause.
func WrapRetryable(code ErrorCode, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus, Retryable: true, Err: err}
}

// Fetch errors

func SourceUnreachable(sourceName string, err error) *ServiceError {
	return WrapRetryable(ErrCodeSourceUnreachable, "source unreachable", http.StatusBadGateway, err).
		WithDetails("source", sourceName)
}

func SourceHTTPStatus(sourceName string, statusCode int) *ServiceError {
	e := New(ErrCodeSourceHTTPStatus, "source returned unexpected HTTP status", http.StatusBadGateway).
		WithDetails("source", sourceName).
		WithDetails("status_code", statusCode)
	// 5xx and 429 from an upstream exchange are transient; 4xx (other than
	// 429) usually mean the request itself is wrong and retrying won't help.
	e.Retryable = statusCode == http.StatusTooManyRequests || statusCode >= 500
	return e
}

func SourceTimeout(sourceName string) *ServiceError {
	e := New(ErrCodeSourceTimeout, "source request timed out", http.StatusGatewayTimeout).
		WithDetails("source", sourceName)
	e.Retryable = true
	return e
}

func DecompressFailed(sourceName string, err error) *ServiceError {
	return Wrap(ErrCodeDecompressFailed, "failed to decompress source payload", http.StatusUnprocessableEntity, err).
		WithDetails("source", sourceName)
}

// Parse errors

func MalformedRecord(sourceName string, line int, reason string) *ServiceError {
	return New(ErrCodeMalformedRecord, "malformed record", http.StatusUnprocessableEntity).
		WithDetails("source", sourceName).
		WithDetails("line", line).
		WithDetails("reason", reason)
}

func SchemaMismatch(sourceName, expected, got string) *ServiceError {
	return New(ErrCodeSchemaMismatch, "unexpected column schema", http.StatusUnprocessableEntity).
		WithDetails("source", sourceName).
		WithDetails("expected", expected).
		WithDetails("got", got)
}

func UnknownSymbol(symbol string) *ServiceError {
	return New(ErrCodeUnknownSymbol, "symbol not present in reference data", http.StatusUnprocessableEntity).
		WithDetails("symbol", symbol)
}

func UnsupportedShape(sourceName, shape string) *ServiceError {
	return New(ErrCodeUnsupportedShape, "unsupported payload shape", http.StatusUnprocessableEntity).
		WithDetails("source", sourceName).
		WithDetails("shape", shape)
}

// Validation errors

func ValidationFailed(rule, field string) *ServiceError {
	return New(ErrCodeValidationFailed, "validation rule failed", http.StatusUnprocessableEntity).
		WithDetails("rule", rule).
		WithDetails("field", field)
}

func OutOfRange(field string, minValue, maxValue interface{}) *ServiceError {
	return New(ErrCodeOutOfRange, "value out of range", http.StatusUnprocessableEntity).
		WithDetails("field", field).
		WithDetails("min", minValue).
		WithDetails("max", maxValue)
}

// Idempotency/dedup errors

func AlreadyProcessed(key string) *ServiceError {
	return New(ErrCodeAlreadyProcessed, "idempotency key already processed", http.StatusConflict).
		WithDetails("key", key)
}

func MarkerConflict(key string) *ServiceError {
	return New(ErrCodeMarkerConflict, "concurrent run holds the idempotency marker", http.StatusConflict).
		WithDetails("key", key)
}

// Circuit breaker / retry errors

func CircuitOpen(sourceName string) *ServiceError {
	return New(ErrCodeCircuitOpen, "circuit breaker open for source", http.StatusServiceUnavailable).
		WithDetails("source", sourceName)
}

func RetriesExceeded(attempts int, err error) *ServiceError {
	return Wrap(ErrCodeRetriesExceeded, "retries exceeded", http.StatusServiceUnavailable, err).
		WithDetails("attempts", attempts)
}

// Warehouse/storage errors

func WarehouseLoadFailed(table string, err error) *ServiceError {
	return WrapRetryable(ErrCodeWarehouseLoadFailed, "warehouse load failed", http.StatusBadGateway, err).
		WithDetails("table", table)
}

func LakeWriteFailed(path string, err error) *ServiceError {
	return WrapRetryable(ErrCodeLakeWriteFailed, "columnar lake write failed", http.StatusInternalServerError, err).
		WithDetails("path", path)
}

// Internal/config errors

func Internal(message string, err error) *ServiceError {
	return Wrap(ErrCodeInternal, message, http.StatusInternalServerError, err)
}

func ConfigError(key string, err error) *ServiceError {
	return Wrap(ErrCodeConfigError, "invalid configuration", http.StatusInternalServerError, err).
		WithDetails("key", key)
}

func Timeout(operation string) *ServiceError {
	return New(ErrCodeTimeout, "operation timed out", http.StatusGatewayTimeout).
		WithDetails("operation", operation)
}

// Helper functions

// IsServiceError reports whether err is (or wraps) a *ServiceError.
func IsServiceError(err error) bool {
	var serviceErr *ServiceError
	return errors.As(err, &serviceErr)
}

// GetServiceError extracts a *ServiceError from an error chain, or nil.
func GetServiceError(err error) *ServiceError {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	return nil
}

// GetHTTPStatus returns the HTTP-equivalent status code for an error,
// defaulting to 500 for errors that are not a *ServiceError.
func GetHTTPStatus(err error) int {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsRetryable reports whether err (or a wrapped *ServiceError) indicates a
// transient failure worth retrying. Errors that are not a *ServiceError are
// treated as retryable, matching the pipeline's fail-open stance on
// classifying unknown errors from fetch/warehouse stages.
func IsRetryable(err error) bool {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.Retryable
	}
	return true
}
