package apierr

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/onnwee/bhtree/internal/logger"
)

// ErrorCode is the stable machine-readable part of an error response. The
// prefix names the subsystem that produced it.
type ErrorCode string

const (
	// LAYOUT_ - Layout computation errors
	ErrLayoutTimeout       ErrorCode = "LAYOUT_TIMEOUT"
	ErrLayoutFailed        ErrorCode = "LAYOUT_FAILED"
	ErrLayoutTooLarge      ErrorCode = "LAYOUT_TOO_LARGE"
	ErrLayoutInvalidParams ErrorCode = "LAYOUT_INVALID_PARAMS"

	// TREE_ - Quadtree build and query errors
	ErrTreeInvalidBoundary ErrorCode = "TREE_INVALID_BOUNDARY"
	ErrTreeInvalidTheta    ErrorCode = "TREE_INVALID_THETA"
	ErrTreeTooLarge        ErrorCode = "TREE_TOO_LARGE"

	// SYSTEM_ - System and server errors
	ErrSystemInternal    ErrorCode = "SYSTEM_INTERNAL"
	ErrSystemDatabase    ErrorCode = "SYSTEM_DATABASE"
	ErrSystemUnavailable ErrorCode = "SYSTEM_UNAVAILABLE"
	ErrSystemTimeout     ErrorCode = "SYSTEM_TIMEOUT"

	// VALIDATION_ - Request validation errors
	ErrValidationInvalidJSON   ErrorCode = "VALIDATION_INVALID_JSON"
	ErrValidationInvalidFormat ErrorCode = "VALIDATION_INVALID_FORMAT"
	ErrValidationMissingField  ErrorCode = "VALIDATION_MISSING_FIELD"
	ErrValidationInvalidValue  ErrorCode = "VALIDATION_INVALID_VALUE"
	ErrValidationBodyTooLarge  ErrorCode = "VALIDATION_BODY_TOO_LARGE"

	// RESOURCE_ - Resource errors
	ErrResourceNotFound ErrorCode = "RESOURCE_NOT_FOUND"

	// RATE_LIMIT_ - Rate limiting errors
	ErrRateLimitGlobal ErrorCode = "RATE_LIMIT_GLOBAL"
	ErrRateLimitIP     ErrorCode = "RATE_LIMIT_IP"
)

// Error is the body of every non-2xx JSON response.
type Error struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	status    int                    // HTTP status code (not serialized)
	retry     time.Duration
}

// ErrorResponse is the top-level error response wrapper
type ErrorResponse struct {
	Error *Error `json:"error"`
}

func New(code ErrorCode, message string, status int) *Error {
	return &Error{
		Code:    code,
		Message: message,
		status:  status,
	}
}

// WithDetails adds details to the error
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

// WithRequestID adds a request ID to the error
func (e *Error) WithRequestID(requestID string) *Error {
	e.RequestID = requestID
	return e
}

// WithRetryAfter tells the client when to try again. WriteError sends it as
// a Retry-After header rounded up to whole seconds.
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	e.retry = d
	return e
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Status() int {
	return e.status
}

// WriteError encodes err as {"error": {...}} with its status code.
func WriteError(w http.ResponseWriter, err *Error) {
	w.Header().Set("Content-Type", "application/json")
	if err.retry > 0 {
		secs := int((err.retry + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	w.WriteHeader(err.Status())
	json.NewEncoder(w).Encode(ErrorResponse{Error: err})
}

func orDefault(message, fallback string) string {
	if message == "" {
		return fallback
	}
	return message
}

func LayoutTimeout(message string) *Error {
	return New(ErrLayoutTimeout, orDefault(message, "Layout computation timed out. Try fewer nodes or iterations."), http.StatusRequestTimeout)
}

func LayoutFailed(message string) *Error {
	return New(ErrLayoutFailed, orDefault(message, "Layout computation failed"), http.StatusInternalServerError)
}

// LayoutTooLarge rejects requests above MaxNodes, MaxEdges or MaxIterations.
func LayoutTooLarge(message string) *Error {
	return New(ErrLayoutTooLarge, orDefault(message, "Layout request exceeds the configured limits"), http.StatusRequestEntityTooLarge)
}

func LayoutInvalidParams(message string) *Error {
	return New(ErrLayoutInvalidParams, orDefault(message, "Invalid layout parameters"), http.StatusBadRequest)
}

// TreeInvalidBoundary rejects a boundary with a non-finite center or a
// negative half-size.
func TreeInvalidBoundary(message string) *Error {
	return New(ErrTreeInvalidBoundary, orDefault(message, "Boundary must have finite coordinates and a positive size"), http.StatusBadRequest)
}

func TreeInvalidTheta() *Error {
	return New(ErrTreeInvalidTheta, "Theta must be greater than zero", http.StatusBadRequest).
		WithDetails(map[string]interface{}{"field": "theta"})
}

func TreeTooLarge(limit int) *Error {
	return New(ErrTreeTooLarge, "Too many particles", http.StatusRequestEntityTooLarge).
		WithDetails(map[string]interface{}{"limit": limit})
}

func SystemInternal(message string) *Error {
	return New(ErrSystemInternal, orDefault(message, "Internal server error"), http.StatusInternalServerError)
}

func SystemDatabase(message string) *Error {
	return New(ErrSystemDatabase, orDefault(message, "Database error"), http.StatusInternalServerError)
}

// SystemUnavailable is returned when a dependency is missing or its circuit
// breaker is open.
func SystemUnavailable(message string) *Error {
	return New(ErrSystemUnavailable, orDefault(message, "Service unavailable"), http.StatusServiceUnavailable)
}

func SystemTimeout(message string) *Error {
	return New(ErrSystemTimeout, orDefault(message, "Request timeout"), http.StatusRequestTimeout)
}

func ValidationInvalidJSON() *Error {
	return New(ErrValidationInvalidJSON, "Invalid JSON request body", http.StatusBadRequest)
}

func ValidationInvalidFormat(message string) *Error {
	return New(ErrValidationInvalidFormat, orDefault(message, "Invalid request format"), http.StatusBadRequest)
}

func ValidationMissingField(field string) *Error {
	return New(ErrValidationMissingField, "Missing required field: "+field, http.StatusBadRequest).
		WithDetails(map[string]interface{}{"field": field})
}

// ValidationInvalidValue names the offending field in Details.
func ValidationInvalidValue(field string, message string) *Error {
	return New(ErrValidationInvalidValue, orDefault(message, "Invalid value for field: "+field), http.StatusBadRequest).
		WithDetails(map[string]interface{}{"field": field})
}

func ValidationBodyTooLarge(limit int64) *Error {
	return New(ErrValidationBodyTooLarge, "Request body too large", http.StatusRequestEntityTooLarge).
		WithDetails(map[string]interface{}{"limit_bytes": limit})
}

func ResourceNotFound(resourceType string) *Error {
	return New(ErrResourceNotFound, resourceType+" not found", http.StatusNotFound).
		WithDetails(map[string]interface{}{"resource_type": resourceType})
}

func RateLimitGlobal() *Error {
	return New(ErrRateLimitGlobal, "Rate limit exceeded - too many requests globally", http.StatusTooManyRequests)
}

func RateLimitIP() *Error {
	return New(ErrRateLimitIP, "Rate limit exceeded - too many requests from your IP", http.StatusTooManyRequests)
}

// GetRequestID extracts the request ID from the context
func GetRequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(logger.RequestIDKey).(string); ok {
		return reqID
	}
	return ""
}

// WriteErrorWithContext writes a structured error response with request ID from context
func WriteErrorWithContext(w http.ResponseWriter, r *http.Request, err *Error) {
	if reqID := GetRequestID(r.Context()); reqID != "" {
		err = err.WithRequestID(reqID)
	}
	WriteError(w, err)
}
