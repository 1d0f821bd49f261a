package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/MJE43/pf-casino/internal/autobet"
	"github.com/MJE43/pf-casino/internal/games"
	"github.com/MJE43/pf-casino/internal/settle"
)

// APIError is the body of every error response.
type APIError struct {
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

// Error implements the error interface
func (e APIError) Error() string {
	return e.Message
}

// Error types
const (
	// Input validation errors
	ErrTypeValidation    = "validation_error"
	ErrTypeInvalidParams = "invalid_params"
	ErrTypeMissingUser   = "missing_user"

	// Game and round errors
	ErrTypeGameNotFound  = "game_not_found"
	ErrTypeRoundNotFound = "round_not_found"
	ErrTypeRoundFinished = "round_finished"

	// Autobet errors
	ErrTypeScript          = "script_error"
	ErrTypeSessionNotFound = "session_not_found"

	// Money errors
	ErrTypeInsufficientFunds = "insufficient_funds"
	ErrTypeConflict          = "conflict"

	// System errors
	ErrTypeTimeout  = "timeout"
	ErrTypeInternal = "internal_error"
)

// ErrorCategory groups error types for logging.
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryGame       ErrorCategory = "game"
	CategoryFunds      ErrorCategory = "funds"
	CategoryConflict   ErrorCategory = "conflict"
	CategoryNotFound   ErrorCategory = "not_found"
	CategorySystem     ErrorCategory = "system"
)

// GetErrorCategory returns the category for an error type
func GetErrorCategory(errType string) ErrorCategory {
	switch errType {
	case ErrTypeValidation, ErrTypeInvalidParams, ErrTypeMissingUser:
		return CategoryValidation
	case ErrTypeGameNotFound, ErrTypeRoundFinished, ErrTypeScript:
		return CategoryGame
	case ErrTypeRoundNotFound, ErrTypeSessionNotFound:
		return CategoryNotFound
	case ErrTypeInsufficientFunds:
		return CategoryFunds
	case ErrTypeConflict:
		return CategoryConflict
	default:
		return CategorySystem
	}
}

// ErrorBuilder helps construct structured errors with context
type ErrorBuilder struct {
	errType   string
	message   string
	context   map[string]any
	requestID string
}

// NewError creates a new error builder
func NewError(errType, message string) *ErrorBuilder {
	return &ErrorBuilder{
		errType: errType,
		message: message,
		context: make(map[string]any),
	}
}

// WithContext adds context information to the error
func (eb *ErrorBuilder) WithContext(key string, value any) *ErrorBuilder {
	eb.context[key] = value
	return eb
}

// WithRequestID adds request ID to the error
func (eb *ErrorBuilder) WithRequestID(requestID string) *ErrorBuilder {
	eb.requestID = requestID
	return eb
}

// WithCause records the underlying error message.
func (eb *ErrorBuilder) WithCause(err error) *ErrorBuilder {
	if err != nil {
		eb.context["cause"] = err.Error()
	}
	return eb
}

// Build creates the final APIError
func (eb *ErrorBuilder) Build() APIError {
	e := APIError{
		Type:      eb.errType,
		Message:   eb.message,
		RequestID: eb.requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if len(eb.context) > 0 {
		e.Context = eb.context
	}
	return e
}

// classify maps a domain error onto a status code and error type.
func classify(err error) (int, string, string) {
	var apiErr APIError
	switch {
	case errors.As(err, &apiErr):
		return statusFor(apiErr.Type), apiErr.Type, apiErr.Message
	case errors.Is(err, games.ErrInvalidParam):
		return http.StatusBadRequest, ErrTypeInvalidParams, err.Error()
	case errors.Is(err, games.ErrUnknownGame):
		return http.StatusNotFound, ErrTypeGameNotFound, err.Error()
	case errors.Is(err, settle.ErrInsufficientFunds):
		return http.StatusPaymentRequired, ErrTypeInsufficientFunds, "insufficient funds"
	case errors.Is(err, settle.ErrConflict):
		return http.StatusConflict, ErrTypeConflict, "balance changed concurrently, try again"
	case errors.Is(err, settle.ErrNotFound):
		return http.StatusNotFound, ErrTypeRoundNotFound, "not found"
	case errors.Is(err, autobet.ErrSessionNotFound):
		return http.StatusNotFound, ErrTypeSessionNotFound, "session not found"
	case errors.Is(err, autobet.ErrScript), errors.Is(err, autobet.ErrNoDobet), errors.Is(err, autobet.ErrScriptTimeout):
		return http.StatusUnprocessableEntity, ErrTypeScript, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrTypeTimeout, "request timed out"
	default:
		return http.StatusInternalServerError, ErrTypeInternal, "internal server error"
	}
}

func statusFor(errType string) int {
	switch errType {
	case ErrTypeValidation, ErrTypeInvalidParams, ErrTypeMissingUser:
		return http.StatusBadRequest
	case ErrTypeGameNotFound, ErrTypeRoundNotFound, ErrTypeSessionNotFound:
		return http.StatusNotFound
	case ErrTypeScript:
		return http.StatusUnprocessableEntity
	case ErrTypeInsufficientFunds:
		return http.StatusPaymentRequired
	case ErrTypeConflict, ErrTypeRoundFinished:
		return http.StatusConflict
	case ErrTypeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// handleError writes err as an APIError and logs it.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status, errType, message := classify(err)
	requestID := middleware.GetReqID(r.Context())

	b := NewError(errType, message).WithRequestID(requestID)
	var apiErr APIError
	if errors.As(err, &apiErr) {
		for k, v := range apiErr.Context {
			b.WithContext(k, v)
		}
	}
	apiErr = b.Build()

	fields := []zap.Field{
		zap.String("type", errType),
		zap.String("category", string(GetErrorCategory(errType))),
		zap.Int("status", status),
		zap.String("request_id", requestID),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", fields...)
	} else {
		s.logger.Debug("request rejected", fields...)
	}

	w.Header().Set("X-Error-Type", errType)
	w.Header().Set("X-Error-Category", string(GetErrorCategory(errType)))
	s.writeJSON(w, status, apiErr)
}

// validation returns a validation APIError for field.
func validation(field, format string, args ...any) APIError {
	return NewError(ErrTypeValidation, fmt.Sprintf(format, args...)).
		WithContext("field", field).
		Build()
}

// recoverer turns panics into 500 responses.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				s.logger.Error("panic recovered",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("path", r.URL.Path),
					zap.Any("panic", rvr),
					zap.Stack("stack"),
				)
				s.handleError(w, r, fmt.Errorf("panic: %v", rvr))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return NewError(ErrTypeValidation, "invalid JSON body").WithCause(err).Build()
	}
	return nil
}
