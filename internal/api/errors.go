package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/afurourrego/dungeonflip/internal/chain"
)

// writeJSONError writes JSON error response
func writeJSONError(w http.ResponseWriter, data any) error {
	return json.NewEncoder(w).Encode(data)
}

// ErrorBuilder helps construct structured errors with context
type ErrorBuilder struct {
	errType   string
	message   string
	code      string
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

// WithCode sets the ledger rejection code
func (eb *ErrorBuilder) WithCode(code string) *ErrorBuilder {
	eb.code = code
	return eb
}

// WithRequestID adds request ID to the error
func (eb *ErrorBuilder) WithRequestID(requestID string) *ErrorBuilder {
	eb.requestID = requestID
	return eb
}

// Build creates the final EngineError
func (eb *ErrorBuilder) Build() EngineError {
	return EngineError{
		Type:      eb.errType,
		Message:   eb.message,
		Code:      eb.code,
		Context:   eb.context,
		RequestID: eb.requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// kindStatus maps a ledger rejection onto an HTTP status and error type.
func kindStatus(kind chain.Kind) (int, string) {
	switch kind {
	case chain.KindInvalidInput:
		return http.StatusBadRequest, ErrTypeInvalidInput
	case chain.KindUnauthorized:
		return http.StatusForbidden, ErrTypeUnauthorized
	case chain.KindInvalidState:
		return http.StatusConflict, ErrTypeInvalidState
	case chain.KindNotFound:
		return http.StatusNotFound, ErrTypeNotFound
	case chain.KindPaused:
		return http.StatusServiceUnavailable, ErrTypePaused
	default:
		return http.StatusInternalServerError, ErrTypeInternal
	}
}

// ErrorHandler provides centralized error handling with logging
type ErrorHandler struct {
	logger *log.Logger
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *log.Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleError processes an error and writes appropriate HTTP response.
// Ledger rejections carry their own status; anything else uses defaultStatus.
func (eh *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error, defaultStatus int) {
	requestID := middleware.GetReqID(r.Context())

	var engineErr EngineError
	if errors.As(err, &engineErr) {
		eh.logError(r, engineErr, defaultStatus)
		eh.writeErrorResponse(w, defaultStatus, engineErr)
		return
	}

	var ce *chain.Error
	if errors.As(err, &ce) {
		status, errType := kindStatus(ce.Kind)
		engineErr := NewError(errType, err.Error()).
			WithCode(ce.Code).
			WithRequestID(requestID).
			WithContext("path", r.URL.Path).
			WithContext("method", r.Method).
			Build()
		eh.logError(r, engineErr, status)
		eh.writeErrorResponse(w, status, engineErr)
		return
	}

	// Convert regular error to EngineError
	engineErr = NewError(ErrTypeInternal, err.Error()).
		WithRequestID(requestID).
		WithContext("path", r.URL.Path).
		WithContext("method", r.Method).
		Build()

	eh.logError(r, engineErr, defaultStatus)
	eh.writeErrorResponse(w, defaultStatus, engineErr)
}

// HandleValidationError handles validation-specific errors
func (eh *ErrorHandler) HandleValidationError(w http.ResponseWriter, r *http.Request, field, message string) {
	requestID := middleware.GetReqID(r.Context())

	engineErr := NewError(ErrTypeValidation, fmt.Sprintf("Validation failed: %s", message)).
		WithRequestID(requestID).
		WithContext("field", field).
		WithContext("path", r.URL.Path).
		WithContext("method", r.Method).
		Build()

	eh.logError(r, engineErr, http.StatusBadRequest)
	eh.writeErrorResponse(w, http.StatusBadRequest, engineErr)
}

// HandleUnauthorized rejects a request that lacks the admin token.
func (eh *ErrorHandler) HandleUnauthorized(w http.ResponseWriter, r *http.Request) {
	engineErr := NewError(ErrTypeUnauthorized, "missing or invalid admin token").
		WithRequestID(middleware.GetReqID(r.Context())).
		WithContext("path", r.URL.Path).
		Build()
	eh.logError(r, engineErr, http.StatusUnauthorized)
	eh.writeErrorResponse(w, http.StatusUnauthorized, engineErr)
}

// logError logs the error with appropriate level and context
func (eh *ErrorHandler) logError(r *http.Request, engineErr EngineError, status int) {
	category := GetErrorCategory(engineErr.Type)

	logLevel := "ERROR"
	if category == CategoryValidation || category == CategoryLedger {
		logLevel = "WARN"
	}

	context := make(map[string]any, len(engineErr.Context))
	for key, value := range engineErr.Context {
		// Never log raw seeds - only hashes
		if key == "seed" {
			continue
		}
		context[key] = value
	}

	eh.logger.Printf(
		"error_occurred level=%s type=%s category=%s code=%s status=%d request_id=%s path=%s message=%q context=%+v",
		logLevel, engineErr.Type, category, engineErr.Code, status, engineErr.RequestID, r.URL.Path, engineErr.Message, context,
	)
}

// writeErrorResponse writes the error response as JSON
func (eh *ErrorHandler) writeErrorResponse(w http.ResponseWriter, status int, engineErr EngineError) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.Header().Set("X-Error-Type", engineErr.Type)
	w.Header().Set("X-Error-Category", string(GetErrorCategory(engineErr.Type)))
	if engineErr.Code != "" {
		w.Header().Set("X-Error-Code", engineErr.Code)
	}
	w.WriteHeader(status)

	if err := writeJSONError(w, engineErr); err != nil {
		eh.logger.Printf("error_write_failed request_id=%s err=%v", engineErr.RequestID, err)
	}
}

// RecoveryHandler provides panic recovery with structured error logging
func (eh *ErrorHandler) RecoveryHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				requestID := middleware.GetReqID(r.Context())

				eh.logger.Printf(
					"panic_recovered request_id=%s path=%s method=%s panic=%v",
					requestID, r.URL.Path, r.Method, rvr,
				)

				engineErr := NewError(ErrTypeInternal, "Internal server error").
					WithRequestID(requestID).
					WithContext("panic", fmt.Sprintf("%v", rvr)).
					WithContext("path", r.URL.Path).
					WithContext("method", r.Method).
					Build()

				eh.writeErrorResponse(w, http.StatusInternalServerError, engineErr)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
