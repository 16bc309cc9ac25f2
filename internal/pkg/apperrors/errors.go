package apperrors

import (
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrContractNotFound      ErrorType = "CONTRACT_NOT_FOUND"
	ErrAuditRecordNotFound   ErrorType = "AUDIT_RECORD_NOT_FOUND"
	ErrIdempotencyConflict   ErrorType = "IDEMPOTENCY_CONFLICT"
	ErrAuditPersistFailure   ErrorType = "AUDIT_PERSIST_FAILURE"
	ErrEmbeddingUnavailable  ErrorType = "EMBEDDING_UNAVAILABLE"
	ErrSimilarityUnavailable ErrorType = "SIMILARITY_UNAVAILABLE"
	ErrChainCorruption       ErrorType = "CHAIN_CORRUPTION"
	ErrAuthFailed            ErrorType = "AUTH_FAILED"
	ErrInvalidRequest        ErrorType = "INVALID_REQUEST"
	ErrInternal              ErrorType = "INTERNAL_ERROR"
)

// AppError is the standard error struct for the application
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	TraceID    string    `json:"trace_id,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

func NewInvalidRequest(msg string) *AppError {
	return New(ErrInvalidRequest, msg, nil)
}

func NewConflict(msg string) *AppError {
	return New(ErrIdempotencyConflict, msg, nil)
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrInvalidRequest:
		return http.StatusBadRequest
	case ErrAuthFailed:
		return http.StatusUnauthorized
	case ErrContractNotFound, ErrAuditRecordNotFound:
		return http.StatusNotFound
	case ErrIdempotencyConflict:
		return http.StatusConflict
	case ErrAuditPersistFailure:
		return http.StatusServiceUnavailable
	case ErrEmbeddingUnavailable, ErrSimilarityUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrIdempotencyConflict:
		return "Use a fresh Idempotency-Key for a different request body."
	case ErrAuditPersistFailure:
		return "Retry with backoff reusing the same Idempotency-Key."
	case ErrContractNotFound:
		return "Check the contract_id."
	case ErrAuthFailed:
		return "Check the API key."
	default:
		return ""
	}
}
