package errors

import (
	"errors"
	"net/http"
)

// Domain errors
var (
	ErrNotFound            = errors.New("resource not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrChainUnreachable    = errors.New("chain unreachable")
	ErrRateLimited         = errors.New("rate limited")
	ErrAttackDetected      = errors.New("attack detected")
	ErrProofInvalid        = errors.New("proof invalid")
	ErrAuthorizationDenied = errors.New("authorization denied")
	ErrExpiredTransfer     = errors.New("transfer expired")
	ErrUnsupportedChain    = errors.New("unsupported chain")
	ErrInvalidPhase        = errors.New("invalid phase transition")
	ErrTransferCancelled   = errors.New("transfer cancelled")
)

// AppError represents application error with HTTP status
type AppError struct {
	Status  int               `json:"-"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Headers map[string]string `json:"-"`
	Err     error             `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new app error
func NewAppError(status int, code, message string, err error) *AppError {
	return &AppError{
		Status:  status,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error constructors

func NotFound(message string) *AppError {
	return NewAppError(http.StatusNotFound, "NOT_FOUND", message, ErrNotFound)
}

func BadRequest(message string) *AppError {
	return NewAppError(http.StatusBadRequest, "INVALID_INPUT", message, ErrInvalidInput)
}

func Unauthorized(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, "UNAUTHORIZED", message, ErrUnauthorized)
}

func Forbidden(message string) *AppError {
	return NewAppError(http.StatusForbidden, "FORBIDDEN", message, ErrForbidden)
}

func InternalError(err error) *AppError {
	return NewAppError(http.StatusInternalServerError, "INTERNAL", "internal server error", err)
}

// RateLimited builds the admission denial for volume limits. Headers carry
// the protocol-level rate limit fields so callers can surface them verbatim.
func RateLimited(message string, headers map[string]string) *AppError {
	return &AppError{
		Status:  http.StatusTooManyRequests,
		Code:    "RATE_LIMITED",
		Message: message,
		Headers: headers,
		Err:     ErrRateLimited,
	}
}

// AttackDetected builds the admission denial for flagged transfers. It is
// distinguishable from RateLimited by code and wrapped sentinel.
func AttackDetected(message string) *AppError {
	return NewAppError(http.StatusForbidden, "ATTACK_DETECTED", message, ErrAttackDetected)
}

func ChainUnreachable(message string, err error) *AppError {
	return &AppError{
		Status:  http.StatusBadGateway,
		Code:    "CHAIN_UNREACHABLE",
		Message: message,
		Err:     errors.Join(ErrChainUnreachable, err),
	}
}
