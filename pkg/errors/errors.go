package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents telehealth error codes
type ErrorCode string

const (
	ErrCodeSessionFull                ErrorCode = "SESSION_FULL"
	ErrCodeParticipantExists          ErrorCode = "PARTICIPANT_EXISTS"
	ErrCodeParticipantNotFound        ErrorCode = "PARTICIPANT_NOT_FOUND"
	ErrCodeInsufficientPermissions    ErrorCode = "INSUFFICIENT_PERMISSIONS"
	ErrCodeInvitationNotFound         ErrorCode = "INVITATION_NOT_FOUND"
	ErrCodeInvitationAlreadyProcessed ErrorCode = "INVITATION_ALREADY_PROCESSED"
	ErrCodeInvitationExpired          ErrorCode = "INVITATION_EXPIRED"
	ErrCodeScreenShareActive          ErrorCode = "SCREEN_SHARE_ACTIVE"
	ErrCodeScreenShareDisabled        ErrorCode = "SCREEN_SHARE_DISABLED"
	ErrCodeScreenShareFailed          ErrorCode = "SCREEN_SHARE_FAILED"
	ErrCodeRecordingDisabled          ErrorCode = "RECORDING_DISABLED"
	ErrCodeRecordingActive            ErrorCode = "RECORDING_ACTIVE"
	ErrCodeMediaPermissionDenied      ErrorCode = "MEDIA_PERMISSION_DENIED"
	ErrCodeInvalidStateTransition     ErrorCode = "INVALID_STATE_TRANSITION"
	ErrCodeSessionEnded               ErrorCode = "SESSION_ENDED"
	ErrCodeSessionNotStarted          ErrorCode = "SESSION_NOT_STARTED"
	ErrCodeSessionNotFound            ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeSessionExists              ErrorCode = "SESSION_EXISTS"
	ErrCodeInvalidInput               ErrorCode = "INVALID_INPUT"
	ErrCodeSessionInitFailed          ErrorCode = "SESSION_INIT_FAILED"
	ErrCodeSessionEndFailed           ErrorCode = "SESSION_END_FAILED"
	ErrCodeUnauthorized               ErrorCode = "UNAUTHORIZED"
	ErrCodeRateLimit                  ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal                   ErrorCode = "INTERNAL_ERROR"
)

// ErrorType classifies how a caller should react to a failure.
type ErrorType string

const (
	TypeTechnical  ErrorType = "technical"
	TypeValidation ErrorType = "validation"
	TypePermission ErrorType = "permission"
)

// TelehealthError is the structured error returned across the session facade.
type TelehealthError struct {
	Code       ErrorCode
	Message    string
	Type       ErrorType
	Retryable  bool
	HTTPStatus int
	Cause      error
	Details    map[string]interface{}
}

// Error implements error interface
func (e *TelehealthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *TelehealthError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail entry to the error
func (e *TelehealthError) WithDetail(key string, value interface{}) *TelehealthError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewValidationError creates a non-retryable error caused by the request itself.
func NewValidationError(code ErrorCode, message string) *TelehealthError {
	return &TelehealthError{
		Code:       code,
		Message:    message,
		Type:       TypeValidation,
		HTTPStatus: statusForCode(code),
	}
}

// NewPermissionError creates a non-retryable error caused by a missing capability.
func NewPermissionError(code ErrorCode, message string) *TelehealthError {
	return &TelehealthError{
		Code:       code,
		Message:    message,
		Type:       TypePermission,
		HTTPStatus: http.StatusForbidden,
	}
}

// NewTechnicalError creates an error caused by infrastructure or an external capability.
func NewTechnicalError(code ErrorCode, message string, retryable bool, cause error) *TelehealthError {
	return &TelehealthError{
		Code:       code,
		Message:    message,
		Type:       TypeTechnical,
		Retryable:  retryable,
		HTTPStatus: statusForCode(code),
		Cause:      cause,
	}
}

// Wrap converts any error into a TelehealthError. Existing TelehealthErrors are returned untouched.
func Wrap(err error, code ErrorCode, message string, retryable bool) *TelehealthError {
	if err == nil {
		return nil
	}
	if te := GetTelehealthError(err); te != nil {
		return te
	}
	return NewTechnicalError(code, message, retryable, err)
}

// Common error constructors
func NewInvalidInputError(message string) *TelehealthError {
	return NewValidationError(ErrCodeInvalidInput, message)
}

func NewParticipantNotFoundError(id string) *TelehealthError {
	return NewValidationError(ErrCodeParticipantNotFound, fmt.Sprintf("participant %s not found", id)).
		WithDetail("participant_id", id)
}

func NewInsufficientPermissionsError(permission string) *TelehealthError {
	return NewPermissionError(ErrCodeInsufficientPermissions, fmt.Sprintf("missing permission %s", permission)).
		WithDetail("permission", permission)
}

func NewSessionEndedError() *TelehealthError {
	return NewValidationError(ErrCodeSessionEnded, "session has ended")
}

func NewSessionNotStartedError() *TelehealthError {
	return NewValidationError(ErrCodeSessionNotStarted, "session has not been started")
}

func NewUnauthorizedError(message string) *TelehealthError {
	return &TelehealthError{
		Code:       ErrCodeUnauthorized,
		Message:    message,
		Type:       TypePermission,
		HTTPStatus: http.StatusUnauthorized,
	}
}

func NewRateLimitError() *TelehealthError {
	return &TelehealthError{
		Code:       ErrCodeRateLimit,
		Message:    "rate limit exceeded",
		Type:       TypeTechnical,
		Retryable:  true,
		HTTPStatus: http.StatusTooManyRequests,
	}
}

func NewInternalError(message string) *TelehealthError {
	return NewTechnicalError(ErrCodeInternal, message, false, nil)
}

// IsTelehealthError checks if error is a TelehealthError
func IsTelehealthError(err error) bool {
	return GetTelehealthError(err) != nil
}

// GetTelehealthError extracts TelehealthError from error chain
func GetTelehealthError(err error) *TelehealthError {
	if err == nil {
		return nil
	}
	var te *TelehealthError
	if stderrors.As(err, &te) {
		return te
	}
	return nil
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	te := GetTelehealthError(err)
	return te != nil && te.Code == code
}

func statusForCode(code ErrorCode) int {
	switch code {
	case ErrCodeParticipantNotFound, ErrCodeInvitationNotFound, ErrCodeSessionNotFound:
		return http.StatusNotFound
	case ErrCodeSessionFull, ErrCodeParticipantExists, ErrCodeInvitationAlreadyProcessed,
		ErrCodeScreenShareActive, ErrCodeRecordingActive, ErrCodeInvalidStateTransition,
		ErrCodeSessionEnded, ErrCodeSessionNotStarted, ErrCodeSessionExists:
		return http.StatusConflict
	case ErrCodeInvitationExpired:
		return http.StatusGone
	case ErrCodeMediaPermissionDenied, ErrCodeScreenShareFailed:
		return http.StatusServiceUnavailable
	case ErrCodeSessionInitFailed, ErrCodeSessionEndFailed, ErrCodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
