package apperrors

import (
	"errors"
	"net/http"

	"github.com/strefethen/dunehd-hub-go/internal/dunehd"
)

type ErrorCode string

// Generic request errors.
const (
	ErrorCodeInternalError          ErrorCode = "INTERNAL_ERROR"
	ErrorCodeValidationError        ErrorCode = "VALIDATION_ERROR"
	ErrorCodeNotFound               ErrorCode = "NOT_FOUND"
	ErrorCodeUnauthorized           ErrorCode = "UNAUTHORIZED"
	ErrorCodeForbidden              ErrorCode = "FORBIDDEN"
	ErrorCodeConflict               ErrorCode = "CONFLICT"
	ErrorCodeContentTypeUnsupported ErrorCode = "CONTENT_TYPE_UNSUPPORTED"
)

// Player and entity errors.
const (
	ErrorCodeDeviceNotFound        ErrorCode = "DEVICE_NOT_FOUND"
	ErrorCodeDeviceUnreachable     ErrorCode = "DEVICE_UNREACHABLE"
	ErrorCodeDeviceTimeout         ErrorCode = "DEVICE_TIMEOUT"
	ErrorCodeDeviceNotDuneHD       ErrorCode = "DEVICE_NOT_DUNEHD"
	ErrorCodeDeviceExists          ErrorCode = "DEVICE_ALREADY_CONFIGURED"
	ErrorCodeEntityNotFound        ErrorCode = "ENTITY_NOT_FOUND"
	ErrorCodeCommandNotImplemented ErrorCode = "COMMAND_NOT_IMPLEMENTED"
	ErrorCodeCommandRejected       ErrorCode = "COMMAND_REJECTED"
	ErrorCodeCommandTimeout        ErrorCode = "COMMAND_TIMEOUT"
	ErrorCodeCommandConflict       ErrorCode = "COMMAND_CONFLICT"
	ErrorCodeInvalidHubEvent       ErrorCode = "INVALID_HUB_EVENT"
	ErrorCodeDiscoveryFailed       ErrorCode = "DISCOVERY_FAILED"
)

// Audit and auth errors.
const (
	ErrorCodeEventNotFound      ErrorCode = "EVENT_NOT_FOUND"
	ErrorCodeInvalidEventType   ErrorCode = "INVALID_EVENT_TYPE"
	ErrorCodeAuthPairingExpired ErrorCode = "AUTH_PAIRING_EXPIRED"
	ErrorCodeAuthPairingInvalid ErrorCode = "AUTH_PAIRING_INVALID"
	ErrorCodeAuthTokenExpired   ErrorCode = "AUTH_TOKEN_EXPIRED"
	ErrorCodeAuthTokenInvalid   ErrorCode = "AUTH_TOKEN_INVALID"
)

// ErrorType is the coarse Stripe-style category derived from the status.
type ErrorType string

const (
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	ErrorTypeAPIError       ErrorType = "api_error"
	ErrorTypeAuthError      ErrorType = "authentication_error"
)

// StripeErrorBody is the "error" object of every failed response, e.g.
// {"type": "invalid_request_error", "code": "VALIDATION_ERROR", "message": "...", "param": "cmd_id"}
type StripeErrorBody struct {
	Type     ErrorType `json:"type"`
	Code     string    `json:"code"`
	Message  string    `json:"message"`
	Param    string    `json:"param,omitempty"`
	DeviceID string    `json:"device_id,omitempty"`
	Hint     string    `json:"hint,omitempty"`
}

// AppError is an error that knows how to render itself as an HTTP response.
// Details is free-form; the "field" and "device_id" keys are surfaced in the
// response body.
type AppError struct {
	Code       ErrorCode
	Message    string
	StatusCode int
	Details    map[string]any
	// Hint is a human readable next step, shown to end users by clients.
	Hint string
}

func (err *AppError) Error() string {
	return err.Message
}

func (err *AppError) StripeErrorBody() StripeErrorBody {
	body := StripeErrorBody{
		Type:    errorType(err.StatusCode),
		Code:    string(err.Code),
		Message: err.Message,
		Hint:    err.Hint,
	}
	body.Param, _ = err.Details["field"].(string)
	body.DeviceID, _ = err.Details["device_id"].(string)
	return body
}

func errorType(status int) ErrorType {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrorTypeAuthError
	case status >= 400 && status < 500:
		return ErrorTypeInvalidRequest
	default:
		return ErrorTypeAPIError
	}
}

func NewAppError(code ErrorCode, message string, statusCode int, details map[string]any) *AppError {
	return &AppError{Code: code, Message: message, StatusCode: statusCode, Details: details}
}

func NewValidationError(message string, details map[string]any) *AppError {
	return NewAppError(ErrorCodeValidationError, message, http.StatusBadRequest, details)
}

// NewUnauthorizedError defaults to UNAUTHORIZED; pass a code to be specific.
func NewUnauthorizedError(message string, code ...ErrorCode) *AppError {
	errCode := ErrorCodeUnauthorized
	if len(code) > 0 {
		errCode = code[0]
	}
	return NewAppError(errCode, message, http.StatusUnauthorized, nil)
}

func NewForbiddenError(message string) *AppError {
	return NewAppError(ErrorCodeForbidden, message, http.StatusForbidden, nil)
}

// NewNotFoundResource builds "<resource> not found: <id>".
func NewNotFoundResource(resource, id string) *AppError {
	details := map[string]any{"resource": resource}
	message := resource + " not found"
	if id != "" {
		message += ": " + id
		details["id"] = id
	}
	return NewAppError(ErrorCodeNotFound, message, http.StatusNotFound, details)
}

func NewConflictError(message string, details map[string]any) *AppError {
	return NewAppError(ErrorCodeConflict, message, http.StatusConflict, details)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrorCodeInternalError, message, http.StatusInternalServerError, nil)
}

// NewDeviceError maps a Dune-HD transport failure to a gateway error.
func NewDeviceError(deviceID string, err error) *AppError {
	details := map[string]any{"device_id": deviceID}

	var timeout *dunehd.TimeoutError
	if errors.As(err, &timeout) {
		appErr := NewAppError(ErrorCodeDeviceTimeout, "Device did not respond in time", http.StatusGatewayTimeout, details)
		appErr.Hint = "Check that the player is powered on"
		return appErr
	}
	appErr := NewAppError(ErrorCodeDeviceUnreachable, "Device unreachable: "+err.Error(), http.StatusBadGateway, details)
	appErr.Hint = "Check that the player is on the network and IP control is enabled"
	return appErr
}

// EnsureAppError unwraps err to an *AppError, hiding anything else behind a
// generic 500.
func EnsureAppError(err error) *AppError {
	if err == nil {
		return NewInternalError("Unknown error")
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError("Internal server error")
}
