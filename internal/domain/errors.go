package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType is the category of a gateway error. Frontdoor handlers translate
// these into the error envelope of whichever protocol the client speaks.
type ErrorType string

const (
	// ErrorTypeInvalidRequest indicates a malformed or invalid request.
	ErrorTypeInvalidRequest ErrorType = "invalid_request"

	// ErrorTypeAuthentication indicates an authentication failure.
	ErrorTypeAuthentication ErrorType = "authentication"

	// ErrorTypePermission indicates a permission/authorization failure.
	ErrorTypePermission ErrorType = "permission"

	// ErrorTypeNotFound indicates a model or provider was not found.
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypeRateLimit indicates rate limiting was triggered.
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeUpstream indicates the upstream provider could not be reached
	// or answered with a server fault after the retry budget was spent.
	ErrorTypeUpstream ErrorType = "upstream"

	// ErrorTypeConversion indicates an upstream payload could not be
	// translated into the client's protocol.
	ErrorTypeConversion ErrorType = "conversion"

	// ErrorTypeServer indicates an internal gateway error.
	ErrorTypeServer ErrorType = "server"
)

// ErrorCode provides additional specificity beyond the error type.
type ErrorCode string

const (
	ErrorCodeModelNotFound          ErrorCode = "model_not_found"
	ErrorCodeAliasChainTooLong      ErrorCode = "alias_chain_too_long"
	ErrorCodeProviderNotFound       ErrorCode = "provider_not_found"
	ErrorCodeKeysExhausted          ErrorCode = "all_keys_exhausted"
	ErrorCodePassthroughKeyRequired ErrorCode = "passthrough_key_required"
	ErrorCodeInvalidAPIKey          ErrorCode = "invalid_api_key"
	ErrorCodeRateLimitExceeded      ErrorCode = "rate_limit_exceeded"
	ErrorCodeUpstreamUnavailable    ErrorCode = "upstream_unavailable"
)

// APIError is the canonical error carried through the orchestrator and
// rendered by the frontdoors.
type APIError struct {
	// Type is the category of error.
	Type ErrorType `json:"type"`

	// Code is an optional specific error code.
	Code ErrorCode `json:"code,omitempty"`

	// Message is the human-readable error message, including a remediation
	// hint where one is safe to give.
	Message string `json:"message"`

	// Param is the request field that caused the error, if applicable.
	Param string `json:"param,omitempty"`

	// StatusCode overrides the default HTTP status for the type.
	StatusCode int `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// HTTPStatusCode returns the HTTP status to report for this error.
func (e *APIError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	switch e.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypePermission:
		return http.StatusForbidden
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeUpstream, ErrorTypeConversion:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AsAPIError unwraps err to an *APIError, or wraps it as a server error so
// callers always have a renderable error.
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return &APIError{Type: ErrorTypeServer, Message: err.Error()}
}

// NewAPIError creates a new API error.
func NewAPIError(errType ErrorType, message string) *APIError {
	return &APIError{Type: errType, Message: message}
}

// WithCode adds an error code to the error.
func (e *APIError) WithCode(code ErrorCode) *APIError {
	e.Code = code
	return e
}

// WithParam adds a parameter name to the error.
func (e *APIError) WithParam(param string) *APIError {
	e.Param = param
	return e
}

// WithStatusCode sets a specific HTTP status code.
func (e *APIError) WithStatusCode(code int) *APIError {
	e.StatusCode = code
	return e
}

// ErrUnresolvedModel reports a model token that matched no provider, alias,
// or concrete model within the configured chain depth.
func ErrUnresolvedModel(model, hint string) *APIError {
	msg := fmt.Sprintf("model %q could not be resolved", model)
	if hint != "" {
		msg += ": " + hint
	}
	return NewAPIError(ErrorTypeNotFound, msg).WithCode(ErrorCodeModelNotFound).WithParam("model")
}

// ErrProviderNotFound reports a provider name absent from the registry.
func ErrProviderNotFound(name string, available []string) *APIError {
	return NewAPIError(ErrorTypeNotFound,
		fmt.Sprintf("provider %q is not configured (available: %v)", name, available)).
		WithCode(ErrorCodeProviderNotFound)
}

// ErrPassthroughKeyRequired reports a passthrough provider called without a
// client credential.
func ErrPassthroughKeyRequired(provider string) *APIError {
	return NewAPIError(ErrorTypeAuthentication,
		fmt.Sprintf("provider %q requires API key passthrough, but no client API key was provided", provider)).
		WithCode(ErrorCodePassthroughKeyRequired)
}

// ErrAllKeysExhausted reports that every configured key for a provider was
// rejected upstream within one request.
func ErrAllKeysExhausted(provider string) *APIError {
	return NewAPIError(ErrorTypeRateLimit,
		fmt.Sprintf("all API keys for provider %q exhausted; set a working key for provider %s or retry later", provider, provider)).
		WithCode(ErrorCodeKeysExhausted)
}

// ErrUpstreamUnavailable reports a provider that could not be reached within
// its retry budget.
func ErrUpstreamUnavailable(provider string, cause error) *APIError {
	return NewAPIError(ErrorTypeUpstream,
		fmt.Sprintf("provider %q unavailable: %v", provider, cause)).
		WithCode(ErrorCodeUpstreamUnavailable)
}

// ErrConversion reports an upstream payload shape the converter could not
// translate, naming the offending field when known.
func ErrConversion(field, message string) *APIError {
	return NewAPIError(ErrorTypeConversion, message).WithParam(field)
}
