package errors

import (
	"fmt"
	"net/http"
)

// AppError define la estructura estándar para errores HTTP.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	HTTPStatus int    `json:"-"` // No se serializa, usado para el header
	Err        error  `json:"-"` // causa original, solo para logs
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(status int, code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: status,
	}
}

// WithDetail devuelve una COPIA del error con detail.
func (e *AppError) WithDetail(detail string) *AppError {
	newErr := *e
	newErr.Detail = detail
	return &newErr
}

// WithCause devuelve una COPIA del error con la causa original.
func (e *AppError) WithCause(err error) *AppError {
	newErr := *e
	newErr.Err = err
	return &newErr
}

// ---------------------------------------------------------------------------------
// 400 Bad Request
// ---------------------------------------------------------------------------------

var (
	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "The request is malformed or missing parameters.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidJSON = &AppError{
		Code:       "INVALID_JSON",
		Message:    "The request body is not valid JSON.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrBodyTooLarge = &AppError{
		Code:       "BODY_TOO_LARGE",
		Message:    "The request body exceeds the maximum allowed size.",
		HTTPStatus: http.StatusRequestEntityTooLarge,
	}

	ErrNoIdentityProvided = &AppError{
		Code:       "NO_IDENTITY_PROVIDED",
		Message:    "Neither an auth token nor a connect token carried a usable identity.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrMalformedToken = &AppError{
		Code:       "MALFORMED_TOKEN",
		Message:    "The token is not a well-formed JWT.",
		HTTPStatus: http.StatusBadRequest,
	}
)

// ---------------------------------------------------------------------------------
// 401 Unauthorized
// ---------------------------------------------------------------------------------

var (
	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Authentication is required.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrUnsupportedAlgorithm = &AppError{
		Code:       "UNSUPPORTED_ALGORITHM",
		Message:    "The token is not signed with RS256.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrSignatureInvalid = &AppError{
		Code:       "SIGNATURE_INVALID",
		Message:    "The token signature does not verify.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrTokenExpired = &AppError{
		Code:       "TOKEN_EXPIRED",
		Message:    "The token is expired or not yet valid.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrInvalidKeyMaterial = &AppError{
		Code:       "INVALID_KEY_MATERIAL",
		Message:    "The signing key published for this token is unusable.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrUnknownKeyID = &AppError{
		Code:       "UNKNOWN_KEY_ID",
		Message:    "The token was signed by a key that is not published.",
		HTTPStatus: http.StatusUnauthorized,
	}
)

// ---------------------------------------------------------------------------------
// 4xx misc
// ---------------------------------------------------------------------------------

var (
	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "The requested resource was not found.",
		HTTPStatus: http.StatusNotFound,
	}

	ErrMethodNotAllowed = &AppError{
		Code:       "METHOD_NOT_ALLOWED",
		Message:    "Method not allowed for this resource.",
		HTTPStatus: http.StatusMethodNotAllowed,
	}

	ErrRateLimitExceeded = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Too many requests, try again later.",
		HTTPStatus: http.StatusTooManyRequests,
	}
)

// ---------------------------------------------------------------------------------
// 5xx
// ---------------------------------------------------------------------------------

var (
	ErrInternalServerError = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "An unexpected error occurred.",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrServiceUnavailable = &AppError{
		Code:       "SERVICE_UNAVAILABLE",
		Message:    "The service is temporarily unavailable.",
		HTTPStatus: http.StatusServiceUnavailable,
	}

	ErrKeyStoreUnavailable = &AppError{
		Code:       "KEY_STORE_UNAVAILABLE",
		Message:    "Epic signing keys could not be loaded, try again later.",
		HTTPStatus: http.StatusServiceUnavailable,
	}
)
