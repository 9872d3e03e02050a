// Package errors maps service errors to JSON HTTP responses.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/dropDatabas3/epicauth/internal/jwks"
	"github.com/dropDatabas3/epicauth/internal/jwt"
	"github.com/dropDatabas3/epicauth/internal/login"
)

// RetryAfterSeconds is advertised on 503 responses.
const RetryAfterSeconds = "30"

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// WriteError escribe una respuesta HTTP basada en el error proporcionado.
func WriteError(w http.ResponseWriter, err error) {
	appErr := FromError(err)

	resp := errorResponse{
		Code:    appErr.Code,
		Message: appErr.Message,
		Detail:  appErr.Detail,
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if appErr.HTTPStatus == http.StatusServiceUnavailable && w.Header().Get("Retry-After") == "" {
		w.Header().Set("Retry-After", RetryAfterSeconds)
	}
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(resp)
}

// FromError classifies err. AppErrors pass through; known sentinels from the
// verification and login packages get their own code; anything else is a 500
// that keeps the cause for logging.
func FromError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	var base *AppError
	switch {
	case stderrors.Is(err, login.ErrNoIdentityProvided):
		base = ErrNoIdentityProvided
	case stderrors.Is(err, jwt.ErrMalformedToken):
		base = ErrMalformedToken
	case stderrors.Is(err, jwt.ErrUnsupportedAlgorithm):
		base = ErrUnsupportedAlgorithm
	case stderrors.Is(err, jwt.ErrSignatureInvalid):
		base = ErrSignatureInvalid
	case stderrors.Is(err, jwt.ErrTokenExpired):
		base = ErrTokenExpired
	case stderrors.Is(err, jwt.ErrInvalidKeyMaterial):
		base = ErrInvalidKeyMaterial
	case stderrors.Is(err, jwks.ErrUnknownKeyID):
		base = ErrUnknownKeyID
	case stderrors.Is(err, jwks.ErrKeyStoreUnavailable), stderrors.Is(err, jwks.ErrKeyNotFound):
		return ErrKeyStoreUnavailable.WithCause(err)
	default:
		return ErrInternalServerError.WithCause(err)
	}
	return base.WithDetail(err.Error()).WithCause(err)
}
