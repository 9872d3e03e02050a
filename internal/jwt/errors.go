package jwt

import "errors"

var (
	ErrMalformedToken       = errors.New("jwt: malformed token")
	ErrUnsupportedAlgorithm = errors.New("jwt: unsupported algorithm")
	ErrInvalidKeyMaterial   = errors.New("jwt: invalid key material")
	ErrSignatureInvalid     = errors.New("jwt: signature invalid")
	ErrTokenExpired         = errors.New("jwt: token expired or not yet valid")
)
