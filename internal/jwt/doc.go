// Package jwt verifies RS256 identity tokens issued by the Epic Account
// Services (Auth interface) and Epic Online Services (Connect interface).
//
// The pipeline is done by hand rather than through a generic parser so each
// stage fails with its own error: segment decoding (ErrMalformedToken), the
// declared algorithm (ErrUnsupportedAlgorithm), key selection by kid through a
// KeySource (jwks errors, ErrInvalidKeyMaterial) and the RSA signature
// (ErrSignatureInvalid), then exp and nbf with a small leeway
// (ErrTokenExpired). The PKCS#1 v1.5 check and the time-claim validation are
// delegated to golang-jwt.
//
// Audience / client id is not checked: a verified token authenticates the
// player regardless of which client application obtained it.
package jwt
