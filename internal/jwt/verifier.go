package jwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/epicauth/internal/jwks"
	"github.com/dropDatabas3/epicauth/internal/metrics"
	"github.com/dropDatabas3/epicauth/internal/observability/logger"
	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// KeySource is what the verifier needs from a key cache.
type KeySource interface {
	Prepare(ctx context.Context) error
	GetKey(kid string) (jwks.Key, error)
}

// DefaultLeeway is the clock skew tolerated on exp and nbf.
const DefaultLeeway = 30 * time.Second

// Verifier checks tokens of one identity interface against its key source.
type Verifier struct {
	name   string
	keys   KeySource
	leeway time.Duration
	now    func() time.Time
}

type Option func(*Verifier)

// WithLeeway sets the tolerance for exp and nbf. Zero means none.
func WithLeeway(d time.Duration) Option {
	return func(v *Verifier) {
		if d >= 0 {
			v.leeway = d
		}
	}
}

// WithClock sets the time source used for exp and nbf.
func WithClock(now func() time.Time) Option { return func(v *Verifier) { v.now = now } }

// NewVerifier binds a verifier named name ("auth", "connect") to keys.
func NewVerifier(name string, keys KeySource, opts ...Option) *Verifier {
	v := &Verifier{name: name, keys: keys, leeway: DefaultLeeway, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Name returns the identity interface this verifier serves.
func (v *Verifier) Name() string { return v.name }

// Verify returns the subject of a valid token.
//
// An empty token means the interface was not used and yields ("", nil). A
// verified token without a "sub" claim also yields ("", nil) after a warning;
// every other problem is an error. exp and nbf are enforced when present.
func (v *Verifier) Verify(ctx context.Context, token string) (string, error) {
	if token == "" {
		metrics.TokenVerifications.WithLabelValues(v.name, "absent").Inc()
		return "", nil
	}

	sub, err := v.verify(ctx, token)
	metrics.TokenVerifications.WithLabelValues(v.name, resultLabel(sub, err)).Inc()
	return sub, err
}

func (v *Verifier) verify(ctx context.Context, token string) (string, error) {
	log := logger.From(ctx).With(logger.Component("jwt"), logger.Interface(v.name))

	tok, err := decode(token)
	if err != nil {
		return "", err
	}

	if tok.header.Alg != jwtv5.SigningMethodRS256.Alg() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, tok.header.Alg)
	}

	if err := v.keys.Prepare(ctx); err != nil {
		return "", err
	}
	key, err := v.keys.GetKey(tok.header.Kid)
	if err != nil {
		return "", err
	}
	pub, err := rsaPublicKey(key)
	if err != nil {
		return "", err
	}

	if err := jwtv5.SigningMethodRS256.Verify(tok.signing, tok.signature, pub); err != nil {
		return "", fmt.Errorf("%w: kid %q: %v", ErrSignatureInvalid, tok.header.Kid, err)
	}

	if err := v.validateTimes(tok.claims); err != nil {
		return "", err
	}

	sub, _ := tok.claims["sub"].(string)
	if sub == "" {
		log.Warn("verified token has no sub claim", logger.KID(tok.header.Kid))
		return "", nil
	}
	return sub, nil
}

// validateTimes checks exp and nbf. Claims that are present but not numeric
// make the token malformed.
func (v *Verifier) validateTimes(claims map[string]any) error {
	err := jwtv5.NewValidator(
		jwtv5.WithLeeway(v.leeway),
		jwtv5.WithTimeFunc(v.now),
	).Validate(jwtv5.MapClaims(claims))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwtv5.ErrTokenExpired), errors.Is(err, jwtv5.ErrTokenNotValidYet):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
}

func resultLabel(sub string, err error) string {
	switch {
	case err == nil && sub == "":
		return "no_subject"
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMalformedToken):
		return "malformed"
	case errors.Is(err, ErrUnsupportedAlgorithm):
		return "unsupported_alg"
	case errors.Is(err, ErrInvalidKeyMaterial):
		return "invalid_key"
	case errors.Is(err, ErrSignatureInvalid):
		return "bad_signature"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwks.ErrUnknownKeyID):
		return "unknown_kid"
	case errors.Is(err, jwks.ErrKeyStoreUnavailable), errors.Is(err, jwks.ErrKeyNotFound):
		return "key_store_unavailable"
	default:
		return "error"
	}
}
