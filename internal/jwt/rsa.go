package jwt

import (
	"crypto/rsa"
	"fmt"
	"math/big"

	"github.com/dropDatabas3/epicauth/internal/jwks"
)

// minModulusBits is the smallest RSA key accepted for verification.
const minModulusBits = 2048

// rsaPublicKey builds the verification key from a key-store entry.
func rsaPublicKey(k jwks.Key) (*rsa.PublicKey, error) {
	if k.Kty != "RSA" {
		return nil, fmt.Errorf("%w: key %q has type %q, want RSA", ErrInvalidKeyMaterial, k.Kid, k.Kty)
	}

	nb, err := decodeSegment(k.N)
	if err != nil || len(nb) == 0 {
		return nil, fmt.Errorf("%w: key %q: bad modulus", ErrInvalidKeyMaterial, k.Kid)
	}
	n := new(big.Int).SetBytes(nb)
	if n.BitLen() < minModulusBits {
		return nil, fmt.Errorf("%w: key %q: %d-bit modulus, want at least %d", ErrInvalidKeyMaterial, k.Kid, n.BitLen(), minModulusBits)
	}
	eb, err := decodeSegment(k.E)
	if err != nil || len(eb) == 0 || len(eb) > 4 {
		return nil, fmt.Errorf("%w: key %q: bad exponent", ErrInvalidKeyMaterial, k.Kid)
	}

	// big-endian bytes to int
	e := 0
	for _, b := range eb {
		e = e<<8 | int(b)
	}
	if e < 3 {
		return nil, fmt.Errorf("%w: key %q: bad exponent", ErrInvalidKeyMaterial, k.Kid)
	}

	return &rsa.PublicKey{N: n, E: e}, nil
}
