// Package jwkstest provides an in-process key store and an RS256 signer for
// tests of the key cache, the verifier and the login flow.
package jwkstest

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dropDatabas3/epicauth/internal/jwks"
)

// Signer holds an RSA key pair published under Kid.
type Signer struct {
	Kid string
	Key *rsa.PrivateKey
}

// NewSigner generates a 2048-bit key for kid.
func NewSigner(tb testing.TB, kid string) *Signer {
	tb.Helper()
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		tb.Fatalf("generate rsa key: %v", err)
	}
	return &Signer{Kid: kid, Key: k}
}

// JWK returns the public half as a key-store entry.
func (s *Signer) JWK() jwks.Key {
	return jwks.Key{
		Kid: s.Kid,
		Kty: "RSA",
		Alg: "RS256",
		Use: "sig",
		N:   base64.RawURLEncoding.EncodeToString(s.Key.PublicKey.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(s.Key.PublicKey.E)).Bytes()),
	}
}

// Token signs claims with RS256 and a header declaring {"alg":"RS256","kid":Kid}.
func (s *Signer) Token(tb testing.TB, claims map[string]any) string {
	tb.Helper()
	return s.TokenWithHeader(tb, map[string]any{"alg": "RS256", "typ": "JWT", "kid": s.Kid}, claims)
}

// TokenWithHeader signs header.payload with the RSA key whatever alg the
// header declares.
func (s *Signer) TokenWithHeader(tb testing.TB, header, claims map[string]any) string {
	tb.Helper()
	hb, err := json.Marshal(header)
	if err != nil {
		tb.Fatalf("marshal header: %v", err)
	}
	pb, err := json.Marshal(claims)
	if err != nil {
		tb.Fatalf("marshal claims: %v", err)
	}
	signing := base64.RawURLEncoding.EncodeToString(hb) + "." + base64.RawURLEncoding.EncodeToString(pb)
	sum := sha256.Sum256([]byte(signing))
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.Key, crypto.SHA256, sum[:])
	if err != nil {
		tb.Fatalf("sign: %v", err)
	}
	return signing + "." + base64.RawURLEncoding.EncodeToString(sig)
}

// Server is a fake key-store endpoint whose key set and status can change
// between requests.
type Server struct {
	*httptest.Server

	mu     sync.Mutex
	keys   []jwks.Key
	status int
	etag   string

	hits atomic.Int64
}

// NewServer starts a key store publishing keys. It is closed with tb.Cleanup.
func NewServer(tb testing.TB, keys ...jwks.Key) *Server {
	tb.Helper()
	s := &Server{keys: keys, status: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	tb.Cleanup(s.Close)
	return s
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.hits.Add(1)

	s.mu.Lock()
	keys := append([]jwks.Key(nil), s.keys...)
	status := s.status
	etag := s.etag
	s.mu.Unlock()

	if status != http.StatusOK {
		http.Error(w, "unavailable", status)
		return
	}
	if etag != "" {
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
	}
	if keys == nil {
		keys = []jwks.Key{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"keys": keys})
}

// SetKeys replaces the published set.
func (s *Server) SetKeys(keys ...jwks.Key) {
	s.mu.Lock()
	s.keys = keys
	s.mu.Unlock()
}

// SetStatus makes every following request fail with status (200 restores).
func (s *Server) SetStatus(status int) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// SetETag enables conditional responses for the given entity tag.
func (s *Server) SetETag(etag string) {
	s.mu.Lock()
	s.etag = etag
	s.mu.Unlock()
}

// Hits is the number of requests served so far.
func (s *Server) Hits() int64 { return s.hits.Load() }
