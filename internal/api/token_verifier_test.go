package api

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testSecret   = "super-secret-jwt-token-with-at-least-32-characters"
	testIssuer   = "https://abc.supabase.co/auth/v1"
	testAudience = "authenticated"
)

func validClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"sub":  testUserID,
		"aud":  testAudience,
		"iss":  testIssuer,
		"role": "authenticated",
		"iat":  now.Unix(),
		"exp":  now.Add(time.Hour).Unix(),
	}
}

func signHS256(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func signRS256(t *testing.T, claims jwt.MapClaims, key *rsa.PrivateKey, kid string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func newJWKSServer(t *testing.T, key *rsa.PublicKey, kid string, hits *int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{
				{"kty": "EC", "kid": "ec-key", "crv": "P-256"},
				{
					"kty": "RSA",
					"kid": kid,
					"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
					"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
				},
			},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestVerifyTokenHS256(t *testing.T) {
	verifier := NewTokenVerifier(TokenVerifierConfig{HMACSecret: testSecret, Audience: testAudience, Issuer: testIssuer})

	userID, err := verifier.VerifyToken(context.Background(), signHS256(t, validClaims(), testSecret))
	if err != nil {
		t.Fatalf("expected token to verify: %v", err)
	}
	if userID != testUserID {
		t.Fatalf("expected subject %s, got %s", testUserID, userID)
	}
}

func TestVerifyTokenRejections(t *testing.T) {
	verifier := NewTokenVerifier(TokenVerifierConfig{HMACSecret: testSecret, Audience: testAudience, Issuer: testIssuer})

	tests := []struct {
		name   string
		mutate func(jwt.MapClaims)
		secret string
	}{
		{name: "wrong secret", secret: "another-secret-that-is-also-long-enough"},
		{name: "expired", mutate: func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() }},
		{name: "wrong audience", mutate: func(c jwt.MapClaims) { c["aud"] = "anon" }},
		{name: "wrong issuer", mutate: func(c jwt.MapClaims) { c["iss"] = "https://evil.example/auth/v1" }},
		{name: "missing subject", mutate: func(c jwt.MapClaims) { delete(c, "sub") }},
		{name: "blank subject", mutate: func(c jwt.MapClaims) { c["sub"] = "  " }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := validClaims()
			if tt.mutate != nil {
				tt.mutate(claims)
			}
			secret := testSecret
			if tt.secret != "" {
				secret = tt.secret
			}

			if _, err := verifier.VerifyToken(context.Background(), signHS256(t, claims, secret)); err == nil {
				t.Fatal("expected token to be rejected")
			}
		})
	}
}

func TestVerifyTokenAcceptsAudienceList(t *testing.T) {
	verifier := NewTokenVerifier(TokenVerifierConfig{HMACSecret: testSecret, Audience: testAudience})
	claims := validClaims()
	claims["aud"] = []string{"other", testAudience}

	if _, err := verifier.VerifyToken(context.Background(), signHS256(t, claims, testSecret)); err != nil {
		t.Fatalf("expected audience list to match: %v", err)
	}
}

func TestVerifyTokenRS256ViaJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	var hits int32
	server := newJWKSServer(t, &key.PublicKey, "kid-1", &hits)
	verifier := NewTokenVerifier(TokenVerifierConfig{JWKSURL: server.URL, Audience: testAudience, Issuer: testIssuer})

	for i := 0; i < 3; i++ {
		userID, err := verifier.VerifyToken(context.Background(), signRS256(t, validClaims(), key, "kid-1"))
		if err != nil {
			t.Fatalf("expected token to verify: %v", err)
		}
		if userID != testUserID {
			t.Fatalf("unexpected subject %s", userID)
		}
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("expected JWKS to be fetched once and cached, got %d fetches", got)
	}
}

func TestVerifyTokenRS256UnknownKid(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	var hits int32
	server := newJWKSServer(t, &key.PublicKey, "kid-1", &hits)
	verifier := NewTokenVerifier(TokenVerifierConfig{JWKSURL: server.URL})

	if _, err := verifier.VerifyToken(context.Background(), signRS256(t, validClaims(), key, "kid-rotated")); err == nil {
		t.Fatal("expected unknown kid to be rejected")
	}
}

func TestVerifyTokenRejectsUnconfiguredAlgorithm(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	hmacOnly := NewTokenVerifier(TokenVerifierConfig{HMACSecret: testSecret})
	if _, err := hmacOnly.VerifyToken(context.Background(), signRS256(t, validClaims(), key, "kid-1")); err == nil {
		t.Fatal("expected RS256 token to be rejected without a JWKS")
	}

	var hits int32
	server := newJWKSServer(t, &key.PublicKey, "kid-1", &hits)
	jwksOnly := NewTokenVerifier(TokenVerifierConfig{JWKSURL: server.URL})
	if _, err := jwksOnly.VerifyToken(context.Background(), signHS256(t, validClaims(), testSecret)); err == nil {
		t.Fatal("expected HS256 token to be rejected without a secret")
	}

	none := NewTokenVerifier(TokenVerifierConfig{})
	if _, err := none.VerifyToken(context.Background(), signHS256(t, validClaims(), testSecret)); err == nil {
		t.Fatal("expected verifier without sources to reject everything")
	}
}

func TestAuthMiddlewareWithRealTokens(t *testing.T) {
	verifier := NewTokenVerifier(TokenVerifierConfig{HMACSecret: testSecret, Audience: testAudience, Issuer: testIssuer})
	var seen string
	handler := AuthMiddleware(verifier, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/credits/balance", nil)
	req.Header.Set("Authorization", "Bearer "+signHS256(t, validClaims(), testSecret))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected request to pass, got %d", rec.Code)
	}
	if seen != testUserID {
		t.Fatalf("expected user %s in context, got %q", testUserID, seen)
	}

	expired := validClaims()
	expired["exp"] = time.Now().Add(-2 * time.Minute).Unix()
	req = httptest.NewRequest(http.MethodGet, "/credits/balance", nil)
	req.Header.Set("Authorization", "Bearer "+signHS256(t, expired, testSecret))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected expired token to be rejected, got %d", rec.Code)
	}
}

func TestJSONWebKeyRejectsZeroExponent(t *testing.T) {
	if _, err := (jsonWebKey{Kid: "k", N: "AQAB", E: "AA"}).rsaPublicKey(); err == nil {
		t.Fatal("expected zero exponent to be rejected")
	}
	if _, err := (jsonWebKey{Kid: "k", N: "", E: "AQAB"}).rsaPublicKey(); err == nil {
		t.Fatal("expected empty modulus to be rejected")
	}
	pub, err := (jsonWebKey{Kid: "k", N: "AQAB", E: "AQAB"}).rsaPublicKey()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pub.E != 65537 {
		t.Fatalf("expected exponent 65537, got %d", pub.E)
	}
}

// rotatingJWKS serves whichever key was published last.
type rotatingJWKS struct {
	mu   sync.Mutex
	kid  string
	key  *rsa.PublicKey
	hits int32
}

func (j *rotatingJWKS) publish(kid string, key *rsa.PublicKey) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.kid, j.key = kid, key
}

func (j *rotatingJWKS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&j.hits, 1)
	j.mu.Lock()
	defer j.mu.Unlock()
	json.NewEncoder(w).Encode(map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": j.kid,
			"n":   base64.RawURLEncoding.EncodeToString(j.key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(j.key.E)).Bytes()),
		}},
	})
}

func TestVerifyTokenUnknownKidDoesNotRefetchEveryRequest(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	jwks := &rotatingJWKS{}
	jwks.publish("kid-1", &key.PublicKey)
	server := httptest.NewServer(jwks)
	t.Cleanup(server.Close)
	verifier := NewTokenVerifier(TokenVerifierConfig{JWKSURL: server.URL})

	if _, err := verifier.VerifyToken(context.Background(), signRS256(t, validClaims(), key, "kid-1")); err != nil {
		t.Fatalf("expected token to verify: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := verifier.VerifyToken(context.Background(), signRS256(t, validClaims(), key, "kid-forged")); err == nil {
			t.Fatal("expected unknown kid to be rejected")
		}
	}
	if got := atomic.LoadInt32(&jwks.hits); got != 1 {
		t.Fatalf("expected unknown kids to be served from the recent fetch, got %d fetches", got)
	}
}

func TestVerifyTokenPicksUpRotatedKey(t *testing.T) {
	oldKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	newKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	jwks := &rotatingJWKS{}
	jwks.publish("kid-old", &oldKey.PublicKey)
	server := httptest.NewServer(jwks)
	t.Cleanup(server.Close)
	verifier := NewTokenVerifier(TokenVerifierConfig{JWKSURL: server.URL})
	verifier.keys.minRefresh = 0

	if _, err := verifier.VerifyToken(context.Background(), signRS256(t, validClaims(), oldKey, "kid-old")); err != nil {
		t.Fatalf("expected old key to verify: %v", err)
	}

	jwks.publish("kid-new", &newKey.PublicKey)
	userID, err := verifier.VerifyToken(context.Background(), signRS256(t, validClaims(), newKey, "kid-new"))
	if err != nil {
		t.Fatalf("expected rotated key to verify: %v", err)
	}
	if userID != testUserID {
		t.Fatalf("unexpected subject %s", userID)
	}
	if got := atomic.LoadInt32(&jwks.hits); got != 2 {
		t.Fatalf("expected one refetch after rotation, got %d fetches", got)
	}
}
