/**
 * @description
 * Verification of Supabase-issued bearer tokens. HS256 tokens are checked with the
 * project JWT secret; RS256 tokens are checked against the project's published JWKS.
 */
package api

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var errInvalidToken = errors.New("invalid token")

const (
	jwksCacheTTL        = 10 * time.Minute
	jwksMinRefreshDelay = 30 * time.Second
)

// Authenticator resolves a bearer token to the user it was issued for.
type Authenticator interface {
	VerifyToken(ctx context.Context, tokenString string) (string, error)
}

// TokenVerifierConfig controls which tokens are accepted.
type TokenVerifierConfig struct {
	HMACSecret string
	JWKSURL    string
	Audience   string
	Issuer     string
}

// TokenVerifier validates Supabase JWTs.
type TokenVerifier struct {
	keys     *signingKeys
	parser   *jwt.Parser
	audience string
	issuer   string
}

// NewTokenVerifier builds a verifier. Only algorithms with a configured key are accepted.
func NewTokenVerifier(cfg TokenVerifierConfig) *TokenVerifier {
	keys := &signingKeys{
		secret:     []byte(strings.TrimSpace(cfg.HMACSecret)),
		jwksURL:    strings.TrimSpace(cfg.JWKSURL),
		httpClient: &http.Client{Timeout: 5 * time.Second},
		minRefresh: jwksMinRefreshDelay,
	}
	return &TokenVerifier{
		keys:     keys,
		parser:   jwt.NewParser(jwt.WithValidMethods(keys.algorithms()), jwt.WithLeeway(30*time.Second)),
		audience: strings.TrimSpace(cfg.Audience),
		issuer:   strings.TrimSpace(cfg.Issuer),
	}
}

// VerifyToken returns the token subject if the signature, expiry, issuer and audience check out.
func (v *TokenVerifier) VerifyToken(ctx context.Context, tokenString string) (string, error) {
	if len(v.keys.algorithms()) == 0 {
		return "", errors.New("no token verification source configured")
	}

	claims := jwt.MapClaims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return v.keys.keyFor(ctx, token)
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", errInvalidToken, err)
	}

	if v.issuer != "" {
		if issuer, _ := claims.GetIssuer(); issuer != v.issuer {
			return "", fmt.Errorf("%w: issuer mismatch", errInvalidToken)
		}
	}
	if v.audience != "" {
		audiences, _ := claims.GetAudience()
		if !containsString(audiences, v.audience) {
			return "", fmt.Errorf("%w: audience mismatch", errInvalidToken)
		}
	}

	sub, _ := claims.GetSubject()
	if strings.TrimSpace(sub) == "" {
		return "", fmt.Errorf("%w: subject claim missing", errInvalidToken)
	}
	return sub, nil
}

func containsString(values []string, want string) bool {
	for _, value := range values {
		if value == want {
			return true
		}
	}
	return false
}

// signingKeys holds the project secret and a lazily fetched cache of JWKS RSA keys.
type signingKeys struct {
	secret     []byte
	jwksURL    string
	httpClient *http.Client
	minRefresh time.Duration

	mu        sync.RWMutex
	rsaKeys   map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func (k *signingKeys) algorithms() []string {
	var algs []string
	if len(k.secret) > 0 {
		algs = append(algs, jwt.SigningMethodHS256.Alg())
	}
	if k.jwksURL != "" {
		algs = append(algs, jwt.SigningMethodRS256.Alg())
	}
	return algs
}

func (k *signingKeys) keyFor(ctx context.Context, token *jwt.Token) (any, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		return k.secret, nil
	case *jwt.SigningMethodRSA:
		kid, _ := token.Header["kid"].(string)
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("missing kid in token")
		}
		return k.rsaKey(ctx, kid)
	default:
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
}

// rsaKey serves from cache while it is fresh. An unknown kid refetches at most once per minRefresh.
func (k *signingKeys) rsaKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	k.mu.RLock()
	key, fresh := k.rsaKeys[kid], time.Since(k.fetchedAt) < jwksCacheTTL
	recent := time.Since(k.fetchedAt) < k.minRefresh
	k.mu.RUnlock()

	if key != nil && fresh {
		return key, nil
	}
	if key == nil && recent {
		return nil, fmt.Errorf("key not found for kid %s", kid)
	}

	keys, err := k.fetchJWKS(ctx)
	if err != nil {
		return nil, err
	}

	k.mu.Lock()
	k.rsaKeys = keys
	k.fetchedAt = time.Now()
	k.mu.Unlock()

	if key = keys[kid]; key == nil {
		return nil, fmt.Errorf("key not found for kid %s", kid)
	}
	return key, nil
}

type jsonWebKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (k *signingKeys) fetchJWKS(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.jwksURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks endpoint returned %d", resp.StatusCode)
	}

	var set struct {
		Keys []jsonWebKey `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, jwk := range set.Keys {
		if jwk.Kid == "" || jwk.Kty != "RSA" {
			// Supabase publishes EC keys alongside RSA ones.
			continue
		}
		if pub, err := jwk.rsaPublicKey(); err == nil {
			keys[jwk.Kid] = pub
		}
	}
	if len(keys) == 0 {
		return nil, errors.New("jwks contains no RSA keys")
	}
	return keys, nil
}

func (k jsonWebKey) rsaPublicKey() (*rsa.PublicKey, error) {
	modulus, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil || len(modulus) == 0 {
		return nil, fmt.Errorf("invalid modulus for kid %s", k.Kid)
	}
	exponent, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("invalid exponent for kid %s", k.Kid)
	}

	e := new(big.Int).SetBytes(exponent)
	if e.Sign() == 0 || !e.IsInt64() || e.Int64() > 1<<31-1 {
		return nil, fmt.Errorf("unsupported exponent for kid %s", k.Kid)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(modulus), E: int(e.Int64())}, nil
}
