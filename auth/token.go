package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// PlatformIssuer is the fixed issuer identifier on every runtime token the
// platform mints.
const PlatformIssuer = "https://kiket.dev"

// Claims are the verified contents of a runtime token.
type Claims struct {
	Scopes []string `json:"scopes"`
	OrgID  string   `json:"org_id"`
	ExtID  string   `json:"ext_id"`
	ProjID string   `json:"proj_id"`
	jwt.RegisteredClaims
}

// TokenVerifier validates runtime tokens against the platform's published
// key set. Public-key verification means the extension never holds the
// platform's signing secret, and key rotation is absorbed by the cache.
type TokenVerifier struct {
	keys   *KeySetCache
	issuer string
}

// NewTokenVerifier returns a verifier backed by the given key set cache.
func NewTokenVerifier(keys *KeySetCache) *TokenVerifier {
	return &TokenVerifier{keys: keys, issuer: PlatformIssuer}
}

// ExtractRuntimeToken pulls authentication.runtime_token out of a parsed
// webhook payload.
func ExtractRuntimeToken(payload map[string]any) (string, bool) {
	authn, ok := payload["authentication"].(map[string]any)
	if !ok {
		return "", false
	}
	tok, ok := authn["runtime_token"].(string)
	if !ok || tok == "" {
		return "", false
	}
	return tok, true
}

// Verify extracts the runtime token from payload and validates it against
// the key set published at baseURL.
func (v *TokenVerifier) Verify(ctx context.Context, payload map[string]any, baseURL string) (*Claims, error) {
	tok, ok := ExtractRuntimeToken(payload)
	if !ok {
		return nil, ErrMissingToken
	}
	return v.VerifyToken(ctx, tok, baseURL)
}

// VerifyToken validates a bare runtime token string: ES256 signature against
// the platform key set, issuer, expiration, and issued-at.
func (v *TokenVerifier) VerifyToken(ctx context.Context, token, baseURL string) (*Claims, error) {
	keys, err := v.keys.Get(ctx, baseURL)
	if err != nil {
		return nil, err
	}

	var signing *SigningKey
	for i := range keys {
		if keys[i].Alg == jwt.SigningMethodES256.Alg() && keys[i].Use == "sig" {
			signing = &keys[i]
			break
		}
	}
	if signing == nil {
		return nil, ErrNoSigningKey
	}

	claims := &Claims{}
	_, err = jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) { return signing.Key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenInvalidIssuer):
			return nil, ErrInvalidIssuer
		default:
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}
	return claims, nil
}
