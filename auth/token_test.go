package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVerifier(t *testing.T, doc []byte) (*TokenVerifier, string) {
	t.Helper()
	srv := newJWKSServer(t, doc, nil)
	return NewTokenVerifier(NewKeySetCache()), srv.URL
}

func TestTokenVerifier_ValidToken(t *testing.T) {
	key := newECKey(t)
	verifier, baseURL := newTestVerifier(t, jwksJSON(&key.PublicKey, "k1"))

	tok := signRuntimeToken(t, key, tokenOverrides{scopes: []string{"issues.read", "issues.write"}})
	payload := map[string]any{
		"authentication": map[string]any{"runtime_token": tok},
	}

	claims, err := verifier.Verify(context.Background(), payload, baseURL)
	require.NoError(t, err)
	assert.Equal(t, []string{"issues.read", "issues.write"}, claims.Scopes)
	assert.Equal(t, "org-1", claims.OrgID)
	assert.Equal(t, "ext-1", claims.ExtID)
	assert.Equal(t, "proj-1", claims.ProjID)

	ac := claims.AuthContext(tok)
	assert.Equal(t, tok, ac.RuntimeToken)
	assert.Equal(t, TokenTypeRuntime, ac.TokenType)
	assert.False(t, ac.ExpiresAt.IsZero())
}

func TestTokenVerifier_MissingToken(t *testing.T) {
	key := newECKey(t)
	verifier, baseURL := newTestVerifier(t, jwksJSON(&key.PublicKey, "k1"))

	tests := []struct {
		name    string
		payload map[string]any
	}{
		{name: "no authentication block", payload: map[string]any{"issue": map[string]any{}}},
		{name: "no runtime token", payload: map[string]any{"authentication": map[string]any{}}},
		{name: "empty runtime token", payload: map[string]any{"authentication": map[string]any{"runtime_token": ""}}},
		{name: "non-string runtime token", payload: map[string]any{"authentication": map[string]any{"runtime_token": 42}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.Verify(context.Background(), tt.payload, baseURL)
			assert.ErrorIs(t, err, ErrMissingToken)
		})
	}
}

func TestTokenVerifier_ExpiredToken(t *testing.T) {
	key := newECKey(t)
	verifier, baseURL := newTestVerifier(t, jwksJSON(&key.PublicKey, "k1"))

	tok := signRuntimeToken(t, key, tokenOverrides{
		expiresAt: time.Now().Add(-10 * time.Minute),
		issuedAt:  time.Now().Add(-20 * time.Minute),
	})
	_, err := verifier.VerifyToken(context.Background(), tok, baseURL)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenVerifier_WrongIssuer(t *testing.T) {
	key := newECKey(t)
	verifier, baseURL := newTestVerifier(t, jwksJSON(&key.PublicKey, "k1"))

	tok := signRuntimeToken(t, key, tokenOverrides{issuer: "https://evil.example.com"})
	_, err := verifier.VerifyToken(context.Background(), tok, baseURL)
	assert.ErrorIs(t, err, ErrInvalidIssuer)
}

func TestTokenVerifier_WrongKey(t *testing.T) {
	published := newECKey(t)
	signer := newECKey(t)
	verifier, baseURL := newTestVerifier(t, jwksJSON(&published.PublicKey, "k1"))

	tok := signRuntimeToken(t, signer, tokenOverrides{})
	_, err := verifier.VerifyToken(context.Background(), tok, baseURL)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenVerifier_NoSigningKey(t *testing.T) {
	key := newECKey(t)
	// A key set whose only key is declared for encryption, not signatures.
	doc := []byte(`{"keys":[{"kty":"EC","crv":"P-256","alg":"ES256","use":"enc",` +
		`"x":"` + jwksCoord(key.PublicKey.X.FillBytes(make([]byte, 32))) + `",` +
		`"y":"` + jwksCoord(key.PublicKey.Y.FillBytes(make([]byte, 32))) + `"}]}`)
	verifier, baseURL := newTestVerifier(t, doc)

	tok := signRuntimeToken(t, key, tokenOverrides{})
	_, err := verifier.VerifyToken(context.Background(), tok, baseURL)
	assert.ErrorIs(t, err, ErrNoSigningKey)
}

func TestTokenVerifier_FetchErrorSurfaces(t *testing.T) {
	verifier := NewTokenVerifier(NewKeySetCache())

	_, err := verifier.VerifyToken(context.Background(), "whatever", "http://127.0.0.1:1")
	require.Error(t, err)
	var fetchErr *FetchError
	assert.True(t, errors.As(err, &fetchErr), "expected *FetchError, got %T", err)
}
