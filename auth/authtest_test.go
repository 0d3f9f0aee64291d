package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newECKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func jwksCoord(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }

// jwksJSON builds the platform's published key set document for a test key.
func jwksJSON(pub *ecdsa.PublicKey, kid string) []byte {
	x := base64.RawURLEncoding.EncodeToString(pub.X.FillBytes(make([]byte, 32)))
	y := base64.RawURLEncoding.EncodeToString(pub.Y.FillBytes(make([]byte, 32)))
	return []byte(fmt.Sprintf(
		`{"keys":[{"kty":"EC","crv":"P-256","alg":"ES256","use":"sig","kid":%q,"x":%q,"y":%q}]}`,
		kid, x, y,
	))
}

// newJWKSServer serves doc at the well-known JWKS path and counts hits.
func newJWKSServer(t *testing.T, doc []byte, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/jwks.json" {
			http.NotFound(w, r)
			return
		}
		if hits != nil {
			hits.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type tokenOverrides struct {
	issuer    string
	expiresAt time.Time
	issuedAt  time.Time
	scopes    []string
}

func signRuntimeToken(t *testing.T, key *ecdsa.PrivateKey, o tokenOverrides) string {
	t.Helper()
	if o.issuer == "" {
		o.issuer = PlatformIssuer
	}
	if o.expiresAt.IsZero() {
		o.expiresAt = time.Now().Add(5 * time.Minute)
	}
	if o.issuedAt.IsZero() {
		o.issuedAt = time.Now().Add(-time.Minute)
	}
	claims := &Claims{
		Scopes: o.scopes,
		OrgID:  "org-1",
		ExtID:  "ext-1",
		ProjID: "proj-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    o.issuer,
			ExpiresAt: jwt.NewNumericDate(o.expiresAt),
			IssuedAt:  jwt.NewNumericDate(o.issuedAt),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}
