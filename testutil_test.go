package kiket

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kiket-dev/kiket-go/auth"
	"github.com/kiket-dev/kiket-go/internal/telemetry"
	"github.com/kiket-dev/kiket-go/manifest"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newECKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func jwksJSON(pub *ecdsa.PublicKey, kid string) []byte {
	x := base64.RawURLEncoding.EncodeToString(pub.X.FillBytes(make([]byte, 32)))
	y := base64.RawURLEncoding.EncodeToString(pub.Y.FillBytes(make([]byte, 32)))
	return []byte(fmt.Sprintf(
		`{"keys":[{"kty":"EC","crv":"P-256","alg":"ES256","use":"sig","kid":%q,"x":%q,"y":%q}]}`,
		kid, x, y,
	))
}

// newPlatform serves a JWKS document the way the platform would.
func newPlatform(t *testing.T, key *ecdsa.PrivateKey) *httptest.Server {
	t.Helper()
	doc := jwksJSON(&key.PublicKey, "platform-key")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/jwks.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type tokenSpec struct {
	issuer    string
	expiresAt time.Time
	scopes    []string
}

func signToken(t *testing.T, key *ecdsa.PrivateKey, spec tokenSpec) string {
	t.Helper()
	if spec.issuer == "" {
		spec.issuer = auth.PlatformIssuer
	}
	if spec.expiresAt.IsZero() {
		spec.expiresAt = time.Now().Add(5 * time.Minute)
	}
	claims := &auth.Claims{
		Scopes: spec.scopes,
		OrgID:  "org-1",
		ExtID:  "ext-1",
		ProjID: "proj-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    spec.issuer,
			ExpiresAt: jwt.NewNumericDate(spec.expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

// captureSink collects telemetry outcomes for assertions.
type captureSink struct {
	mu       sync.Mutex
	outcomes []telemetry.Outcome
}

func (s *captureSink) Send(_ context.Context, o telemetry.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, o)
	return nil
}

func (s *captureSink) all() []telemetry.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]telemetry.Outcome(nil), s.outcomes...)
}

func testManifest() *manifest.Manifest {
	return &manifest.Manifest{
		ID:      "com.example.issue-bot",
		Name:    "Issue Bot",
		Version: "1.2.0",
		Secrets: map[string]string{"DEFAULT_SECRET": "from-manifest"},
	}
}

// newTokenModeApp builds an App verifying against the given platform server.
func newTokenModeApp(t *testing.T, platformURL string, sink *captureSink) *App {
	t.Helper()
	cfg := Config{
		Manifest: testManifest(),
		BaseURL:  platformURL,
		Logger:   quietLogger(),
	}
	if sink != nil {
		cfg.Telemetry = sink
	}
	app, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(app.Close)
	return app
}
