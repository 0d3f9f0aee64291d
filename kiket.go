// Package kiket is the Kiket extension SDK: register handlers for the
// events your extension declares, then serve the webhook endpoint. The SDK
// authenticates every delivery (platform-signed runtime tokens, or the
// legacy shared-secret scheme), enforces scope requirements, and hands your
// handler a verified payload plus a token-scoped API client.
//
//	m, _ := manifest.Load("extension.yaml")
//	app, _ := kiket.New(kiket.Config{Manifest: m})
//	app.On("issue.created", "1", handleIssueCreated, "issues.read")
//	app.Start(ctx)
package kiket

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kiket-dev/kiket-go/auth"
	"github.com/kiket-dev/kiket-go/internal/log"
	"github.com/kiket-dev/kiket-go/internal/telemetry"
	"github.com/kiket-dev/kiket-go/manifest"
)

// Mode selects the delivery verification scheme.
type Mode string

const (
	// ModeToken verifies platform-signed runtime tokens against the JWKS.
	ModeToken Mode = "token"
	// ModeSignature verifies the legacy shared-secret HMAC headers.
	ModeSignature Mode = "signature"
)

// DefaultListen is the webhook port extensions bind when Listen is unset.
const DefaultListen = ":8288"

// Config wires an App. Manifest is required; everything else has defaults.
type Config struct {
	Manifest *manifest.Manifest

	// BaseURL overrides the manifest's base_url.
	BaseURL string

	// SigningSecret overrides the manifest's signing_secret (legacy mode).
	SigningSecret string

	Listen string

	// AuthMode defaults to ModeToken, or ModeSignature when only a signing
	// secret is configured.
	AuthMode Mode

	Logger *slog.Logger

	// Telemetry overrides the outcome sink. Defaults to the structured log.
	Telemetry telemetry.Sink
}

// App is one extension instance: its dispatch table, verifiers, and server.
type App struct {
	cfg      Config
	registry *Registry
	keys     *auth.KeySetCache
	verifier *auth.TokenVerifier
	recorder *telemetry.Recorder
	logger   *slog.Logger
	server   *http.Server
}

// New validates cfg and builds an App. Auth misconfiguration fails here, at
// startup, rather than on the first delivery.
func New(cfg Config) (*App, error) {
	if cfg.Manifest == nil {
		return nil, fmt.Errorf("manifest is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = cfg.Manifest.BaseURL
	}
	if cfg.SigningSecret == "" {
		cfg.SigningSecret = cfg.Manifest.SigningSecret
	}
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.AuthMode == "" {
		if cfg.BaseURL == "" && cfg.SigningSecret != "" {
			cfg.AuthMode = ModeSignature
		} else {
			cfg.AuthMode = ModeToken
		}
	}

	switch cfg.AuthMode {
	case ModeToken:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("%w: token mode needs a base URL", auth.ErrNotConfigured)
		}
	case ModeSignature:
		if cfg.SigningSecret == "" {
			return nil, fmt.Errorf("%w: signature mode needs a signing secret", auth.ErrNotConfigured)
		}
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.AuthMode)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.WithComponent("kiket")
	}
	sink := cfg.Telemetry
	if sink == nil {
		sink = &telemetry.LogSink{Logger: logger}
	}

	keys := auth.NewKeySetCache()
	app := &App{
		cfg:      cfg,
		registry: NewRegistry(),
		keys:     keys,
		verifier: auth.NewTokenVerifier(keys),
		recorder: telemetry.NewRecorder(sink, logger),
		logger:   logger,
	}
	return app, nil
}

// On registers a handler for (event, version). Registering the same pair
// again replaces the prior handler. Call during startup, before Start.
func (a *App) On(event, version string, handler HandlerFunc, requiredScopes ...string) {
	a.registry.Register(event, version, handler, requiredScopes...)
	a.logger.Debug("handler registered",
		"event", event, "version", version, "required_scopes", requiredScopes)
}

// Handler returns the webhook router, for embedding in an existing server
// or driving with httptest.
func (a *App) Handler() http.Handler {
	return a.setupRoutes()
}

// Start serves the webhook endpoint until ctx is cancelled (blocking), then
// shuts down gracefully and flushes telemetry.
func (a *App) Start(ctx context.Context) error {
	a.server = &http.Server{
		Addr:         a.cfg.Listen,
		Handler:      a.setupRoutes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	a.logger.Info("extension serving",
		"listen", a.cfg.Listen,
		"extension_id", a.cfg.Manifest.ID,
		"auth_mode", string(a.cfg.AuthMode),
		"events", a.registry.EventNames(),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("extension shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		a.Close()
		return ctx.Err()
	case err := <-errCh:
		a.Close()
		return fmt.Errorf("server error: %w", err)
	}
}

// Close flushes and stops the telemetry recorder. Start calls it on
// shutdown; call it directly when using Handler without Start.
func (a *App) Close() {
	a.recorder.Close()
}

type healthResponse struct {
	Status           string   `json:"status"`
	ExtensionID      string   `json:"extension_id"`
	ExtensionVersion string   `json:"extension_version"`
	RegisteredEvents []string `json:"registered_events"`
}

func (a *App) handleHealth(w http.ResponseWriter, _ *http.Request) {
	a.respondJSON(w, http.StatusOK, healthResponse{
		Status:           "ok",
		ExtensionID:      a.cfg.Manifest.ID,
		ExtensionVersion: a.cfg.Manifest.Version,
		RegisteredEvents: a.registry.EventNames(),
	})
}
