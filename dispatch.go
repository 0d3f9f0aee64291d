package kiket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/kiket-dev/kiket-go/auth"
	"github.com/kiket-dev/kiket-go/client"
	"github.com/kiket-dev/kiket-go/internal/secrets"
	"github.com/kiket-dev/kiket-go/internal/telemetry"
)

// Headers the platform sends with each delivery.
const (
	HeaderSignature    = "X-Kiket-Signature"
	HeaderTimestamp    = "X-Kiket-Timestamp"
	HeaderEventVersion = "X-Kiket-Event-Version"

	// HeaderDelivery carries the SDK-assigned delivery ID back to the caller.
	HeaderDelivery = "X-Kiket-Delivery"
)

const maxBodySize = 1 << 20

func (a *App) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/health", a.handleHealth)
	r.Post("/webhooks/{event}", a.handleWebhook)
	r.Post("/v/{version}/webhooks/{event}", a.handleWebhook)

	return r
}

// loggingMiddleware logs HTTP requests (never payload bodies).
func (a *App) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		a.logger.Info("webhook request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// delivery tracks one inbound request through the dispatch lifecycle.
type delivery struct {
	id      string
	event   string
	version string
	start   time.Time
}

func (a *App) handleWebhook(w http.ResponseWriter, r *http.Request) {
	d := &delivery{
		id:    uuid.NewString(),
		event: chi.URLParam(r, "event"),
		start: time.Now(),
	}
	w.Header().Set(HeaderDelivery, d.id)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		a.fail(w, d, http.StatusInternalServerError, "failed to read request body", "")
		return
	}
	if len(body) > maxBodySize {
		a.fail(w, d, http.StatusRequestEntityTooLarge, "payload too large", "")
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		a.fail(w, d, http.StatusBadRequest, "invalid JSON body", "")
		return
	}

	authCtx, err := a.authenticate(r.Context(), payload, body, r)
	if err != nil {
		a.logger.Warn("delivery authentication failed",
			"delivery_id", d.id, "event", d.event, "error", err)
		a.fail(w, d, http.StatusUnauthorized, err.Error(), "")
		return
	}

	d.version = resolveVersion(r)
	if d.version == "" {
		a.fail(w, d, http.StatusBadRequest, "Event version required", "")
		return
	}

	reg, ok := a.registry.Lookup(d.event, d.version)
	if !ok {
		a.fail(w, d, http.StatusNotFound,
			fmt.Sprintf("no handler registered for %s version %s", d.event, d.version), "")
		return
	}

	if missing := auth.MissingScopes(reg.RequiredScopes, authCtx.Scopes); len(missing) > 0 {
		a.record(d, telemetry.StatusError, "insufficient scopes", "")
		a.respondJSON(w, http.StatusForbidden, map[string]any{
			"error":           "insufficient scopes",
			"required_scopes": reg.RequiredScopes,
			"missing_scopes":  missing,
		})
		return
	}

	inv := &Invocation{
		DeliveryID: d.id,
		Event:      d.event,
		Version:    d.version,
		Payload:    payload,
		Auth:       authCtx,
		Client:     client.New(a.cfg.BaseURL, authCtx.RuntimeToken),
		secrets: secrets.New(payloadSecrets(payload), a.cfg.Manifest.Secrets,
			a.logger.With("delivery_id", d.id)),
	}

	result, kind, err := a.invoke(r.Context(), reg, inv)
	if err != nil {
		a.logger.Error("handler failed",
			"delivery_id", d.id, "event", d.event, "version", d.version,
			"error", err, "error_kind", kind)
		a.fail(w, d, http.StatusInternalServerError, err.Error(), kind)
		return
	}

	if result == nil {
		result = map[string]any{"ok": true}
	}
	a.record(d, telemetry.StatusOK, "", "")
	a.respondJSON(w, http.StatusOK, result)
}

// invoke runs the handler behind a recovery boundary: one misbehaving
// handler must never crash the dispatcher.
func (a *App) invoke(ctx context.Context, reg *Registration, inv *Invocation) (result any, kind string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			kind = "panic"
			err = fmt.Errorf("%v", rec)
		}
	}()

	result, err = reg.Handler(ctx, inv)
	if err != nil {
		return nil, fmt.Sprintf("%T", err), err
	}
	return result, "", nil
}

// authenticate runs the configured verification scheme and builds the
// delivery's auth context. Exactly one auth context exists per authenticated
// request; none is produced on failure.
func (a *App) authenticate(ctx context.Context, payload map[string]any, body []byte, r *http.Request) (*auth.Context, error) {
	if a.cfg.AuthMode == ModeSignature {
		err := auth.VerifySignature(a.cfg.SigningSecret, body,
			r.Header.Get(HeaderSignature), r.Header.Get(HeaderTimestamp))
		if err != nil {
			return nil, err
		}
		return legacyAuthContext(payload), nil
	}

	claims, err := a.verifier.Verify(ctx, payload, a.cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	tok, _ := auth.ExtractRuntimeToken(payload)
	return claims.AuthContext(tok), nil
}

// legacyAuthContext covers the shared-secret scheme: the signature
// authenticates the whole payload but carries no claims, so the delivery
// gets wildcard scopes and identifiers copied from the payload when present.
func legacyAuthContext(payload map[string]any) *auth.Context {
	ac := &auth.Context{
		TokenType: auth.TokenTypeRuntime,
		Scopes:    []string{auth.WildcardScope},
	}
	if tok, ok := auth.ExtractRuntimeToken(payload); ok {
		ac.RuntimeToken = tok
	}
	if v, ok := payload["org_id"].(string); ok {
		ac.OrgID = v
	}
	if v, ok := payload["ext_id"].(string); ok {
		ac.ExtID = v
	}
	if v, ok := payload["proj_id"].(string); ok {
		ac.ProjID = v
	}
	return ac
}

// resolveVersion picks the event version: URL path segment, then the
// version header, then the query parameter.
func resolveVersion(r *http.Request) string {
	if v := chi.URLParam(r, "version"); v != "" {
		return v
	}
	if v := r.Header.Get(HeaderEventVersion); v != "" {
		return v
	}
	return r.URL.Query().Get("version")
}

func payloadSecrets(payload map[string]any) map[string]any {
	if s, ok := payload["secrets"].(map[string]any); ok {
		return s
	}
	return nil
}

func (a *App) record(d *delivery, status, errMsg, errKind string) {
	a.recorder.Record(telemetry.Outcome{
		DeliveryID: d.id,
		Event:      d.event,
		Version:    d.version,
		Status:     status,
		DurationMS: float64(time.Since(d.start).Microseconds()) / 1000.0,
		Error:      errMsg,
		ErrorKind:  errKind,
	})
}

// fail records an error outcome and sends the JSON error response.
func (a *App) fail(w http.ResponseWriter, d *delivery, status int, message, errKind string) {
	a.record(d, telemetry.StatusError, message, errKind)
	a.respondError(w, status, message)
}

func (a *App) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.logger.Error("failed to encode response", "error", err)
	}
}

func (a *App) respondError(w http.ResponseWriter, status int, message string) {
	a.respondJSON(w, status, map[string]string{"error": message})
}
