// Package secrets resolves named secrets for a single webhook delivery.
//
// Resolution order: payload-scoped secrets sent with the delivery, then the
// extension manifest's declared defaults, then the process environment.
// Absence is a normal outcome, never an error; callers are expected to
// handle missing configuration explicitly.
package secrets

import (
	"fmt"
	"log/slog"
	"os"
)

// Resolver looks up secrets for one delivery. Build one per request via New.
type Resolver struct {
	payload  map[string]any
	defaults map[string]string
	logger   *slog.Logger
}

// New returns a resolver over the delivery's payload secrets and the
// process-wide defaults from the manifest.
func New(payload map[string]any, defaults map[string]string, logger *slog.Logger) *Resolver {
	return &Resolver{payload: payload, defaults: defaults, logger: logger}
}

// Resolve returns the secret value for key and whether it was found.
// Non-string payload values are coerced to their string form, since upstream
// serializers are not consistent about value types.
func (r *Resolver) Resolve(key string) (string, bool) {
	if v, ok := r.payload[key]; ok {
		r.logSource(key, "payload")
		switch s := v.(type) {
		case string:
			return s, true
		default:
			return fmt.Sprint(v), true
		}
	}

	if v, ok := r.defaults[key]; ok {
		r.logSource(key, "manifest")
		return v, true
	}

	if v, ok := os.LookupEnv(key); ok {
		r.logSource(key, "environment")
		return v, true
	}

	return "", false
}

func (r *Resolver) logSource(key, source string) {
	if r.logger != nil {
		// Value is never logged, only where it came from.
		r.logger.Debug("secret resolved", "key", key, "source", source)
	}
}
