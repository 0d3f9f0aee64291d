package kiket

import (
	"github.com/kiket-dev/kiket-go/auth"
	"github.com/kiket-dev/kiket-go/client"
	"github.com/kiket-dev/kiket-go/internal/secrets"
)

// Invocation is everything a handler receives for one verified delivery:
// the parsed payload, the authenticated identity, a platform client scoped
// to the delivery's runtime token, and secret resolution. Request-scoped;
// do not retain it after the handler returns.
type Invocation struct {
	DeliveryID string
	Event      string
	Version    string

	Payload map[string]any
	Auth    *auth.Context
	Client  *client.Client

	secrets *secrets.Resolver
}

// Secret resolves a named secret: payload-scoped values first, then manifest
// defaults, then the process environment. Absence is a normal result.
func (inv *Invocation) Secret(key string) (string, bool) {
	return inv.secrets.Resolve(key)
}

// RequireScopes fails with a *auth.ScopeError when the delivery's token does
// not grant every listed scope. Lets handlers enforce scopes imperatively
// mid-execution, not only at dispatch time.
func (inv *Invocation) RequireScopes(scopes ...string) error {
	return auth.CheckScopes(scopes, inv.Auth.Scopes)
}
