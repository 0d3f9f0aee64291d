package auth

import "time"

// TokenType identifies how a delivery was authenticated.
type TokenType string

// TokenTypeRuntime is the only token type the platform currently issues.
const TokenTypeRuntime TokenType = "runtime"

// Context is the verified identity of one webhook delivery. It is built
// exactly once per successfully authenticated request and discarded when the
// request completes. Read-only after construction.
type Context struct {
	RuntimeToken string
	TokenType    TokenType

	// ExpiresAt is zero when the token carries no expiration (legacy mode).
	ExpiresAt time.Time

	Scopes []string

	OrgID  string
	ExtID  string
	ProjID string
}

// AuthContext converts verified claims into a request-scoped Context.
func (c *Claims) AuthContext(token string) *Context {
	ac := &Context{
		RuntimeToken: token,
		TokenType:    TokenTypeRuntime,
		Scopes:       append([]string(nil), c.Scopes...),
		OrgID:        c.OrgID,
		ExtID:        c.ExtID,
		ProjID:       c.ProjID,
	}
	if c.ExpiresAt != nil {
		ac.ExpiresAt = c.ExpiresAt.Time
	}
	return ac
}
