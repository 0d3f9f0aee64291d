package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured means no signing secret (or base URL) was supplied
	// for the active verification mode. Operator mistake; callers should
	// fail fast at startup where they can.
	ErrNotConfigured = errors.New("webhook authentication not configured")

	// ErrMissingHeader means the signature or timestamp header was absent.
	ErrMissingHeader = errors.New("missing signature or timestamp header")

	// ErrStaleRequest means the delivery timestamp is outside the
	// freshness window in either direction.
	ErrStaleRequest = errors.New("request timestamp outside freshness window")

	// ErrInvalidSignature means the recomputed HMAC did not match.
	ErrInvalidSignature = errors.New("signature verification failed")

	// ErrMissingToken means the payload carried no runtime token.
	ErrMissingToken = errors.New("runtime token missing from payload")

	// ErrNoSigningKey means the fetched key set held no ES256 signature key.
	ErrNoSigningKey = errors.New("no usable signing key in key set")

	// ErrTokenExpired means the runtime token's expiration has passed.
	ErrTokenExpired = errors.New("runtime token expired")

	// ErrInvalidIssuer means the runtime token was not issued by the platform.
	ErrInvalidIssuer = errors.New("runtime token issuer mismatch")

	// ErrInvalidToken covers all other runtime token validation failures.
	ErrInvalidToken = errors.New("runtime token invalid")
)

// FetchError reports a JWKS retrieval failure: network, non-success HTTP
// status, or an unparseable document.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("jwks fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
