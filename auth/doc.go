// Package auth verifies inbound Kiket webhook deliveries.
//
// Two schemes are supported:
//
//   - Runtime tokens: short-lived ES256 JWTs minted by the platform per
//     delivery, verified against the platform's published JWKS. The key set
//     is fetched from {base_url}/.well-known/jwks.json and cached for one
//     hour (KeySetCache), so steady-state verification needs no network
//     round trip.
//
//   - Legacy shared-secret signatures: hex(HMAC-SHA256(secret,
//     "{timestamp}.{body}")) carried in the X-Kiket-Signature and
//     X-Kiket-Timestamp headers, with a ±300s freshness window to bound
//     replay exposure. Comparison is constant-time.
//
// Scope checks (MissingScopes) treat a granted "*" as unrestricted access.
package auth
