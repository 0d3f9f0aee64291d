package auth

import (
	"fmt"
	"strings"
)

// WildcardScope grants unrestricted access when present in a token's scopes.
const WildcardScope = "*"

// MissingScopes returns the required scopes that granted does not cover, in
// required order. An empty result means the caller is authorized. A granted
// wildcard satisfies everything.
func MissingScopes(required, granted []string) []string {
	if len(required) == 0 {
		return nil
	}

	have := normalizeScopes(granted)
	if _, ok := have[WildcardScope]; ok {
		return nil
	}

	var missing []string
	seen := make(map[string]struct{}, len(required))
	for _, s := range required {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		if _, ok := have[s]; !ok {
			missing = append(missing, s)
		}
	}
	return missing
}

func normalizeScopes(scopes []string) map[string]struct{} {
	out := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out[s] = struct{}{}
	}
	return out
}

// ScopeError reports a failed scope check. It enumerates the missing scopes
// so handler authors can see exactly what the token lacks.
type ScopeError struct {
	Required  []string
	Available []string
	Missing   []string
}

func (e *ScopeError) Error() string {
	return fmt.Sprintf("missing required scopes: %s", strings.Join(e.Missing, ", "))
}

// CheckScopes runs MissingScopes and converts a non-empty result into a
// *ScopeError. This backs the imperative scope-check callback handlers get
// at invocation time.
func CheckScopes(required, granted []string) error {
	missing := MissingScopes(required, granted)
	if len(missing) == 0 {
		return nil
	}
	return &ScopeError{
		Required:  append([]string(nil), required...),
		Available: append([]string(nil), granted...),
		Missing:   missing,
	}
}
