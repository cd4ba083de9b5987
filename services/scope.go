package services

import "strings"

// Recognized scopes. Tokens outside this set are silently dropped rather
// than rejected, so newer clients keep working against older deployments.
var recognizedScopes = map[string]struct{}{
	"profile":    {},
	"email":      {},
	"openid":     {},
	"read:user":  {},
	"write:user": {},
}

// defaultScopes is the fallback used by the refresh grant when the
// originating session can no longer be found.
var defaultScopes = []string{"openid", "profile", "email"}

// ParseScopes splits a raw scope string and keeps only recognized scopes,
// preserving request order and dropping duplicates. An empty result means
// the request carried no recognized scope at all.
func ParseScopes(raw string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, s := range strings.Fields(raw) {
		if _, ok := recognizedScopes[s]; !ok {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// HasScope reports whether scopes contains the named scope.
func HasScope(scopes []string, name string) bool {
	for _, s := range scopes {
		if s == name {
			return true
		}
	}
	return false
}

// JoinScopes renders scopes as the space separated wire form.
func JoinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}
