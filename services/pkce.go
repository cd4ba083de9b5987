package services

import (
	"crypto/sha256"
	"encoding/base64"
)

// PKCE code challenge methods.
const (
	PKCEMethodS256  = "S256"
	PKCEMethodPlain = "plain"
)

// ValidPKCEMethod reports whether method is a recognized challenge method.
func ValidPKCEMethod(method string) bool {
	return method == PKCEMethodS256 || method == PKCEMethodPlain
}

// VerifyCodeChallenge validates a PKCE code verifier against the stored
// challenge. For S256 the verifier must hash to the challenge
// (base64url-encoded SHA-256, no padding); for plain they must be equal.
func VerifyCodeChallenge(verifier, challenge, method string) bool {
	if challenge == "" || verifier == "" {
		return false
	}
	switch method {
	case PKCEMethodPlain:
		return verifier == challenge
	case PKCEMethodS256, "":
		h := sha256.Sum256([]byte(verifier))
		return base64.RawURLEncoding.EncodeToString(h[:]) == challenge
	default:
		return false
	}
}
