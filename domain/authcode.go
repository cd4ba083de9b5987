package domain

import "time"

// AuthCodeTTL is the redemption window for an authorization code.
const AuthCodeTTL = 10 * time.Minute

// AuthorizationCode is the one-time artifact exchanged for a token pair.
// Redeemed codes are kept (marked used) for audit, never deleted.
type AuthorizationCode struct {
	Code         string    `bson:"_id"           json:"code"`
	SessionID    string    `bson:"session_id"    json:"session_id"`
	UserID       string    `bson:"user_id"       json:"user_id"`
	CredentialID string    `bson:"credential_id" json:"credential_id"`
	RedirectURI  string    `bson:"redirect_uri"  json:"redirect_uri"`
	Scopes       []string  `bson:"scopes"        json:"scopes"`
	ExpiresAt    time.Time `bson:"expires_at"    json:"expires_at"`
	Used         bool      `bson:"used"          json:"used"`
	CreatedAt    time.Time `bson:"created_at"    json:"created_at"`

	CodeChallenge       string `bson:"code_challenge,omitempty"        json:"code_challenge,omitempty"`
	CodeChallengeMethod string `bson:"code_challenge_method,omitempty" json:"code_challenge_method,omitempty"`
}

// IsExpired reports whether the code has passed its redemption window.
func (c *AuthorizationCode) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
