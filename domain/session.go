package domain

import "time"

// SessionStatus is the lifecycle state of an authorization attempt.
type SessionStatus string

const (
	SessionStatusPending    SessionStatus = "pending"
	SessionStatusAuthorized SessionStatus = "authorized"
	SessionStatusExpired    SessionStatus = "expired"
	SessionStatusRevoked    SessionStatus = "revoked"
)

// SessionTTL is how long a pending authorization attempt stays redeemable.
const SessionTTL = 10 * time.Minute

// Session is one in-flight OAuth authorization attempt. It is created at
// /authorize, becomes authorized exactly once at /auth/complete, and can
// never be authorized after its expiry.
type Session struct {
	SessionID    string        `bson:"_id"                     json:"session_id"`
	RotationID   string        `bson:"rotation_id"             json:"rotation_id"`
	LoginNumber  int64         `bson:"login_number"            json:"login_number"`
	UserID       string        `bson:"user_id,omitempty"       json:"user_id,omitempty"`
	CredentialID string        `bson:"credential_id"           json:"credential_id"`
	State        string        `bson:"state,omitempty"         json:"state,omitempty"`
	RedirectURI  string        `bson:"redirect_uri"            json:"redirect_uri"`
	Scopes       []string      `bson:"scopes"                  json:"scopes"`
	Status       SessionStatus `bson:"status"                  json:"status"`
	CreatedAt    time.Time     `bson:"created_at"              json:"created_at"`
	ExpiresAt    time.Time     `bson:"expires_at"              json:"expires_at"`
	AuthorizedAt *time.Time    `bson:"authorized_at,omitempty" json:"authorized_at,omitempty"`

	CodeChallenge       string `bson:"code_challenge,omitempty"        json:"code_challenge,omitempty"`
	CodeChallengeMethod string `bson:"code_challenge_method,omitempty" json:"code_challenge_method,omitempty"`

	// Denormalized token snapshot, kept for session-level bookkeeping only.
	// Never consulted for a security decision; the token collections are
	// authoritative.
	AccessToken    string     `bson:"access_token,omitempty"     json:"-"`
	RefreshToken   string     `bson:"refresh_token,omitempty"    json:"-"`
	TokenExpiresAt *time.Time `bson:"token_expires_at,omitempty" json:"token_expires_at,omitempty"`
}

// IsExpired reports whether the session has passed its validity window.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
