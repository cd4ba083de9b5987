package domain

import "time"

// Token lifetimes. Expiry is data, not scheduled cancellation: an expired
// token is rejected at next use, not proactively evicted.
const (
	AccessTokenTTL  = time.Hour
	RefreshTokenTTL = 30 * 24 * time.Hour
)

// AccessToken is a short lived bearer credential. The raw token value is the
// store key and must be treated as a secret (never logged in full).
type AccessToken struct {
	Token        string    `bson:"_id"           json:"token"`
	UserID       string    `bson:"user_id"       json:"user_id"`
	CredentialID string    `bson:"credential_id" json:"credential_id"`
	SessionID    string    `bson:"session_id"    json:"session_id"`
	Scopes       []string  `bson:"scopes"        json:"scopes"`
	TokenType    string    `bson:"token_type"    json:"token_type"`
	ExpiresAt    time.Time `bson:"expires_at"    json:"expires_at"`
	CreatedAt    time.Time `bson:"created_at"    json:"created_at"`
	IsRevoked    bool      `bson:"is_revoked"    json:"is_revoked"`
}

// IsValid reports whether the token is neither revoked nor expired.
func (t *AccessToken) IsValid(now time.Time) bool {
	return !t.IsRevoked && now.Before(t.ExpiresAt)
}

// RefreshToken is the long lived rotation credential. Single use: redeeming
// it marks it used, revokes its paired access token, and records the
// successor in ReplacedBy.
type RefreshToken struct {
	Token         string    `bson:"_id"                    json:"token"`
	UserID        string    `bson:"user_id"                json:"user_id"`
	CredentialID  string    `bson:"credential_id"          json:"credential_id"`
	SessionID     string    `bson:"session_id"             json:"session_id"`
	AccessTokenID string    `bson:"access_token_id"        json:"access_token_id"`
	ExpiresAt     time.Time `bson:"expires_at"             json:"expires_at"`
	CreatedAt     time.Time `bson:"created_at"             json:"created_at"`
	Used          bool      `bson:"used"                   json:"used"`
	ReplacedBy    string    `bson:"replaced_by,omitempty"  json:"replaced_by,omitempty"`
}

// IsExpired reports whether the refresh token has passed its lifetime.
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
