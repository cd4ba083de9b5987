// Package websession is the dashboard login subsystem. It reuses the
// single-use-then-rotate refresh pattern of the OAuth core but is a
// separate store and lifecycle: its sessions are cookie-backed dashboard
// logins, not OAuth authorization attempts.
package websession

import (
	"context"
	"time"
)

// Session lifetimes for the dashboard.
const (
	TokenTTL   = time.Hour
	RefreshTTL = 7 * 24 * time.Hour
)

// Session is one dashboard session generation. Refreshing mints a new
// generation and marks the old one used.
type Session struct {
	ID           string    `bson:"_id,omitempty"         json:"id"`
	UserID       string    `bson:"user_id"               json:"user_id"`
	SessionToken string    `bson:"session_token"         json:"-"`
	RefreshToken string    `bson:"refresh_token"         json:"-"`
	UserAgent    string    `bson:"user_agent,omitempty"  json:"user_agent,omitempty"`
	IPAddress    string    `bson:"ip_address,omitempty"  json:"ip_address,omitempty"`
	ExpiresAt    time.Time `bson:"expires_at"            json:"expires_at"`
	RefreshUntil time.Time `bson:"refresh_until"         json:"refresh_until"`
	CreatedAt    time.Time `bson:"created_at"            json:"created_at"`
	Used         bool      `bson:"used"                  json:"used"`
	ReplacedBy   string    `bson:"replaced_by,omitempty" json:"replaced_by,omitempty"`
	IsRevoked    bool      `bson:"is_revoked"            json:"is_revoked"`
}

// Repository stores dashboard sessions.
type Repository interface {
	Create(ctx context.Context, session *Session) error
	GetBySessionToken(ctx context.Context, token string) (*Session, error)
	// ConsumeRefresh atomically marks the session's refresh token used and
	// records the successor id, returning the prior state. Second and later
	// calls for the same refresh token fail.
	ConsumeRefresh(ctx context.Context, refreshToken, replacedBy string) (*Session, error)
	Revoke(ctx context.Context, id string) error
}
