package domain

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors shared by all repository implementations.
var (
	ErrNotFound    = errors.New("record not found")
	ErrAlreadyUsed = errors.New("grant artifact already used")
	ErrNotPending  = errors.New("session is not pending")
)

// CredentialRepository stores registered client applications.
type CredentialRepository interface {
	Create(ctx context.Context, cred *ClientCredential) error
	GetByID(ctx context.Context, id string) (*ClientCredential, error)
	GetByClientID(ctx context.Context, clientID string) (*ClientCredential, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*ClientCredential, error)
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
}

// SessionRepository stores in-flight authorization attempts.
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	GetBySessionID(ctx context.Context, sessionID string) (*Session, error)
	// MarkAuthorized flips a pending session to authorized and records the
	// user, conditionally on status still being pending. Returns
	// ErrNotPending when the session exists but was already completed.
	MarkAuthorized(ctx context.Context, sessionID, userID string, at time.Time) error
	// UpdateTokenSnapshot refreshes the denormalized token fields after a
	// grant. Read-model convenience only.
	UpdateTokenSnapshot(ctx context.Context, sessionID, accessToken, refreshToken string, expiresAt time.Time) error
	// NextLoginNumber returns a monotonically increasing per-credential
	// counter.
	NextLoginNumber(ctx context.Context, credentialID string) (int64, error)
	// DeleteExpired removes sessions past their expiry. Housekeeping hook
	// for the external sweep job.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// AuthCodeRepository stores one-time authorization codes.
type AuthCodeRepository interface {
	Save(ctx context.Context, code *AuthorizationCode) error
	Get(ctx context.Context, code string) (*AuthorizationCode, error)
	// Consume atomically marks the code used and returns its prior state.
	// Returns ErrAlreadyUsed when the code exists but was already redeemed,
	// and ErrNotFound when it does not exist. At most one caller can ever
	// receive a non-error result for a given code.
	Consume(ctx context.Context, code string) (*AuthorizationCode, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// TokenRepository stores access and refresh tokens, keyed by raw value.
type TokenRepository interface {
	StoreAccessToken(ctx context.Context, token *AccessToken) error
	StoreRefreshToken(ctx context.Context, token *RefreshToken) error
	GetAccessToken(ctx context.Context, token string) (*AccessToken, error)
	GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error)
	// RevokeAccessToken marks the token revoked in place. Revocation is
	// permanent regardless of expiry.
	RevokeAccessToken(ctx context.Context, token string) error
	// ConsumeRefreshToken atomically marks the refresh token used, records
	// its successor, and returns its prior state. The credential filter is
	// part of the atomic condition so one client can never consume another
	// client's token. Same contract as AuthCodeRepository.Consume.
	ConsumeRefreshToken(ctx context.Context, token, credentialID, replacedBy string) (*RefreshToken, error)
}

// UserRepository stores end users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	// UpsertByEmail creates the user if absent, otherwise refreshes the
	// display fields, marks the account verified and active, and bumps the
	// last sign-in time. Returns the stored user.
	UpsertByEmail(ctx context.Context, user *User) (*User, error)
}

// SecurityLogRepository is the write-only audit side channel.
type SecurityLogRepository interface {
	Append(ctx context.Context, entry *SecurityLog) error
}

// UsageStatRepository records per-credential operation counters.
type UsageStatRepository interface {
	Record(ctx context.Context, credentialID, operation string, success bool, at time.Time) error
}
