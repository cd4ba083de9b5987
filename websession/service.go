package websession

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/nimbusid/oauthd/api"
	"github.com/nimbusid/oauthd/domain"
)

// Sentinel errors surfaced to the HTTP layer, which maps them to 401.
var (
	ErrInvalidCredentials = errors.New("websession: invalid credentials")
	ErrInvalidSession     = errors.New("websession: invalid or expired session")
)

// Service authenticates dashboard users and rotates their sessions.
type Service struct {
	users    domain.UserRepository
	sessions Repository
}

func NewService(users domain.UserRepository, sessions Repository) *Service {
	return &Service{users: users, sessions: sessions}
}

// Login verifies an email/password pair and creates a fresh session.
func (s *Service) Login(ctx context.Context, email, password, userAgent, ip string) (*api.WebSessionResponse, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Burn a comparison anyway so unknown emails cost the same
			// as wrong passwords.
			_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOa8V1rH0KXG7yN0dZT5yY1r5y1r5y1r5"), []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive || user.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		log.Debug().Str("user_id", user.ID).Msg("dashboard login rejected")
		return nil, ErrInvalidCredentials
	}
	return s.mint(ctx, user.ID, userAgent, ip)
}

// Refresh exchanges a refresh token for a new session generation. The old
// refresh token is single use; the old session token stops working.
func (s *Service) Refresh(ctx context.Context, refreshToken, userAgent, ip string) (*api.WebSessionResponse, error) {
	nextID := uuid.NewString()
	prev, err := s.sessions.ConsumeRefresh(ctx, refreshToken, nextID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrAlreadyUsed) {
			return nil, ErrInvalidSession
		}
		return nil, err
	}
	now := time.Now()
	if prev.IsRevoked || now.After(prev.RefreshUntil) {
		return nil, ErrInvalidSession
	}
	resp, err := s.mintWithID(ctx, nextID, prev.UserID, userAgent, ip)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Revoke(ctx, prev.ID); err != nil {
		log.Warn().Err(err).Str("session_id", prev.ID).Msg("failed to revoke rotated dashboard session")
	}
	return resp, nil
}

// Validate resolves a session token to its user id.
func (s *Service) Validate(ctx context.Context, sessionToken string) (string, error) {
	sess, err := s.sessions.GetBySessionToken(ctx, sessionToken)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", ErrInvalidSession
		}
		return "", err
	}
	if sess.IsRevoked || sess.Used || time.Now().After(sess.ExpiresAt) {
		return "", ErrInvalidSession
	}
	return sess.UserID, nil
}

func (s *Service) mint(ctx context.Context, userID, userAgent, ip string) (*api.WebSessionResponse, error) {
	return s.mintWithID(ctx, uuid.NewString(), userID, userAgent, ip)
}

func (s *Service) mintWithID(ctx context.Context, id, userID, userAgent, ip string) (*api.WebSessionResponse, error) {
	now := time.Now()
	sess := &Session{
		ID:           id,
		UserID:       userID,
		SessionToken: newToken(),
		RefreshToken: newToken(),
		UserAgent:    userAgent,
		IPAddress:    ip,
		ExpiresAt:    now.Add(TokenTTL),
		RefreshUntil: now.Add(RefreshTTL),
		CreatedAt:    now,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	return &api.WebSessionResponse{
		SessionToken: sess.SessionToken,
		RefreshToken: sess.RefreshToken,
		ExpiresIn:    int(TokenTTL.Seconds()),
	}, nil
}

func newToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
