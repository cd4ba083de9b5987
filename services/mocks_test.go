package services

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/nimbusid/oauthd/domain"
	"github.com/nimbusid/oauthd/ratelimit"
)

// --- Mock Implementations ---

type MockCredentialRepository struct {
	mock.Mock
}

func (m *MockCredentialRepository) Create(ctx context.Context, cred *domain.ClientCredential) error {
	args := m.Called(ctx, cred)
	return args.Error(0)
}

func (m *MockCredentialRepository) GetByID(ctx context.Context, id string) (*domain.ClientCredential, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ClientCredential), args.Error(1)
}

func (m *MockCredentialRepository) GetByClientID(ctx context.Context, clientID string) (*domain.ClientCredential, error) {
	args := m.Called(ctx, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ClientCredential), args.Error(1)
}

func (m *MockCredentialRepository) GetByAPIKey(ctx context.Context, apiKey string) (*domain.ClientCredential, error) {
	args := m.Called(ctx, apiKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ClientCredential), args.Error(1)
}

func (m *MockCredentialRepository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionRepository) GetBySessionID(ctx context.Context, sessionID string) (*domain.Session, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockSessionRepository) MarkAuthorized(ctx context.Context, sessionID, userID string, at time.Time) error {
	args := m.Called(ctx, sessionID, userID, at)
	return args.Error(0)
}

func (m *MockSessionRepository) UpdateTokenSnapshot(ctx context.Context, sessionID, accessToken, refreshToken string, expiresAt time.Time) error {
	args := m.Called(ctx, sessionID, accessToken, refreshToken, expiresAt)
	return args.Error(0)
}

func (m *MockSessionRepository) NextLoginNumber(ctx context.Context, credentialID string) (int64, error) {
	args := m.Called(ctx, credentialID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

type MockAuthCodeRepository struct {
	mock.Mock
}

func (m *MockAuthCodeRepository) Save(ctx context.Context, code *domain.AuthorizationCode) error {
	args := m.Called(ctx, code)
	return args.Error(0)
}

func (m *MockAuthCodeRepository) Get(ctx context.Context, codeValue string) (*domain.AuthorizationCode, error) {
	args := m.Called(ctx, codeValue)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AuthorizationCode), args.Error(1)
}

func (m *MockAuthCodeRepository) Consume(ctx context.Context, codeValue string) (*domain.AuthorizationCode, error) {
	args := m.Called(ctx, codeValue)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AuthorizationCode), args.Error(1)
}

func (m *MockAuthCodeRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

type MockTokenRepository struct {
	mock.Mock
}

func (m *MockTokenRepository) StoreAccessToken(ctx context.Context, token *domain.AccessToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockTokenRepository) StoreRefreshToken(ctx context.Context, token *domain.RefreshToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockTokenRepository) GetAccessToken(ctx context.Context, tokenValue string) (*domain.AccessToken, error) {
	args := m.Called(ctx, tokenValue)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AccessToken), args.Error(1)
}

func (m *MockTokenRepository) GetRefreshToken(ctx context.Context, tokenValue string) (*domain.RefreshToken, error) {
	args := m.Called(ctx, tokenValue)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RefreshToken), args.Error(1)
}

func (m *MockTokenRepository) RevokeAccessToken(ctx context.Context, tokenValue string) error {
	args := m.Called(ctx, tokenValue)
	return args.Error(0)
}

func (m *MockTokenRepository) ConsumeRefreshToken(ctx context.Context, tokenValue, credentialID, replacedBy string) (*domain.RefreshToken, error) {
	args := m.Called(ctx, tokenValue, credentialID, replacedBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RefreshToken), args.Error(1)
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) UpsertByEmail(ctx context.Context, user *domain.User) (*domain.User, error) {
	args := m.Called(ctx, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

type MockUsageStatRepository struct {
	mock.Mock
}

func (m *MockUsageStatRepository) Record(ctx context.Context, credentialID, operation string, success bool, at time.Time) error {
	args := m.Called(ctx, credentialID, operation, success, at)
	return args.Error(0)
}

// fakeLimiter is a canned-answer limiter for service tests.
type fakeLimiter struct {
	allowed bool
}

func (f *fakeLimiter) Check(context.Context, string, domain.RateLimitPolicy) (ratelimit.Result, error) {
	return ratelimit.Result{Allowed: f.allowed}, nil
}

func (f *fakeLimiter) Record(context.Context, string, bool, domain.RateLimitPolicy) error {
	return nil
}
