package services

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nimbusid/oauthd/domain"
	oautherr "github.com/nimbusid/oauthd/errors"
	"github.com/nimbusid/oauthd/internal/audit"
)

type tokenFixture struct {
	creds    *MockCredentialRepository
	sessions *MockSessionRepository
	codes    *MockAuthCodeRepository
	tokens   *MockTokenRepository
	usage    *MockUsageStatRepository
	limiter  *fakeLimiter
	svc      *TokenService
}

func newTokenFixture() *tokenFixture {
	f := &tokenFixture{
		creds:    new(MockCredentialRepository),
		sessions: new(MockSessionRepository),
		codes:    new(MockAuthCodeRepository),
		tokens:   new(MockTokenRepository),
		usage:    new(MockUsageStatRepository),
		limiter:  &fakeLimiter{allowed: true},
	}
	f.usage.On("Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil).Maybe()
	f.creds.On("TouchLastUsed", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	f.sessions.On("UpdateTokenSnapshot", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil).Maybe()
	f.svc = NewTokenService(f.creds, f.sessions, f.codes, f.tokens, f.usage,
		f.limiter, audit.NewRecorder(nil), nil)
	return f
}

func (f *tokenFixture) expectClient(cred *domain.ClientCredential) {
	f.creds.On("GetByClientID", mock.Anything, cred.ClientID).Return(cred, nil)
}

func issuedCode() *domain.AuthorizationCode {
	now := time.Now().UTC()
	return &domain.AuthorizationCode{
		Code:         "code-1",
		SessionID:    "sess-1",
		UserID:       "user-1",
		CredentialID: "cred-1",
		RedirectURI:  "https://app.example.com/callback",
		Scopes:       []string{"openid", "email"},
		ExpiresAt:    now.Add(5 * time.Minute),
		CreatedAt:    now.Add(-time.Minute),
	}
}

func codeGrantRequest() TokenRequest {
	return TokenRequest{
		GrantType:    "authorization_code",
		ClientID:     "client-abc",
		ClientSecret: "secret",
		Code:         "code-1",
		RedirectURI:  "https://app.example.com/callback",
	}
}

func TestGrantRequiresGrantType(t *testing.T) {
	f := newTokenFixture()
	_, err := f.svc.Grant(context.Background(), TokenRequest{})
	require.Error(t, err)
	assert.Equal(t, oautherr.InvalidRequest, err.(*oautherr.OAuth2Error).Code)
}

func TestGrantUnsupportedGrantType(t *testing.T) {
	f := newTokenFixture()
	_, err := f.svc.Grant(context.Background(), TokenRequest{
		GrantType: "client_credentials", ClientID: "c", ClientSecret: "s",
	})
	require.Error(t, err)
	assert.Equal(t, oautherr.UnsupportedGrantType, err.(*oautherr.OAuth2Error).Code)
}

func TestGrantWrongSecretDoesNotTouchCode(t *testing.T) {
	f := newTokenFixture()
	f.expectClient(activeCredential())

	req := codeGrantRequest()
	req.ClientSecret = "wrong"
	_, err := f.svc.Grant(context.Background(), req)
	require.Error(t, err)

	oauthErr := err.(*oautherr.OAuth2Error)
	assert.Equal(t, oautherr.InvalidClient, oauthErr.Code)
	assert.Equal(t, 401, oauthErr.Status())
	// Failed client auth must leave the code redeemable.
	f.codes.AssertNotCalled(t, "Consume", mock.Anything, mock.Anything)
}

func TestGrantUnknownClientSameErrorAsWrongSecret(t *testing.T) {
	f := newTokenFixture()
	f.creds.On("GetByClientID", mock.Anything, "client-abc").Return(nil, domain.ErrNotFound)

	_, errUnknown := f.svc.Grant(context.Background(), codeGrantRequest())
	require.Error(t, errUnknown)

	f2 := newTokenFixture()
	f2.expectClient(activeCredential())
	req := codeGrantRequest()
	req.ClientSecret = "wrong"
	_, errWrong := f2.svc.Grant(context.Background(), req)
	require.Error(t, errWrong)

	assert.Equal(t, errUnknown.Error(), errWrong.Error())
}

func TestExchangeAuthorizationCodeHappyPath(t *testing.T) {
	f := newTokenFixture()
	f.expectClient(activeCredential())
	f.codes.On("Consume", mock.Anything, "code-1").Return(issuedCode(), nil)

	var storedAccess *domain.AccessToken
	var storedRefresh *domain.RefreshToken
	f.tokens.On("StoreAccessToken", mock.Anything, mock.AnythingOfType("*domain.AccessToken")).
		Run(func(args mock.Arguments) { storedAccess = args.Get(1).(*domain.AccessToken) }).
		Return(nil)
	f.tokens.On("StoreRefreshToken", mock.Anything, mock.AnythingOfType("*domain.RefreshToken")).
		Run(func(args mock.Arguments) { storedRefresh = args.Get(1).(*domain.RefreshToken) }).
		Return(nil)

	resp, err := f.svc.Grant(context.Background(), codeGrantRequest())
	require.NoError(t, err)
	require.NotNil(t, storedAccess)
	require.NotNil(t, storedRefresh)

	assert.Equal(t, storedAccess.Token, resp.AccessToken)
	assert.Equal(t, storedRefresh.Token, resp.RefreshToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, "openid email", resp.Scope)
	assert.InDelta(t, int(domain.AccessTokenTTL.Seconds()), resp.ExpiresIn, 5)

	assert.Equal(t, "user-1", storedAccess.UserID)
	assert.Equal(t, "sess-1", storedAccess.SessionID)
	assert.Equal(t, storedAccess.Token, storedRefresh.AccessTokenID)
	assert.WithinDuration(t, time.Now().Add(domain.RefreshTokenTTL), storedRefresh.ExpiresAt, 5*time.Second)
}

func TestExchangeReplayedCode(t *testing.T) {
	f := newTokenFixture()
	f.expectClient(activeCredential())
	f.codes.On("Consume", mock.Anything, "code-1").Return(nil, domain.ErrAlreadyUsed)

	_, err := f.svc.Grant(context.Background(), codeGrantRequest())
	require.Error(t, err)
	oauthErr := err.(*oautherr.OAuth2Error)
	assert.Equal(t, oautherr.InvalidGrant, oauthErr.Code)
	assert.Contains(t, oauthErr.Description, "already used")
}

func TestExchangeUnknownCode(t *testing.T) {
	f := newTokenFixture()
	f.expectClient(activeCredential())
	f.codes.On("Consume", mock.Anything, "code-1").Return(nil, domain.ErrNotFound)

	_, err := f.svc.Grant(context.Background(), codeGrantRequest())
	require.Error(t, err)
	assert.Equal(t, oautherr.InvalidGrant, err.(*oautherr.OAuth2Error).Code)
}

func TestExchangeExpiredCode(t *testing.T) {
	f := newTokenFixture()
	f.expectClient(activeCredential())
	code := issuedCode()
	code.ExpiresAt = time.Now().UTC().Add(-time.Second)
	f.codes.On("Consume", mock.Anything, "code-1").Return(code, nil)

	_, err := f.svc.Grant(context.Background(), codeGrantRequest())
	require.Error(t, err)
	oauthErr := err.(*oautherr.OAuth2Error)
	assert.Equal(t, oautherr.InvalidGrant, oauthErr.Code)
	assert.Contains(t, oauthErr.Description, "expired")
}

func TestExchangeCodeIssuedToOtherClient(t *testing.T) {
	f := newTokenFixture()
	f.expectClient(activeCredential())
	code := issuedCode()
	code.CredentialID = "cred-other"
	f.codes.On("Consume", mock.Anything, "code-1").Return(code, nil)

	_, err := f.svc.Grant(context.Background(), codeGrantRequest())
	require.Error(t, err)
	assert.Equal(t, oautherr.InvalidGrant, err.(*oautherr.OAuth2Error).Code)
}

func TestExchangeRedirectURIMismatch(t *testing.T) {
	f := newTokenFixture()
	f.expectClient(activeCredential())
	f.codes.On("Consume", mock.Anything, "code-1").Return(issuedCode(), nil)

	req := codeGrantRequest()
	req.RedirectURI = "https://app.example.com/callback/" // trailing slash differs
	_, err := f.svc.Grant(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, oautherr.InvalidGrant, err.(*oautherr.OAuth2Error).Code)
}

func TestExchangePKCE(t *testing.T) {
	verifier := "correct-horse-battery-staple-verifier"
	h := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(h[:])

	t.Run("missing verifier", func(t *testing.T) {
		f := newTokenFixture()
		f.expectClient(activeCredential())
		code := issuedCode()
		code.CodeChallenge = challenge
		code.CodeChallengeMethod = PKCEMethodS256
		f.codes.On("Consume", mock.Anything, "code-1").Return(code, nil)

		_, err := f.svc.Grant(context.Background(), codeGrantRequest())
		require.Error(t, err)
		assert.Equal(t, oautherr.InvalidRequest, err.(*oautherr.OAuth2Error).Code)
	})

	t.Run("wrong verifier", func(t *testing.T) {
		f := newTokenFixture()
		f.expectClient(activeCredential())
		code := issuedCode()
		code.CodeChallenge = challenge
		code.CodeChallengeMethod = PKCEMethodS256
		f.codes.On("Consume", mock.Anything, "code-1").Return(code, nil)

		req := codeGrantRequest()
		req.CodeVerifier = "not-the-verifier"
		_, err := f.svc.Grant(context.Background(), req)
		require.Error(t, err)
		assert.Equal(t, oautherr.InvalidGrant, err.(*oautherr.OAuth2Error).Code)
	})

	t.Run("correct verifier", func(t *testing.T) {
		f := newTokenFixture()
		f.expectClient(activeCredential())
		code := issuedCode()
		code.CodeChallenge = challenge
		code.CodeChallengeMethod = PKCEMethodS256
		f.codes.On("Consume", mock.Anything, "code-1").Return(code, nil)
		f.tokens.On("StoreAccessToken", mock.Anything, mock.Anything).Return(nil)
		f.tokens.On("StoreRefreshToken", mock.Anything, mock.Anything).Return(nil)

		req := codeGrantRequest()
		req.CodeVerifier = verifier
		resp, err := f.svc.Grant(context.Background(), req)
		require.NoError(t, err)
		assert.NotEmpty(t, resp.AccessToken)
	})
}

func TestGrantRateLimited(t *testing.T) {
	f := newTokenFixture()
	f.limiter.allowed = false
	f.expectClient(activeCredential())

	_, err := f.svc.Grant(context.Background(), codeGrantRequest())
	require.Error(t, err)
	oauthErr := err.(*oautherr.OAuth2Error)
	assert.Equal(t, oautherr.TemporarilyUnavailable, oauthErr.Code)
	assert.Equal(t, 503, oauthErr.Status())
	f.codes.AssertNotCalled(t, "Consume", mock.Anything, mock.Anything)
}

func issuedRefreshToken() *domain.RefreshToken {
	now := time.Now().UTC()
	return &domain.RefreshToken{
		Token:         "refresh-1",
		UserID:        "user-1",
		CredentialID:  "cred-1",
		SessionID:     "sess-1",
		AccessTokenID: "access-1",
		ExpiresAt:     now.Add(24 * time.Hour),
		CreatedAt:     now.Add(-time.Hour),
	}
}

func refreshGrantRequest() TokenRequest {
	return TokenRequest{
		GrantType:    "refresh_token",
		ClientID:     "client-abc",
		ClientSecret: "secret",
		RefreshToken: "refresh-1",
	}
}

func TestRefreshRotationHappyPath(t *testing.T) {
	f := newTokenFixture()
	f.expectClient(activeCredential())

	var replacedBy string
	f.tokens.On("ConsumeRefreshToken", mock.Anything, "refresh-1", "cred-1", mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { replacedBy = args.String(3) }).
		Return(issuedRefreshToken(), nil)
	f.tokens.On("RevokeAccessToken", mock.Anything, "access-1").Return(nil)
	f.sessions.On("GetBySessionID", mock.Anything, "sess-1").
		Return(&domain.Session{SessionID: "sess-1", Scopes: []string{"openid", "read:user"}}, nil)

	var storedRefresh *domain.RefreshToken
	f.tokens.On("StoreAccessToken", mock.Anything, mock.Anything).Return(nil)
	f.tokens.On("StoreRefreshToken", mock.Anything, mock.AnythingOfType("*domain.RefreshToken")).
		Run(func(args mock.Arguments) { storedRefresh = args.Get(1).(*domain.RefreshToken) }).
		Return(nil)

	resp, err := f.svc.Grant(context.Background(), refreshGrantRequest())
	require.NoError(t, err)
	require.NotNil(t, storedRefresh)

	// The successor token is pre-linked via replaced_by before it is stored.
	assert.Equal(t, replacedBy, storedRefresh.Token)
	assert.Equal(t, replacedBy, resp.RefreshToken)
	assert.NotEqual(t, "refresh-1", resp.RefreshToken)
	assert.Equal(t, "openid read:user", resp.Scope)
}

func TestRefreshReplayRejected(t *testing.T) {
	f := newTokenFixture()
	f.expectClient(activeCredential())
	f.tokens.On("ConsumeRefreshToken", mock.Anything, "refresh-1", "cred-1", mock.Anything).
		Return(nil, domain.ErrAlreadyUsed)

	_, err := f.svc.Grant(context.Background(), refreshGrantRequest())
	require.Error(t, err)
	assert.Equal(t, oautherr.InvalidGrant, err.(*oautherr.OAuth2Error).Code)
	f.tokens.AssertNotCalled(t, "StoreAccessToken", mock.Anything, mock.Anything)
}

func TestRefreshExpiredToken(t *testing.T) {
	f := newTokenFixture()
	f.expectClient(activeCredential())
	old := issuedRefreshToken()
	old.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	f.tokens.On("ConsumeRefreshToken", mock.Anything, "refresh-1", "cred-1", mock.Anything).
		Return(old, nil)

	_, err := f.svc.Grant(context.Background(), refreshGrantRequest())
	require.Error(t, err)
	oauthErr := err.(*oautherr.OAuth2Error)
	assert.Equal(t, oautherr.InvalidGrant, oauthErr.Code)
	assert.Contains(t, oauthErr.Description, "expired")
}

func TestRefreshFallsBackToDefaultScopes(t *testing.T) {
	f := newTokenFixture()
	f.expectClient(activeCredential())
	f.tokens.On("ConsumeRefreshToken", mock.Anything, "refresh-1", "cred-1", mock.Anything).
		Return(issuedRefreshToken(), nil)
	f.tokens.On("RevokeAccessToken", mock.Anything, "access-1").Return(nil)
	f.sessions.On("GetBySessionID", mock.Anything, "sess-1").Return(nil, domain.ErrNotFound)
	f.tokens.On("StoreAccessToken", mock.Anything, mock.Anything).Return(nil)
	f.tokens.On("StoreRefreshToken", mock.Anything, mock.Anything).Return(nil)

	resp, err := f.svc.Grant(context.Background(), refreshGrantRequest())
	require.NoError(t, err)
	assert.Equal(t, "openid profile email", resp.Scope)
}
