package services

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nimbusid/oauthd/api"
	"github.com/nimbusid/oauthd/cache"
	"github.com/nimbusid/oauthd/domain"
	oautherr "github.com/nimbusid/oauthd/errors"
	"github.com/nimbusid/oauthd/internal/audit"
	"github.com/nimbusid/oauthd/internal/metrics"
	"github.com/nimbusid/oauthd/ratelimit"
)

// GrantType enumeration for the token endpoint.
type GrantType string

const (
	GrantTypeAuthorizationCode GrantType = "authorization_code"
	GrantTypeRefreshToken      GrantType = "refresh_token"
)

// TokenRequest is the parsed input of the token endpoint.
type TokenRequest struct {
	GrantType    string
	ClientID     string
	ClientSecret string
	Code         string
	RedirectURI  string
	CodeVerifier string
	RefreshToken string

	Request audit.RequestInfo
}

// TokenService implements the token endpoint grants: authorization code
// exchange and refresh rotation.
type TokenService struct {
	creds    domain.CredentialRepository
	sessions domain.SessionRepository
	codes    domain.AuthCodeRepository
	tokens   domain.TokenRepository
	usage    domain.UsageStatRepository
	limiter  ratelimit.Limiter
	recorder *audit.Recorder
	cache    *cache.AccessTokenCache
}

// NewTokenService creates the token grant engine. cache may be nil.
func NewTokenService(
	creds domain.CredentialRepository,
	sessions domain.SessionRepository,
	codes domain.AuthCodeRepository,
	tokens domain.TokenRepository,
	usage domain.UsageStatRepository,
	limiter ratelimit.Limiter,
	recorder *audit.Recorder,
	tokenCache *cache.AccessTokenCache,
) *TokenService {
	return &TokenService{
		creds:    creds,
		sessions: sessions,
		codes:    codes,
		tokens:   tokens,
		usage:    usage,
		limiter:  limiter,
		recorder: recorder,
		cache:    tokenCache,
	}
}

// Grant runs the shared preamble and dispatches on grant_type. All failures
// surface as *errors.OAuth2Error; the handler maps them through the status
// table.
func (s *TokenService) Grant(ctx context.Context, req TokenRequest) (*api.TokenResponse, error) {
	fail := func(cred *domain.ClientCredential, err error) error {
		credID := ""
		if cred != nil {
			credID = cred.ID
			// Usage can only be charged once the credential is resolved.
			s.recordUsage(ctx, cred.ID, OpToken, false)
		}
		s.recorder.Record(ctx, OpToken, false, req.Request, "", credID, err, map[string]any{
			"grant_type": req.GrantType,
			"client_id":  req.ClientID,
		})
		return err
	}

	if req.GrantType == "" {
		return nil, fail(nil, oautherr.NewInvalidRequest("grant_type is required"))
	}
	grantType := GrantType(req.GrantType)
	if grantType != GrantTypeAuthorizationCode && grantType != GrantTypeRefreshToken {
		return nil, fail(nil, oautherr.NewUnsupportedGrantType())
	}
	if req.ClientID == "" || req.ClientSecret == "" {
		return nil, fail(nil, oautherr.NewInvalidRequest("client_id and client_secret are required"))
	}
	switch grantType {
	case GrantTypeAuthorizationCode:
		if req.Code == "" || req.RedirectURI == "" {
			return nil, fail(nil, oautherr.NewInvalidRequest("code and redirect_uri are required"))
		}
	case GrantTypeRefreshToken:
		if req.RefreshToken == "" {
			return nil, fail(nil, oautherr.NewInvalidRequest("refresh_token is required"))
		}
	}

	// The body must not distinguish an unknown client_id from a wrong
	// secret; internal logs may.
	cred, err := s.creds.GetByClientID(ctx, req.ClientID)
	if err != nil || !cred.IsActive {
		log.Warn().Str("client_id", req.ClientID).Msg("token request for unknown or inactive client")
		return nil, fail(nil, oautherr.NewInvalidClient("client authentication failed"))
	}
	if subtle.ConstantTimeCompare([]byte(cred.ClientSecret), []byte(req.ClientSecret)) != 1 {
		log.Warn().Str("client_id", req.ClientID).Msg("token request with wrong client secret")
		return nil, fail(nil, oautherr.NewInvalidClient("client authentication failed"))
	}

	limit, err := s.limiter.Check(ctx, ratelimit.ClientKey(cred.ClientID, OpToken), cred.EffectiveRateLimit())
	if err != nil {
		return nil, fail(cred, oautherr.NewServerError("rate limit check failed"))
	}
	if !limit.Allowed {
		metrics.RateLimitedTotal.Inc()
		return nil, fail(cred, oautherr.NewTemporarilyUnavailable("rate limit exceeded"))
	}

	var resp *api.TokenResponse
	var userID string
	switch grantType {
	case GrantTypeAuthorizationCode:
		resp, userID, err = s.exchangeAuthorizationCode(ctx, req, cred)
	case GrantTypeRefreshToken:
		resp, userID, err = s.refreshGrant(ctx, req, cred)
	}
	if err != nil {
		return nil, fail(cred, err)
	}

	if err := s.creds.TouchLastUsed(ctx, cred.ID, time.Now().UTC()); err != nil {
		log.Error().Err(err).Str("credential_id", cred.ID).Msg("failed to bump credential last used")
	}
	s.recordUsage(ctx, cred.ID, OpToken, true)
	s.recorder.Record(ctx, OpToken, true, req.Request, userID, cred.ID, nil, map[string]any{
		"grant_type": req.GrantType,
	})

	return resp, nil
}

// exchangeAuthorizationCode redeems a one-time code for a token pair. The
// used flag is consumed atomically before any other validation can observe
// the code as unused, so concurrent redemptions cannot both succeed.
func (s *TokenService) exchangeAuthorizationCode(ctx context.Context, req TokenRequest, cred *domain.ClientCredential) (*api.TokenResponse, string, error) {
	code, err := s.codes.Consume(ctx, req.Code)
	if err != nil {
		switch err {
		case domain.ErrAlreadyUsed:
			return nil, "", oautherr.NewInvalidGrant("authorization code already used")
		case domain.ErrNotFound:
			return nil, "", oautherr.NewInvalidGrant("invalid authorization code")
		default:
			return nil, "", oautherr.NewServerError("failed to consume authorization code")
		}
	}

	now := time.Now().UTC()
	if code.IsExpired(now) {
		return nil, "", oautherr.NewInvalidGrant("authorization code expired")
	}
	if code.CredentialID != cred.ID {
		return nil, "", oautherr.NewInvalidGrant("authorization code was issued to a different client")
	}
	if code.RedirectURI != req.RedirectURI {
		return nil, "", oautherr.NewInvalidGrant("redirect_uri does not match the authorization request")
	}
	if code.CodeChallenge != "" {
		if req.CodeVerifier == "" {
			return nil, "", oautherr.NewInvalidRequest("code_verifier is required")
		}
		if !VerifyCodeChallenge(req.CodeVerifier, code.CodeChallenge, code.CodeChallengeMethod) {
			return nil, "", oautherr.NewInvalidGrant("PKCE verification failed")
		}
	}

	resp, err := s.mintTokenPair(ctx, code.UserID, cred.ID, code.SessionID, code.Scopes, now)
	if err != nil {
		return nil, "", err
	}
	metrics.TokensIssuedTotal.Inc()
	return resp, code.UserID, nil
}

// refreshGrant rotates a refresh token: the old refresh token is consumed,
// its paired access token revoked, and a fresh pair minted.
func (s *TokenService) refreshGrant(ctx context.Context, req TokenRequest, cred *domain.ClientCredential) (*api.TokenResponse, string, error) {
	newRefreshValue, err := generateRandomString(32)
	if err != nil {
		return nil, "", oautherr.NewServerError("failed to generate refresh token")
	}

	old, err := s.tokens.ConsumeRefreshToken(ctx, req.RefreshToken, cred.ID, newRefreshValue)
	if err != nil {
		switch err {
		case domain.ErrAlreadyUsed, domain.ErrNotFound:
			return nil, "", oautherr.NewInvalidGrant("invalid refresh token")
		default:
			return nil, "", oautherr.NewServerError("failed to consume refresh token")
		}
	}

	now := time.Now().UTC()
	if old.IsExpired(now) {
		return nil, "", oautherr.NewInvalidGrant("refresh token expired")
	}

	if err := s.tokens.RevokeAccessToken(ctx, old.AccessTokenID); err != nil && err != domain.ErrNotFound {
		log.Error().Err(err).Msg("failed to revoke superseded access token")
	}
	if s.cache != nil {
		s.cache.Delete(ctx, old.AccessTokenID)
	}

	// Scopes are re-read from the originating session. When the session is
	// gone (swept after expiry) the default scope set applies; this is a
	// deliberate fallback, not a bug.
	scopes := defaultScopes
	if session, serr := s.sessions.GetBySessionID(ctx, old.SessionID); serr == nil {
		scopes = session.Scopes
	}

	resp, err := s.mintTokenPairWithValues(ctx, old.UserID, cred.ID, old.SessionID, scopes, now, "", newRefreshValue)
	if err != nil {
		return nil, "", err
	}
	metrics.TokensRefreshedTotal.Inc()
	return resp, old.UserID, nil
}

func (s *TokenService) mintTokenPair(ctx context.Context, userID, credentialID, sessionID string, scopes []string, now time.Time) (*api.TokenResponse, error) {
	return s.mintTokenPairWithValues(ctx, userID, credentialID, sessionID, scopes, now, "", "")
}

// mintTokenPairWithValues mints and persists an access/refresh pair. Empty
// accessValue/refreshValue means generate one; the refresh grant passes a
// pre-generated refresh value because the old token's replaced_by pointer
// was already written with it.
func (s *TokenService) mintTokenPairWithValues(ctx context.Context, userID, credentialID, sessionID string, scopes []string, now time.Time, accessValue, refreshValue string) (*api.TokenResponse, error) {
	var err error
	if accessValue == "" {
		if accessValue, err = generateRandomString(32); err != nil {
			return nil, oautherr.NewServerError("failed to generate access token")
		}
	}
	if refreshValue == "" {
		if refreshValue, err = generateRandomString(32); err != nil {
			return nil, oautherr.NewServerError("failed to generate refresh token")
		}
	}

	access := &domain.AccessToken{
		Token:        accessValue,
		UserID:       userID,
		CredentialID: credentialID,
		SessionID:    sessionID,
		Scopes:       scopes,
		TokenType:    "Bearer",
		ExpiresAt:    now.Add(domain.AccessTokenTTL),
		CreatedAt:    now,
	}
	refresh := &domain.RefreshToken{
		Token:         refreshValue,
		UserID:        userID,
		CredentialID:  credentialID,
		SessionID:     sessionID,
		AccessTokenID: accessValue,
		ExpiresAt:     now.Add(domain.RefreshTokenTTL),
		CreatedAt:     now,
	}

	if err := s.tokens.StoreAccessToken(ctx, access); err != nil {
		return nil, oautherr.NewServerError("failed to store access token")
	}
	if err := s.tokens.StoreRefreshToken(ctx, refresh); err != nil {
		return nil, oautherr.NewServerError("failed to store refresh token")
	}
	if s.cache != nil {
		s.cache.Set(ctx, access)
	}

	// Read-model convenience only; never consulted for security decisions.
	if err := s.sessions.UpdateTokenSnapshot(ctx, sessionID, accessValue, refreshValue, access.ExpiresAt); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to update session token snapshot")
	}

	return &api.TokenResponse{
		AccessToken:  accessValue,
		TokenType:    "Bearer",
		ExpiresIn:    int(time.Until(access.ExpiresAt).Seconds()),
		RefreshToken: refreshValue,
		Scope:        JoinScopes(scopes),
	}, nil
}

func (s *TokenService) recordUsage(ctx context.Context, credentialID, operation string, success bool) {
	if err := s.usage.Record(ctx, credentialID, operation, success, time.Now().UTC()); err != nil {
		log.Error().Err(err).Str("credential_id", credentialID).Msg("failed to record usage stat")
	}
}
