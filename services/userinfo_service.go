package services

import (
	"context"
	"strings"
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

// userInfoLocale is a stub; no real localization is performed.
const userInfoLocale = "en-US"

// UserInfoService serves the bearer-token read endpoints: userinfo and
// validate.
type UserInfoService struct {
	creds    domain.CredentialRepository
	tokens   domain.TokenRepository
	users    domain.UserRepository
	usage    domain.UsageStatRepository
	limiter  ratelimit.Limiter
	recorder *audit.Recorder
	cache    *cache.AccessTokenCache
}

// NewUserInfoService creates the bearer-token read engine. cache may be nil.
func NewUserInfoService(
	creds domain.CredentialRepository,
	tokens domain.TokenRepository,
	users domain.UserRepository,
	usage domain.UsageStatRepository,
	limiter ratelimit.Limiter,
	recorder *audit.Recorder,
	tokenCache *cache.AccessTokenCache,
) *UserInfoService {
	return &UserInfoService{
		creds:    creds,
		tokens:   tokens,
		users:    users,
		usage:    usage,
		limiter:  limiter,
		recorder: recorder,
		cache:    tokenCache,
	}
}

// lookupAccessToken consults the cache before the store. Revocation and
// expiry are always re-checked on the returned record, so a stale cache
// entry can shorten but never extend a token's validity.
func (s *UserInfoService) lookupAccessToken(ctx context.Context, tokenValue string) (*domain.AccessToken, error) {
	if s.cache != nil {
		if token, ok := s.cache.Get(ctx, tokenValue); ok {
			return token, nil
		}
	}
	token, err := s.tokens.GetAccessToken(ctx, tokenValue)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, token)
	}
	return token, nil
}

// UserInfo resolves a bearer token into scope-gated claims.
func (s *UserInfoService) UserInfo(ctx context.Context, tokenValue string, req audit.RequestInfo) (*api.UserInfoResponse, error) {
	fail := func(credentialID string, err error) error {
		if credentialID != "" {
			s.recordUsage(ctx, credentialID, OpUserInfo, false)
		}
		s.recorder.Record(ctx, OpUserInfo, false, req, "", credentialID, err, nil)
		return err
	}

	token, err := s.lookupAccessToken(ctx, tokenValue)
	if err != nil {
		return nil, fail("", oautherr.NewInvalidToken("unknown access token"))
	}
	now := time.Now().UTC()
	if token.IsRevoked {
		return nil, fail("", oautherr.NewInvalidToken("access token revoked"))
	}
	if !now.Before(token.ExpiresAt) {
		return nil, fail("", oautherr.NewInvalidToken("access token expired"))
	}
	if !HasScope(token.Scopes, "openid") && !HasScope(token.Scopes, "profile") {
		return nil, fail("", oautherr.NewInsufficientScope("token lacks openid or profile scope"))
	}

	cred, err := s.creds.GetByID(ctx, token.CredentialID)
	if err != nil || !cred.IsActive {
		return nil, fail("", oautherr.NewInvalidToken("client is no longer active"))
	}

	limit, err := s.limiter.Check(ctx, ratelimit.ClientKey(cred.ClientID, OpUserInfo), cred.EffectiveRateLimit())
	if err != nil {
		return nil, fail(cred.ID, oautherr.NewServerError("rate limit check failed"))
	}
	if !limit.Allowed {
		metrics.RateLimitedTotal.Inc()
		return nil, fail(cred.ID, oautherr.NewTemporarilyUnavailable("rate limit exceeded"))
	}

	user, err := s.users.GetByID(ctx, token.UserID)
	if err != nil {
		return nil, fail(cred.ID, oautherr.NewInvalidToken("token user no longer exists"))
	}

	resp := &api.UserInfoResponse{Sub: user.ID}
	if HasScope(token.Scopes, "profile") {
		resp.Name = user.DisplayName
		resp.GivenName, resp.FamilyName = splitDisplayName(user.DisplayName)
		resp.Picture = user.PhotoURL
		resp.Locale = userInfoLocale
	}
	if HasScope(token.Scopes, "email") {
		resp.Email = user.Email
		verified := user.EmailVerified
		resp.EmailVerified = &verified
	}

	s.recordUsage(ctx, cred.ID, OpUserInfo, true)
	s.recorder.Record(ctx, OpUserInfo, true, req, user.ID, cred.ID, nil, nil)

	return resp, nil
}

// Validate is the simplified introspection endpoint. It never returns an
// OAuth error for a bad token, only active=false; the transport layer pairs
// that with a 401.
func (s *UserInfoService) Validate(ctx context.Context, tokenValue string, req audit.RequestInfo) *api.ValidateResponse {
	token, err := s.lookupAccessToken(ctx, tokenValue)
	now := time.Now().UTC()
	if err != nil || token.IsRevoked || !now.Before(token.ExpiresAt) {
		s.recorder.Record(ctx, OpValidate, false, req, "", "", oautherr.NewInvalidToken("token missing, revoked or expired"), nil)
		return &api.ValidateResponse{Active: false}
	}

	s.recorder.Record(ctx, OpValidate, true, req, token.UserID, token.CredentialID, nil, nil)

	return &api.ValidateResponse{
		Active:    true,
		Scope:     JoinScopes(token.Scopes),
		ClientID:  token.CredentialID,
		UserID:    token.UserID,
		ExpiresIn: int(token.ExpiresAt.Sub(now).Seconds()),
	}
}

// splitDisplayName derives given/family name on the first space.
func splitDisplayName(name string) (string, string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ""
	}
	parts := strings.SplitN(name, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

func (s *UserInfoService) recordUsage(ctx context.Context, credentialID, operation string, success bool) {
	if err := s.usage.Record(ctx, credentialID, operation, success, time.Now().UTC()); err != nil {
		log.Error().Err(err).Str("credential_id", credentialID).Msg("failed to record usage stat")
	}
}
