package services

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nimbusid/oauthd/api"
	"github.com/nimbusid/oauthd/domain"
	oautherr "github.com/nimbusid/oauthd/errors"
	"github.com/nimbusid/oauthd/internal/audit"
	"github.com/nimbusid/oauthd/internal/metrics"
	"github.com/nimbusid/oauthd/ratelimit"
)

// Operation names used for usage stats and rate-limit keys.
const (
	OpAuthorize = "authorize"
	OpComplete  = "complete"
	OpToken     = "token"
	OpUserInfo  = "userinfo"
	OpValidate  = "validate"
)

const sessionIDBytes = 16 // 32 hex chars on the wire

// RedirectError is an OAuth error that must be delivered as a redirect back
// to the client's (already validated) redirect URI, carrying error,
// error_description and state as query parameters. Failures that occur
// before the redirect URI is known-valid are returned as plain
// *errors.OAuth2Error and rendered as a JSON body instead.
type RedirectError struct {
	*oautherr.OAuth2Error
	RedirectURI string
}

// Location renders the error redirect URL.
func (e *RedirectError) Location() string {
	u, err := url.Parse(e.RedirectURI)
	if err != nil {
		return e.RedirectURI
	}
	q := u.Query()
	q.Set("error", e.Code)
	if e.Description != "" {
		q.Set("error_description", e.Description)
	}
	if e.State != "" {
		q.Set("state", e.State)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// AuthorizeRequest is the parsed input of the authorize endpoint.
type AuthorizeRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string

	Request audit.RequestInfo
}

// CompleteRequest is the login collaborator's callback payload. UserID and
// UserEmail arrive already verified by the collaborator.
type CompleteRequest struct {
	SessionID       string
	UserID          string
	UserEmail       string
	UserDisplayName string
	UserPhotoURL    string
	Provider        string

	Request audit.RequestInfo
}

// BadRequestError is a plain (non-OAuth-shaped) 400 for the collaborator
// callback, which is not a client-facing OAuth endpoint.
type BadRequestError struct {
	Msg string
}

func (e *BadRequestError) Error() string { return e.Msg }

// FlowService drives the front half of the authorization code flow: session
// creation at /authorize and code minting at /auth/complete.
type FlowService struct {
	creds    domain.CredentialRepository
	sessions domain.SessionRepository
	codes    domain.AuthCodeRepository
	users    domain.UserRepository
	usage    domain.UsageStatRepository
	limiter  ratelimit.Limiter
	recorder *audit.Recorder

	// issuerDomain hosts the machine-facing session URL; authPageURL is the
	// human-facing login surface.
	issuerDomain string
	authPageURL  string
}

// NewFlowService creates the authorization flow engine.
func NewFlowService(
	creds domain.CredentialRepository,
	sessions domain.SessionRepository,
	codes domain.AuthCodeRepository,
	users domain.UserRepository,
	usage domain.UsageStatRepository,
	limiter ratelimit.Limiter,
	recorder *audit.Recorder,
	issuerDomain, authPageURL string,
) *FlowService {
	return &FlowService{
		creds:        creds,
		sessions:     sessions,
		codes:        codes,
		users:        users,
		usage:        usage,
		limiter:      limiter,
		recorder:     recorder,
		issuerDomain: issuerDomain,
		authPageURL:  authPageURL,
	}
}

// Authorize validates an authorization request and creates a pending
// session. Validation is ordered and fails fast; every failure is recorded
// in the security log. Errors returned as *RedirectError must be delivered
// via redirect, everything else as a JSON body.
func (s *FlowService) Authorize(ctx context.Context, req AuthorizeRequest) (*api.AuthorizeResponse, error) {
	metrics.AuthorizeRequestsTotal.Inc()

	fail := func(err error) error {
		s.recorder.Record(ctx, OpAuthorize, false, req.Request, "", req.ClientID, err, nil)
		return err
	}

	if req.ResponseType != "code" {
		return nil, fail(oautherr.NewUnsupportedResponseType("only response_type=code is supported").WithState(req.State))
	}
	if req.ClientID == "" {
		return nil, fail(oautherr.NewInvalidRequest("client_id is required").WithState(req.State))
	}
	if req.RedirectURI == "" {
		return nil, fail(oautherr.NewInvalidRequest("redirect_uri is required").WithState(req.State))
	}
	if u, err := url.Parse(req.RedirectURI); err != nil || !u.IsAbs() {
		return nil, fail(oautherr.NewInvalidRequest("redirect_uri must be an absolute URL").WithState(req.State))
	}
	if req.Scope == "" {
		return nil, fail(oautherr.NewInvalidRequest("scope is required").WithState(req.State))
	}
	if req.CodeChallenge != "" && !ValidPKCEMethod(req.CodeChallengeMethod) {
		return nil, fail(oautherr.NewInvalidRequest("code_challenge_method must be S256 or plain").WithState(req.State))
	}

	cred, err := s.creds.GetByClientID(ctx, req.ClientID)
	if err != nil || !cred.IsActive {
		return nil, fail(oautherr.NewInvalidClient("unknown or inactive client").WithState(req.State))
	}

	limit, err := s.limiter.Check(ctx, ratelimit.ClientKey(cred.ClientID, OpAuthorize), cred.EffectiveRateLimit())
	if err != nil {
		return nil, fail(oautherr.NewServerError("rate limit check failed"))
	}
	if !limit.Allowed {
		metrics.RateLimitedTotal.Inc()
		s.recordUsage(ctx, cred.ID, OpAuthorize, false)
		return nil, fail(oautherr.NewTemporarilyUnavailable("rate limit exceeded").WithState(req.State))
	}

	if !cred.MatchesRedirectURI(req.RedirectURI) {
		s.recordUsage(ctx, cred.ID, OpAuthorize, false)
		return nil, fail(oautherr.NewInvalidRequest("redirect_uri is not registered for this client").WithState(req.State))
	}

	scopes := ParseScopes(req.Scope)
	if len(scopes) == 0 {
		s.recordUsage(ctx, cred.ID, OpAuthorize, false)
		// The redirect URI is known-valid at this stage, so scope errors go
		// back to the client application.
		return nil, fail(&RedirectError{
			OAuth2Error: oautherr.NewInvalidScope("no recognized scopes requested").WithState(req.State),
			RedirectURI: req.RedirectURI,
		})
	}

	sessionID, err := generateRandomString(sessionIDBytes)
	if err != nil {
		return nil, fail(oautherr.NewServerError("failed to generate session id"))
	}
	rotationID, err := generateCompactToken(9)
	if err != nil {
		return nil, fail(oautherr.NewServerError("failed to generate rotation id"))
	}
	loginNumber, err := s.sessions.NextLoginNumber(ctx, cred.ID)
	if err != nil {
		return nil, fail(oautherr.NewServerError("failed to allocate login number"))
	}

	now := time.Now().UTC()
	session := &domain.Session{
		SessionID:           sessionID,
		RotationID:          rotationID,
		LoginNumber:         loginNumber,
		CredentialID:        cred.ID,
		State:               req.State,
		RedirectURI:         req.RedirectURI,
		Scopes:              scopes,
		Status:              domain.SessionStatusPending,
		CreatedAt:           now,
		ExpiresAt:           now.Add(domain.SessionTTL),
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		log.Error().Err(err).Msg("failed to persist session")
		return nil, fail(oautherr.NewServerError("failed to create session"))
	}

	s.recordUsage(ctx, cred.ID, OpAuthorize, true)
	s.recorder.Record(ctx, OpAuthorize, true, req.Request, "", cred.ID, nil, map[string]any{
		"session_id": sessionID,
		"scopes":     JoinScopes(scopes),
	})

	return &api.AuthorizeResponse{
		SessionID:        session.SessionID,
		AuthorizationURL: fmt.Sprintf("%s?session=%s", s.authPageURL, session.SessionID),
		SessionURL:       fmt.Sprintf("https://%s/%s/%s/%d", s.issuerDomain, session.SessionID, session.RotationID, session.LoginNumber),
		ExpiresAt:        session.ExpiresAt.Unix(),
	}, nil
}

// Complete is invoked by the login collaborator after it verified the end
// user. It upserts the user, mints the one-time authorization code, and
// flips the session to authorized exactly once.
func (s *FlowService) Complete(ctx context.Context, req CompleteRequest) (*api.CompleteResponse, error) {
	fail := func(err error) error {
		s.recorder.Record(ctx, OpComplete, false, req.Request, req.UserID, "", err, map[string]any{
			"session_id": req.SessionID,
		})
		return err
	}

	if req.SessionID == "" || req.UserID == "" || req.UserEmail == "" {
		return nil, fail(&BadRequestError{Msg: "sessionId, userId and userEmail are required"})
	}

	session, err := s.sessions.GetBySessionID(ctx, req.SessionID)
	if err != nil {
		return nil, fail(&BadRequestError{Msg: "invalid session"})
	}
	now := time.Now().UTC()
	if session.IsExpired(now) {
		return nil, fail(&BadRequestError{Msg: "session expired"})
	}
	if session.Status != domain.SessionStatusPending {
		return nil, fail(&BadRequestError{Msg: "session already completed"})
	}

	// The login provider has verified this identity, so the upsert marks
	// the account verified and active.
	user, err := s.users.UpsertByEmail(ctx, &domain.User{
		ID:            req.UserID,
		Email:         req.UserEmail,
		DisplayName:   req.UserDisplayName,
		PhotoURL:      req.UserPhotoURL,
		Provider:      req.Provider,
		EmailVerified: true,
		IsActive:      true,
	})
	if err != nil {
		log.Error().Err(err).Str("email", req.UserEmail).Msg("failed to upsert user")
		return nil, fail(fmt.Errorf("failed to upsert user: %w", err))
	}

	codeValue, err := generateRandomString(32)
	if err != nil {
		return nil, fail(fmt.Errorf("failed to generate authorization code: %w", err))
	}
	code := &domain.AuthorizationCode{
		Code:                codeValue,
		SessionID:           session.SessionID,
		UserID:              user.ID,
		CredentialID:        session.CredentialID,
		RedirectURI:         session.RedirectURI,
		Scopes:              session.Scopes,
		ExpiresAt:           now.Add(domain.AuthCodeTTL),
		Used:                false,
		CreatedAt:           now,
		CodeChallenge:       session.CodeChallenge,
		CodeChallengeMethod: session.CodeChallengeMethod,
	}
	if err := s.codes.Save(ctx, code); err != nil {
		return nil, fail(fmt.Errorf("failed to save authorization code: %w", err))
	}

	if err := s.sessions.MarkAuthorized(ctx, session.SessionID, user.ID, now); err != nil {
		if err == domain.ErrNotPending {
			return nil, fail(&BadRequestError{Msg: "session already completed"})
		}
		return nil, fail(fmt.Errorf("failed to mark session authorized: %w", err))
	}

	redirectURL, err := appendQuery(session.RedirectURI, map[string]string{
		"code":  codeValue,
		"state": session.State,
	})
	if err != nil {
		return nil, fail(fmt.Errorf("failed to build redirect url: %w", err))
	}

	metrics.SessionsAuthorizedTotal.Inc()
	metrics.CodesIssuedTotal.Inc()
	s.recordUsage(ctx, session.CredentialID, OpComplete, true)
	s.recorder.Record(ctx, OpComplete, true, req.Request, user.ID, session.CredentialID, nil, map[string]any{
		"session_id": session.SessionID,
	})

	return &api.CompleteResponse{
		RedirectURL: redirectURL,
		Code:        codeValue,
		SessionID:   session.SessionID,
		RotationID:  session.RotationID,
		LoginNumber: session.LoginNumber,
	}, nil
}

func (s *FlowService) recordUsage(ctx context.Context, credentialID, operation string, success bool) {
	if err := s.usage.Record(ctx, credentialID, operation, success, time.Now().UTC()); err != nil {
		log.Error().Err(err).Str("credential_id", credentialID).Msg("failed to record usage stat")
	}
}

func appendQuery(rawURL string, params map[string]string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range params {
		if v != "" || k == "code" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
