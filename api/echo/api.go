// Package echo exposes the protocol over HTTP using labstack/echo.
package echo

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	oautherr "github.com/nimbusid/oauthd/errors"
	"github.com/nimbusid/oauthd/internal/audit"
	"github.com/nimbusid/oauthd/mongodb"
	"github.com/nimbusid/oauthd/services"
	"github.com/nimbusid/oauthd/websession"
)

// OAuth2API holds the protocol services behind the HTTP surface.
type OAuth2API struct {
	flow     *services.FlowService
	tokens   *services.TokenService
	userinfo *services.UserInfoService
	web      *websession.Service
}

// NewOAuth2API wires the HTTP surface. The web session service may be nil
// when the dashboard endpoints are not hosted.
func NewOAuth2API(
	flow *services.FlowService,
	tokens *services.TokenService,
	userinfo *services.UserInfoService,
	web *websession.Service,
) *OAuth2API {
	return &OAuth2API{
		flow:     flow,
		tokens:   tokens,
		userinfo: userinfo,
		web:      web,
	}
}

// RegisterRoutes attaches all endpoints to the echo instance.
func (oa *OAuth2API) RegisterRoutes(e *echo.Echo) {
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization, echo.HeaderAccept},
	}))

	e.GET("/authorize", oa.AuthorizeHandler)
	e.POST("/authorize", oa.AuthorizeHandler)
	e.POST("/auth/complete", oa.CompleteHandler)
	e.POST("/oauth/token", oa.TokenHandler)
	e.GET("/oauth/userinfo", oa.UserInfoHandler)
	e.POST("/oauth/userinfo", oa.UserInfoHandler)
	e.GET("/oauth/validate", oa.ValidateHandler)

	if oa.web != nil {
		e.POST("/auth/login", oa.WebLoginHandler)
		e.POST("/auth/refresh", oa.WebRefreshHandler)
	}

	e.GET("/health", oa.HealthHandler)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

func requestInfo(c echo.Context) audit.RequestInfo {
	return audit.RequestInfo{
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
}

// AuthorizeHandler validates an authorization request and opens a pending
// session. Browsers are redirected to the hosted login page; callers sending
// Accept: application/json get a machine-readable session descriptor.
func (oa *OAuth2API) AuthorizeHandler(c echo.Context) error {
	req := services.AuthorizeRequest{
		ResponseType:        c.QueryParam("response_type"),
		ClientID:            c.QueryParam("client_id"),
		RedirectURI:         c.QueryParam("redirect_uri"),
		Scope:               c.QueryParam("scope"),
		State:               c.QueryParam("state"),
		CodeChallenge:       c.QueryParam("code_challenge"),
		CodeChallengeMethod: c.QueryParam("code_challenge_method"),
		Request:             requestInfo(c),
	}
	if c.Request().Method == http.MethodPost {
		if req.ClientID == "" {
			req.ResponseType = c.FormValue("response_type")
			req.ClientID = c.FormValue("client_id")
			req.RedirectURI = c.FormValue("redirect_uri")
			req.Scope = c.FormValue("scope")
			req.State = c.FormValue("state")
			req.CodeChallenge = c.FormValue("code_challenge")
			req.CodeChallengeMethod = c.FormValue("code_challenge_method")
		}
	}

	resp, err := oa.flow.Authorize(c.Request().Context(), req)
	if err != nil {
		var redirErr *services.RedirectError
		if errors.As(err, &redirErr) {
			return c.Redirect(http.StatusFound, redirErr.Location())
		}
		var oauthErr *oautherr.OAuth2Error
		if errors.As(err, &oauthErr) {
			return c.JSON(oauthErr.Status(), oauthErr)
		}
		log.Error().Err(err).Msg("authorize failed")
		return c.JSON(http.StatusInternalServerError, oautherr.NewServerError("internal error"))
	}

	if wantsJSON(c) {
		return c.JSON(http.StatusOK, resp)
	}
	return c.Redirect(http.StatusFound, resp.AuthorizationURL)
}

// completePayload is the login collaborator's callback body.
type completePayload struct {
	SessionID       string `json:"sessionId"       form:"sessionId"`
	UserID          string `json:"userId"          form:"userId"`
	UserEmail       string `json:"userEmail"       form:"userEmail"`
	UserDisplayName string `json:"userDisplayName" form:"userDisplayName"`
	UserPhotoURL    string `json:"userPhotoURL"    form:"userPhotoURL"`
	Provider        string `json:"provider"        form:"provider"`
}

// CompleteHandler accepts the login collaborator's verified-user callback
// and mints the one-time authorization code.
func (oa *OAuth2API) CompleteHandler(c echo.Context) error {
	var payload completePayload
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed request body"})
	}

	resp, err := oa.flow.Complete(c.Request().Context(), services.CompleteRequest{
		SessionID:       payload.SessionID,
		UserID:          payload.UserID,
		UserEmail:       payload.UserEmail,
		UserDisplayName: payload.UserDisplayName,
		UserPhotoURL:    payload.UserPhotoURL,
		Provider:        payload.Provider,
		Request:         requestInfo(c),
	})
	if err != nil {
		var badReq *services.BadRequestError
		if errors.As(err, &badReq) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": badReq.Msg})
		}
		log.Error().Err(err).Msg("complete failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, resp)
}

// TokenHandler exchanges codes and refresh tokens for token pairs. It
// accepts both form-encoded and JSON bodies.
func (oa *OAuth2API) TokenHandler(c echo.Context) error {
	req := services.TokenRequest{Request: requestInfo(c)}

	contentType := c.Request().Header.Get(echo.HeaderContentType)
	if strings.HasPrefix(contentType, echo.MIMEApplicationJSON) {
		var payload struct {
			GrantType    string `json:"grant_type"`
			ClientID     string `json:"client_id"`
			ClientSecret string `json:"client_secret"`
			Code         string `json:"code"`
			RedirectURI  string `json:"redirect_uri"`
			CodeVerifier string `json:"code_verifier"`
			RefreshToken string `json:"refresh_token"`
		}
		if err := c.Bind(&payload); err != nil {
			return tokenError(c, oautherr.NewInvalidRequest("malformed request body"))
		}
		req.GrantType = payload.GrantType
		req.ClientID = payload.ClientID
		req.ClientSecret = payload.ClientSecret
		req.Code = payload.Code
		req.RedirectURI = payload.RedirectURI
		req.CodeVerifier = payload.CodeVerifier
		req.RefreshToken = payload.RefreshToken
	} else {
		req.GrantType = c.FormValue("grant_type")
		req.ClientID = c.FormValue("client_id")
		req.ClientSecret = c.FormValue("client_secret")
		req.Code = c.FormValue("code")
		req.RedirectURI = c.FormValue("redirect_uri")
		req.CodeVerifier = c.FormValue("code_verifier")
		req.RefreshToken = c.FormValue("refresh_token")
	}

	resp, err := oa.tokens.Grant(c.Request().Context(), req)
	if err != nil {
		var oauthErr *oautherr.OAuth2Error
		if errors.As(err, &oauthErr) {
			return tokenError(c, oauthErr)
		}
		log.Error().Err(err).Msg("token grant failed")
		return tokenError(c, oautherr.NewServerError("internal error"))
	}

	// RFC 6749 §5.1 forbids caching token responses.
	c.Response().Header().Set("Cache-Control", "no-store")
	c.Response().Header().Set("Pragma", "no-cache")
	return c.JSON(http.StatusOK, resp)
}

func tokenError(c echo.Context, err *oautherr.OAuth2Error) error {
	c.Response().Header().Set("Cache-Control", "no-store")
	c.Response().Header().Set("Pragma", "no-cache")
	return c.JSON(err.Status(), err)
}

// UserInfoHandler returns scope-gated claims for the bearer token.
func (oa *OAuth2API) UserInfoHandler(c echo.Context) error {
	tokenValue, ok := bearerToken(c)
	if !ok {
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer realm="userinfo"`)
		// RFC 6750 §3.1: a request without any token is invalid_request,
		// not invalid_token.
		return c.JSON(http.StatusUnauthorized, oautherr.NewInvalidRequest("missing bearer token"))
	}

	resp, err := oa.userinfo.UserInfo(c.Request().Context(), tokenValue, requestInfo(c))
	if err != nil {
		var oauthErr *oautherr.OAuth2Error
		if errors.As(err, &oauthErr) {
			if oauthErr.Status() == http.StatusUnauthorized || oauthErr.Status() == http.StatusForbidden {
				c.Response().Header().Set(echo.HeaderWWWAuthenticate,
					fmt.Sprintf(`Bearer realm="userinfo", error=%q`, oauthErr.Code))
			}
			return c.JSON(oauthErr.Status(), oauthErr)
		}
		log.Error().Err(err).Msg("userinfo failed")
		return c.JSON(http.StatusInternalServerError, oautherr.NewServerError("internal error"))
	}

	c.Response().Header().Set("Cache-Control", "private, max-age=300")
	return c.JSON(http.StatusOK, resp)
}

// ValidateHandler is the simplified introspection endpoint. Any failure
// reads as active=false with a 401, never as an OAuth error body.
func (oa *OAuth2API) ValidateHandler(c echo.Context) error {
	tokenValue, ok := bearerToken(c)
	if !ok {
		tokenValue = c.QueryParam("token")
	}
	resp := oa.userinfo.Validate(c.Request().Context(), tokenValue, requestInfo(c))
	if !resp.Active {
		return c.JSON(http.StatusUnauthorized, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

// WebLoginHandler authenticates a dashboard user by email and password.
func (oa *OAuth2API) WebLoginHandler(c echo.Context) error {
	var payload struct {
		Email    string `json:"email"    form:"email"`
		Password string `json:"password" form:"password"`
	}
	if err := c.Bind(&payload); err != nil || payload.Email == "" || payload.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and password are required"})
	}

	info := requestInfo(c)
	resp, err := oa.web.Login(c.Request().Context(), payload.Email, payload.Password, info.UserAgent, info.IPAddress)
	if err != nil {
		if errors.Is(err, websession.ErrInvalidCredentials) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		log.Error().Err(err).Msg("dashboard login failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, resp)
}

// WebRefreshHandler rotates a dashboard session.
func (oa *OAuth2API) WebRefreshHandler(c echo.Context) error {
	var payload struct {
		RefreshToken string `json:"refresh_token" form:"refresh_token"`
	}
	if err := c.Bind(&payload); err != nil || payload.RefreshToken == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token is required"})
	}

	info := requestInfo(c)
	resp, err := oa.web.Refresh(c.Request().Context(), payload.RefreshToken, info.UserAgent, info.IPAddress)
	if err != nil {
		if errors.Is(err, websession.ErrInvalidSession) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired session"})
		}
		log.Error().Err(err).Msg("dashboard refresh failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, resp)
}

// HealthHandler reports process and database liveness.
func (oa *OAuth2API) HealthHandler(c echo.Context) error {
	if err := mongodb.Ping(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "degraded", "mongo": err.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

func bearerToken(c echo.Context) (string, bool) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func wantsJSON(c echo.Context) bool {
	accept := c.Request().Header.Get(echo.HeaderAccept)
	return strings.Contains(accept, echo.MIMEApplicationJSON)
}
