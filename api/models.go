// Package api defines the wire shapes returned by the protocol endpoints.
package api

// TokenResponse is the success body of the token endpoint (RFC 6749 §5.1).
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// AuthorizeResponse is returned from the authorize endpoint when the caller
// asks for a machine response instead of a browser redirect.
type AuthorizeResponse struct {
	SessionID        string `json:"session_id"`
	AuthorizationURL string `json:"authorization_url"`
	SessionURL       string `json:"session_url"`
	ExpiresAt        int64  `json:"expires_at"`
}

// CompleteResponse is returned to the login collaborator, which performs the
// actual browser redirect.
type CompleteResponse struct {
	RedirectURL string `json:"redirect_url"`
	Code        string `json:"code"`
	SessionID   string `json:"session_id"`
	RotationID  string `json:"rotation_id"`
	LoginNumber int64  `json:"login_number"`
}

// UserInfoResponse carries scope-gated claims about the token's user.
// A field is present only when its governing scope was granted.
type UserInfoResponse struct {
	Sub           string `json:"sub"`
	Name          string `json:"name,omitempty"`
	GivenName     string `json:"given_name,omitempty"`
	FamilyName    string `json:"family_name,omitempty"`
	Picture       string `json:"picture,omitempty"`
	Locale        string `json:"locale,omitempty"`
	Email         string `json:"email,omitempty"`
	EmailVerified *bool  `json:"email_verified,omitempty"`
}

// ValidateResponse is the simplified introspection body.
type ValidateResponse struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	ExpiresIn int    `json:"expires_in,omitempty"`
}

// WebSessionResponse is the dashboard session refresh body. Distinct from
// the OAuth token response; the dashboard subsystem only shares the
// rotation pattern.
type WebSessionResponse struct {
	SessionToken string `json:"session_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}
