package errors

import (
	"fmt"
	"net/http"
)

// OAuth2Error represents a standardized OAuth 2.0 error (RFC 6749 §5.2).
type OAuth2Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	State       string `json:"state,omitempty"`
}

func (e *OAuth2Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WithState returns a copy of the error carrying the client's CSRF state,
// for delivery paths that must echo it back.
func (e *OAuth2Error) WithState(state string) *OAuth2Error {
	clone := *e
	clone.State = state
	return &clone
}

// Standard OAuth2 error codes.
const (
	InvalidRequest          = "invalid_request"
	UnauthorizedClient      = "unauthorized_client"
	AccessDenied            = "access_denied"
	UnsupportedGrantType    = "unsupported_grant_type"
	UnsupportedResponseType = "unsupported_response_type"
	InvalidScope            = "invalid_scope"
	InvalidClient           = "invalid_client"
	InvalidGrant            = "invalid_grant"
	InvalidToken            = "invalid_token"
	InsufficientScope       = "insufficient_scope"
	ServerError             = "server_error"
	TemporarilyUnavailable  = "temporarily_unavailable"
)

// StatusCode maps an OAuth error code to its HTTP status. Rate limiting is
// uniformly 503 on every endpoint; the upstream behavior of answering 429 on
// userinfo only was an inconsistency, not a contract.
func StatusCode(code string) int {
	switch code {
	case InvalidClient:
		return http.StatusUnauthorized
	case InvalidToken:
		return http.StatusUnauthorized
	case InsufficientScope:
		return http.StatusForbidden
	case TemporarilyUnavailable:
		return http.StatusServiceUnavailable
	case ServerError:
		return http.StatusInternalServerError
	default:
		// invalid_request, invalid_grant, invalid_scope,
		// unsupported_grant_type, unsupported_response_type,
		// unauthorized_client, access_denied
		return http.StatusBadRequest
	}
}

// Status returns the HTTP status for this error.
func (e *OAuth2Error) Status() int {
	return StatusCode(e.Code)
}

// Common error constructors.
func NewInvalidRequest(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidRequest, Description: description}
}

func NewInvalidClient(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidClient, Description: description}
}

func NewInvalidGrant(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidGrant, Description: description}
}

func NewInvalidScope(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidScope, Description: description}
}

func NewInvalidToken(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidToken, Description: description}
}

func NewInsufficientScope(description string) *OAuth2Error {
	return &OAuth2Error{Code: InsufficientScope, Description: description}
}

func NewServerError(description string) *OAuth2Error {
	return &OAuth2Error{Code: ServerError, Description: description}
}

func NewTemporarilyUnavailable(description string) *OAuth2Error {
	return &OAuth2Error{Code: TemporarilyUnavailable, Description: description}
}

func NewUnsupportedResponseType(description string) *OAuth2Error {
	return &OAuth2Error{Code: UnsupportedResponseType, Description: description}
}

func NewUnsupportedGrantType() *OAuth2Error {
	return &OAuth2Error{
		Code:        UnsupportedGrantType,
		Description: "The authorization grant type is not supported",
	}
}
