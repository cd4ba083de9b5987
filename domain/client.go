package domain

import (
	"regexp"
	"strings"
	"time"
)

// RateLimitPolicy controls how many protocol requests a credential may make
// within a fixed window. A disabled policy always allows.
type RateLimitPolicy struct {
	MaxRequests int           `bson:"max_requests"       json:"max_requests"`
	Window      time.Duration `bson:"window_ms"          json:"window_ms"`
	Enabled     bool          `bson:"enabled"            json:"enabled"`
}

// DefaultRateLimitPolicy is applied to credentials created without an
// explicit policy.
var DefaultRateLimitPolicy = RateLimitPolicy{
	MaxRequests: 100,
	Window:      time.Minute,
	Enabled:     true,
}

// ClientCredential represents a registered client application. The ClientID
// is immutable after creation; the Secret is only shown once at creation and
// compared in constant time afterwards.
type ClientCredential struct {
	ID             string          `bson:"_id,omitempty"            json:"id"`
	OwnerUserID    string          `bson:"owner_user_id"            json:"owner_user_id"`
	ClientID       string          `bson:"client_id"                json:"client_id"`
	ClientSecret   string          `bson:"client_secret"            json:"-"`
	APIKey         string          `bson:"api_key,omitempty"        json:"api_key,omitempty"`
	Name           string          `bson:"name"                     json:"name"`
	Description    string          `bson:"description,omitempty"    json:"description,omitempty"`
	RedirectURIs   []string        `bson:"redirect_uris"            json:"redirect_uris"`
	AllowedOrigins []string        `bson:"allowed_origins,omitempty" json:"allowed_origins,omitempty"`
	Scopes         []string        `bson:"scopes"                   json:"scopes"`
	IsActive       bool            `bson:"is_active"                json:"is_active"`
	RateLimit      RateLimitPolicy `bson:"rate_limit"               json:"rate_limit"`
	CreatedAt      time.Time       `bson:"created_at"               json:"created_at"`
	LastUsedAt     time.Time       `bson:"last_used_at,omitempty"   json:"last_used_at,omitempty"`
}

// EffectiveRateLimit returns the credential's policy, or the server-wide
// default when the credential was stored without one.
func (c *ClientCredential) EffectiveRateLimit() RateLimitPolicy {
	if c.RateLimit == (RateLimitPolicy{}) {
		return DefaultRateLimitPolicy
	}
	return c.RateLimit
}

// MatchesRedirectURI reports whether uri matches one of the registered
// redirect URIs. Registered entries may contain a "*" wildcard segment,
// which is rendered as ".*" and matched as an anchored regular expression;
// all other entries require an exact byte-for-byte match.
func (c *ClientCredential) MatchesRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if !strings.Contains(registered, "*") {
			if registered == uri {
				return true
			}
			continue
		}
		pattern := "^" + strings.ReplaceAll(regexp.QuoteMeta(registered), `\*`, ".*") + "$"
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}
		if re.MatchString(uri) {
			return true
		}
	}
	return false
}
