// Package ratelimit implements the fixed-window request counter that gates
// protocol calls before they reach the OAuth engine. Counters are keyed by
// an opaque identifier; the engine composes them as "{client_id}:{op}",
// "user:{id}" or "global:{ip}".
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/nimbusid/oauthd/domain"
)

// Result is the outcome of a limit check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
	Limit     int
}

// Limiter gates requests against a per-identifier fixed window. The window
// resets strictly after the policy window elapses from the window start.
// A disabled policy always allows.
type Limiter interface {
	Check(ctx context.Context, identifier string, policy domain.RateLimitPolicy) (Result, error)
	Record(ctx context.Context, identifier string, success bool, policy domain.RateLimitPolicy) error
}

// Clock abstracts wall-clock time so window behavior is testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the real wall clock.
func SystemClock() Clock { return systemClock{} }

// ClientKey composes the per-credential identifier for an operation.
func ClientKey(clientID, operation string) string {
	return fmt.Sprintf("%s:%s", clientID, operation)
}

// UserKey composes the per-user identifier.
func UserKey(userID string) string {
	return "user:" + userID
}

// GlobalKey composes the per-IP identifier.
func GlobalKey(ip string) string {
	return "global:" + ip
}
