// Package audit appends security log entries at every protocol decision
// point. Entries are persisted to the security_logs collection and mirrored
// to the structured log. Failures to persist never fail the request.
package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nimbusid/oauthd/domain"
)

// RequestInfo carries the caller attributes recorded with every entry.
type RequestInfo struct {
	IPAddress string
	UserAgent string
}

// Recorder writes security log entries.
type Recorder struct {
	repo domain.SecurityLogRepository
}

// NewRecorder creates a Recorder. A nil repository is allowed; entries are
// then only mirrored to the structured log.
func NewRecorder(repo domain.SecurityLogRepository) *Recorder {
	return &Recorder{repo: repo}
}

// Record appends one audit entry. err may be nil on success.
func (r *Recorder) Record(ctx context.Context, action string, success bool, req RequestInfo, userID, credentialID string, err error, metadata map[string]any) {
	entry := &domain.SecurityLog{
		Action:       action,
		Success:      success,
		IPAddress:    req.IPAddress,
		UserAgent:    req.UserAgent,
		UserID:       userID,
		CredentialID: credentialID,
		Metadata:     metadata,
		Timestamp:    time.Now().UTC(),
	}
	if err != nil {
		entry.Error = err.Error()
	}

	if r.repo != nil {
		if appendErr := r.repo.Append(ctx, entry); appendErr != nil {
			log.Error().Err(appendErr).Str("action", action).Msg("failed to persist security log entry")
		}
	}

	evt := log.Info()
	if !success {
		evt = log.Warn()
	}
	evt.Str("action", action).
		Bool("success", success).
		Str("ip", req.IPAddress).
		Str("user_id", userID).
		Str("credential_id", credentialID).
		Err(err).
		Msg("security event")
}
