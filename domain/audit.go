package domain

import "time"

// SecurityLog is a write-only audit record appended at every protocol
// decision point, success or failure.
type SecurityLog struct {
	ID           string         `bson:"_id,omitempty"           json:"id"`
	Action       string         `bson:"action"                  json:"action"`
	Success      bool           `bson:"success"                 json:"success"`
	IPAddress    string         `bson:"ip_address,omitempty"    json:"ip_address,omitempty"`
	UserAgent    string         `bson:"user_agent,omitempty"    json:"user_agent,omitempty"`
	UserID       string         `bson:"user_id,omitempty"       json:"user_id,omitempty"`
	CredentialID string         `bson:"credential_id,omitempty" json:"credential_id,omitempty"`
	Error        string         `bson:"error,omitempty"         json:"error,omitempty"`
	Metadata     map[string]any `bson:"metadata,omitempty"      json:"metadata,omitempty"`
	Timestamp    time.Time      `bson:"timestamp"               json:"timestamp"`
}

// UsageStat is a per-credential, per-operation daily counter. Failed calls
// are only charged once the credential has been resolved.
type UsageStat struct {
	ID           string    `bson:"_id,omitempty" json:"id"`
	CredentialID string    `bson:"credential_id" json:"credential_id"`
	Operation    string    `bson:"operation"     json:"operation"`
	Day          string    `bson:"day"           json:"day"` // YYYY-MM-DD bucket
	Success      int64     `bson:"success"       json:"success"`
	Failure      int64     `bson:"failure"       json:"failure"`
	UpdatedAt    time.Time `bson:"updated_at"    json:"updated_at"`
}
