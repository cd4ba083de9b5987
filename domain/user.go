package domain

import "time"

// User is an end user who has authenticated through the external login
// provider at least once. Users are upserted by email at /auth/complete.
type User struct {
	ID            string     `bson:"_id,omitempty"            json:"id"`
	Email         string     `bson:"email"                    json:"email"`
	DisplayName   string     `bson:"display_name,omitempty"   json:"display_name,omitempty"`
	PhotoURL      string     `bson:"photo_url,omitempty"      json:"photo_url,omitempty"`
	Provider      string     `bson:"provider,omitempty"       json:"provider,omitempty"`
	PasswordHash  string     `bson:"password_hash,omitempty"  json:"-"`
	EmailVerified bool       `bson:"email_verified"           json:"email_verified"`
	IsActive      bool       `bson:"is_active"                json:"is_active"`
	CreatedAt     time.Time  `bson:"created_at"               json:"created_at"`
	UpdatedAt     time.Time  `bson:"updated_at"               json:"updated_at"`
	LastSignInAt  *time.Time `bson:"last_sign_in_at,omitempty" json:"last_sign_in_at,omitempty"`
}
