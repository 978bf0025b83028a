package models

import (
	"time"
)

// Access token kind constants. Pick tokens stay valid for repeated use until
// their round locks; admin login tokens are single-use.
const (
	TokenKindPick       = "pick"
	TokenKindAdminLogin = "admin_login"
)

// AccessToken is one outstanding magic-link credential. Only the SHA-256 hex
// hash of the random value is persisted; the plaintext is returned exactly
// once at issue time. LegacyToken carries unhashed values issued before
// hashing was introduced and exists only as a migration fallback. Remove it
// once no unhashed tokens remain outstanding.
type AccessToken struct {
	ID          string  `json:"id" gorm:"primaryKey"`
	TokenHash   string  `json:"-" gorm:"index;not null"`
	LegacyToken *string `json:"-" gorm:"index"`
	Kind        string  `json:"kind" gorm:"not null;index"`

	// Owning identity: a participant for pick tokens, an admin for login
	// tokens, plus the email the link was delivered to.
	ParticipantID *string `json:"participant_id,omitempty" gorm:"index"`
	AdminUserID   *string `json:"admin_user_id,omitempty" gorm:"index"`
	Email         string  `json:"email"`

	RoundID *string `json:"round_id,omitempty" gorm:"index"`

	ExpiresAt time.Time  `json:"expires_at" gorm:"not null"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedIP string     `json:"-"`
	CreatedAt time.Time  `json:"created_at" gorm:"autoCreateTime"`
}

// Expired reports whether the token is past its expiry. A token whose expiry
// equals now exactly is still valid: expiry requires now strictly after.
func (t *AccessToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
