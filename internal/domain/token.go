package domain

// UserToken is a long-lived bearer credential. Only the SHA-256 digest of the
// secret is stored; the raw value is handed to the owner once, at creation.
// A token is valid while RevokedAt is nil.
type UserToken struct {
	ID         string `json:"id"           gorm:"type:char(36);primaryKey"`
	UserID     string `json:"user_id"      gorm:"type:varchar(320);not null;index"`
	TokenHash  string `json:"-"            gorm:"type:char(64);not null;uniqueIndex"`
	Prefix     string `json:"prefix"       gorm:"type:varchar(16);not null"`
	Name       string `json:"name"         gorm:"type:varchar(100);not null"`
	CreatedAt  int64  `json:"created_at"   gorm:"not null"`
	LastUsedAt *int64 `json:"last_used_at"`
	RevokedAt  *int64 `json:"revoked_at"`
}

// TableName returns the database table name for UserToken.
func (UserToken) TableName() string { return "user_tokens" }

// Active reports whether the token has not been revoked.
func (t UserToken) Active() bool { return t.RevokedAt == nil }
