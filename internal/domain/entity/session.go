package entity

import "time"

// Session stores an opaque browser session (random token + expiry).
// Rows are never mutated: a session is superseded by a new one or expires.
type Session struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"size:36;not null;index" json:"user_id"`
	Token     string    `gorm:"size:64;not null;uniqueIndex" json:"-"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// IsValid checks session validity.
func (s *Session) IsValid() bool {
	return s.ExpiresAt.After(time.Now())
}

func (Session) TableName() string {
	return "sessions"
}
