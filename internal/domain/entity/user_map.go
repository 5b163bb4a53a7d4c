package entity

import "time"

// UserMap links a WordPress user id to a local user (one row per wp_user_id).
// This table is the authoritative mapping; users.metadata only mirrors it.
type UserMap struct {
	WPUserID  int64     `gorm:"column:wp_user_id;primaryKey;autoIncrement:false" json:"wp_user_id"`
	UserID    string    `gorm:"size:36;not null;index" json:"user_id"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (UserMap) TableName() string {
	return "user_maps"
}
