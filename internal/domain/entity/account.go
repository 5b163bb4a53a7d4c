package entity

import "time"

// ProviderWordPress — тег провайдера синхронизации для записей accounts.
const ProviderWordPress = "wordpress"

// Account связывает локального пользователя с провайдером идентичности
// (сейчас wordpress, позже возможны другие). Не больше одной записи
// на пару (user_id, provider).
type Account struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	UserID            string    `gorm:"size:36;not null;uniqueIndex:idx_accounts_user_provider,priority:1" json:"user_id"`
	Provider          string    `gorm:"size:32;not null;uniqueIndex:idx_accounts_user_provider,priority:2" json:"provider"`
	ProviderAccountID string    `gorm:"size:36;not null" json:"provider_account_id"`
	CreatedAt         time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}
