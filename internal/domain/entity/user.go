package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Ключи метаданных пользователя. Metadata дублирует wp_user_id для удобства
// выборок; авторитетным источником связи остается таблица user_maps.
const (
	MetaKeyWPUserID = "wp_user_id"
	MetaKeyRoles    = "roles"
)

// Metadata хранит произвольные атрибуты пользователя в колонке jsonb.
type Metadata map[string]interface{}

// Value сериализует метаданные в jsonb.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan десериализует jsonb в метаданные.
func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = Metadata{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported metadata column type %T", value)
	}
	if len(data) == 0 {
		*m = Metadata{}
		return nil
	}
	return json.Unmarshal(data, m)
}

// User представляет локального пользователя приложения.
// Связь с пользователем контент-бэкенда (WordPress) ведется через user_maps.
type User struct {
	ID          string   `gorm:"primaryKey;size:36" json:"id"`
	Email       string   `gorm:"size:100;not null;uniqueIndex" json:"email"`
	Username    string   `gorm:"size:50;not null;uniqueIndex" json:"username"`
	DisplayName string   `gorm:"size:100;not null;default:''" json:"display_name"`
	Metadata    Metadata `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (User) TableName() string {
	return "users"
}

// BeforeCreate генерирует uuid для нового пользователя, если ID не задан
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Metadata == nil {
		u.Metadata = Metadata{}
	}
	return nil
}

// WPUserID извлекает remote user id из метаданных.
// jsonb числа приходят как float64, поэтому разбираем несколько типов.
func (u *User) WPUserID() (int64, bool) {
	if u.Metadata == nil {
		return 0, false
	}
	switch v := u.Metadata[MetaKeyWPUserID].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case json.Number:
		id, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return id, true
	default:
		return 0, false
	}
}

// Roles возвращает список ролей из метаданных (пустой список, если ролей нет).
func (u *User) Roles() []string {
	if u.Metadata == nil {
		return nil
	}
	switch v := u.Metadata[MetaKeyRoles].(type) {
	case []string:
		return v
	case []interface{}:
		roles := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				roles = append(roles, s)
			}
		}
		return roles
	default:
		return nil
	}
}
