package repository

import (
	"github.com/ASAP-Digest/ASAP-Digest-sub012/internal/domain/entity"
)

// UserRepository определяет методы для работы с локальными пользователями.
// Создание пользователя происходит только через UserMapRepository.CreateMappedUser,
// чтобы запись users не могла существовать без строки user_maps.
type UserRepository interface {
	// GetByID возвращает пользователя по его uuid
	GetByID(id string) (*entity.User, error)

	// GetByEmail возвращает пользователя по email
	GetByEmail(email string) (*entity.User, error)

	// UpdateProfile обновляет указанные поля профиля пользователя
	UpdateProfile(userID string, updates map[string]interface{}) error
}
