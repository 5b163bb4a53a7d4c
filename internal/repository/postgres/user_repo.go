package postgres

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/ASAP-Digest/ASAP-Digest-sub012/internal/domain/entity"
	apperrors "github.com/ASAP-Digest/ASAP-Digest-sub012/internal/pkg/errors"
)

// UserRepo реализует интерфейс UserRepository с использованием PostgreSQL и GORM
type UserRepo struct {
	db *gorm.DB
}

// NewUserRepo создает новый экземпляр UserRepo
func NewUserRepo(db *gorm.DB) *UserRepo {
	return &UserRepo{db: db}
}

// GetByID возвращает пользователя по uuid
func (r *UserRepo) GetByID(id string) (*entity.User, error) {
	var user entity.User
	result := r.db.Where("id = ?", id).First(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя по ID: %w", result.Error)
	}
	return &user, nil
}

// GetByEmail возвращает пользователя по email
func (r *UserRepo) GetByEmail(email string) (*entity.User, error) {
	var user entity.User
	result := r.db.Where("email = ?", email).First(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя по email: %w", result.Error)
	}
	return &user, nil
}

// UpdateProfile обновляет указанные поля профиля пользователя
func (r *UserRepo) UpdateProfile(userID string, updates map[string]interface{}) error {
	result := r.db.Model(&entity.User{}).
		Where("id = ?", userID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("ошибка обновления профиля пользователя %s: %w", userID, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
