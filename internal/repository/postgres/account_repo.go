package postgres

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ASAP-Digest/ASAP-Digest-sub012/internal/domain/entity"
	apperrors "github.com/ASAP-Digest/ASAP-Digest-sub012/internal/pkg/errors"
)

// AccountRepo реализует интерфейс AccountRepository с использованием PostgreSQL и GORM
type AccountRepo struct {
	db *gorm.DB
}

// NewAccountRepo создает новый экземпляр AccountRepo
func NewAccountRepo(db *gorm.DB) *AccountRepo {
	return &AccountRepo{db: db}
}

// EnsureLinked идемпотентно создает account-связь для пары (userID, provider).
// Существующая запись — no-op, не ошибка.
func (r *AccountRepo) EnsureLinked(userID, provider string) error {
	account := &entity.Account{
		UserID:            userID,
		Provider:          provider,
		ProviderAccountID: userID,
	}
	result := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "provider"}},
		DoNothing: true,
	}).Create(account)
	if result.Error != nil {
		return fmt.Errorf("ошибка создания account-связи для пользователя %s: %w", userID, result.Error)
	}
	return nil
}

// GetByUserAndProvider возвращает связь пользователя с провайдером
func (r *AccountRepo) GetByUserAndProvider(userID, provider string) (*entity.Account, error) {
	var account entity.Account
	result := r.db.Where("user_id = ? AND provider = ?", userID, provider).First(&account)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения account-связи: %w", result.Error)
	}
	return &account, nil
}
