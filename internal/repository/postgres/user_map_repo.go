package postgres

import (
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ASAP-Digest/ASAP-Digest-sub012/internal/domain/entity"
	apperrors "github.com/ASAP-Digest/ASAP-Digest-sub012/internal/pkg/errors"
)

// errProvisionRace — внутренняя ошибка для отката транзакции, когда
// upsert в user_maps не вставил строку (конкурентная верификация успела раньше).
var errProvisionRace = errors.New("user map already exists")

// UserMapRepo реализует интерфейс UserMapRepository с использованием PostgreSQL и GORM
type UserMapRepo struct {
	db *gorm.DB
}

// NewUserMapRepo создает новый экземпляр UserMapRepo
func NewUserMapRepo(db *gorm.DB) *UserMapRepo {
	return &UserMapRepo{db: db}
}

// GetByWPUserID возвращает запись маппинга по remote user id
func (r *UserMapRepo) GetByWPUserID(wpUserID int64) (*entity.UserMap, error) {
	var mapping entity.UserMap
	result := r.db.Where("wp_user_id = ?", wpUserID).First(&mapping)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения маппинга по wp_user_id: %w", result.Error)
	}
	return &mapping, nil
}

// GetUserByWPUserID возвращает локального пользователя, связанного с remote id
func (r *UserMapRepo) GetUserByWPUserID(wpUserID int64) (*entity.User, error) {
	mapping, err := r.GetByWPUserID(wpUserID)
	if err != nil {
		return nil, err
	}
	var user entity.User
	result := r.db.Where("id = ?", mapping.UserID).First(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			// Маппинг без пользователя — нарушение инварианта провижининга
			log.Printf("[UserMapRepo] Маппинг wp_user_id=%d ссылается на отсутствующего пользователя %s", wpUserID, mapping.UserID)
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя маппинга: %w", result.Error)
	}
	return &user, nil
}

// CreateMappedUser атомарно создает пользователя, маппинг и account-связь.
// Порядок записи фиксирован: users -> user_maps -> accounts. Арбитром гонки
// служит первичный ключ user_maps.wp_user_id: проигравшая транзакция
// откатывается целиком, и возвращается пользователь-победитель.
func (r *UserMapRepo) CreateMappedUser(user *entity.User, wpUserID int64, provider string) (*entity.User, bool, error) {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}

		mapping := &entity.UserMap{WPUserID: wpUserID, UserID: user.ID}
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "wp_user_id"}},
			DoNothing: true,
		}).Create(mapping)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errProvisionRace
		}

		account := &entity.Account{
			UserID:            user.ID,
			Provider:          provider,
			ProviderAccountID: user.ID,
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(account).Error; err != nil {
			return err
		}
		return nil
	})

	if err == nil {
		return user, true, nil
	}

	// Проигрыш гонки или дубликат по уникальным колонкам users (email/username
	// от той же конкурентной верификации): перечитываем победителя.
	winner, readErr := r.GetUserByWPUserID(wpUserID)
	if readErr == nil {
		log.Printf("[UserMapRepo] Гонка провижининга wp_user_id=%d, возвращаем существующего пользователя %s", wpUserID, winner.ID)
		return winner, false, nil
	}
	if !errors.Is(err, errProvisionRace) {
		return nil, false, fmt.Errorf("ошибка провижининга пользователя wp_user_id=%d: %w", wpUserID, err)
	}
	return nil, false, fmt.Errorf("гонка провижининга wp_user_id=%d, но победитель не найден: %w", wpUserID, readErr)
}
