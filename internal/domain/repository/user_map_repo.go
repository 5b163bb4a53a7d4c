package repository

import (
	"github.com/ASAP-Digest/ASAP-Digest-sub012/internal/domain/entity"
)

// UserMapRepository определяет методы для таблицы соответствия
// wp_user_id -> local user. Таблица user_maps — авторитетный источник связи.
type UserMapRepository interface {
	// GetByWPUserID возвращает запись маппинга по remote user id
	GetByWPUserID(wpUserID int64) (*entity.UserMap, error)

	// GetUserByWPUserID возвращает локального пользователя, связанного с remote id
	GetUserByWPUserID(wpUserID int64) (*entity.User, error)

	// CreateMappedUser атомарно создает пользователя, маппинг и account-связь
	// (в одной транзакции, в порядке users -> user_maps -> accounts).
	// При конфликте по wp_user_id (гонка двух первых верификаций) транзакция
	// откатывается и возвращается пользователь-победитель с created=false.
	CreateMappedUser(user *entity.User, wpUserID int64, provider string) (created *entity.User, fresh bool, err error)
}
