package repository

import (
	"github.com/ASAP-Digest/ASAP-Digest-sub012/internal/domain/entity"
)

// AccountRepository определяет методы для provider-связей пользователя.
type AccountRepository interface {
	// EnsureLinked идемпотентно создает запись account для пары
	// (userID, provider); существующая запись — не ошибка.
	EnsureLinked(userID, provider string) error

	// GetByUserAndProvider возвращает связь пользователя с провайдером
	GetByUserAndProvider(userID, provider string) (*entity.Account, error)
}
