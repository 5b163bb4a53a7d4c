package repository

import (
	"github.com/ASAP-Digest/ASAP-Digest-sub012/internal/domain/entity"
)

// SessionRepository определяет методы для работы с сессиями.
// Каждая валидация читает таблицу sessions напрямую — кэшей нет.
type SessionRepository interface {
	// Create сохраняет новую сессию
	Create(session *entity.Session) error

	// GetByToken находит сессию по значению токена (включая истекшие:
	// проверка срока — ответственность сервиса)
	GetByToken(token string) (*entity.Session, error)

	// DeleteByToken удаляет сессию по токену (явный отзыв)
	DeleteByToken(token string) error

	// DeleteExpired удаляет истекшие сессии и возвращает число удаленных строк
	DeleteExpired() (int64, error)
}
