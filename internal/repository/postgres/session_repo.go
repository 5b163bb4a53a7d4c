package postgres

import (
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/ASAP-Digest/ASAP-Digest-sub012/internal/domain/entity"
	apperrors "github.com/ASAP-Digest/ASAP-Digest-sub012/internal/pkg/errors"
)

// SessionRepo реализует интерфейс SessionRepository с использованием PostgreSQL и GORM
type SessionRepo struct {
	db *gorm.DB
}

// NewSessionRepo создает новый экземпляр SessionRepo и возвращает ошибку при проблемах
func NewSessionRepo(gormDB *gorm.DB) (*SessionRepo, error) {
	if gormDB == nil {
		return nil, fmt.Errorf("GORM DB instance is required for SessionRepo")
	}
	return &SessionRepo{db: gormDB}, nil
}

// Create сохраняет новую сессию в базе данных
func (r *SessionRepo) Create(session *entity.Session) error {
	result := r.db.Create(session)
	if result.Error != nil {
		return fmt.Errorf("ошибка создания сессии: %w", result.Error)
	}
	return nil
}

// GetByToken находит сессию по значению токена.
// Срок действия здесь не проверяется — это ответственность сервиса.
func (r *SessionRepo) GetByToken(token string) (*entity.Session, error) {
	var session entity.Session
	result := r.db.Where("token = ?", token).First(&session)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения сессии по токену: %w", result.Error)
	}
	return &session, nil
}

// DeleteByToken удаляет сессию по токену (явный отзыв при logout)
func (r *SessionRepo) DeleteByToken(token string) error {
	result := r.db.Where("token = ?", token).Delete(&entity.Session{})
	if result.Error != nil {
		return fmt.Errorf("ошибка удаления сессии: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// Цель — чтобы сессии не было, и ее нет: возвращаем nil
		log.Printf("[SessionRepo] Сессия для удаления не найдена")
		return nil
	}
	return nil
}

// DeleteExpired удаляет истекшие сессии из базы данных
func (r *SessionRepo) DeleteExpired() (int64, error) {
	result := r.db.Where("expires_at <= ?", time.Now()).Delete(&entity.Session{})
	if result.Error != nil {
		return 0, fmt.Errorf("ошибка очистки истекших сессий: %w", result.Error)
	}
	return result.RowsAffected, nil
}
