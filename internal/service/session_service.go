package service

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/ASAP-Digest/ASAP-Digest-sub012/internal/config"
	"github.com/ASAP-Digest/ASAP-Digest-sub012/internal/domain/entity"
	"github.com/ASAP-Digest/ASAP-Digest-sub012/internal/domain/repository"
	apperrors "github.com/ASAP-Digest/ASAP-Digest-sub012/internal/pkg/errors"
)

// SessionCookieName — фиксированное имя сессионной куки.
const SessionCookieName = "asap_session"

// sessionTokenBytes — длина случайного токена в байтах (256 бит энтропии).
const sessionTokenBytes = 32

// SessionService управляет жизненным циклом локальных сессий:
// выдача, валидация, отзыв, очистка. Сессии не мутируются —
// только создаются заново или истекают.
type SessionService struct {
	sessionRepo  repository.SessionRepository
	userRepo     repository.UserRepository
	ttl          time.Duration
	cookieDomain string
	secureCookie bool
}

// NewSessionService создает новый SessionService
func NewSessionService(sessionRepo repository.SessionRepository, userRepo repository.UserRepository, cfg config.SessionConfig, secureCookie bool) (*SessionService, error) {
	if sessionRepo == nil {
		return nil, fmt.Errorf("session repository is required")
	}
	if userRepo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	ttlHours := cfg.TTLHours
	if ttlHours <= 0 {
		ttlHours = 720 // 30 дней
	}
	return &SessionService{
		sessionRepo:  sessionRepo,
		userRepo:     userRepo,
		ttl:          time.Duration(ttlHours) * time.Hour,
		cookieDomain: cfg.CookieDomain,
		secureCookie: secureCookie,
	}, nil
}

// TTL возвращает настроенное время жизни сессии
func (s *SessionService) TTL() time.Duration {
	return s.ttl
}

// CreateSession генерирует криптослучайный токен, сохраняет сессию и
// возвращает ее. Сырой токен доступен через session.Token ровно один раз —
// для установки куки; в логи он не попадает.
func (s *SessionService) CreateSession(userID string) (*entity.Session, error) {
	token, err := generateRandomHex(sessionTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: token generation: %v", apperrors.ErrSessionCreationFailed, err)
	}

	session := &entity.Session{
		UserID:    userID,
		Token:     token,
		ExpiresAt: time.Now().Add(s.ttl),
		CreatedAt: time.Now(),
	}
	if err := s.sessionRepo.Create(session); err != nil {
		// Логируем user id, но никогда — сырой токен
		log.Printf("[SessionService] Ошибка записи сессии для пользователя %s: %v", userID, err)
		return nil, fmt.Errorf("%w: %v", apperrors.ErrSessionCreationFailed, err)
	}
	return session, nil
}

// Validate находит сессию по токену и возвращает пользователя вместе с ней.
// Отсутствующий или истекший токен — apperrors.ErrUnauthorized; вызывающая
// сторона должна очистить куку.
func (s *SessionService) Validate(token string) (*entity.User, *entity.Session, error) {
	if token == "" {
		return nil, nil, apperrors.ErrUnauthorized
	}

	session, err := s.sessionRepo.GetByToken(token)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, apperrors.ErrUnauthorized
		}
		return nil, nil, err
	}
	if !session.IsValid() {
		return nil, nil, fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, apperrors.ErrExpiredToken)
	}

	user, err := s.userRepo.GetByID(session.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			log.Printf("[SessionService] Сессия ID=%d ссылается на отсутствующего пользователя %s", session.ID, session.UserID)
			return nil, nil, apperrors.ErrUnauthorized
		}
		return nil, nil, err
	}
	return user, session, nil
}

// Revoke удаляет сессию по токену (logout)
func (s *SessionService) Revoke(token string) error {
	if token == "" {
		return nil
	}
	return s.sessionRepo.DeleteByToken(token)
}

// CleanupExpired удаляет истекшие сессии; вызывается периодической горутиной
func (s *SessionService) CleanupExpired() (int64, error) {
	return s.sessionRepo.DeleteExpired()
}

// NewCSRFToken генерирует случайное значение для double-submit пары
// (кука + заголовок X-CSRF-Token).
func (s *SessionService) NewCSRFToken() (string, error) {
	return generateRandomHex(32)
}

// SetSessionCookie устанавливает httponly сессионную куку с Max-Age,
// равным TTL сессии.
func (s *SessionService) SetSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   s.cookieDomain,
		MaxAge:   int(s.ttl.Seconds()),
		Secure:   s.secureCookie,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie сбрасывает сессионную куку
func (s *SessionService) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   s.cookieDomain,
		MaxAge:   -1,
		Secure:   s.secureCookie,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func generateRandomHex(byteLen int) (string, error) {
	if byteLen <= 0 {
		byteLen = 16
	}
	buf := make([]byte, byteLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
