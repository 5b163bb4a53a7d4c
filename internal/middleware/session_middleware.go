package middleware

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/ASAP-Digest/ASAP-Digest-sub012/internal/pkg/errors"
	"github.com/ASAP-Digest/ASAP-Digest-sub012/internal/service"
)

// Ключи контекста запроса, устанавливаемые SessionMiddleware.
const (
	ContextUserKey    = "user"
	ContextUserIDKey  = "user_id"
	ContextSessionKey = "session"
)

// SessionMiddleware обеспечивает аутентификацию по сессионной куке
// для защищенных маршрутов
type SessionMiddleware struct {
	sessionService *service.SessionService
}

// NewSessionMiddleware создает новый middleware с использованием SessionService
func NewSessionMiddleware(sessionService *service.SessionService) *SessionMiddleware {
	return &SessionMiddleware{sessionService: sessionService}
}

// RequireSession проверяет, аутентифицирован ли пользователь.
// Токен читается из Authorization (куда его продвигает SecurityGateway)
// или напрямую из куки. Каждая проверка — чтение таблицы sessions.
func (m *SessionMiddleware) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractSessionToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "error_type": "session_missing"})
			c.Abort()
			return
		}

		user, session, err := m.sessionService.Validate(token)
		if err != nil {
			if errors.Is(err, apperrors.ErrUnauthorized) {
				// Невалидная или истекшая сессия: просим клиента сбросить куку
				m.sessionService.ClearSessionCookie(c.Writer)
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired session", "error_type": "session_invalid"})
				c.Abort()
				return
			}
			// Сбой хранилища: кука может быть валидной, не трогаем ее
			log.Printf("[SessionMiddleware] Ошибка проверки сессии: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "error_type": "internal_error"})
			c.Abort()
			return
		}

		c.Set(ContextUserKey, user)
		c.Set(ContextUserIDKey, user.ID)
		c.Set(ContextSessionKey, session)

		c.Next()
	}
}

// ExtractSessionToken достает сессионный токен из Bearer-заголовка или куки
func ExtractSessionToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}
	if token, err := c.Cookie(service.SessionCookieName); err == nil {
		return token
	}
	return ""
}
