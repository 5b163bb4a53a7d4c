package handler

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ASAP-Digest/ASAP-Digest-sub012/internal/domain/entity"
	"github.com/ASAP-Digest/ASAP-Digest-sub012/internal/middleware"
	apperrors "github.com/ASAP-Digest/ASAP-Digest-sub012/internal/pkg/errors"
	"github.com/ASAP-Digest/ASAP-Digest-sub012/internal/service"
	"github.com/ASAP-Digest/ASAP-Digest-sub012/internal/wordpress"
)

// AuthHandler обрабатывает запросы моста синхронизации идентичности
type AuthHandler struct {
	syncService    *service.SyncService
	sessionService *service.SessionService
}

// NewAuthHandler создает новый обработчик моста
func NewAuthHandler(syncService *service.SyncService, sessionService *service.SessionService) *AuthHandler {
	return &AuthHandler{
		syncService:    syncService,
		sessionService: sessionService,
	}
}

// Структуры запросов и ответов

// VerifySyncTokenRequest представляет запрос на верификацию sync-токена
type VerifySyncTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// UpdateProfileRequest представляет запрос на обновление профиля
type UpdateProfileRequest struct {
	DisplayName string `json:"display_name" binding:"required,min=1,max=100"`
}

// userPayload возвращает безопасное представление пользователя для ответов
func userPayload(user *entity.User) gin.H {
	return gin.H{
		"id":           user.ID,
		"email":        user.Email,
		"username":     user.Username,
		"display_name": user.DisplayName,
		"roles":        user.Roles(),
	}
}

// VerifySyncToken обрабатывает POST /auth/verify-sync-token:
// верифицирует токен у контент-бэкенда, провижинит пользователя при
// необходимости и устанавливает сессионную куку.
func (h *AuthHandler) VerifySyncToken(c *gin.Context) {
	var req VerifySyncTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	result, err := h.syncService.VerifyAndEstablish(c.Request.Context(), req.Token)
	if err != nil {
		h.handleSyncError(c, err)
		return
	}

	h.sessionService.SetSessionCookie(c.Writer, result.Session.Token)

	log.Printf("[AuthHandler] Сессия установлена для пользователя %s (wp_user_id=%d, provisioned=%t)",
		result.User.ID, result.WPUserID, result.Provisioned)

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"wpUserId":        result.WPUserID,
		"baUserId":        result.User.ID,
		"session_created": result.SessionCreated,
	})
}

// SyncUser обрабатывает POST /auth/sync — идемпотентный приемник push-снапшотов
// из контент-бэкенда. Shared secret уже проверен SecurityGateway.
func (h *AuthHandler) SyncUser(c *gin.Context) {
	var snapshot wordpress.ProfileSnapshot
	if err := c.ShouldBindJSON(&snapshot); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	user, created, err := h.syncService.ApplySnapshot(c.Request.Context(), snapshot)
	if err != nil {
		h.handleSyncError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"baUserId": user.ID,
		"created":  created,
	})
}

// GetSession обрабатывает GET /auth/session: состояние аутентификации
// по текущей куке, без тела запроса.
func (h *AuthHandler) GetSession(c *gin.Context) {
	token := middleware.ExtractSessionToken(c)
	if token == "" {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}

	user, session, err := h.sessionService.Validate(token)
	if err != nil {
		if errors.Is(err, apperrors.ErrUnauthorized) {
			h.sessionService.ClearSessionCookie(c.Writer)
			c.JSON(http.StatusOK, gin.H{"authenticated": false})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"user":          userPayload(user),
		"session": gin.H{
			"created_at": session.CreatedAt,
			"expires_at": session.ExpiresAt,
		},
	})
}

// GetCSRFToken обрабатывает GET /auth/csrf: выдает double-submit пару
// (кука + значение в теле ответа) для браузерных мутаций.
func (h *AuthHandler) GetCSRFToken(c *gin.Context) {
	token, err := h.sessionService.NewCSRFToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.CSRFCookieName, token, int((12 * time.Hour).Seconds()), "/", "", gin.Mode() == gin.ReleaseMode, true)
	c.JSON(http.StatusOK, gin.H{"csrfToken": token})
}

// Logout обрабатывает POST /auth/logout: удаляет сессию по токену
// и сбрасывает куку.
func (h *AuthHandler) Logout(c *gin.Context) {
	token := middleware.ExtractSessionToken(c)
	if token != "" {
		if err := h.sessionService.Revoke(token); err != nil {
			log.Printf("[AuthHandler] Ошибка отзыва сессии: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
	}
	h.sessionService.ClearSessionCookie(c.Writer)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// UpdateProfile обрабатывает PUT /auth/profile: локальное обновление профиля
// с fire-and-forget push-синхронизацией в контент-бэкенд.
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	userValue, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	user := userValue.(*entity.User)

	updated, err := h.syncService.UpdateProfileAndPush(c.Request.Context(), user, req.DisplayName)
	if err != nil {
		h.handleSyncError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "user": userPayload(updated)})
}

// handleSyncError — единственное место трансляции ошибок моста в HTTP-статусы
func (h *AuthHandler) handleSyncError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperrors.ErrTokenInvalid):
		// Терминально: клиент должен начать аутентификацию заново
		c.JSON(http.StatusUnauthorized, gin.H{
			"success":    false,
			"error":      "Invalid or expired sync token",
			"error_type": "token_invalid",
		})
	case errors.Is(err, apperrors.ErrUpstreamUnavailable):
		// Ретраибельно на стороне клиентского флоу
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success":    false,
			"error":      "Content backend temporarily unavailable",
			"error_type": "upstream_unavailable",
		})
	case errors.Is(err, apperrors.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{
			"success":    false,
			"error":      "Invalid request data",
			"error_type": "validation",
		})
	case errors.Is(err, apperrors.ErrSessionCreationFailed):
		c.JSON(http.StatusInternalServerError, gin.H{
			"success":    false,
			"error":      "Failed to create session",
			"error_type": "session_creation_failed",
		})
	default:
		log.Printf("[AuthHandler] Внутренняя ошибка моста: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success":    false,
			"error":      "Internal server error",
			"error_type": "internal_error",
		})
	}
}
