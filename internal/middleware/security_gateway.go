package middleware

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ASAP-Digest/ASAP-Digest-sub012/internal/metrics"
	"github.com/ASAP-Digest/ASAP-Digest-sub012/internal/service"
)

// Заголовки и пути, классифицируемые gateway-middleware.
const (
	CSRFHeader     = "X-CSRF-Token"
	CSRFCookieName = "asap_csrf"

	// SyncSecretHeader — shared secret для внутреннего sync-пути
	SyncSecretHeader = "X-WP-Sync-Secret"

	// PathVerifySyncToken — открытый путь верификации sync-токена:
	// доверие делегировано самой верификации токена, локальный секрет не нужен
	PathVerifySyncToken = "/auth/verify-sync-token"

	// PathSync — внутренний кросс-доменный sync-путь (push из контент-бэкенда)
	PathSync = "/auth/sync"

	// authPrefix — пространство identity/auth путей
	authPrefix = "/auth/"
)

// SecurityGateway классифицирует каждый входящий запрос и требует ровно один
// из трех механизмов доверия: sync-токен (открытый путь верификации),
// shared secret (внутренний sync-путь) или CSRF-пару (остальные мутации
// в auth-пространстве). Механизмы не взаимозаменяемы: принять CSRF там, где
// нужен секрет, означало бы дать клиенту server-to-server полномочия.
type SecurityGateway struct {
	syncSecret    string
	allowedOrigin string
	recorder      metrics.Recorder
}

// NewSecurityGateway создает новый SecurityGateway
func NewSecurityGateway(syncSecret, allowedOrigin string, recorder metrics.Recorder) *SecurityGateway {
	return &SecurityGateway{
		syncSecret:    syncSecret,
		allowedOrigin: allowedOrigin,
		recorder:      recorder,
	}
}

// Handle возвращает Gin middleware, реализующий классификацию запроса.
// Порядок проверок фиксирован: preflight -> классификация мутаций ->
// продвижение сессионной куки в Authorization.
func (g *SecurityGateway) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		method := c.Request.Method

		// 1. CORS preflight для единственного кросс-доменного sync-пути —
		// до любой другой классификации
		if path == PathSync && method == http.MethodOptions {
			origin := c.GetHeader("Origin")
			if origin != g.allowedOrigin {
				g.reject(c, "cors_origin")
				return
			}
			g.writeCORSHeaders(c)
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		// 2. Классификация мутаций в auth-пространстве
		if strings.HasPrefix(path, authPrefix) && isMutating(method) {
			switch path {
			case PathVerifySyncToken:
				// Открытый путь: доверие — у верификации токена

			case PathSync:
				// Кросс-доменный запрос: отдаем CORS-заголовки при совпадении origin
				if origin := c.GetHeader("Origin"); origin != "" && origin == g.allowedOrigin {
					g.writeCORSHeaders(c)
				}
				secret := c.GetHeader(SyncSecretHeader)
				if !secretsEqual(secret, g.syncSecret) {
					log.Printf("[SecurityGateway] Неверный sync secret для %s %s", method, path)
					g.reject(c, "sync_secret")
					return
				}

			default:
				// Double submit: заголовок должен совпасть со значением из куки
				headerToken := c.GetHeader(CSRFHeader)
				cookieToken, err := c.Cookie(CSRFCookieName)
				if err != nil || headerToken == "" || !secretsEqual(headerToken, cookieToken) {
					log.Printf("[SecurityGateway] CSRF проверка не пройдена для %s %s", method, path)
					g.reject(c, "csrf")
					return
				}
			}
		}

		// 3. Продвигаем сессионную куку в Authorization, чтобы обработчики
		// читали идентичность единообразно
		if c.GetHeader("Authorization") == "" {
			if token, err := c.Cookie(service.SessionCookieName); err == nil && token != "" {
				c.Request.Header.Set("Authorization", "Bearer "+token)
			}
		}

		// 4. Пропускаем запрос дальше
		c.Next()
	}
}

// writeCORSHeaders отдает CORS-заголовки для разрешенного origin
func (g *SecurityGateway) writeCORSHeaders(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", g.allowedOrigin)
	c.Header("Access-Control-Allow-Methods", "POST, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type, "+SyncSecretHeader)
	c.Header("Access-Control-Allow-Credentials", "true")
	c.Header("Vary", "Origin")
}

// reject отвечает единообразным 403: текст не раскрывает, какая именно
// проверка не прошла.
func (g *SecurityGateway) reject(c *gin.Context, reason string) {
	if g.recorder != nil {
		g.recorder.RecordGatewayRejection(reason)
	}
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
		"error":      "invalid authorization",
		"error_type": "forbidden",
	})
}

// isMutating возвращает true для методов, изменяющих состояние
func isMutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	default:
		return true
	}
}

// secretsEqual сравнивает секреты за константное время
func secretsEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
