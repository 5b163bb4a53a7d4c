package errors

import "errors"

// Общие ошибки приложения
var (
	// ErrNotFound используется, когда запись или ресурс не найдены.
	ErrNotFound = errors.New("record not found")

	// ErrUnauthorized используется для ошибок авторизации (невалидная сессия, нет прав).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden используется, когда проверка CSRF или shared secret не пройдена.
	ErrForbidden = errors.New("forbidden")

	// ErrValidation используется для ошибок валидации входных данных.
	ErrValidation = errors.New("validation failed")

	// ErrConflict используется для конфликтов состояния (например, гонка провижининга).
	ErrConflict = errors.New("resource state conflict")

	// ErrExpiredToken используется, когда сессионный токен истек.
	ErrExpiredToken = errors.New("token is expired")
)

// Ошибки протокола синхронизации с контент-бэкендом.
var (
	// ErrTokenInvalid — sync-токен отклонен контент-бэкендом (истек, использован,
	// неверный формат). Терминальная ошибка: клиент должен начать флоу заново.
	ErrTokenInvalid = errors.New("sync token invalid")

	// ErrUpstreamUnavailable — сеть/5xx/таймаут при обращении к контент-бэкенду.
	// Ретраится клиентским флоу, не мостом. Никогда не смешивать с ErrTokenInvalid.
	ErrUpstreamUnavailable = errors.New("content backend unavailable")

	// ErrSyncFailed — push-уведомление не доставлено после всех попыток.
	ErrSyncFailed = errors.New("sync_failed")

	// ErrSessionCreationFailed — ошибка записи сессии в БД.
	ErrSessionCreationFailed = errors.New("session creation failed")
)
