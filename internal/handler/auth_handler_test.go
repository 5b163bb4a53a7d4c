package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ASAP-Digest/ASAP-Digest-sub012/internal/middleware"
	apperrors "github.com/ASAP-Digest/ASAP-Digest-sub012/internal/pkg/errors"
	"github.com/ASAP-Digest/ASAP-Digest-sub012/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestGinContext создает *gin.Context для тестов с JSON body
func newTestGinContext(method, path string, body interface{}) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()

	var req *http.Request
	if body != nil {
		bodyBytes, _ := json.Marshal(body)
		req, _ = http.NewRequest(method, path, bytes.NewReader(bodyBytes))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, path, nil)
	}

	c, _ := gin.CreateTestContext(w)
	c.Request = req
	return c, w
}

// parseJSONResponse парсит JSON ответ из *httptest.ResponseRecorder
func parseJSONResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err, "Response body should be valid JSON: %s", w.Body.String())
	return resp
}

// ============================================================================
// Request validation tests — handler возвращает 400 до вызова сервисов
// ============================================================================

func TestVerifySyncToken_ValidationErrors(t *testing.T) {
	handler := &AuthHandler{}

	tests := []struct {
		name string
		body interface{}
	}{
		{name: "empty body", body: nil},
		{name: "missing token", body: map[string]string{}},
		{name: "empty token", body: map[string]string{"token": ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestGinContext("POST", "/auth/verify-sync-token", tt.body)
			handler.VerifySyncToken(c)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			resp := parseJSONResponse(t, w)
			assert.Contains(t, resp["error"], "Invalid request data")
		})
	}
}

func TestSyncUser_ValidationErrors(t *testing.T) {
	handler := &AuthHandler{}

	tests := []struct {
		name string
		body interface{}
	}{
		{name: "empty body", body: nil},
		{name: "missing wp_user_id", body: map[string]string{"email": "user@example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestGinContext("POST", "/auth/sync", tt.body)
			handler.SyncUser(c)

			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestUpdateProfile_ValidationErrors(t *testing.T) {
	handler := &AuthHandler{}

	longName := make([]byte, 101)
	for i := range longName {
		longName[i] = 'a'
	}

	tests := []struct {
		name string
		body interface{}
	}{
		{name: "empty body", body: nil},
		{name: "missing display_name", body: map[string]string{}},
		{name: "display_name too long", body: map[string]string{"display_name": string(longName)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestGinContext("PUT", "/auth/profile", tt.body)
			handler.UpdateProfile(c)

			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestUpdateProfile_MissingUserContext(t *testing.T) {
	handler := &AuthHandler{}

	c, w := newTestGinContext("PUT", "/auth/profile", map[string]string{"display_name": "New Name"})
	handler.UpdateProfile(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// ============================================================================
// Трансляция ошибок моста в HTTP-статусы
// ============================================================================

func TestHandleSyncError_Mapping(t *testing.T) {
	handler := &AuthHandler{}

	tests := []struct {
		name          string
		err           error
		wantStatus    int
		wantErrorType string
	}{
		{
			name:          "token invalid is terminal 401",
			err:           apperrors.ErrTokenInvalid,
			wantStatus:    http.StatusUnauthorized,
			wantErrorType: "token_invalid",
		},
		{
			name:          "upstream unavailable is retryable 503",
			err:           apperrors.ErrUpstreamUnavailable,
			wantStatus:    http.StatusServiceUnavailable,
			wantErrorType: "upstream_unavailable",
		},
		{
			name:          "validation error is 400",
			err:           apperrors.ErrValidation,
			wantStatus:    http.StatusBadRequest,
			wantErrorType: "validation",
		},
		{
			name:          "session creation failure is 500",
			err:           apperrors.ErrSessionCreationFailed,
			wantStatus:    http.StatusInternalServerError,
			wantErrorType: "session_creation_failed",
		},
		{
			name:          "unknown error is generic 500",
			err:           errors.New("boom"),
			wantStatus:    http.StatusInternalServerError,
			wantErrorType: "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestGinContext("POST", "/auth/verify-sync-token", nil)
			handler.handleSyncError(c, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := parseJSONResponse(t, w)
			assert.Equal(t, false, resp["success"])
			assert.Equal(t, tt.wantErrorType, resp["error_type"])
		})
	}
}

// ============================================================================
// Session-эндпоинты, не требующие SyncService
// ============================================================================

func TestGetSession_NoToken(t *testing.T) {
	handler := &AuthHandler{sessionService: &service.SessionService{}}

	c, w := newTestGinContext("GET", "/auth/session", nil)
	handler.GetSession(c)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := parseJSONResponse(t, w)
	assert.Equal(t, false, resp["authenticated"])
}

func TestGetCSRFToken(t *testing.T) {
	handler := &AuthHandler{sessionService: &service.SessionService{}}

	c, w := newTestGinContext("GET", "/auth/csrf", nil)
	handler.GetCSRFToken(c)

	require.Equal(t, http.StatusOK, w.Code)
	resp := parseJSONResponse(t, w)
	token, ok := resp["csrfToken"].(string)
	require.True(t, ok)
	assert.Len(t, token, 64)

	// Кука должна содержать то же значение, что и тело ответа
	var csrfCookie *http.Cookie
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == middleware.CSRFCookieName {
			csrfCookie = cookie
		}
	}
	require.NotNil(t, csrfCookie, "CSRF кука должна быть установлена")
	assert.Equal(t, token, csrfCookie.Value)
	assert.True(t, csrfCookie.HttpOnly)
}

func TestLogout_NoSession(t *testing.T) {
	handler := &AuthHandler{sessionService: &service.SessionService{}}

	c, w := newTestGinContext("POST", "/auth/logout", nil)
	handler.Logout(c)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := parseJSONResponse(t, w)
	assert.Equal(t, true, resp["success"])

	// Кука сбрасывается даже без активной сессии
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, service.SessionCookieName, cookies[0].Name)
	assert.Negative(t, cookies[0].MaxAge)
}
