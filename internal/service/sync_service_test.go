package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ASAP-Digest/ASAP-Digest-sub012/internal/domain/entity"
	apperrors "github.com/ASAP-Digest/ASAP-Digest-sub012/internal/pkg/errors"
	"github.com/ASAP-Digest/ASAP-Digest-sub012/internal/wordpress"
)

// ============================================================================
// Моки для тестирования SyncService и SessionService
// ============================================================================

// MockUserRepository реализует repository.UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByID(id string) (*entity.User, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(email string) (*entity.User, error) {
	args := m.Called(email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.User), args.Error(1)
}

func (m *MockUserRepository) UpdateProfile(userID string, updates map[string]interface{}) error {
	args := m.Called(userID, updates)
	return args.Error(0)
}

// MockUserMapRepository реализует repository.UserMapRepository
type MockUserMapRepository struct {
	mock.Mock
}

func (m *MockUserMapRepository) GetByWPUserID(wpUserID int64) (*entity.UserMap, error) {
	args := m.Called(wpUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.UserMap), args.Error(1)
}

func (m *MockUserMapRepository) GetUserByWPUserID(wpUserID int64) (*entity.User, error) {
	args := m.Called(wpUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.User), args.Error(1)
}

func (m *MockUserMapRepository) CreateMappedUser(user *entity.User, wpUserID int64, provider string) (*entity.User, bool, error) {
	args := m.Called(user, wpUserID, provider)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*entity.User), args.Bool(1), args.Error(2)
}

// MockAccountRepository реализует repository.AccountRepository
type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) EnsureLinked(userID, provider string) error {
	args := m.Called(userID, provider)
	return args.Error(0)
}

func (m *MockAccountRepository) GetByUserAndProvider(userID, provider string) (*entity.Account, error) {
	args := m.Called(userID, provider)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Account), args.Error(1)
}

// MockSessionRepository реализует repository.SessionRepository
type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) Create(session *entity.Session) error {
	args := m.Called(session)
	return args.Error(0)
}

func (m *MockSessionRepository) GetByToken(token string) (*entity.Session, error) {
	args := m.Called(token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Session), args.Error(1)
}

func (m *MockSessionRepository) DeleteByToken(token string) error {
	args := m.Called(token)
	return args.Error(0)
}

func (m *MockSessionRepository) DeleteExpired() (int64, error) {
	args := m.Called()
	return args.Get(0).(int64), args.Error(1)
}

// MockContentBackend реализует ContentBackendAPI
type MockContentBackend struct {
	mock.Mock
}

func (m *MockContentBackend) VerifyToken(ctx context.Context, token string) (int64, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockContentBackend) GetUserDetails(ctx context.Context, wpUserID int64) (*wordpress.UserDetails, error) {
	args := m.Called(ctx, wpUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wordpress.UserDetails), args.Error(1)
}

// MockPushNotifier реализует PushNotifier
type MockPushNotifier struct {
	mock.Mock
}

func (m *MockPushNotifier) NotifyAsync(snapshot wordpress.ProfileSnapshot) <-chan error {
	args := m.Called(snapshot)
	return args.Get(0).(<-chan error)
}

// recorderStub считает вызовы метрик без Prometheus.
// Мьютекс нужен: исход push записывается из отдельной горутины.
type recorderStub struct {
	mu            sync.Mutex
	verifications map[string]int
	provisioned   int
	degraded      int
	pushes        map[string]int
	rejections    map[string]int
}

func newRecorderStub() *recorderStub {
	return &recorderStub{
		verifications: map[string]int{},
		pushes:        map[string]int{},
		rejections:    map[string]int{},
	}
}

func (r *recorderStub) RecordVerification(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verifications[outcome]++
}

func (r *recorderStub) RecordProvisionedUser() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.provisioned++
}

func (r *recorderStub) RecordDegradedProvisioning() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.degraded++
}

func (r *recorderStub) RecordPush(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushes[outcome]++
}

func (r *recorderStub) RecordGatewayRejection(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejections[reason]++
}

func (r *recorderStub) pushCount(outcome string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pushes[outcome]
}

// ============================================================================
// createTestSyncService собирает SyncService на моках
// ============================================================================

func createTestSyncService(
	backend *MockContentBackend,
	userRepo *MockUserRepository,
	userMapRepo *MockUserMapRepository,
	accountRepo *MockAccountRepository,
	sessionRepo *MockSessionRepository,
	notifier *MockPushNotifier,
	recorder *recorderStub,
) *SyncService {
	sessionService := &SessionService{
		sessionRepo: sessionRepo,
		userRepo:    userRepo,
		ttl:         720 * time.Hour,
	}
	svc := &SyncService{
		wpClient:       backend,
		userRepo:       userRepo,
		userMapRepo:    userMapRepo,
		accountRepo:    accountRepo,
		sessionService: sessionService,
		recorder:       recorder,
	}
	if notifier != nil {
		svc.notifier = notifier
	}
	return svc
}

// ============================================================================
// Тесты для SyncService
// ============================================================================

func TestSyncService_VerifyAndEstablish_ProvisionsNewUser(t *testing.T) {
	// Arrange
	backend := new(MockContentBackend)
	userRepo := new(MockUserRepository)
	userMapRepo := new(MockUserMapRepository)
	accountRepo := new(MockAccountRepository)
	sessionRepo := new(MockSessionRepository)
	recorder := newRecorderStub()

	backend.On("VerifyToken", mock.Anything, "abc123").Return(int64(42), nil)
	userMapRepo.On("GetUserByWPUserID", int64(42)).Return(nil, apperrors.ErrNotFound)
	backend.On("GetUserDetails", mock.Anything, int64(42)).Return(&wordpress.UserDetails{
		Email:       "editor@example.com",
		Username:    "Editor",
		DisplayName: "Editor Person",
		Roles:       []string{"editor"},
	}, nil)

	provisioned := &entity.User{
		ID:          "b7f9e2d0-0000-4000-8000-000000000042",
		Email:       "editor@example.com",
		Username:    "editor_wp42",
		DisplayName: "Editor Person",
		Metadata:    entity.Metadata{entity.MetaKeyWPUserID: int64(42), entity.MetaKeyRoles: []string{"editor"}},
	}
	userMapRepo.On("CreateMappedUser", mock.AnythingOfType("*entity.User"), int64(42), entity.ProviderWordPress).
		Return(provisioned, true, nil)
	sessionRepo.On("Create", mock.AnythingOfType("*entity.Session")).Return(nil)

	svc := createTestSyncService(backend, userRepo, userMapRepo, accountRepo, sessionRepo, nil, recorder)

	// Act
	result, err := svc.VerifyAndEstablish(context.Background(), "abc123")

	// Assert
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, int64(42), result.WPUserID)
	assert.Equal(t, provisioned.ID, result.User.ID)
	assert.True(t, result.Provisioned)
	assert.True(t, result.SessionCreated)
	assert.NotEmpty(t, result.Session.Token, "Сессионный токен должен быть выдан")
	assert.Equal(t, 1, recorder.verifications["success"])
	assert.Equal(t, 1, recorder.provisioned)
	assert.Equal(t, 0, recorder.degraded)
	backend.AssertExpectations(t)
	userMapRepo.AssertExpectations(t)
	sessionRepo.AssertExpectations(t)
}

func TestSyncService_VerifyAndEstablish_ExistingUserNoReprovision(t *testing.T) {
	// Arrange
	backend := new(MockContentBackend)
	userRepo := new(MockUserRepository)
	userMapRepo := new(MockUserMapRepository)
	accountRepo := new(MockAccountRepository)
	sessionRepo := new(MockSessionRepository)
	recorder := newRecorderStub()

	existing := &entity.User{ID: "existing-user-id", Email: "known@example.com", Username: "known_wp42"}

	backend.On("VerifyToken", mock.Anything, "abc123").Return(int64(42), nil)
	userMapRepo.On("GetUserByWPUserID", int64(42)).Return(existing, nil)
	accountRepo.On("EnsureLinked", "existing-user-id", entity.ProviderWordPress).Return(nil)
	sessionRepo.On("Create", mock.AnythingOfType("*entity.Session")).Return(nil)

	svc := createTestSyncService(backend, userRepo, userMapRepo, accountRepo, sessionRepo, nil, recorder)

	// Act
	result, err := svc.VerifyAndEstablish(context.Background(), "abc123")

	// Assert
	require.NoError(t, err)
	assert.False(t, result.Provisioned, "Повторная верификация не должна создавать пользователя")
	assert.Equal(t, "existing-user-id", result.User.ID)
	assert.Equal(t, 0, recorder.provisioned)
	// GetUserDetails и CreateMappedUser не должны вызываться
	backend.AssertNotCalled(t, "GetUserDetails", mock.Anything, mock.Anything)
	userMapRepo.AssertNotCalled(t, "CreateMappedUser", mock.Anything, mock.Anything, mock.Anything)
	accountRepo.AssertExpectations(t)
}

func TestSyncService_VerifyAndEstablish_TokenInvalid(t *testing.T) {
	// Arrange
	backend := new(MockContentBackend)
	recorder := newRecorderStub()
	userMapRepo := new(MockUserMapRepository)

	backend.On("VerifyToken", mock.Anything, "stale-token").Return(int64(0), apperrors.ErrTokenInvalid)

	svc := createTestSyncService(backend, new(MockUserRepository), userMapRepo, new(MockAccountRepository), new(MockSessionRepository), nil, recorder)

	// Act
	result, err := svc.VerifyAndEstablish(context.Background(), "stale-token")

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTokenInvalid)
	assert.Nil(t, result)
	assert.Equal(t, 1, recorder.verifications["token_invalid"])
	userMapRepo.AssertNotCalled(t, "GetUserByWPUserID", mock.Anything)
}

func TestSyncService_VerifyAndEstablish_UpstreamUnavailable(t *testing.T) {
	// Arrange
	backend := new(MockContentBackend)
	recorder := newRecorderStub()

	backend.On("VerifyToken", mock.Anything, "abc123").Return(int64(0), apperrors.ErrUpstreamUnavailable)

	svc := createTestSyncService(backend, new(MockUserRepository), new(MockUserMapRepository), new(MockAccountRepository), new(MockSessionRepository), nil, recorder)

	// Act
	result, err := svc.VerifyAndEstablish(context.Background(), "abc123")

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUpstreamUnavailable)
	assert.NotErrorIs(t, err, apperrors.ErrTokenInvalid, "Недоступность не должна выглядеть как невалидный токен")
	assert.Nil(t, result)
	assert.Equal(t, 1, recorder.verifications["upstream_unavailable"])
}

func TestSyncService_ResolveOrCreateUser_DegradedFallback(t *testing.T) {
	// Arrange
	backend := new(MockContentBackend)
	userMapRepo := new(MockUserMapRepository)
	recorder := newRecorderStub()

	userMapRepo.On("GetUserByWPUserID", int64(7)).Return(nil, apperrors.ErrNotFound)
	backend.On("GetUserDetails", mock.Anything, int64(7)).Return(nil, apperrors.ErrUpstreamUnavailable)

	var captured *entity.User
	userMapRepo.On("CreateMappedUser", mock.AnythingOfType("*entity.User"), int64(7), entity.ProviderWordPress).
		Run(func(args mock.Arguments) {
			captured = args.Get(0).(*entity.User)
		}).
		Return(&entity.User{ID: "degraded-user"}, true, nil)

	svc := createTestSyncService(backend, new(MockUserRepository), userMapRepo, new(MockAccountRepository), new(MockSessionRepository), nil, recorder)

	// Act
	user, fresh, err := svc.ResolveOrCreateUser(context.Background(), 7)

	// Assert
	require.NoError(t, err, "Недоступность profile fetch не должна блокировать провижининг")
	assert.True(t, fresh)
	assert.Equal(t, "degraded-user", user.ID)
	require.NotNil(t, captured)
	assert.Equal(t, "wp_user_7@sync.asapdigest.local", captured.Email, "Placeholder email должен быть детерминированным")
	assert.Equal(t, "wp_user_7", captured.Username)
	assert.Equal(t, "WP User 7", captured.DisplayName)
	assert.Equal(t, 1, recorder.degraded)
}

func TestSyncService_ResolveOrCreateUser_RaceReturnsWinner(t *testing.T) {
	// Arrange
	backend := new(MockContentBackend)
	userMapRepo := new(MockUserMapRepository)
	recorder := newRecorderStub()

	winner := &entity.User{ID: "winner-id", Email: "winner@example.com"}

	userMapRepo.On("GetUserByWPUserID", int64(9)).Return(nil, apperrors.ErrNotFound)
	backend.On("GetUserDetails", mock.Anything, int64(9)).Return(&wordpress.UserDetails{Email: "winner@example.com", Username: "winner"}, nil)
	// Гонка проиграна: репозиторий вернул победителя с fresh=false
	userMapRepo.On("CreateMappedUser", mock.AnythingOfType("*entity.User"), int64(9), entity.ProviderWordPress).
		Return(winner, false, nil)

	svc := createTestSyncService(backend, new(MockUserRepository), userMapRepo, new(MockAccountRepository), new(MockSessionRepository), nil, recorder)

	// Act
	user, fresh, err := svc.ResolveOrCreateUser(context.Background(), 9)

	// Assert
	require.NoError(t, err)
	assert.False(t, fresh)
	assert.Equal(t, "winner-id", user.ID)
	assert.Equal(t, 0, recorder.provisioned, "Проигравший гонку не должен учитываться как новый пользователь")
}

func TestSyncService_ResolveOrCreateUser_InvalidID(t *testing.T) {
	svc := createTestSyncService(new(MockContentBackend), new(MockUserRepository), new(MockUserMapRepository), new(MockAccountRepository), new(MockSessionRepository), nil, newRecorderStub())

	user, fresh, err := svc.ResolveOrCreateUser(context.Background(), 0)

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Nil(t, user)
	assert.False(t, fresh)
}

func TestSyncService_ApplySnapshot_ProvisionsUnknownUser(t *testing.T) {
	// Arrange
	userMapRepo := new(MockUserMapRepository)
	recorder := newRecorderStub()

	snapshot := wordpress.ProfileSnapshot{
		WPUserID:    15,
		Email:       "pushed@example.com",
		Username:    "pushed",
		DisplayName: "Pushed User",
		Roles:       []string{"subscriber"},
	}

	userMapRepo.On("GetUserByWPUserID", int64(15)).Return(nil, apperrors.ErrNotFound)

	var captured *entity.User
	userMapRepo.On("CreateMappedUser", mock.AnythingOfType("*entity.User"), int64(15), entity.ProviderWordPress).
		Run(func(args mock.Arguments) { captured = args.Get(0).(*entity.User) }).
		Return(&entity.User{ID: "pushed-user-id"}, true, nil)

	svc := createTestSyncService(new(MockContentBackend), new(MockUserRepository), userMapRepo, new(MockAccountRepository), new(MockSessionRepository), nil, recorder)

	// Act
	user, created, err := svc.ApplySnapshot(context.Background(), snapshot)

	// Assert
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "pushed-user-id", user.ID)
	require.NotNil(t, captured)
	assert.Equal(t, "pushed@example.com", captured.Email)
	assert.Equal(t, "pushed_wp15", captured.Username)
	assert.Equal(t, 1, recorder.provisioned)
}

func TestSyncService_ApplySnapshot_UpdatesKnownUser(t *testing.T) {
	// Arrange
	userRepo := new(MockUserRepository)
	userMapRepo := new(MockUserMapRepository)

	existing := &entity.User{
		ID:          "known-id",
		Email:       "old@example.com",
		DisplayName: "Old Name",
		Metadata:    entity.Metadata{entity.MetaKeyWPUserID: int64(15), "theme": "dark"},
	}
	refreshed := &entity.User{
		ID:          "known-id",
		Email:       "new@example.com",
		DisplayName: "New Name",
	}

	userMapRepo.On("GetUserByWPUserID", int64(15)).Return(existing, nil)
	userRepo.On("UpdateProfile", "known-id", mock.MatchedBy(func(updates map[string]interface{}) bool {
		meta, ok := updates["metadata"].(entity.Metadata)
		return updates["email"] == "new@example.com" &&
			updates["display_name"] == "New Name" &&
			ok && meta["theme"] == "dark"
	})).Return(nil)
	userRepo.On("GetByID", "known-id").Return(refreshed, nil)

	svc := createTestSyncService(new(MockContentBackend), userRepo, userMapRepo, new(MockAccountRepository), new(MockSessionRepository), nil, newRecorderStub())

	// Act
	user, created, err := svc.ApplySnapshot(context.Background(), wordpress.ProfileSnapshot{
		WPUserID:    15,
		Email:       "new@example.com",
		DisplayName: "New Name",
		Roles:       []string{"editor"},
	})

	// Assert
	require.NoError(t, err)
	assert.False(t, created, "Повторная доставка снапшота не должна создавать пользователя")
	assert.Equal(t, "new@example.com", user.Email)
	userRepo.AssertExpectations(t)
}

func TestSyncService_UpdateProfileAndPush_NotifiesBackend(t *testing.T) {
	// Arrange
	userRepo := new(MockUserRepository)
	notifier := new(MockPushNotifier)
	recorder := newRecorderStub()

	updated := &entity.User{
		ID:          "local-id",
		Email:       "user@example.com",
		Username:    "user_wp42",
		DisplayName: "Renamed",
		Metadata:    entity.Metadata{entity.MetaKeyWPUserID: int64(42)},
	}

	userRepo.On("UpdateProfile", "local-id", map[string]interface{}{"display_name": "Renamed"}).Return(nil)
	userRepo.On("GetByID", "local-id").Return(updated, nil)

	errCh := make(chan error, 1)
	errCh <- nil
	notifier.On("NotifyAsync", mock.MatchedBy(func(s wordpress.ProfileSnapshot) bool {
		return s.WPUserID == 42 && s.DisplayName == "Renamed"
	})).Return((<-chan error)(errCh))

	svc := createTestSyncService(new(MockContentBackend), userRepo, new(MockUserMapRepository), new(MockAccountRepository), new(MockSessionRepository), notifier, recorder)

	// Act
	result, err := svc.UpdateProfileAndPush(context.Background(), &entity.User{ID: "local-id"}, "  Renamed  ")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "Renamed", result.DisplayName)
	notifier.AssertExpectations(t)

	// Исход push записывается асинхронно
	assert.Eventually(t, func() bool {
		return recorder.pushCount("success") == 1
	}, time.Second, 10*time.Millisecond, "Успешный push должен попасть в метрики")
}

func TestSyncService_UpdateProfileAndPush_EmptyName(t *testing.T) {
	svc := createTestSyncService(new(MockContentBackend), new(MockUserRepository), new(MockUserMapRepository), new(MockAccountRepository), new(MockSessionRepository), nil, newRecorderStub())

	result, err := svc.UpdateProfileAndPush(context.Background(), &entity.User{ID: "x"}, "   ")

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Nil(t, result)
}

func TestBuildProvisionedUser_Sanitization(t *testing.T) {
	details := &wordpress.UserDetails{
		Email:       " Person@Example.com ",
		Username:    "Some User!",
		DisplayName: "Some User",
	}

	user := buildProvisionedUser(42, details, false)

	assert.Equal(t, "Person@Example.com", user.Email)
	assert.Equal(t, "someuser_wp42", user.Username, "Username должен быть нормализован и суффиксирован")
	assert.Equal(t, "Some User", user.DisplayName)

	wpID, ok := user.WPUserID()
	require.True(t, ok)
	assert.Equal(t, int64(42), wpID)
}
