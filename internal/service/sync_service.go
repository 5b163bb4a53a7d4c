package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/ASAP-Digest/ASAP-Digest-sub012/internal/domain/entity"
	"github.com/ASAP-Digest/ASAP-Digest-sub012/internal/domain/repository"
	"github.com/ASAP-Digest/ASAP-Digest-sub012/internal/metrics"
	apperrors "github.com/ASAP-Digest/ASAP-Digest-sub012/internal/pkg/errors"
	"github.com/ASAP-Digest/ASAP-Digest-sub012/internal/wordpress"
)

// placeholderEmailDomain — домен для детерминированных placeholder email
// при недоступности profile fetch.
const placeholderEmailDomain = "sync.asapdigest.local"

// ContentBackendAPI — клиент контент-бэкенда (валидация токена, профиль).
type ContentBackendAPI interface {
	VerifyToken(ctx context.Context, token string) (int64, error)
	GetUserDetails(ctx context.Context, wpUserID int64) (*wordpress.UserDetails, error)
}

// PushNotifier отправляет fire-and-forget push-синхронизации в контент-бэкенд.
type PushNotifier interface {
	NotifyAsync(snapshot wordpress.ProfileSnapshot) <-chan error
}

// SyncResult — результат верификации sync-токена и установления сессии.
type SyncResult struct {
	User           *entity.User
	Session        *entity.Session
	WPUserID       int64
	Provisioned    bool
	SessionCreated bool
}

// SyncService реализует единственный канонический путь моста:
// верификация токена -> resolve-or-create пользователя -> account-связь ->
// выдача сессии. Других путей создания пользователей в системе нет.
type SyncService struct {
	wpClient       ContentBackendAPI
	userRepo       repository.UserRepository
	userMapRepo    repository.UserMapRepository
	accountRepo    repository.AccountRepository
	sessionService *SessionService
	notifier       PushNotifier
	recorder       metrics.Recorder
}

// NewSyncService создает новый SyncService
func NewSyncService(
	wpClient ContentBackendAPI,
	userRepo repository.UserRepository,
	userMapRepo repository.UserMapRepository,
	accountRepo repository.AccountRepository,
	sessionService *SessionService,
	notifier PushNotifier,
	recorder metrics.Recorder,
) (*SyncService, error) {
	if wpClient == nil {
		return nil, fmt.Errorf("content backend client is required")
	}
	if userRepo == nil || userMapRepo == nil || accountRepo == nil {
		return nil, fmt.Errorf("user, user map and account repositories are required")
	}
	if sessionService == nil {
		return nil, fmt.Errorf("session service is required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("metrics recorder is required")
	}
	return &SyncService{
		wpClient:       wpClient,
		userRepo:       userRepo,
		userMapRepo:    userMapRepo,
		accountRepo:    accountRepo,
		sessionService: sessionService,
		notifier:       notifier,
		recorder:       recorder,
	}, nil
}

// VerifyAndEstablish проверяет sync-токен у контент-бэкенда и устанавливает
// локальную сессию. Токен отправляется на верификацию ровно один раз:
// повторная отправка того же значения недопустима.
func (s *SyncService) VerifyAndEstablish(ctx context.Context, token string) (*SyncResult, error) {
	wpUserID, err := s.wpClient.VerifyToken(ctx, token)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrTokenInvalid):
			s.recorder.RecordVerification(metrics.OutcomeInvalid)
			log.Printf("[SyncService] Токен %s отклонен контент-бэкендом", wordpress.TokenPreview(token))
		case errors.Is(err, apperrors.ErrUpstreamUnavailable):
			s.recorder.RecordVerification(metrics.OutcomeUnavailable)
			log.Printf("[SyncService] Контент-бэкенд недоступен при верификации токена %s: %v", wordpress.TokenPreview(token), err)
		default:
			s.recorder.RecordVerification(metrics.OutcomeError)
		}
		return nil, err
	}

	user, provisioned, err := s.ResolveOrCreateUser(ctx, wpUserID)
	if err != nil {
		s.recorder.RecordVerification(metrics.OutcomeError)
		return nil, err
	}

	session, err := s.sessionService.CreateSession(user.ID)
	if err != nil {
		s.recorder.RecordVerification(metrics.OutcomeError)
		return nil, err
	}

	s.recorder.RecordVerification(metrics.OutcomeSuccess)
	return &SyncResult{
		User:           user,
		Session:        session,
		WPUserID:       wpUserID,
		Provisioned:    provisioned,
		SessionCreated: true,
	}, nil
}

// ResolveOrCreateUser находит локального пользователя по wp_user_id или
// создает его. Провижининг никогда не блокируется недоступностью profile
// fetch: при сбое используются детерминированные placeholder-значения,
// а событие деградации логируется для последующей сверки.
func (s *SyncService) ResolveOrCreateUser(ctx context.Context, wpUserID int64) (*entity.User, bool, error) {
	if wpUserID <= 0 {
		return nil, false, fmt.Errorf("%w: invalid wp user id %d", apperrors.ErrValidation, wpUserID)
	}

	existing, err := s.userMapRepo.GetUserByWPUserID(wpUserID)
	if err == nil {
		// Связь могла не существовать для старых записей — идемпотентно чиним
		if linkErr := s.accountRepo.EnsureLinked(existing.ID, entity.ProviderWordPress); linkErr != nil {
			return nil, false, linkErr
		}
		return existing, false, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, false, err
	}

	details, detailsErr := s.wpClient.GetUserDetails(ctx, wpUserID)
	degraded := detailsErr != nil || strings.TrimSpace(details.Email) == ""
	if degraded {
		log.Printf("[SyncService] Деградированный провижининг wp_user_id=%d: profile fetch недоступен (%v)", wpUserID, detailsErr)
		s.recorder.RecordDegradedProvisioning()
	}

	user := buildProvisionedUser(wpUserID, details, degraded)
	user, fresh, err := s.userMapRepo.CreateMappedUser(user, wpUserID, entity.ProviderWordPress)
	if err != nil {
		return nil, false, err
	}
	if fresh {
		s.recorder.RecordProvisionedUser()
		log.Printf("[SyncService] Создан пользователь %s для wp_user_id=%d (degraded=%t)", user.ID, wpUserID, degraded)
	}
	return user, fresh, nil
}

// ApplySnapshot идемпотентно применяет push-снапшот профиля из контент-бэкенда:
// незнакомый wp_user_id провижинится через канонический путь, знакомый —
// обновляется. Повторная доставка того же снапшота безопасна.
func (s *SyncService) ApplySnapshot(ctx context.Context, snapshot wordpress.ProfileSnapshot) (*entity.User, bool, error) {
	if snapshot.WPUserID <= 0 {
		return nil, false, fmt.Errorf("%w: invalid wp user id %d", apperrors.ErrValidation, snapshot.WPUserID)
	}

	existing, err := s.userMapRepo.GetUserByWPUserID(snapshot.WPUserID)
	if errors.Is(err, apperrors.ErrNotFound) {
		details := &wordpress.UserDetails{
			Email:       snapshot.Email,
			Username:    snapshot.Username,
			DisplayName: snapshot.DisplayName,
			Roles:       snapshot.Roles,
		}
		degraded := strings.TrimSpace(details.Email) == ""
		if degraded {
			s.recorder.RecordDegradedProvisioning()
		}
		user := buildProvisionedUser(snapshot.WPUserID, details, degraded)
		user, fresh, err := s.userMapRepo.CreateMappedUser(user, snapshot.WPUserID, entity.ProviderWordPress)
		if err != nil {
			return nil, false, err
		}
		if fresh {
			s.recorder.RecordProvisionedUser()
		}
		return user, fresh, nil
	}
	if err != nil {
		return nil, false, err
	}

	updates := map[string]interface{}{}
	if email := strings.TrimSpace(snapshot.Email); email != "" && email != existing.Email {
		updates["email"] = email
	}
	if name := strings.TrimSpace(snapshot.DisplayName); name != "" && name != existing.DisplayName {
		updates["display_name"] = name
	}
	meta := mergedMetadata(existing.Metadata, snapshot.WPUserID, snapshot.Roles)
	updates["metadata"] = meta

	if err := s.userRepo.UpdateProfile(existing.ID, updates); err != nil {
		return nil, false, err
	}
	refreshed, err := s.userRepo.GetByID(existing.ID)
	if err != nil {
		return nil, false, err
	}
	return refreshed, false, nil
}

// UpdateProfileAndPush обновляет локальный профиль и запускает fire-and-forget
// push обновленного снапшота в контент-бэкенд. Сбой push не влияет на
// результат локальной записи.
func (s *SyncService) UpdateProfileAndPush(ctx context.Context, user *entity.User, displayName string) (*entity.User, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, fmt.Errorf("%w: display name is required", apperrors.ErrValidation)
	}

	if err := s.userRepo.UpdateProfile(user.ID, map[string]interface{}{"display_name": displayName}); err != nil {
		return nil, err
	}
	updated, err := s.userRepo.GetByID(user.ID)
	if err != nil {
		return nil, err
	}

	if wpUserID, ok := updated.WPUserID(); ok && s.notifier != nil {
		snapshot := wordpress.ProfileSnapshot{
			WPUserID:    wpUserID,
			Email:       updated.Email,
			Username:    updated.Username,
			DisplayName: updated.DisplayName,
			Roles:       updated.Roles(),
		}
		errCh := s.notifier.NotifyAsync(snapshot)
		go func() {
			if pushErr := <-errCh; pushErr != nil {
				s.recorder.RecordPush(metrics.OutcomeFailed)
			} else {
				s.recorder.RecordPush(metrics.OutcomeSuccess)
			}
		}()
	}

	return updated, nil
}

// buildProvisionedUser собирает сущность нового пользователя. Fallback-значения
// детерминированы и не пересекаются между remote id: wp_user_<id>.
func buildProvisionedUser(wpUserID int64, details *wordpress.UserDetails, degraded bool) *entity.User {
	placeholder := fmt.Sprintf("wp_user_%d", wpUserID)

	email := placeholder + "@" + placeholderEmailDomain
	username := placeholder
	displayName := fmt.Sprintf("WP User %d", wpUserID)
	var roles []string

	if !degraded {
		email = strings.TrimSpace(details.Email)
		if base := sanitizeUsername(details.Username); base != "" {
			// Суффикс wp id делает имя детерминированным и бесконфликтным
			username = fmt.Sprintf("%s_wp%d", base, wpUserID)
		}
		if name := strings.TrimSpace(details.DisplayName); name != "" {
			displayName = name
		}
		roles = details.Roles
	}

	meta := entity.Metadata{entity.MetaKeyWPUserID: wpUserID}
	if len(roles) > 0 {
		meta[entity.MetaKeyRoles] = roles
	}

	return &entity.User{
		Email:       email,
		Username:    username,
		DisplayName: displayName,
		Metadata:    meta,
	}
}

// mergedMetadata обновляет wp_user_id и роли, сохраняя прочие ключи.
func mergedMetadata(current entity.Metadata, wpUserID int64, roles []string) entity.Metadata {
	meta := entity.Metadata{}
	for k, v := range current {
		meta[k] = v
	}
	meta[entity.MetaKeyWPUserID] = wpUserID
	if len(roles) > 0 {
		meta[entity.MetaKeyRoles] = roles
	}
	return meta
}

func sanitizeUsername(input string) string {
	input = strings.ToLower(strings.TrimSpace(input))
	var b strings.Builder
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
