// Package auth は登録・ログイン・ログアウトに伴うセッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/usergate/internal/model"
	"github.com/hitoshi/usergate/internal/repository"
	"github.com/hitoshi/usergate/internal/validation"
)

// DefaultSessionExpires は通常セッションの既定有効期間（5日）。
const DefaultSessionExpires = 5 * 24 * time.Hour

// ErrSessionNotFound はセッションが存在しないか期限切れの場合のエラー。
var ErrSessionNotFound = errors.New("session not found or expired")

// UserStore は認証サービスが必要とするユーザーストアのインターフェース。
type UserStore interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	Create(ctx context.Context, username, password, mobile string) (*model.User, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionExpires time.Duration // 通常セッションの有効期間
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	users       UserStore
	sessionRepo repository.SessionRepository
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。SessionExpiresが0以下の場合は既定値を使用する。
func NewService(users UserStore, sessionRepo repository.SessionRepository, config ServiceConfig) *Service {
	if config.SessionExpires <= 0 {
		config.SessionExpires = DefaultSessionExpires
	}
	return &Service{
		users:       users,
		sessionRepo: sessionRepo,
		config:      config,
		now:         time.Now,
	}
}

// SessionExpires は通常セッションの有効期間を返す。
func (s *Service) SessionExpires() time.Duration {
	return s.config.SessionExpires
}

// Register は検証済みの入力からユーザーを作成し、通常セッションでログインさせる。
// 事前チェック後の一意制約違反はDATAEXISTのAPIErrorとして返す。
func (s *Service) Register(ctx context.Context, input *validation.RegisterInput) (*model.User, *model.Session, error) {
	user, err := s.users.Create(ctx, input.Username, input.Password, input.Mobile)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			slog.Warn("registration lost a uniqueness race",
				slog.String("username", input.Username),
			)
			return nil, nil, model.NewDuplicateUserError()
		}
		return nil, nil, fmt.Errorf("failed to register user: %w", err)
	}

	session, err := s.createSession(ctx, user.ID, false)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)
	return user, session, nil
}

// Login は認証済みの結果からセッションを確立する。
// Persistentの場合は無期限セッション、それ以外はSessionExpires後に失効する。
func (s *Service) Login(ctx context.Context, result *validation.AuthResult) (*model.Session, error) {
	if result == nil || result.User == nil {
		return nil, fmt.Errorf("authenticated user is required")
	}

	session, err := s.createSession(ctx, result.User.ID, result.Persistent)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("user logged in",
		slog.String("user_id", result.User.ID),
		slog.Bool("persistent", result.Persistent),
	)
	return session, nil
}

// Logout はセッションを破棄する。セッションIDが空でもエラーにしない。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out")
	return nil
}

// RevokeSessions は指定ユーザーの全セッションを削除し、全端末からログアウトさせる。
// ユーザーが存在しない場合はユーザー未検出のAPIErrorを返す。
func (s *Service) RevokeSessions(ctx context.Context, userID string) error {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return err
	}

	if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}

	slog.Info("user sessions revoked", slog.String("user_id", userID))
	return nil
}

// FindByID は有効なセッションを取得する。セッションミドルウェアから利用する。
func (s *Service) FindByID(ctx context.Context, sessionID string) (*model.Session, error) {
	return s.sessionRepo.FindByID(ctx, sessionID)
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	return s.GetUser(ctx, session.UserID)
}

// GetUser は指定IDのユーザーを取得する。存在しない場合はユーザー未検出のAPIErrorを返す。
func (s *Service) GetUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string, persistent bool) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		CreatedAt: now,
	}
	if !persistent {
		expiresAt := now.Add(s.config.SessionExpires)
		session.ExpiresAt = &expiresAt
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
