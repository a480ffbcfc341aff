// Package user はユーザーストア（検索・存在確認・パスワード照合・作成）を提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/usergate/internal/model"
	"github.com/hitoshi/usergate/internal/repository"
	"github.com/hitoshi/usergate/internal/security"
)

// Store はユーザーリポジトリとパスワードハッシャーをまとめたユーザーストア。
// 平文パスワードはハッシュ化してから永続化する。
type Store struct {
	userRepo repository.UserRepository
	hasher   security.PasswordHasher
	now      func() time.Time
}

// NewStore はStoreの新しいインスタンスを生成する。
func NewStore(userRepo repository.UserRepository, hasher security.PasswordHasher) *Store {
	return &Store{
		userRepo: userRepo,
		hasher:   hasher,
		now:      time.Now,
	}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (s *Store) FindByID(ctx context.Context, id string) (*model.User, error) {
	return s.userRepo.FindByID(ctx, id)
}

// FindByAccount は携帯番号またはユーザー名でユーザーを検索する。
func (s *Store) FindByAccount(ctx context.Context, account string) (*model.User, error) {
	return s.userRepo.FindByAccount(ctx, account)
}

// ExistsByUsername はユーザー名が登録済みかを返す。
func (s *Store) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return s.userRepo.ExistsByUsername(ctx, username)
}

// ExistsByMobile は携帯番号が登録済みかを返す。
func (s *Store) ExistsByMobile(ctx context.Context, mobile string) (bool, error) {
	return s.userRepo.ExistsByMobile(ctx, mobile)
}

// VerifyPassword は保存済みハッシュと平文パスワードを照合する。
func (s *Store) VerifyPassword(user *model.User, plaintext string) bool {
	if user == nil || user.PasswordHash == "" {
		return false
	}
	return s.hasher.Verify(user.PasswordHash, plaintext)
}

// Create はパスワードをハッシュ化してユーザーを作成する。
// 一意制約違反の場合はrepository.ErrDuplicateをラップしたエラーを返す。
func (s *Store) Create(ctx context.Context, username, password, mobile string) (*model.User, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	u := &model.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: hash,
		Mobile:       mobile,
		EmailActive:  false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user created",
		slog.String("user_id", u.ID),
		slog.String("username", u.Username),
	)
	return u, nil
}
