// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/usergate/internal/model"
)

// ErrDuplicate は一意制約違反（username または mobile の重複）を表す。
// 事前の存在チェック後に並行登録が競合した場合に返る。
var ErrDuplicate = errors.New("duplicate key")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByAccount は mobile = account OR username = account でユーザーを検索する。
	// 複数一致した場合は作成日時が最も古いものを返す。見つからない場合はnilを返す。
	FindByAccount(ctx context.Context, account string) (*model.User, error)

	// ExistsByUsername は指定usernameのユーザーが存在するかを返す。
	ExistsByUsername(ctx context.Context, username string) (bool, error)

	// ExistsByMobile は指定mobileのユーザーが存在するかを返す。
	ExistsByMobile(ctx context.Context, mobile string) (bool, error)

	// Create はユーザーを作成する。
	// 一意制約違反の場合はErrDuplicateをラップしたエラーを返す。
	Create(ctx context.Context, user *model.User) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	// expires_at がNULLのセッションは無期限として扱う。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。存在しない場合もエラーにしない。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}
