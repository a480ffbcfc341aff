// Package model はドメインモデルを定義する。
package model

import "time"

// User は登録済みユーザーを表す。
// PasswordHash はbcryptハッシュであり、平文パスワードは保持しない。
type User struct {
	ID           string
	Username     string
	PasswordHash string
	Mobile       string
	EmailActive  bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session はユーザーのログインセッションを表す。
// ExpiresAt がnilの場合は無期限セッション（ログイン状態を保持する）。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt *time.Time
	CreatedAt time.Time
}

// Persistent は無期限セッションかどうかを返す。
func (s *Session) Persistent() bool {
	return s.ExpiresAt == nil
}

// Expired は指定時刻の時点でセッションが期限切れかどうかを返す。
func (s *Session) Expired(now time.Time) bool {
	if s.ExpiresAt == nil {
		return false
	}
	return !s.ExpiresAt.After(now)
}
