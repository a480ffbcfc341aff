// Package model はドメインモデルを定義する。
package model

import "fmt"

// Errno はレスポンスエンベロープのerrnoを表す。
type Errno int

// 定義済みerrno
const (
	ErrnoOK         Errno = 0
	ErrnoDBErr      Errno = 4001
	ErrnoDataExist  Errno = 4003
	ErrnoSessionErr Errno = 4101
	ErrnoParamErr   Errno = 4103
	ErrnoReqErr     Errno = 4201
	ErrnoUnknownErr Errno = 4501
)

var errnoMessages = map[Errno]string{
	ErrnoOK:         "成功",
	ErrnoDBErr:      "データベースの処理に失敗しました",
	ErrnoDataExist:  "データは既に存在します",
	ErrnoSessionErr: "ログインしていません",
	ErrnoParamErr:   "パラメータが不正です",
	ErrnoReqErr:     "不正なリクエスト、またはリクエスト回数の上限に達しました",
	ErrnoUnknownErr: "不明なエラーが発生しました",
}

// Message はerrnoに対応する既定のメッセージを返す。
func (e Errno) Message() string {
	if msg, ok := errnoMessages[e]; ok {
		return msg
	}
	return errnoMessages[ErrnoUnknownErr]
}

// APIError はerrnoとユーザー向けメッセージを持つエラー。
// ハンドラーはこれをレスポンスエンベロープに変換する。
type APIError struct {
	Errno   Errno
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%d] %s", e.Errno, e.Message)
}

// NewAPIError は既定メッセージでAPIErrorを生成する。
func NewAPIError(errno Errno) *APIError {
	return &APIError{Errno: errno, Message: errno.Message()}
}

// NewDuplicateUserError は登録時の一意制約違反（事前チェック後の競合）エラーを生成する。
func NewDuplicateUserError() *APIError {
	return &APIError{
		Errno:   ErrnoDataExist,
		Message: "ユーザー名または携帯番号は既に登録されています。再度お試しください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Errno:   ErrnoSessionErr,
		Message: "ユーザーが見つかりません。",
	}
}
