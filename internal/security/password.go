// Package security はパスワードハッシュなどの認証まわりのセキュリティ機能を提供する。
package security

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher はパスワードのハッシュ化と照合を抽象化するインターフェース。
// ユーザーストアに注入し、平文パスワードが永続化されないことを保証する。
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(hash, plaintext string) bool
}

// BcryptHasher はbcryptによるPasswordHasherの実装。
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher はBcryptHasherを生成する。
// costが範囲外の場合はbcrypt.DefaultCostを使用する。
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// prehash はbcryptの72バイト上限に収まるよう、平文をSHA-256してbase64化する（44バイト）。
// 多バイト文字のみの20文字パスワードでも上限を超えない。
func prehash(plaintext string) []byte {
	sum := sha256.Sum256([]byte(plaintext))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}

// Hash は平文パスワードをbcryptハッシュに変換する。
func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword(prehash(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify はハッシュと平文パスワードが一致するかを判定する。
// ハッシュ形式が不正な場合も不一致として扱う。
func (h *BcryptHasher) Verify(hash, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), prehash(plaintext)) == nil
}

// compile-time interface check
var _ PasswordHasher = (*BcryptHasher)(nil)
