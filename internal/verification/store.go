// Package verification はSMS認証コードのキャッシュ（Redis）へのアクセスを提供する。
package verification

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
)

// smsKeyPrefix は携帯番号ごとの認証コードキーの接頭辞。
const smsKeyPrefix = "sms_"

// CodeStore は認証コードの取得インターフェース。
// キーが存在しない場合は (nil, nil) を返す。
type CodeStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// SMSKey は携帯番号に対応するキャッシュキーを返す（例: "sms_13800138000"）。
func SMSKey(mobile string) string {
	return smsKeyPrefix + mobile
}

// RedisCodeStore はRedisを使用したCodeStoreの実装。
type RedisCodeStore struct {
	rdb redis.Cmdable
}

// NewRedisCodeStore はRedisCodeStoreを生成する。
func NewRedisCodeStore(rdb redis.Cmdable) *RedisCodeStore {
	return &RedisCodeStore{rdb: rdb}
}

// Get は指定キーの認証コードを取得する。期限切れ・未発行の場合はnilを返す。
func (s *RedisCodeStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get verification code: %w", err)
	}
	return data, nil
}

// Save は携帯番号に対する認証コードをTTL付きで保存する。
// 既存のコードは上書きされる。
func (s *RedisCodeStore) Save(ctx context.Context, mobile, code string, ttl time.Duration) error {
	if mobile == "" {
		return fmt.Errorf("mobile is required")
	}
	if err := s.rdb.Set(ctx, SMSKey(mobile), code, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save verification code: %w", err)
	}
	return nil
}

// GenerateCode は指定桁数の数字のみからなる認証コードを生成する。
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("code length must be positive: %d", length)
	}

	digits := make([]byte, length)
	ten := big.NewInt(10)
	for i := range digits {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("failed to generate code: %w", err)
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}

// NewRedisClient はRedis接続URLからクライアントを生成する。
// 例: "redis://127.0.0.1:6379/1"
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return redis.NewClient(opt), nil
}

// compile-time interface check
var _ CodeStore = (*RedisCodeStore)(nil)
