// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// envFileName はローカル開発用の環境変数ファイル。
const envFileName = ".env.local"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL    string
	DBMaxOpenConns int
	DBMaxIdleConns int
	DBConnLifetime time.Duration

	// Redis（SMS認証コードのキャッシュ）
	RedisURL string

	// SMS認証コード
	SMSCodeLength  int
	SMSCodeExpires time.Duration

	// Session
	UserSessionExpires     time.Duration
	SessionCleanupInterval time.Duration

	// Password
	BcryptCost int

	// Rate Limit（1分あたりのIPごとの上限回数）
	RateLimitLogin    int
	RateLimitRegister int

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリまたは親ディレクトリに.env.localがあれば先に読み込む。
// 既に設定済みの環境変数は上書きしない。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.RedisURL == "" {
		missing = append(missing, "REDIS_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 10)
	cfg.DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute)
	cfg.SMSCodeLength = getEnvInt("SMS_CODE_LENGTH", 4)
	cfg.SMSCodeExpires = getEnvSeconds("SMS_CODE_EXPIRES", 300)
	cfg.UserSessionExpires = getEnvSeconds("USER_SESSION_EXPIRES", 432000)
	cfg.SessionCleanupInterval = getEnvDuration("SESSION_CLEANUP_INTERVAL", time.Hour)
	cfg.BcryptCost = getEnvInt("BCRYPT_COST", 10)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 10)
	cfg.RateLimitRegister = getEnvInt("RATE_LIMIT_REGISTER", 5)
	cfg.LogLevel = strings.ToLower(getEnvString("LOG_LEVEL", "info"))
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "")

	if cfg.SMSCodeLength <= 0 {
		return nil, fmt.Errorf("SMS_CODE_LENGTH must be positive: %d", cfg.SMSCodeLength)
	}
	if cfg.RateLimitLogin <= 0 || cfg.RateLimitRegister <= 0 {
		return nil, fmt.Errorf("rate limits must be positive: login=%d register=%d", cfg.RateLimitLogin, cfg.RateLimitRegister)
	}

	return cfg, nil
}

// loadEnvFile は.env.localをカレントディレクトリ、なければ親ディレクトリから読み込む。
func loadEnvFile() {
	if err := godotenv.Load(envFileName); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, envFileName))
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

// getEnvSeconds は秒数で指定された環境変数をtime.Durationとして読み込む。
func getEnvSeconds(key string, defaultSec int) time.Duration {
	sec := getEnvInt(key, defaultSec)
	if sec <= 0 {
		sec = defaultSec
	}
	return time.Duration(sec) * time.Second
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
