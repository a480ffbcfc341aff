// Package logger はJSON構造化ログの初期化を提供する。
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// level はSetupDefaultで設定したグローバルロガーのログレベル。
// 設定読み込み後にSetLevelで変更できる。
var level = new(slog.LevelVar)

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// writerが指定された場合はそのwriterに出力する。
func Setup(w io.Writer, leveler slog.Leveler) *slog.Logger {
	if leveler == nil {
		leveler = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: leveler,
	})
	return slog.New(handler)
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// 初期レベルはINFO。本番ではos.Stdoutを渡すことを想定している。
func SetupDefault(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	level.Set(slog.LevelInfo)
	l := Setup(w, level)
	slog.SetDefault(l)
	return l
}

// SetLevel はグローバルロガーのログレベルを変更する。
func SetLevel(name string) error {
	lv, err := ParseLevel(name)
	if err != nil {
		return err
	}
	level.Set(lv)
	return nil
}

// ParseLevel はdebug、info、warn、errorのいずれかをslog.Levelに変換する。
// 空文字列はINFOとして扱う。
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %q", name)
	}
}
