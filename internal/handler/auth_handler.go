// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/usergate/internal/metrics"
	"github.com/hitoshi/usergate/internal/middleware"
	"github.com/hitoshi/usergate/internal/model"
	"github.com/hitoshi/usergate/internal/validation"
)

const (
	// maxRequestBodyBytes はPOSTボディの上限サイズ。
	maxRequestBodyBytes = 1 << 20

	// persistentCookieMaxAge は「ログイン状態を保持する」場合のCookie有効期間（約10年）。
	persistentCookieMaxAge = 10 * 365 * 24 * 60 * 60

	// errmsgSeparator は複数の検証エラーメッセージを連結する区切り文字。
	errmsgSeparator = "/"

	// loginPath はログアウト後のリダイレクト先。
	loginPath = "/login"

	msgRegisterSuccess = "登録が完了しました！"
	msgLoginSuccess    = "ログインに成功しました！"
)

// Validator は登録・ログインリクエストの検証インターフェース。
type Validator interface {
	ValidateRegister(ctx context.Context, req *validation.RegisterRequest) (*validation.RegisterInput, error)
	ValidateLogin(ctx context.Context, req *validation.LoginRequest) (*validation.AuthResult, error)
}

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, input *validation.RegisterInput) (*model.User, *model.Session, error)
	Login(ctx context.Context, result *validation.AuthResult) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
	SessionExpires() time.Duration
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain string
	CookieSecure bool
}

// AuthHandler は登録・ログイン・ログアウトのHTTPハンドラー。
type AuthHandler struct {
	validator Validator
	service   AuthServiceInterface
	metrics   metrics.MetricsCollector
	config    AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。collectorはnilでもよい。
func NewAuthHandler(validator Validator, service AuthServiceInterface, collector metrics.MetricsCollector, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		validator: validator,
		service:   service,
		metrics:   collector,
		config:    config,
	}
}

// Register はユーザー登録を処理し、成功時は通常セッションでログインさせる。
// POST /register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		h.recordRegistration(metrics.OutcomeInvalid)
		return
	}

	req, err := validation.DecodeRegister(body)
	if err != nil {
		writeDecodeError(w, err)
		h.recordRegistration(metrics.OutcomeInvalid)
		return
	}

	input, err := h.validator.ValidateRegister(r.Context(), req)
	if err != nil {
		h.recordRegistration(writeValidationError(w, err, "register"))
		return
	}

	_, session, err := h.service.Register(r.Context(), input)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			middleware.WriteErrorResponse(w, apiErr)
			h.recordRegistration(metrics.OutcomeDuplicate)
			return
		}
		slog.Error("failed to register user", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, model.NewAPIError(model.ErrnoDBErr))
		h.recordRegistration(metrics.OutcomeError)
		return
	}

	h.discardPreviousSession(r)
	h.setSessionCookie(w, session)
	middleware.WriteSuccess(w, msgRegisterSuccess, nil)
	h.recordRegistration(metrics.OutcomeSuccess)
}

// Login は認証を行い、成功時はセッションを確立する。
// remember_meが真の場合は無期限セッションとなる。
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		h.recordLogin(metrics.OutcomeInvalid)
		return
	}

	req, err := validation.DecodeLogin(body)
	if err != nil {
		writeDecodeError(w, err)
		h.recordLogin(metrics.OutcomeInvalid)
		return
	}

	result, err := h.validator.ValidateLogin(r.Context(), req)
	if err != nil {
		h.recordLogin(writeValidationError(w, err, "login"))
		return
	}

	session, err := h.service.Login(r.Context(), result)
	if err != nil {
		slog.Error("failed to establish session", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, model.NewAPIError(model.ErrnoDBErr))
		h.recordLogin(metrics.OutcomeError)
		return
	}

	h.discardPreviousSession(r)
	h.setSessionCookie(w, session)
	middleware.WriteSuccess(w, msgLoginSuccess, nil)
	h.recordLogin(metrics.OutcomeSuccess)
}

// Logout はセッションを破棄し、ログインページへリダイレクトする。
// セッションがなくても常に成功する。
// GET /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.discardPreviousSession(r)
	h.clearSessionCookie(w)
	if h.metrics != nil {
		h.metrics.RecordLogout()
	}
	http.Redirect(w, r, loginPath, http.StatusFound)
}

// discardPreviousSession はリクエストに付いていたセッションをDBから削除する。
// 失敗はログのみに記録する。
func (h *AuthHandler) discardPreviousSession(r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err != nil || cookie.Value == "" {
		return
	}
	if err := h.service.Logout(r.Context(), cookie.Value); err != nil {
		slog.Error("failed to delete session", slog.String("error", err.Error()))
	}
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, session *model.Session) {
	maxAge := int(h.service.SessionExpires() / time.Second)
	if session.Persistent() {
		maxAge = persistentCookieMaxAge
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    session.ID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) recordRegistration(outcome string) {
	if h.metrics != nil {
		h.metrics.RecordRegistration(outcome)
	}
}

func (h *AuthHandler) recordLogin(outcome string) {
	if h.metrics != nil {
		h.metrics.RecordLogin(outcome)
	}
}

// readBody はリクエストボディを読み取る。
// 読み取れない場合はUNKOWNERRを書き込んでfalseを返す。
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err != nil {
		slog.Info("failed to read request body", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, model.NewAPIError(model.ErrnoUnknownErr))
		return nil, false
	}
	return body, true
}

// writeDecodeError はボディ変換エラーを書き込む。
// 空ボディはPARAMERR、JSONとして解釈できないボディはUNKOWNERR。
func writeDecodeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, validation.ErrEmptyBody):
		middleware.WriteErrorResponse(w, model.NewAPIError(model.ErrnoParamErr))
	case validation.IsParse(err):
		slog.Info("failed to parse request body", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, model.NewAPIError(model.ErrnoUnknownErr))
	default:
		slog.Error("unexpected request decode error", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, model.NewAPIError(model.ErrnoUnknownErr))
	}
}

// writeValidationError は検証エラーを書き込み、メトリクス用の結果区分を返す。
// 入力の誤りはPARAMERR、ストアやキャッシュの障害はDBERRとなる。
func writeValidationError(w http.ResponseWriter, err error, operation string) string {
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		middleware.WriteErrorResponse(w, &model.APIError{
			Errno:   model.ErrnoParamErr,
			Message: verrs.Join(errmsgSeparator),
		})
		return metrics.OutcomeInvalid
	}

	slog.Error("validation could not complete",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
	middleware.WriteErrorResponse(w, model.NewAPIError(model.ErrnoDBErr))
	return metrics.OutcomeError
}
