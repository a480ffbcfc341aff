package handler

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/hitoshi/usergate/internal/auth"
	"github.com/hitoshi/usergate/internal/middleware"
	"github.com/hitoshi/usergate/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// CurrentUserFinder はセッションIDから現在のユーザーを取得するインターフェース。
type CurrentUserFinder interface {
	GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error)
}

// PageHandler は登録・ログイン・トップの各HTMLページを返すハンドラー。
type PageHandler struct {
	users         CurrentUserFinder
	smsCodeLength int
}

// NewPageHandler はPageHandlerを生成する。
func NewPageHandler(users CurrentUserFinder, smsCodeLength int) *PageHandler {
	return &PageHandler{
		users:         users,
		smsCodeLength: smsCodeLength,
	}
}

type pageData struct {
	CSRFToken     string
	SMSCodeLength int
	User          *model.User
}

// RegisterPage は登録ページを表示する。
// GET /register
func (h *PageHandler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, "register.html", h.newPageData(r))
}

// LoginPage はログインページを表示する。
// GET /login
func (h *PageHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, "login.html", h.newPageData(r))
}

// Home はログイン中のユーザー名を表示する。未ログインの場合はログインページへリダイレクトする。
// GET /
func (h *PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err != nil || cookie.Value == "" {
		http.Redirect(w, r, loginPath, http.StatusFound)
		return
	}

	user, err := h.users.GetCurrentUser(r.Context(), cookie.Value)
	if err != nil {
		var apiErr *model.APIError
		if errors.Is(err, auth.ErrSessionNotFound) || errors.As(err, &apiErr) {
			http.Redirect(w, r, loginPath, http.StatusFound)
			return
		}
		slog.Error("failed to get current user", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, model.NewAPIError(model.ErrnoDBErr))
		return
	}

	data := h.newPageData(r)
	data.User = user
	h.render(w, "index.html", data)
}

func (h *PageHandler) newPageData(r *http.Request) pageData {
	return pageData{
		CSRFToken:     middleware.CSRFTokenFromContext(r.Context()),
		SMSCodeLength: h.smsCodeLength,
	}
}

// render はテンプレートをバッファに描画してから書き込む。
// 描画に失敗した場合は途中までのHTMLを送らずにUNKOWNERRを返す。
func (h *PageHandler) render(w http.ResponseWriter, name string, data pageData) {
	var buf bytes.Buffer
	if err := pageTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		slog.Error("failed to render page",
			slog.String("template", name),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("failed to write page", slog.String("error", err.Error()))
	}
}

// StaticHandler は埋め込み済みの静的ファイルを /static/ 配下で配信するハンドラーを返す。
func StaticHandler() http.Handler {
	root, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(root)))
}
