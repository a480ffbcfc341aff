package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/usergate/internal/middleware"
	"github.com/hitoshi/usergate/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	GetUser(ctx context.Context, userID string) (*model.User, error)
}

// UserHandler はログイン中ユーザーのHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

type userResponse struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Mobile      string `json:"mobile"`
	EmailActive bool   `json:"email_active"`
}

// Me は現在のログインユーザー情報を返す。
// GET /api/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, model.NewAPIError(model.ErrnoSessionErr))
		return
	}

	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			middleware.WriteErrorResponse(w, apiErr)
			return
		}
		slog.Error("failed to get user",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		middleware.WriteErrorResponse(w, model.NewAPIError(model.ErrnoDBErr))
		return
	}

	middleware.WriteSuccess(w, model.ErrnoOK.Message(), userResponse{
		ID:          user.ID,
		Username:    user.Username,
		Mobile:      user.Mobile,
		EmailActive: user.EmailActive,
	})
}
