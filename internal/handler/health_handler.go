package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/usergate/internal/middleware"
	"github.com/hitoshi/usergate/internal/model"
)

const healthCheckTimeout = 3 * time.Second

// HealthCheck は名前付きの依存先疎通確認。
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthHandler は依存先（DB、Redis）の疎通を確認するハンドラー。
type HealthHandler struct {
	checks []HealthCheck
}

// NewHealthHandler はHealthHandlerを生成する。
func NewHealthHandler(checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// ServeHTTP はすべての疎通確認を実行する。
// 1つでも失敗した場合は503を返す。
// GET /health
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	statuses := make(map[string]string, len(h.checks))
	healthy := true
	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			slog.Warn("health check failed",
				slog.String("dependency", c.Name),
				slog.String("error", err.Error()),
			)
			statuses[c.Name] = "unavailable"
			healthy = false
			continue
		}
		statuses[c.Name] = "ok"
	}

	if !healthy {
		middleware.WriteEnvelope(w, http.StatusServiceUnavailable, middleware.Envelope{
			Errno:  model.ErrnoUnknownErr,
			Errmsg: "依存サービスに接続できません",
			Data:   statuses,
		})
		return
	}
	middleware.WriteSuccess(w, model.ErrnoOK.Message(), statuses)
}
