package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/usergate/internal/model"
)

// Envelope はすべてのJSONレスポンスの統一フォーマット。
type Envelope struct {
	Errno  model.Errno `json:"errno"`
	Errmsg string      `json:"errmsg"`
	Data   any         `json:"data,omitempty"`
}

// statusByErrno はerrnoに対応するHTTPステータス。
var statusByErrno = map[model.Errno]int{
	model.ErrnoOK:         http.StatusOK,
	model.ErrnoDBErr:      http.StatusInternalServerError,
	model.ErrnoDataExist:  http.StatusConflict,
	model.ErrnoSessionErr: http.StatusUnauthorized,
	model.ErrnoParamErr:   http.StatusBadRequest,
	model.ErrnoReqErr:     http.StatusForbidden,
	model.ErrnoUnknownErr: http.StatusInternalServerError,
}

// StatusForErrno はerrnoに対応するHTTPステータスを返す。
// REQERRはCSRF拒否の403を既定とし、レート制限では429を明示的に指定する。
func StatusForErrno(errno model.Errno) int {
	if status, ok := statusByErrno[errno]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteEnvelope はエンベロープ形式のJSONレスポンスを書き込む。
func WriteEnvelope(w http.ResponseWriter, statusCode int, env Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// WriteSuccess はerrno=0の成功レスポンスを書き込む。
func WriteSuccess(w http.ResponseWriter, message string, data any) {
	WriteEnvelope(w, http.StatusOK, Envelope{Errno: model.ErrnoOK, Errmsg: message, Data: data})
}

// WriteErrorResponse はAPIErrorをエンベロープ形式で書き込む。
// HTTPステータスはerrnoから決定する。
func WriteErrorResponse(w http.ResponseWriter, apiErr *model.APIError) {
	WriteErrorResponseWithStatus(w, StatusForErrno(apiErr.Errno), apiErr)
}

// WriteErrorResponseWithStatus はHTTPステータスを指定してAPIErrorを書き込む。
func WriteErrorResponseWithStatus(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	WriteEnvelope(w, statusCode, Envelope{Errno: apiErr.Errno, Errmsg: apiErr.Message})
}

// WriteInternalServerError は内部エラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, model.NewAPIError(model.ErrnoUnknownErr))
}
