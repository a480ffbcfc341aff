package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/usergate/internal/metrics"
	"github.com/hitoshi/usergate/internal/middleware"
	"github.com/hitoshi/usergate/internal/model"
	"github.com/hitoshi/usergate/internal/validation"
)

func newTestAuthHandler(v *mockValidator, svc *mockAuthService, collector *mockCollector) *AuthHandler {
	return NewAuthHandler(v, svc, collector, AuthHandlerConfig{CookieSecure: true})
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			return c
		}
	}
	t.Fatal("expected session cookie")
	return nil
}

const validRegisterBody = `{"username":"alice01","password":"secret1","password_repeat":"secret1","mobile":"13800138000","sms_code":"1234"}`

// --- Register ---

func TestAuthHandler_Register_Success_SetsSessionCookie(t *testing.T) {
	v := &mockValidator{}
	svc := &mockAuthService{sessionExpires: 2 * time.Hour}
	collector := &mockCollector{}
	h := newTestAuthHandler(v, svc, collector)

	w := httptest.NewRecorder()
	h.Register(w, postJSON("/register", validRegisterBody))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	env := decodeEnvelope(t, w)
	if env.Errno != model.ErrnoOK || env.Errmsg != msgRegisterSuccess {
		t.Errorf("envelope = %+v", env)
	}

	cookie := sessionCookie(t, w)
	if cookie.Value != "new-session" {
		t.Errorf("cookie value = %q, want new-session", cookie.Value)
	}
	if cookie.MaxAge != 7200 {
		t.Errorf("cookie MaxAge = %d, want 7200", cookie.MaxAge)
	}
	if !cookie.HttpOnly || !cookie.Secure {
		t.Errorf("cookie HttpOnly=%v Secure=%v, want both true", cookie.HttpOnly, cookie.Secure)
	}
	if len(collector.registrations) != 1 || collector.registrations[0] != metrics.OutcomeSuccess {
		t.Errorf("registrations = %v, want [success]", collector.registrations)
	}
}

func TestAuthHandler_Register_PassesDecodedFieldsToValidator(t *testing.T) {
	var got *validation.RegisterRequest
	v := &mockValidator{
		validateRegisterFn: func(ctx context.Context, req *validation.RegisterRequest) (*validation.RegisterInput, error) {
			got = req
			return &validation.RegisterInput{Username: "alice01"}, nil
		},
	}
	h := newTestAuthHandler(v, &mockAuthService{}, &mockCollector{})

	h.Register(httptest.NewRecorder(), postJSON("/register", `{"username":" alice01 ","mobile":13800138000,"sms_code":"1234"}`))

	if got == nil {
		t.Fatal("validator was not called")
	}
	if string(got.Username) != "alice01" {
		t.Errorf("Username = %q, want trimmed alice01", got.Username)
	}
	if string(got.Mobile) != "13800138000" {
		t.Errorf("Mobile = %q, want 13800138000", got.Mobile)
	}
}

func TestAuthHandler_Register_EmptyBody_ReturnsParamErr(t *testing.T) {
	v := &mockValidator{}
	collector := &mockCollector{}
	h := newTestAuthHandler(v, &mockAuthService{}, collector)

	w := httptest.NewRecorder()
	h.Register(w, postJSON("/register", ""))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	env := decodeEnvelope(t, w)
	if env.Errno != model.ErrnoParamErr {
		t.Errorf("errno = %d, want %d", env.Errno, model.ErrnoParamErr)
	}
	if env.Errmsg != model.ErrnoParamErr.Message() {
		t.Errorf("errmsg = %q, want generic parameter error", env.Errmsg)
	}
	if v.registerCalls != 0 {
		t.Error("validator should not be called for empty body")
	}
	if len(collector.registrations) != 1 || collector.registrations[0] != metrics.OutcomeInvalid {
		t.Errorf("registrations = %v, want [invalid]", collector.registrations)
	}
}

func TestAuthHandler_Register_MalformedBody_ReturnsUnknownErr(t *testing.T) {
	for _, body := range []string{`{"username":`, `[1,2]`, `"alice"`, `{"username":["a"]}`} {
		t.Run(body, func(t *testing.T) {
			v := &mockValidator{}
			h := newTestAuthHandler(v, &mockAuthService{}, &mockCollector{})

			w := httptest.NewRecorder()
			h.Register(w, postJSON("/register", body))

			if w.Code != http.StatusInternalServerError {
				t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
			}
			env := decodeEnvelope(t, w)
			if env.Errno != model.ErrnoUnknownErr {
				t.Errorf("errno = %d, want %d", env.Errno, model.ErrnoUnknownErr)
			}
			if v.registerCalls != 0 {
				t.Error("validator should not be called for malformed body")
			}
		})
	}
}

func TestWriteDecodeError_Classification(t *testing.T) {
	_, parseErr := validation.DecodeRegister([]byte(`[1]`))
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantErrno  model.Errno
	}{
		{"empty body", validation.ErrEmptyBody, http.StatusBadRequest, model.ErrnoParamErr},
		{"parse error", parseErr, http.StatusInternalServerError, model.ErrnoUnknownErr},
		{"other error", errors.New("boom"), http.StatusInternalServerError, model.ErrnoUnknownErr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeDecodeError(w, tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if env := decodeEnvelope(t, w); env.Errno != tt.wantErrno {
				t.Errorf("errno = %d, want %d", env.Errno, tt.wantErrno)
			}
		})
	}
}

func TestAuthHandler_Register_ValidationErrors_JoinsMessages(t *testing.T) {
	v := &mockValidator{
		validateRegisterFn: func(ctx context.Context, req *validation.RegisterRequest) (*validation.RegisterInput, error) {
			return nil, validation.Errors{
				{Field: "username", Kind: validation.KindTooShort, Message: "ユーザー名は5文字以上で入力してください"},
				{Field: "mobile", Kind: validation.KindFormat, Message: validation.MsgMobileFormat},
			}
		},
	}
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, input *validation.RegisterInput) (*model.User, *model.Session, error) {
			t.Fatal("Register should not be called when validation fails")
			return nil, nil, nil
		},
	}
	h := newTestAuthHandler(v, svc, &mockCollector{})

	w := httptest.NewRecorder()
	h.Register(w, postJSON("/register", validRegisterBody))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	env := decodeEnvelope(t, w)
	if env.Errno != model.ErrnoParamErr {
		t.Errorf("errno = %d, want %d", env.Errno, model.ErrnoParamErr)
	}
	want := "ユーザー名は5文字以上で入力してください/" + validation.MsgMobileFormat
	if env.Errmsg != want {
		t.Errorf("errmsg = %q, want %q", env.Errmsg, want)
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			t.Error("session cookie must not be set on validation failure")
		}
	}
}

func TestAuthHandler_Register_StoreFailureDuringValidation_ReturnsDBErr(t *testing.T) {
	v := &mockValidator{
		validateRegisterFn: func(ctx context.Context, req *validation.RegisterRequest) (*validation.RegisterInput, error) {
			return nil, errors.New("connection refused")
		},
	}
	collector := &mockCollector{}
	h := newTestAuthHandler(v, &mockAuthService{}, collector)

	w := httptest.NewRecorder()
	h.Register(w, postJSON("/register", validRegisterBody))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if env := decodeEnvelope(t, w); env.Errno != model.ErrnoDBErr {
		t.Errorf("errno = %d, want %d", env.Errno, model.ErrnoDBErr)
	}
	if collector.registrations[0] != metrics.OutcomeError {
		t.Errorf("outcome = %q, want error", collector.registrations[0])
	}
}

func TestAuthHandler_Register_UniquenessRace_ReturnsDataExist(t *testing.T) {
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, input *validation.RegisterInput) (*model.User, *model.Session, error) {
			return nil, nil, model.NewDuplicateUserError()
		},
	}
	collector := &mockCollector{}
	h := newTestAuthHandler(&mockValidator{}, svc, collector)

	w := httptest.NewRecorder()
	h.Register(w, postJSON("/register", validRegisterBody))

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
	if env := decodeEnvelope(t, w); env.Errno != model.ErrnoDataExist {
		t.Errorf("errno = %d, want %d", env.Errno, model.ErrnoDataExist)
	}
	if collector.registrations[0] != metrics.OutcomeDuplicate {
		t.Errorf("outcome = %q, want duplicate", collector.registrations[0])
	}
}

func TestAuthHandler_Register_ServiceFailure_ReturnsDBErr(t *testing.T) {
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, input *validation.RegisterInput) (*model.User, *model.Session, error) {
			return nil, nil, errors.New("failed to register user: db down")
		},
	}
	h := newTestAuthHandler(&mockValidator{}, svc, &mockCollector{})

	w := httptest.NewRecorder()
	h.Register(w, postJSON("/register", validRegisterBody))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if env := decodeEnvelope(t, w); env.Errno != model.ErrnoDBErr {
		t.Errorf("errno = %d, want %d", env.Errno, model.ErrnoDBErr)
	}
}

func TestAuthHandler_Register_ReplacesPreviousSession(t *testing.T) {
	svc := &mockAuthService{}
	h := newTestAuthHandler(&mockValidator{}, svc, &mockCollector{})

	req := postJSON("/register", validRegisterBody)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "old-session"})
	w := httptest.NewRecorder()

	h.Register(w, req)

	if len(svc.loggedOut) != 1 || svc.loggedOut[0] != "old-session" {
		t.Errorf("loggedOut = %v, want [old-session]", svc.loggedOut)
	}
	if cookie := sessionCookie(t, w); cookie.Value != "new-session" {
		t.Errorf("cookie value = %q, want new-session", cookie.Value)
	}
}

func TestAuthHandler_Register_NilCollector(t *testing.T) {
	h := NewAuthHandler(&mockValidator{}, &mockAuthService{}, nil, AuthHandlerConfig{})

	w := httptest.NewRecorder()
	h.Register(w, postJSON("/register", validRegisterBody))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

// --- Login ---

func TestAuthHandler_Login_RememberMe_SetsLongLivedCookie(t *testing.T) {
	collector := &mockCollector{}
	h := newTestAuthHandler(&mockValidator{}, &mockAuthService{}, collector)

	w := httptest.NewRecorder()
	h.Login(w, postJSON("/login", `{"user_account":"alice01","password":"secret1","remember_me":true}`))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	env := decodeEnvelope(t, w)
	if env.Errno != model.ErrnoOK || env.Errmsg != msgLoginSuccess {
		t.Errorf("envelope = %+v", env)
	}
	if cookie := sessionCookie(t, w); cookie.MaxAge != persistentCookieMaxAge {
		t.Errorf("cookie MaxAge = %d, want %d", cookie.MaxAge, persistentCookieMaxAge)
	}
	if len(collector.logins) != 1 || collector.logins[0] != metrics.OutcomeSuccess {
		t.Errorf("logins = %v, want [success]", collector.logins)
	}
}

func TestAuthHandler_Login_WithoutRememberMe_UsesSessionExpires(t *testing.T) {
	svc := &mockAuthService{sessionExpires: 432000 * time.Second}
	h := newTestAuthHandler(&mockValidator{}, svc, &mockCollector{})

	for _, body := range []string{
		`{"user_account":"alice01","password":"secret1"}`,
		`{"user_account":"alice01","password":"secret1","remember_me":"false"}`,
		`{"user_account":"alice01","password":"secret1","remember_me":""}`,
	} {
		w := httptest.NewRecorder()
		h.Login(w, postJSON("/login", body))

		if cookie := sessionCookie(t, w); cookie.MaxAge != 432000 {
			t.Errorf("body %s: cookie MaxAge = %d, want 432000", body, cookie.MaxAge)
		}
	}
}

func TestAuthHandler_Login_RememberMeStringTrue_IsPersistent(t *testing.T) {
	var persistent bool
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, result *validation.AuthResult) (*model.Session, error) {
			persistent = result.Persistent
			return &model.Session{ID: "s", UserID: result.User.ID}, nil
		},
	}
	h := newTestAuthHandler(&mockValidator{}, svc, &mockCollector{})

	h.Login(httptest.NewRecorder(), postJSON("/login", `{"user_account":"alice01","password":"secret1","remember_me":"on"}`))

	if !persistent {
		t.Error("remember_me \"on\" should produce a persistent session")
	}
}

func TestAuthHandler_Login_EmptyBody_ReturnsParamErr(t *testing.T) {
	v := &mockValidator{}
	h := newTestAuthHandler(v, &mockAuthService{}, &mockCollector{})

	w := httptest.NewRecorder()
	h.Login(w, postJSON("/login", "   "))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if env := decodeEnvelope(t, w); env.Errno != model.ErrnoParamErr {
		t.Errorf("errno = %d, want %d", env.Errno, model.ErrnoParamErr)
	}
	if v.loginCalls != 0 {
		t.Error("validator should not be called")
	}
}

func TestAuthHandler_Login_MalformedBody_ReturnsUnknownErr(t *testing.T) {
	h := newTestAuthHandler(&mockValidator{}, &mockAuthService{}, &mockCollector{})

	w := httptest.NewRecorder()
	h.Login(w, postJSON("/login", `not json`))

	if env := decodeEnvelope(t, w); env.Errno != model.ErrnoUnknownErr {
		t.Errorf("errno = %d, want %d", env.Errno, model.ErrnoUnknownErr)
	}
}

func TestAuthHandler_Login_CredentialError_ReturnsParamErrWithoutCookie(t *testing.T) {
	v := &mockValidator{
		validateLoginFn: func(ctx context.Context, req *validation.LoginRequest) (*validation.AuthResult, error) {
			return nil, validation.Errors{
				{Field: validation.FieldNonField, Kind: validation.KindCredential, Message: validation.MsgPasswordWrong},
			}
		},
	}
	collector := &mockCollector{}
	h := newTestAuthHandler(v, &mockAuthService{}, collector)

	w := httptest.NewRecorder()
	h.Login(w, postJSON("/login", `{"user_account":"alice01","password":"wrong12"}`))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	env := decodeEnvelope(t, w)
	if env.Errno != model.ErrnoParamErr || env.Errmsg != validation.MsgPasswordWrong {
		t.Errorf("envelope = %+v", env)
	}
	if len(w.Result().Cookies()) != 0 {
		t.Error("no cookie should be set on failed login")
	}
	if collector.logins[0] != metrics.OutcomeInvalid {
		t.Errorf("outcome = %q, want invalid", collector.logins[0])
	}
}

func TestAuthHandler_Login_SessionFailure_ReturnsDBErr(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, result *validation.AuthResult) (*model.Session, error) {
			return nil, errors.New("failed to create session")
		},
	}
	h := newTestAuthHandler(&mockValidator{}, svc, &mockCollector{})

	w := httptest.NewRecorder()
	h.Login(w, postJSON("/login", `{"user_account":"alice01","password":"secret1"}`))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if env := decodeEnvelope(t, w); env.Errno != model.ErrnoDBErr {
		t.Errorf("errno = %d, want %d", env.Errno, model.ErrnoDBErr)
	}
}

// --- Logout ---

func TestAuthHandler_Logout_DeletesSessionAndRedirects(t *testing.T) {
	svc := &mockAuthService{}
	collector := &mockCollector{}
	h := newTestAuthHandler(&mockValidator{}, svc, collector)

	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "sess-1"})
	w := httptest.NewRecorder()

	h.Logout(w, req)

	if w.Code != http.StatusFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusFound)
	}
	if loc := w.Header().Get("Location"); loc != "/login" {
		t.Errorf("Location = %q, want /login", loc)
	}
	if len(svc.loggedOut) != 1 || svc.loggedOut[0] != "sess-1" {
		t.Errorf("loggedOut = %v, want [sess-1]", svc.loggedOut)
	}
	if cookie := sessionCookie(t, w); cookie.MaxAge >= 0 || cookie.Value != "" {
		t.Errorf("cookie = %+v, want cleared", cookie)
	}
	if collector.logouts != 1 {
		t.Errorf("logouts = %d, want 1", collector.logouts)
	}
}

func TestAuthHandler_Logout_WithoutSession_StillRedirects(t *testing.T) {
	svc := &mockAuthService{}
	h := newTestAuthHandler(&mockValidator{}, svc, &mockCollector{})

	w := httptest.NewRecorder()
	h.Logout(w, httptest.NewRequest(http.MethodGet, "/logout", nil))

	if w.Code != http.StatusFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusFound)
	}
	if len(svc.loggedOut) != 0 {
		t.Errorf("Logout should not be called without a cookie, got %v", svc.loggedOut)
	}
}

func TestAuthHandler_Logout_ServiceError_StillClearsCookie(t *testing.T) {
	svc := &mockAuthService{
		logoutFn: func(ctx context.Context, sessionID string) error {
			return errors.New("db down")
		},
	}
	h := newTestAuthHandler(&mockValidator{}, svc, &mockCollector{})

	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "sess-1"})
	w := httptest.NewRecorder()

	h.Logout(w, req)

	if w.Code != http.StatusFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusFound)
	}
	if cookie := sessionCookie(t, w); cookie.MaxAge >= 0 {
		t.Errorf("cookie MaxAge = %d, want negative", cookie.MaxAge)
	}
}
