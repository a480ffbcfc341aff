package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/usergate/internal/middleware"
	"github.com/hitoshi/usergate/internal/model"
	"github.com/hitoshi/usergate/internal/validation"
)

// --- モック定義 ---

type mockValidator struct {
	validateRegisterFn func(ctx context.Context, req *validation.RegisterRequest) (*validation.RegisterInput, error)
	validateLoginFn    func(ctx context.Context, req *validation.LoginRequest) (*validation.AuthResult, error)
	registerCalls      int
	loginCalls         int
}

func (m *mockValidator) ValidateRegister(ctx context.Context, req *validation.RegisterRequest) (*validation.RegisterInput, error) {
	m.registerCalls++
	if m.validateRegisterFn != nil {
		return m.validateRegisterFn(ctx, req)
	}
	return &validation.RegisterInput{
		Username: string(req.Username),
		Password: string(req.Password),
		Mobile:   string(req.Mobile),
	}, nil
}

func (m *mockValidator) ValidateLogin(ctx context.Context, req *validation.LoginRequest) (*validation.AuthResult, error) {
	m.loginCalls++
	if m.validateLoginFn != nil {
		return m.validateLoginFn(ctx, req)
	}
	return &validation.AuthResult{
		User:       &model.User{ID: "user-1", Username: string(req.UserAccount)},
		Persistent: bool(req.RememberMe),
	}, nil
}

type mockAuthService struct {
	registerFn       func(ctx context.Context, input *validation.RegisterInput) (*model.User, *model.Session, error)
	loginFn          func(ctx context.Context, result *validation.AuthResult) (*model.Session, error)
	logoutFn         func(ctx context.Context, sessionID string) error
	getUserFn        func(ctx context.Context, userID string) (*model.User, error)
	getCurrentUserFn func(ctx context.Context, sessionID string) (*model.User, error)
	findByIDFn       func(ctx context.Context, id string) (*model.Session, error)
	sessionExpires   time.Duration
	loggedOut        []string
}

func (m *mockAuthService) Register(ctx context.Context, input *validation.RegisterInput) (*model.User, *model.Session, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, input)
	}
	expiresAt := time.Now().Add(m.SessionExpires())
	return &model.User{ID: "user-1", Username: input.Username},
		&model.Session{ID: "new-session", UserID: "user-1", ExpiresAt: &expiresAt}, nil
}

func (m *mockAuthService) Login(ctx context.Context, result *validation.AuthResult) (*model.Session, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, result)
	}
	session := &model.Session{ID: "new-session", UserID: result.User.ID}
	if !result.Persistent {
		expiresAt := time.Now().Add(m.SessionExpires())
		session.ExpiresAt = &expiresAt
	}
	return session, nil
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	m.loggedOut = append(m.loggedOut, sessionID)
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) SessionExpires() time.Duration {
	if m.sessionExpires > 0 {
		return m.sessionExpires
	}
	return 5 * 24 * time.Hour
}

func (m *mockAuthService) GetUser(ctx context.Context, userID string) (*model.User, error) {
	if m.getUserFn != nil {
		return m.getUserFn(ctx, userID)
	}
	return nil, model.NewUserNotFoundError()
}

func (m *mockAuthService) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if m.getCurrentUserFn != nil {
		return m.getCurrentUserFn(ctx, sessionID)
	}
	return nil, nil
}

func (m *mockAuthService) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

type mockCollector struct {
	registrations []string
	logins        []string
	logouts       int
	statuses      []int
}

func (m *mockCollector) RecordRegistration(outcome string) { m.registrations = append(m.registrations, outcome) }
func (m *mockCollector) RecordLogin(outcome string) { m.logins = append(m.logins, outcome) }
func (m *mockCollector) RecordLogout() { m.logouts++ }
func (m *mockCollector) RecordHTTPStatus(statusCode int) { m.statuses = append(m.statuses, statusCode) }
func (m *mockCollector) RecordRequestLatency(time.Duration) {}
func (m *mockCollector) RecordSessionsCleaned(count int64) {}

// コンパイル時にインターフェースの実装を検証する
var (
	_ Validator            = (*mockValidator)(nil)
	_ AuthServiceInterface = (*mockAuthService)(nil)
	_ UserServiceInterface = (*mockAuthService)(nil)
	_ CurrentUserFinder    = (*mockAuthService)(nil)
)

// decodeEnvelope はレスポンスボディをEnvelopeとして読み取る。
func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) middleware.Envelope {
	t.Helper()
	var env middleware.Envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode envelope %q: %v", w.Body.String(), err)
	}
	return env
}
