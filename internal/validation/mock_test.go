package validation

import (
	"context"

	"github.com/hitoshi/usergate/internal/model"
)

// --- モック ---

// mockUsers はUserLookupのモック実装。fnが未設定の場合はusersスライスを検索する。
type mockUsers struct {
	users []*model.User

	existsByUsernameFn func(ctx context.Context, username string) (bool, error)
	existsByMobileFn   func(ctx context.Context, mobile string) (bool, error)
	findByAccountFn    func(ctx context.Context, account string) (*model.User, error)

	findByAccountCalls int
	verifyCalls        int
}

func (m *mockUsers) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	if m.existsByUsernameFn != nil {
		return m.existsByUsernameFn(ctx, username)
	}
	for _, u := range m.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockUsers) ExistsByMobile(ctx context.Context, mobile string) (bool, error) {
	if m.existsByMobileFn != nil {
		return m.existsByMobileFn(ctx, mobile)
	}
	for _, u := range m.users {
		if u.Mobile == mobile {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockUsers) FindByAccount(ctx context.Context, account string) (*model.User, error) {
	m.findByAccountCalls++
	if m.findByAccountFn != nil {
		return m.findByAccountFn(ctx, account)
	}
	for _, u := range m.users {
		if u.Mobile == account || u.Username == account {
			return u, nil
		}
	}
	return nil, nil
}

// VerifyPassword はPasswordHashに "plain:" + 平文 が入っている場合に一致とみなす。
func (m *mockUsers) VerifyPassword(user *model.User, plaintext string) bool {
	m.verifyCalls++
	return user.PasswordHash == "plain:"+plaintext
}

// mockCodes はverification.CodeStoreのモック実装。
type mockCodes struct {
	codes map[string]string
	getFn func(ctx context.Context, key string) ([]byte, error)

	getCalls int
}

func (m *mockCodes) Get(ctx context.Context, key string) ([]byte, error) {
	m.getCalls++
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	code, ok := m.codes[key]
	if !ok {
		return nil, nil
	}
	return []byte(code), nil
}

func newAlice() *model.User {
	return &model.User{
		ID:           "user-alice",
		Username:     "alice1",
		PasswordHash: "plain:secret1",
		Mobile:       "13800138000",
	}
}
