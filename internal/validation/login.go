package validation

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/hitoshi/usergate/internal/model"
)

// AuthResult は認証に成功したログインの結果。
// セッションの確立は呼び出し側（auth.Service）が行う。
type AuthResult struct {
	User       *model.User
	Persistent bool
}

// ValidateLogin はログインリクエストを検証し、アカウントを認証する。
// アカウントの検索はuser_accountとpasswordが単体検証を通過した場合のみ行う。
// アカウント不存在はパスワード不一致より優先される。
func (v *Validator) ValidateLogin(ctx context.Context, req *LoginRequest) (*AuthResult, error) {
	account := string(req.UserAccount)
	password := string(req.Password)
	c := newCollector()

	if account == "" {
		c.add(FieldUserAccount, KindRequired, MsgAccountRequired)
	} else if n := utf8.RuneCountInString(account); !IsMobile(account) && (n < UsernameMinLen || n > UsernameMaxLen) {
		c.add(FieldUserAccount, KindFormat, MsgAccountFormat)
	}

	if kind, msg, ok := passwordRule.check(password); !ok {
		c.add(FieldPassword, kind, msg)
	}

	if !c.passed(FieldUserAccount, FieldPassword) {
		return nil, c.err()
	}

	user, err := v.users.FindByAccount(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if user == nil {
		c.add(FieldNonField, KindNotFound, MsgAccountNotFound)
		return nil, c.err()
	}
	if !v.users.VerifyPassword(user, password) {
		c.add(FieldNonField, KindCredential, MsgPasswordWrong)
		return nil, c.err()
	}

	return &AuthResult{User: user, Persistent: bool(req.RememberMe)}, nil
}
