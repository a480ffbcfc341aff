package validation

import (
	"context"
	"fmt"

	"github.com/hitoshi/usergate/internal/model"
	"github.com/hitoshi/usergate/internal/verification"
)

// フィールド名
const (
	FieldUsername       = "username"
	FieldPassword       = "password"
	FieldPasswordRepeat = "password_repeat"
	FieldMobile         = "mobile"
	FieldSMSCode        = "sms_code"
	FieldUserAccount    = "user_account"
)

// UserChecker は登録時の一意性チェックに使うユーザー検索インターフェース。
type UserChecker interface {
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByMobile(ctx context.Context, mobile string) (bool, error)
}

// AccountAuthenticator はログイン時のアカウント検索とパスワード照合のインターフェース。
type AccountAuthenticator interface {
	FindByAccount(ctx context.Context, account string) (*model.User, error)
	VerifyPassword(user *model.User, plaintext string) bool
}

// UserLookup は検証に必要なユーザーストアの操作をまとめたインターフェース。
type UserLookup interface {
	UserChecker
	AccountAuthenticator
}

// Validator は登録・ログインリクエストを検証する。
// 副作用はストアとキャッシュの読み取りのみ。
type Validator struct {
	users         UserLookup
	codes         verification.CodeStore
	smsCodeLength int
}

// NewValidator はValidatorを生成する。smsCodeLengthが0以下の場合は既定値を使用する。
func NewValidator(users UserLookup, codes verification.CodeStore, smsCodeLength int) *Validator {
	if smsCodeLength <= 0 {
		smsCodeLength = DefaultSMSCodeLength
	}
	return &Validator{users: users, codes: codes, smsCodeLength: smsCodeLength}
}

// SMSCodeLength は検証に使うSMS認証コードの桁数を返す。
func (v *Validator) SMSCodeLength() int {
	return v.smsCodeLength
}

// RegisterInput は検証済みの登録内容。
type RegisterInput struct {
	Username string
	Password string
	Mobile   string
}

// ValidateRegister は登録リクエストを検証する。
// 検証エラーはErrors、ストアやキャッシュの障害はラップしたエラーとして返す。
func (v *Validator) ValidateRegister(ctx context.Context, req *RegisterRequest) (*RegisterInput, error) {
	var (
		username       = string(req.Username)
		password       = string(req.Password)
		passwordRepeat = string(req.PasswordRepeat)
		mobile         = string(req.Mobile)
		smsCode        = string(req.SMSCode)
	)
	c := newCollector()

	if kind, msg, ok := usernameRule.check(username); !ok {
		c.add(FieldUsername, kind, msg)
	} else {
		exists, err := v.users.ExistsByUsername(ctx, username)
		if err != nil {
			return nil, fmt.Errorf("failed to check username: %w", err)
		}
		if exists {
			c.add(FieldUsername, KindUniqueness, MsgUsernameTaken)
		}
	}

	if kind, msg, ok := passwordRule.check(password); !ok {
		c.add(FieldPassword, kind, msg)
	}
	if kind, msg, ok := passwordRule.check(passwordRepeat); !ok {
		c.add(FieldPasswordRepeat, kind, msg)
	}

	if kind, msg, ok := mobileRule.check(mobile); !ok {
		c.add(FieldMobile, kind, msg)
	} else if !IsMobile(mobile) {
		c.add(FieldMobile, KindFormat, MsgMobileFormat)
	} else {
		exists, err := v.users.ExistsByMobile(ctx, mobile)
		if err != nil {
			return nil, fmt.Errorf("failed to check mobile: %w", err)
		}
		if exists {
			c.add(FieldMobile, KindUniqueness, MsgMobileTaken)
		}
	}

	if kind, msg, ok := smsCodeRule(v.smsCodeLength).check(smsCode); !ok {
		c.add(FieldSMSCode, kind, msg)
	}

	// フィールド間検証は最初の不一致で打ち切る
	if err := v.crossCheckRegister(ctx, c, password, passwordRepeat, mobile, smsCode); err != nil {
		return nil, err
	}

	if err := c.err(); err != nil {
		return nil, err
	}
	return &RegisterInput{Username: username, Password: password, Mobile: mobile}, nil
}

func (v *Validator) crossCheckRegister(ctx context.Context, c *collector, password, passwordRepeat, mobile, smsCode string) error {
	if c.passed(FieldPassword, FieldPasswordRepeat) && password != passwordRepeat {
		c.add(FieldNonField, KindCrossField, MsgPasswordMismatch)
		return nil
	}

	if !c.passed(FieldMobile, FieldSMSCode) {
		return nil
	}
	cached, err := v.codes.Get(ctx, verification.SMSKey(mobile))
	if err != nil {
		return fmt.Errorf("failed to read sms code: %w", err)
	}
	if cached == nil || string(cached) != smsCode {
		c.add(FieldNonField, KindCode, MsgSMSCodeWrong)
	}
	return nil
}
