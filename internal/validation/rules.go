package validation

import (
	"regexp"
	"unicode/utf8"
)

// フィールド長の制約
const (
	UsernameMinLen = 5
	UsernameMaxLen = 20
	PasswordMinLen = 6
	PasswordMaxLen = 20
	MobileLen      = 11

	// DefaultSMSCodeLength はSMS認証コードの既定桁数。
	DefaultSMSCodeLength = 4
)

var mobilePattern = regexp.MustCompile(`^1[3-9]\d{9}$`)

// IsMobile は中国本土の携帯番号形式（11桁）に一致するかを返す。
func IsMobile(s string) bool {
	return mobilePattern.MatchString(s)
}

// lengthRule は必須・最小長・最大長を順に検査する規則。
type lengthRule struct {
	min, max int
	required string
	tooShort string
	tooLong  string
}

// check は最初に失敗した規則を返す。通過した場合はokがtrue。
func (r lengthRule) check(value string) (kind Kind, message string, ok bool) {
	n := utf8.RuneCountInString(value)
	switch {
	case n == 0:
		return KindRequired, r.required, false
	case n < r.min:
		return KindTooShort, r.tooShort, false
	case n > r.max:
		return KindTooLong, r.tooLong, false
	}
	return 0, "", true
}

var (
	usernameRule = lengthRule{
		min:      UsernameMinLen,
		max:      UsernameMaxLen,
		required: "ユーザー名を入力してください",
		tooShort: "ユーザー名は5文字以上で入力してください",
		tooLong:  "ユーザー名は20文字以内で入力してください",
	}
	passwordRule = lengthRule{
		min:      PasswordMinLen,
		max:      PasswordMaxLen,
		required: "パスワードを入力してください",
		tooShort: "パスワードは6文字以上で入力してください",
		tooLong:  "パスワードは20文字以内で入力してください",
	}
	mobileRule = lengthRule{
		min:      MobileLen,
		max:      MobileLen,
		required: "携帯番号を入力してください",
		tooShort: "携帯番号の長さが正しくありません",
		tooLong:  "携帯番号の長さが正しくありません",
	}
)

func smsCodeRule(length int) lengthRule {
	return lengthRule{
		min:      length,
		max:      length,
		required: "SMS認証コードを入力してください",
		tooShort: "SMS認証コードの長さが正しくありません",
		tooLong:  "SMS認証コードの長さが正しくありません",
	}
}

// ユーザー向けメッセージ
const (
	MsgUsernameTaken    = "このユーザー名は既に使われています。別の名前を入力してください"
	MsgMobileFormat     = "携帯番号の形式が正しくありません"
	MsgMobileTaken      = "この携帯番号は既に登録されています"
	MsgPasswordMismatch = "パスワードが一致しません"
	MsgSMSCodeWrong     = "SMS認証コードが正しくありません"

	MsgAccountRequired = "アカウントを入力してください"
	MsgAccountFormat   = "アカウントの形式が正しくありません。再度入力してください"
	MsgAccountNotFound = "アカウントが存在しません。再度入力してください"
	MsgPasswordWrong   = "パスワードが正しくありません。再度入力してください"
)
