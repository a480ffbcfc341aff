package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// flexString は文字列フィールド。JSONの数値も文字列として受け付け、前後の空白を除去する。
// 真偽値は "True"/"False" に変換し、nullは未入力として扱う。
type flexString string

// UnmarshalJSON はjson.Unmarshalerを実装する。
func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}

	switch data[0] {
	case '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(strings.TrimSpace(v))
		return nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*s = flexString(n.String())
		return nil
	case 't', 'f':
		var v bool
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		if v {
			*s = "True"
		} else {
			*s = "False"
		}
		return nil
	default:
		return fmt.Errorf("unsupported value for string field: %s", data)
	}
}

// flexBool は真偽値フィールド。JSONのbool、"true"/"false"/"on"などの文字列、1/0の数値を受け付ける。
// 空文字列・"false"・"0"・null・0・未指定はfalseになる。
type flexBool bool

// UnmarshalJSON はjson.Unmarshalerを実装する。
func (b *flexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*b = false
		return nil
	}

	var v any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return err
	}

	switch t := v.(type) {
	case bool:
		*b = flexBool(t)
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "", "false", "0":
			*b = false
		default:
			*b = true
		}
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return err
		}
		*b = f != 0
	default:
		return fmt.Errorf("unsupported value for boolean field: %s", data)
	}
	return nil
}

// RegisterRequest は登録リクエストのペイロード。
type RegisterRequest struct {
	Username       flexString `json:"username"`
	Password       flexString `json:"password"`
	PasswordRepeat flexString `json:"password_repeat"`
	Mobile         flexString `json:"mobile"`
	SMSCode        flexString `json:"sms_code"`
}

// LoginRequest はログインリクエストのペイロード。
type LoginRequest struct {
	UserAccount flexString `json:"user_account"`
	Password    flexString `json:"password"`
	RememberMe  flexBool   `json:"remember_me"`
}

// NewRegisterRequest は値を指定してRegisterRequestを生成する。前後の空白は除去される。
func NewRegisterRequest(username, password, passwordRepeat, mobile, smsCode string) *RegisterRequest {
	return &RegisterRequest{
		Username:       flexString(strings.TrimSpace(username)),
		Password:       flexString(strings.TrimSpace(password)),
		PasswordRepeat: flexString(strings.TrimSpace(passwordRepeat)),
		Mobile:         flexString(strings.TrimSpace(mobile)),
		SMSCode:        flexString(strings.TrimSpace(smsCode)),
	}
}

// NewLoginRequest は値を指定してLoginRequestを生成する。前後の空白は除去される。
func NewLoginRequest(userAccount, password string, rememberMe bool) *LoginRequest {
	return &LoginRequest{
		UserAccount: flexString(strings.TrimSpace(userAccount)),
		Password:    flexString(strings.TrimSpace(password)),
		RememberMe:  flexBool(rememberMe),
	}
}

// DecodeRegister はリクエストボディをRegisterRequestに変換する。
// ボディが空の場合はErrEmptyBody、JSONオブジェクトとして解釈できない場合はKindParseのFieldErrorを返す。
func DecodeRegister(body []byte) (*RegisterRequest, error) {
	req := &RegisterRequest{}
	if err := decodeObject(body, req); err != nil {
		return nil, err
	}
	return req, nil
}

// DecodeLogin はリクエストボディをLoginRequestに変換する。
// エラーの扱いはDecodeRegisterと同じ。
func DecodeLogin(body []byte) (*LoginRequest, error) {
	req := &LoginRequest{}
	if err := decodeObject(body, req); err != nil {
		return nil, err
	}
	return req, nil
}

func decodeObject(body []byte, dst any) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ErrEmptyBody
	}
	if trimmed[0] != '{' {
		return &FieldError{Field: FieldNonField, Kind: KindParse, Message: "request body must be a JSON object"}
	}
	if err := json.Unmarshal(trimmed, dst); err != nil {
		return &FieldError{Field: FieldNonField, Kind: KindParse, Message: err.Error()}
	}
	return nil
}
