// Package validation は登録・ログインリクエストの入力検証を提供する。
//
// フィールド単位の検証を宣言順に行い、各フィールドにつき最初に失敗した規則の
// メッセージを1件だけ記録する。その後、依存するフィールドがすべて通過した場合に
// 限りフィールド間の検証を行う。
package validation

import (
	"errors"
	"fmt"
	"strings"
)

// Kind は検証エラーの種別。
type Kind int

// 検証エラーの種別
const (
	KindParse Kind = iota
	KindRequired
	KindTooShort
	KindTooLong
	KindFormat
	KindUniqueness
	KindCrossField
	KindCode
	KindNotFound
	KindCredential
)

var kindNames = map[Kind]string{
	KindParse:      "parse",
	KindRequired:   "required",
	KindTooShort:   "too_short",
	KindTooLong:    "too_long",
	KindFormat:     "format",
	KindUniqueness: "uniqueness",
	KindCrossField: "cross_field",
	KindCode:       "code",
	KindNotFound:   "not_found",
	KindCredential: "credential",
}

// String は種別名を返す。
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// FieldNonField はフィールド間検証のエラーに使うフィールド名。
const FieldNonField = "__all__"

// ErrEmptyBody はリクエストボディが空の場合のエラー。
var ErrEmptyBody = errors.New("empty request body")

// FieldError は1件の検証エラー。
type FieldError struct {
	Field   string
	Kind    Kind
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Field, e.Message, e.Kind)
}

// Errors は検出順に並んだ検証エラーのリスト。
type Errors []*FieldError

// Error はerrorインターフェースを実装する。
func (e Errors) Error() string {
	return e.Join("/")
}

// Messages はユーザー向けメッセージを検出順に返す。
func (e Errors) Messages() []string {
	msgs := make([]string, 0, len(e))
	for _, fe := range e {
		msgs = append(msgs, fe.Message)
	}
	return msgs
}

// Join はメッセージを区切り文字で連結する。
func (e Errors) Join(sep string) string {
	return strings.Join(e.Messages(), sep)
}

// Field は指定フィールドのエラーを返す。存在しない場合はnilを返す。
func (e Errors) Field(name string) *FieldError {
	for _, fe := range e {
		if fe.Field == name {
			return fe
		}
	}
	return nil
}

// HasKind は指定種別のエラーが含まれるかを返す。
func (e Errors) HasKind(kind Kind) bool {
	for _, fe := range e {
		if fe.Kind == kind {
			return true
		}
	}
	return false
}

// IsParse はerrがJSONとして解釈できないリクエストによるエラーかどうかを返す。
func IsParse(err error) bool {
	var fe *FieldError
	return errors.As(err, &fe) && fe.Kind == KindParse
}

// collector はフィールドごとに最初のエラーだけを記録する。
type collector struct {
	errs   Errors
	failed map[string]bool
}

func newCollector() *collector {
	return &collector{failed: make(map[string]bool)}
}

func (c *collector) add(field string, kind Kind, message string) {
	if c.failed[field] {
		return
	}
	c.failed[field] = true
	c.errs = append(c.errs, &FieldError{Field: field, Kind: kind, Message: message})
}

// passed は列挙したフィールドがすべて検証を通過したかを返す。
func (c *collector) passed(fields ...string) bool {
	for _, f := range fields {
		if c.failed[f] {
			return false
		}
	}
	return true
}

func (c *collector) err() error {
	if len(c.errs) == 0 {
		return nil
	}
	return c.errs
}
