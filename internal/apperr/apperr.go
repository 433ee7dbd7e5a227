package apperr

import (
	"errors"
	"net/http"
)

// Kind 描述错误类别，决定 HTTP 状态码与是否向调用方暴露原因。
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindUnauthorized
	KindForbidden
	KindRateLimited
	KindUnsupported
	KindTooLarge
	KindUpstream
	KindPersistence
)

var kindStatus = map[Kind]int{
	KindInternal:     http.StatusInternalServerError,
	KindValidation:   http.StatusBadRequest,
	KindNotFound:     http.StatusNotFound,
	KindConflict:     http.StatusConflict,
	KindUnauthorized: http.StatusUnauthorized,
	KindForbidden:    http.StatusForbidden,
	KindRateLimited:  http.StatusTooManyRequests,
	KindUnsupported:  http.StatusUnsupportedMediaType,
	KindTooLarge:     http.StatusRequestEntityTooLarge,
	KindUpstream:     http.StatusInternalServerError,
	KindPersistence:  http.StatusInternalServerError,
}

// Error 携带类别、面向用户的消息与原始错误。
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// E 构造一个带类别的错误。
func E(kind Kind, msg string, cause error) error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

// Validation 构造字段级校验错误。
func Validation(msg string, fields map[string]string) error {
	return &Error{Kind: KindValidation, Message: msg, Fields: fields}
}

// NotFound 构造资源不存在错误。
func NotFound(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// KindOf 返回错误链中第一个 *Error 的类别，否则视为内部错误。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is 判断错误链是否属于指定类别。
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// Status 将错误映射为 HTTP 状态码。
func Status(err error) int {
	if status, ok := kindStatus[KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Public 返回可以安全展示给调用方的消息；上游与持久化错误只给出通用描述。
func Public(err error, fallback string) string {
	var e *Error
	if !errors.As(err, &e) {
		return fallback
	}
	switch e.Kind {
	case KindInternal, KindUpstream, KindPersistence:
		if e.Message != "" {
			return e.Message
		}
		return fallback
	default:
		return e.Message
	}
}

// FieldsOf 返回校验错误的字段明细。
func FieldsOf(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}
