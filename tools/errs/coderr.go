package errs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Well-known codes. Validation failures are raised synchronously to the
// caller and never mutate state; registry lookups on unknown ids are not
// errors at all and return empty results instead.
const (
	CodeInvalidArgument = 1001
	CodeUnauthorized    = 1002
	CodeNotFound        = 1003
	CodeInternal        = 1500
)

var (
	ErrInvalidArgument = NewCodeError(CodeInvalidArgument, "invalid argument")
	ErrUnauthorized    = NewCodeError(CodeUnauthorized, "unauthorized")
	ErrNotFound        = NewCodeError(CodeNotFound, "not found")
	ErrInternal        = NewCodeError(CodeInternal, "internal error")
)

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{
		Code: code,
		Msg:  msg,
	}
}

type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

// WithDetail returns a copy carrying extra detail; the original sentinel
// stays untouched so errors.Is keeps matching by code.
func (e *CodeError) WithDetail(detail string) *CodeError {
	var d string
	if e.Detail == "" {
		d = detail
	} else {
		d = e.Detail + ", " + detail
	}
	return &CodeError{
		Code:   e.Code,
		Msg:    e.Msg,
		Detail: d,
	}
}

func (e *CodeError) WrapMsg(msg string, kv ...any) error {
	if msg == "" && len(kv) == 0 {
		return e
	}
	return e.WithDetail(toString(msg, kv))
}

func (e *CodeError) Is(err error) bool {
	var codeErr *CodeError
	if !errors.As(err, &codeErr) {
		return false
	}
	return e.Code == codeErr.Code
}

func (e *CodeError) Error() string {
	v := make([]string, 0, 3)
	v = append(v, strconv.Itoa(e.Code), e.Msg)

	if e.Detail != "" {
		v = append(v, e.Detail)
	}

	return strings.Join(v, " ")
}

func toString(msg string, kv []any) string {
	var sb strings.Builder
	sb.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(fmt.Sprint(kv[i]))
		sb.WriteString("=")
		if i+1 < len(kv) {
			sb.WriteString(fmt.Sprint(kv[i+1]))
		}
	}
	return sb.String()
}
