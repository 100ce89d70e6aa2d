// Package errors is the error taxonomy shared by the engine and the app
// layer. Only CodeLoad and CodeValidation abort a run; the other codes end up
// as diagnostics in the report.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type ErrorCode string

const (
	CodeInternal   ErrorCode = "INTERNAL_ERROR"
	CodeValidation ErrorCode = "VALIDATION_ERROR"
	CodeLoad       ErrorCode = "LOAD_ERROR"

	CodeNotSupported  ErrorCode = "NOT_SUPPORTED"
	CodeParse         ErrorCode = "PARSE_ERROR"
	CodeRuleExecution ErrorCode = "RULE_EXECUTION_ERROR"
	CodeTimeout       ErrorCode = "TIMEOUT"
)

// Context keys.
const (
	CtxPath     = "path"
	CtxLanguage = "language"
	CtxRule     = "rule"
	CtxField    = "field"
	CtxAnalysis = "analysis"
)

type DomainError struct {
	Code    ErrorCode
	Message string
	Err     error
	Context map[string]any
}

func (e *DomainError) WithContext(key string, value any) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Error renders "[CODE] message: cause (k=v ...)" with context keys sorted.
func (e *DomainError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Context[k])
		}
		b.WriteByte(')')
	}
	return b.String()
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func New(code ErrorCode, msg string) error {
	return &DomainError{Code: code, Message: msg}
}

func Wrap(err error, code ErrorCode, msg string) error {
	return &DomainError{Code: code, Message: msg, Err: err}
}

// AddContext attaches a key/value pair, wrapping foreign errors as internal.
func AddContext(err error, key string, value any) error {
	var de *DomainError
	if errors.As(err, &de) {
		de.WithContext(key, value)
		return de
	}
	return &DomainError{
		Code:    CodeInternal,
		Message: "wrapped error",
		Err:     err,
		Context: map[string]any{key: value},
	}
}

// IsCode reports whether any DomainError in err's chain carries code.
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		var de *DomainError
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// CodeOf returns the outermost domain code, or CodeInternal for foreign errors.
func CodeOf(err error) ErrorCode {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// Reason returns the message of the outermost DomainError, or err.Error()
// for foreign errors.
func Reason(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}
