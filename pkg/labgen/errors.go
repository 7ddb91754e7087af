package labgen

import (
	"fmt"
	"strings"
)

// ErrorCode classifies a TemplateError.
type ErrorCode string

const (
	CodeMissingParam    ErrorCode = "MISSING_PARAM"
	CodeTypeMismatch    ErrorCode = "TYPE_MISMATCH"
	CodeUnknownTemplate ErrorCode = "UNKNOWN_TEMPLATE"
	CodeUnknownParam    ErrorCode = "UNKNOWN_PARAM"
	CodeInvalidTemplate ErrorCode = "INVALID_TEMPLATE"
)

// TemplateError reports a template that cannot be expanded with the given
// parameters. Nothing has been sent to the platform when it is returned.
type TemplateError struct {
	Code     ErrorCode
	Template string
	Param    string
	Message  string
}

func (e *TemplateError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "template %s", e.Template)
	if e.Param != "" {
		fmt.Fprintf(&b, ", parameter %s", e.Param)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

func templateErr(code ErrorCode, tmpl, param, format string, args ...any) *TemplateError {
	return &TemplateError{Code: code, Template: tmpl, Param: param, Message: fmt.Sprintf(format, args...)}
}
