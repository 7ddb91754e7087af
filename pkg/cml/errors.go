package cml

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a remote failure.
type Kind string

const (
	KindAuth       Kind = "AUTH"
	KindNotFound   Kind = "NOT_FOUND"
	KindConflict   Kind = "CONFLICT"
	KindValidation Kind = "VALIDATION"
	KindServer     Kind = "SERVER"
	KindNetwork    Kind = "NETWORK"
)

// Retryable reports whether a failure of this kind may succeed when the
// identical request is issued again.
func (k Kind) Retryable() bool {
	return k == KindServer || k == KindNetwork
}

// RemoteError is the normalized form of every failure the platform (or the
// network in between) can produce.
type RemoteError struct {
	Kind    Kind
	Status  int // HTTP status, 0 for network failures
	Method  string
	Path    string
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: ", e.Method, e.Path)
	if e.Status != 0 {
		fmt.Fprintf(&b, "%d ", e.Status)
	}
	b.WriteString(strings.ToLower(string(e.Kind)))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err wraps a RemoteError of kind k.
func IsKind(err error, k Kind) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Kind == k
}

// IsNotFound is shorthand for IsKind(err, KindNotFound).
func IsNotFound(err error) bool {
	return IsKind(err, KindNotFound)
}

// KindForStatus maps an HTTP status code onto a Kind. Only 401 triggers
// re-authentication; 403 is reported as AUTH without a retry.
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status == http.StatusTooManyRequests, status >= 500:
		return KindServer
	default:
		return KindValidation
	}
}

// remoteMessage extracts a human-readable message from an error body. The
// platform uses several shapes depending on which layer rejected the call.
func remoteMessage(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}

	var payload struct {
		Code        json.RawMessage `json:"code"`
		Description string          `json:"description"`
		Detail      json.RawMessage `json:"detail"`
		Message     string          `json:"message"`
		Error       string          `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Description != "":
			return payload.Description
		case payload.Message != "":
			return payload.Message
		case payload.Error != "":
			return payload.Error
		case len(payload.Detail) > 0:
			var s string
			if json.Unmarshal(payload.Detail, &s) == nil {
				return s
			}
			return string(payload.Detail)
		}
	}

	var s string
	if json.Unmarshal(body, &s) == nil && s != "" {
		return s
	}

	const max = 512
	if len(trimmed) > max {
		trimmed = trimmed[:max] + "..."
	}
	return trimmed
}
