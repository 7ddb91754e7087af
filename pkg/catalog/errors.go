package catalog

import (
	"context"
	"errors"

	"github.com/newtron-network/cmlkit/pkg/cml"
	"github.com/newtron-network/cmlkit/pkg/configlet"
	"github.com/newtron-network/cmlkit/pkg/labgen"
	"github.com/newtron-network/cmlkit/pkg/lifecycle"
	"github.com/newtron-network/cmlkit/pkg/util"
)

// Error codes reported to agents. They are stable across releases.
const (
	CodeInvalidArgument   = "INVALID_ARGUMENT"
	CodeUnknownOperation  = "UNKNOWN_OPERATION"
	CodeNotFound          = "NOT_FOUND"
	CodeConflict          = "CONFLICT"
	CodeAuthFailed        = "AUTH_FAILED"
	CodeRemoteValidation  = "REMOTE_VALIDATION"
	CodeRemoteServer      = "REMOTE_SERVER"
	CodeNetwork           = "NETWORK"
	CodeTimeout           = "TIMEOUT"
	CodeInvalidState      = "INVALID_STATE"
	CodeCanceled          = "CANCELED"
	CodePartialExecution  = "PARTIAL_EXECUTION"
	CodeUnavailable       = "UNAVAILABLE"
	CodeInternal          = "INTERNAL"
	CodeRemoteFailure     = string(lifecycle.CodeRemoteFailure)
	CodeInvalidTransition = string(lifecycle.CodeInvalidTransition)
)

var remoteCodes = map[cml.Kind]string{
	cml.KindAuth:       CodeAuthFailed,
	cml.KindNotFound:   CodeNotFound,
	cml.KindConflict:   CodeConflict,
	cml.KindValidation: CodeRemoteValidation,
	cml.KindServer:     CodeRemoteServer,
	cml.KindNetwork:    CodeNetwork,
}

var (
	// errUnavailable marks an operation whose backing service is not configured.
	errUnavailable = errors.New("not configured")
	errConsole     = errors.New("console")
)

// ErrorBody is the error half of a Result.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Detail  map[string]any `json:"detail,omitempty"`
}

// toErrorBody maps an error onto its stable code. Order matters: partial
// executions and lifecycle errors wrap the remote error that caused them.
func toErrorBody(err error) *ErrorBody {
	var (
		partial *labgen.PartialExecutionError
		tmplErr *labgen.TemplateError
		lcErr   *lifecycle.LifecycleError
		valErr  *util.ValidationError
		preErr  *util.PreconditionError
		inUse   *util.InUseError
		depErr  *util.DependencyError
		missing *configlet.MissingVariablesError
		remote  *cml.RemoteError
	)

	switch {
	case errors.As(err, &partial):
		detail := map[string]any{
			"lab_id":    partial.LabID,
			"completed": partial.Completed,
			"failed":    partial.Failed,
			"rollback":  partial.Rollback,
		}
		if partial.Cause != nil {
			detail["cause"] = toErrorBody(partial.Cause)
		}
		return &ErrorBody{Code: CodePartialExecution, Message: err.Error(), Detail: detail}

	case errors.As(err, &tmplErr):
		return &ErrorBody{Code: string(tmplErr.Code), Message: tmplErr.Error(), Detail: omitEmpty(map[string]any{
			"template":  tmplErr.Template,
			"parameter": tmplErr.Param,
		})}

	case errors.As(err, &lcErr):
		return &ErrorBody{Code: string(lcErr.Code), Message: lcErr.Error(), Detail: omitEmpty(map[string]any{
			"entity":        lcErr.Entity,
			"from":          lcErr.From,
			"to":            lcErr.To,
			"last_observed": lcErr.LastObserved,
		})}

	case errors.As(err, &valErr):
		return &ErrorBody{Code: CodeInvalidArgument, Message: valErr.Error(), Detail: map[string]any{"errors": valErr.Errors}}

	case errors.As(err, &missing):
		return &ErrorBody{Code: CodeInvalidArgument, Message: missing.Error(), Detail: map[string]any{"missing": missing.Missing}}

	case errors.As(err, &preErr):
		return &ErrorBody{Code: CodeInvalidState, Message: preErr.Error()}

	case errors.As(err, &inUse):
		return &ErrorBody{Code: CodeConflict, Message: inUse.Error()}

	case errors.As(err, &depErr):
		return &ErrorBody{Code: CodeNotFound, Message: depErr.Error()}

	case errors.Is(err, context.Canceled):
		return &ErrorBody{Code: CodeCanceled, Message: "operation canceled"}

	case errors.As(err, &remote):
		return &ErrorBody{Code: remoteCodes[remote.Kind], Message: remote.Error(), Detail: omitEmpty(map[string]any{
			"status": remote.Status,
			"method": remote.Method,
			"path":   remote.Path,
		})}

	case errors.Is(err, context.DeadlineExceeded):
		return &ErrorBody{Code: CodeTimeout, Message: "operation timed out"}

	case errors.Is(err, util.ErrNotFound):
		return &ErrorBody{Code: CodeNotFound, Message: err.Error()}

	case errors.Is(err, util.ErrInvalidConfig), errors.Is(err, util.ErrValidationFailed):
		return &ErrorBody{Code: CodeInvalidArgument, Message: err.Error()}

	case errors.Is(err, errConsole):
		return &ErrorBody{Code: CodeNetwork, Message: err.Error()}

	case errors.Is(err, errUnavailable):
		return &ErrorBody{Code: CodeUnavailable, Message: err.Error()}

	default:
		return &ErrorBody{Code: CodeInternal, Message: err.Error()}
	}
}

func omitEmpty(m map[string]any) map[string]any {
	for k, v := range m {
		switch v := v.(type) {
		case string:
			if v == "" {
				delete(m, k)
			}
		case int:
			if v == 0 {
				delete(m, k)
			}
		}
	}
	if len(m) == 0 {
		return nil
	}
	return m
}
