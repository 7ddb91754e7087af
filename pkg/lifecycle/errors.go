package lifecycle

import (
	"fmt"
)

// Code classifies a lifecycle failure.
type Code string

const (
	CodeTimeout           Code = "TIMEOUT"
	CodeRemoteFailure     Code = "REMOTE_FAILURE"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeCanceled          Code = "CANCELED"
)

// LifecycleError reports a transition that did not reach its target.
// LastObserved is the most recent state seen on the platform, which is also
// what the cache holds after the failure.
type LifecycleError struct {
	Code         Code
	Entity       string
	From         string
	To           string
	LastObserved string
	Detail       string
	Err          error
}

func (e *LifecycleError) Error() string {
	msg := fmt.Sprintf("%s: %s -> %s: %s", e.Entity, e.From, e.To, codeText[e.Code])
	if e.LastObserved != "" && e.Code != CodeInvalidTransition {
		msg += " (last observed " + e.LastObserved + ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *LifecycleError) Unwrap() error {
	return e.Err
}

var codeText = map[Code]string{
	CodeTimeout:           "did not converge before timeout",
	CodeRemoteFailure:     "platform reported failure",
	CodeInvalidTransition: "transition not allowed",
	CodeCanceled:          "canceled while waiting",
}

func labEntity(labID string) string {
	return "lab " + labID
}

func nodeEntity(labID, nodeID string) string {
	return "node " + nodeID + " in lab " + labID
}
