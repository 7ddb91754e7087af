// Package model defines the typed entities mirrored from the remote
// simulation platform: labs, nodes, interfaces and links.
package model

import "strings"

// LabState is the lifecycle state of a lab.
type LabState string

const (
	LabDefined LabState = "DEFINED"
	LabStarted LabState = "STARTED"
	LabStopped LabState = "STOPPED"
	LabDeleted LabState = "DELETED"

	// LabFailed is a local marker set when the platform reports a failure
	// while converging. The platform itself has no such state.
	LabFailed LabState = "FAILED"

	LabUnknown LabState = "UNKNOWN"
)

// ParseLabState maps a platform state string onto a LabState.
func ParseLabState(s string) LabState {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEFINED_ON_CORE", "DEFINED":
		return LabDefined
	case "STARTED":
		return LabStarted
	case "STOPPED":
		return LabStopped
	case "FAILED", "ERROR":
		return LabFailed
	default:
		return LabUnknown
	}
}

// Lab is a named container for a simulated topology.
type Lab struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	State       LabState `json:"state"`
	NodeCount   int      `json:"node_count"`
	LinkCount   int      `json:"link_count"`
}

// IsRunning reports whether the lab has been started.
func (l Lab) IsRunning() bool {
	return l.State == LabStarted
}
