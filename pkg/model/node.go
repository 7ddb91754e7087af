package model

import "strings"

// NodeState is the lifecycle state of a node.
type NodeState string

const (
	NodeDefined NodeState = "DEFINED"
	NodeBooting NodeState = "BOOTING"
	NodeRunning NodeState = "RUNNING"
	NodeStopped NodeState = "STOPPED"

	// NodeFailed is a local marker for a node whose boot the platform
	// reported as failed.
	NodeFailed NodeState = "FAILED"

	NodeUnknown NodeState = "UNKNOWN"
)

// ParseNodeState maps a platform node state onto a NodeState. The platform
// reports STARTED for a node whose VM is up but still booting and BOOTED
// once the node has converged.
func ParseNodeState(s string) NodeState {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEFINED_ON_CORE", "DEFINED":
		return NodeDefined
	case "QUEUED", "STARTED", "BOOTING":
		return NodeBooting
	case "BOOTED", "RUNNING":
		return NodeRunning
	case "STOPPED":
		return NodeStopped
	case "FAILED", "ERROR":
		return NodeFailed
	default:
		return NodeUnknown
	}
}

// Node is a simulated device inside a lab.
type Node struct {
	ID             string    `json:"id"`
	LabID          string    `json:"lab_id"`
	Label          string    `json:"label"`
	NodeDefinition string    `json:"node_definition"`
	State          NodeState `json:"state"`
	X              int       `json:"x"`
	Y              int       `json:"y"`
	InterfaceIDs   []string  `json:"interfaces,omitempty"`
}

// IsActive reports whether the node is booting or running.
func (n Node) IsActive() bool {
	return n.State == NodeBooting || n.State == NodeRunning
}

// NodeSpec is the input for creating a node.
type NodeSpec struct {
	Label              string            `json:"label"`
	NodeDefinition     string            `json:"node_definition"`
	X                  int               `json:"x"`
	Y                  int               `json:"y"`
	RAM                int               `json:"ram,omitempty"`
	CPULimit           int               `json:"cpu_limit,omitempty"`
	Parameters         map[string]string `json:"parameters,omitempty"`
	PopulateInterfaces bool              `json:"-"`
}

// NodeDefinition is an entry of the platform's device-type catalog.
type NodeDefinition struct {
	ID          string `json:"id"`
	Label       string `json:"label,omitempty"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type,omitempty"`
	Interfaces  int    `json:"interfaces,omitempty"`
}
