package labgen

import (
	"fmt"
	"strconv"
	"strings"
)

// StepKind is the operation a plan step performs.
type StepKind string

const (
	StepCreateNode       StepKind = "create_node"
	StepCreateInterfaces StepKind = "create_interfaces"
	StepCreateLink       StepKind = "create_link"
	StepPushConfig       StepKind = "push_config"
)

// Step is one operation of a Plan. Nodes are referred to by label and
// interfaces by "label:slot" because neither has a platform id yet.
type Step struct {
	Index          int      `json:"index"`
	Kind           StepKind `json:"kind"`
	Node           string   `json:"node,omitempty"`
	NodeDefinition string   `json:"node_definition,omitempty"`
	X              int      `json:"x,omitempty"`
	Y              int      `json:"y,omitempty"`
	Interfaces     int      `json:"interfaces,omitempty"`
	A              string   `json:"a,omitempty"`
	Z              string   `json:"z,omitempty"`
	Config         string   `json:"config,omitempty"`
}

// Ref returns a short human-readable reference to the step's target.
func (s Step) Ref() string {
	if s.Kind == StepCreateLink {
		return s.A + "-" + s.Z
	}
	return s.Node
}

// Plan is the fully resolved, ordered list of operations for one template
// expansion. All node steps come first, then interfaces, links and configs.
type Plan struct {
	Template   string         `json:"template"`
	Parameters map[string]any `json:"parameters"`
	Steps      []Step         `json:"steps"`
}

// Count returns the number of steps of the given kind.
func (p *Plan) Count(kind StepKind) int {
	n := 0
	for _, s := range p.Steps {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

// Nodes returns the labels of all nodes the plan creates, in order.
func (p *Plan) Nodes() []string {
	var out []string
	for _, s := range p.Steps {
		if s.Kind == StepCreateNode {
			out = append(out, s.Node)
		}
	}
	return out
}

func endpoint(label string, slot int) string {
	return label + ":" + strconv.Itoa(slot)
}

func parseEndpoint(ref string) (string, int, error) {
	i := strings.LastIndex(ref, ":")
	if i <= 0 {
		return "", 0, fmt.Errorf("bad endpoint %q", ref)
	}
	slot, err := strconv.Atoi(ref[i+1:])
	if err != nil {
		return "", 0, fmt.Errorf("bad endpoint %q: %w", ref, err)
	}
	return ref[:i], slot, nil
}
