package labgen

import (
	"context"
	"fmt"

	"github.com/newtron-network/cmlkit/pkg/model"
	"github.com/newtron-network/cmlkit/pkg/util"
)

// Target is the set of mutations a plan needs. The lifecycle controller
// implements it.
type Target interface {
	CreateNode(ctx context.Context, labID string, spec model.NodeSpec) (model.Node, error)
	EnsureInterfaces(ctx context.Context, labID, nodeID string, count int) ([]model.Interface, error)
	CreateLink(ctx context.Context, labID, a, b string) (model.Link, error)
	PushConfig(ctx context.Context, labID, nodeID, config string) (bool, error)
}

// StepResult records a completed step and the platform id it produced, if
// any.
type StepResult struct {
	Index int      `json:"index"`
	Kind  StepKind `json:"kind"`
	Ref   string   `json:"ref"`
	ID    string   `json:"id,omitempty"`
}

// Result is the outcome of a fully executed plan.
type Result struct {
	LabID     string            `json:"lab_id"`
	Nodes     map[string]string `json:"nodes"`
	Links     []string          `json:"links"`
	Completed []StepResult      `json:"completed"`
}

// Undo is an operation that reverses a completed step. Operation names
// match the catalog operations so a caller can issue them directly.
type Undo struct {
	Operation string            `json:"operation"`
	Args      map[string]string `json:"args"`
}

// PartialExecutionError is returned when a plan stops part way. Completed
// steps are left in place; Rollback lists how to remove them, newest first.
type PartialExecutionError struct {
	LabID     string
	Completed []StepResult
	Failed    Step
	Cause     error
	Rollback  []Undo
}

func (e *PartialExecutionError) Error() string {
	return fmt.Sprintf("plan stopped at step %d (%s %s) after %d completed steps: %v",
		e.Failed.Index, e.Failed.Kind, e.Failed.Ref(), len(e.Completed), e.Cause)
}

func (e *PartialExecutionError) Unwrap() error {
	return e.Cause
}

type execution struct {
	target Target
	labID  string
	res    *Result
	slots  map[string]map[int]string // label -> slot -> interface id
}

// Execute runs plan steps in order against labID. It stops at the first
// failure and returns a *PartialExecutionError; nothing is rolled back.
func Execute(ctx context.Context, target Target, labID string, plan *Plan) (*Result, error) {
	x := &execution{
		target: target,
		labID:  labID,
		res:    &Result{LabID: labID, Nodes: make(map[string]string)},
		slots:  make(map[string]map[int]string),
	}
	log := util.WithLab(labID).WithField("template", plan.Template)
	log.Infof("Executing plan: %d steps", len(plan.Steps))

	for _, step := range plan.Steps {
		err := ctx.Err()
		var id string
		if err == nil {
			id, err = x.run(ctx, step)
		}
		if err != nil {
			log.Warnf("Plan stopped at step %d (%s %s): %v", step.Index, step.Kind, step.Ref(), err)
			return nil, x.partial(step, err)
		}
		x.res.Completed = append(x.res.Completed, StepResult{Index: step.Index, Kind: step.Kind, Ref: step.Ref(), ID: id})
	}
	log.Infof("Plan complete: %d nodes, %d links", len(x.res.Nodes), len(x.res.Links))
	return x.res, nil
}

func (x *execution) run(ctx context.Context, step Step) (string, error) {
	switch step.Kind {
	case StepCreateNode:
		n, err := x.target.CreateNode(ctx, x.labID, model.NodeSpec{
			Label:          step.Node,
			NodeDefinition: step.NodeDefinition,
			X:              step.X,
			Y:              step.Y,
		})
		if err != nil {
			return "", err
		}
		x.res.Nodes[step.Node] = n.ID
		return n.ID, nil

	case StepCreateInterfaces:
		nodeID, err := x.node(step.Node)
		if err != nil {
			return "", err
		}
		ifaces, err := x.target.EnsureInterfaces(ctx, x.labID, nodeID, step.Interfaces)
		if err != nil {
			return "", err
		}
		slots := make(map[int]string, len(ifaces))
		for _, ifc := range ifaces {
			if ifc.IsPhysical() {
				slots[ifc.Slot] = ifc.ID
			}
		}
		x.slots[step.Node] = slots
		return "", nil

	case StepCreateLink:
		a, err := x.iface(step.A)
		if err != nil {
			return "", err
		}
		z, err := x.iface(step.Z)
		if err != nil {
			return "", err
		}
		l, err := x.target.CreateLink(ctx, x.labID, a, z)
		if err != nil {
			return "", err
		}
		x.res.Links = append(x.res.Links, l.ID)
		return l.ID, nil

	case StepPushConfig:
		nodeID, err := x.node(step.Node)
		if err != nil {
			return "", err
		}
		_, err = x.target.PushConfig(ctx, x.labID, nodeID, step.Config)
		return "", err
	}
	return "", fmt.Errorf("unknown step kind %q", step.Kind)
}

func (x *execution) node(label string) (string, error) {
	id, ok := x.res.Nodes[label]
	if !ok {
		return "", util.NewDependencyError("plan step", "node", label)
	}
	return id, nil
}

func (x *execution) iface(ref string) (string, error) {
	label, slot, err := parseEndpoint(ref)
	if err != nil {
		return "", err
	}
	id, ok := x.slots[label][slot]
	if !ok {
		return "", util.NewDependencyError("link "+ref, "interface", ref)
	}
	return id, nil
}

func (x *execution) partial(failed Step, cause error) *PartialExecutionError {
	var undo []Undo
	for i := len(x.res.Completed) - 1; i >= 0; i-- {
		c := x.res.Completed[i]
		switch c.Kind {
		case StepCreateLink:
			undo = append(undo, Undo{Operation: "delete_link", Args: map[string]string{"lab_id": x.labID, "link_id": c.ID}})
		case StepCreateNode:
			undo = append(undo, Undo{Operation: "delete_node", Args: map[string]string{"lab_id": x.labID, "node_id": c.ID}})
		}
	}
	return &PartialExecutionError{
		LabID:     x.labID,
		Completed: x.res.Completed,
		Failed:    failed,
		Cause:     cause,
		Rollback:  undo,
	}
}

// Summary is a one-line description of the plan, e.g.
// "point-to-point: 2 nodes, 1 links, 0 configs".
func (p *Plan) Summary() string {
	return fmt.Sprintf("%s: %d nodes, %d links, %d configs",
		p.Template, p.Count(StepCreateNode), p.Count(StepCreateLink), p.Count(StepPushConfig))
}
