package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/newtron-network/cmlkit/pkg/cache"
	"github.com/newtron-network/cmlkit/pkg/model"
	"github.com/newtron-network/cmlkit/pkg/util"
)

type noArgs struct{}

type labArgs struct {
	LabID string `json:"lab_id" validate:"required" desc:"Lab ID"`
}

type createLabArgs struct {
	Title       string `json:"title" validate:"required" desc:"Lab title"`
	Description string `json:"description" desc:"Free-form description"`
}

type startLabArgs struct {
	LabID string `json:"lab_id" validate:"required" desc:"Lab ID"`
	Wait  bool   `json:"wait" default:"true" desc:"Wait until every node is RUNNING"`
}

type waitArgs struct {
	LabID string `json:"lab_id" validate:"required" desc:"Lab ID"`
	State string `json:"state" default:"RUNNING" validate:"oneof=RUNNING STOPPED DEFINED" desc:"Target node state"`
}

// LabDescription is a full, deterministically ordered view of one lab.
type LabDescription struct {
	Lab        model.Lab         `json:"lab"`
	Nodes      []model.Node      `json:"nodes"`
	Interfaces []model.Interface `json:"interfaces"`
	Links      []model.Link      `json:"links"`
}

func describe(snap cache.Snapshot) LabDescription {
	d := LabDescription{
		Lab:        snap.Lab,
		Nodes:      snap.Nodes,
		Interfaces: snap.Interfaces,
		Links:      snap.Links,
	}
	if d.Nodes == nil {
		d.Nodes = []model.Node{}
	}
	if d.Interfaces == nil {
		d.Interfaces = []model.Interface{}
	}
	if d.Links == nil {
		d.Links = []model.Link{}
	}
	return d
}

func (c *Catalog) registerLabOps() {
	ctrl := c.deps.Controller

	register(c, "list_labs", "List all labs on the platform. Refreshes the local view of every lab.", false,
		func(ctx context.Context, _ noArgs) (any, error) {
			return ctrl.Rehydrate(ctx)
		})

	register(c, "create_lab", "Create a new empty lab.", true,
		func(ctx context.Context, a createLabArgs) (any, error) {
			return ctrl.CreateLab(ctx, a.Title, a.Description)
		})

	register(c, "describe_lab", "Return a lab with all its nodes, interfaces and links.", false,
		func(ctx context.Context, a labArgs) (any, error) {
			snap, err := ctrl.RefreshLab(ctx, a.LabID)
			if err != nil {
				return nil, err
			}
			return describe(snap), nil
		})

	register(c, "get_lab_topology", "Return a human-readable summary of a lab's nodes and links.", false,
		func(ctx context.Context, a labArgs) (any, error) {
			snap, err := ctrl.RefreshLab(ctx, a.LabID)
			if err != nil {
				return nil, err
			}
			return TopologySummary(snap), nil
		})

	register(c, "delete_lab", "Delete a lab. A started lab is stopped first.", true,
		func(ctx context.Context, a labArgs) (any, error) {
			lab, err := ctrl.Lab(ctx, a.LabID)
			if err != nil {
				return nil, err
			}
			if lab.IsRunning() {
				if _, err := ctrl.TransitionLab(ctx, a.LabID, model.LabStopped); err != nil {
					return nil, err
				}
			}
			if err := ctrl.DeleteLab(ctx, a.LabID); err != nil {
				return nil, err
			}
			return map[string]any{"lab_id": a.LabID, "deleted": true}, nil
		})

	register(c, "start_lab", "Start every node of a lab.", true,
		func(ctx context.Context, a startLabArgs) (any, error) {
			lab, err := ctrl.TransitionLab(ctx, a.LabID, model.LabStarted)
			if err != nil {
				return nil, err
			}
			if !a.Wait {
				return lab, nil
			}
			if _, err := ctrl.WaitForNodes(ctx, a.LabID, model.NodeRunning); err != nil {
				return nil, err
			}
			return ctrl.Lab(ctx, a.LabID)
		})

	register(c, "stop_lab", "Stop every node of a lab.", true,
		func(ctx context.Context, a labArgs) (any, error) {
			return ctrl.TransitionLab(ctx, a.LabID, model.LabStopped)
		})

	register(c, "wipe_lab", "Reset a stopped lab so nodes boot from their configuration again.", true,
		func(ctx context.Context, a labArgs) (any, error) {
			return ctrl.TransitionLab(ctx, a.LabID, model.LabDefined)
		})

	register(c, "wait_for_lab_nodes", "Wait until every node of a started lab reaches a state.", false,
		func(ctx context.Context, a waitArgs) (any, error) {
			lab, err := ctrl.Lab(ctx, a.LabID)
			if err != nil {
				return nil, err
			}
			if a.State == string(model.NodeRunning) && lab.State != model.LabStarted {
				return nil, util.NewPreconditionError("wait_for_lab_nodes", "lab "+a.LabID, "lab must be STARTED", "state is "+string(lab.State))
			}
			return ctrl.WaitForNodes(ctx, a.LabID, model.NodeState(a.State))
		})
}

// TopologySummary renders a lab as readable text.
func TopologySummary(snap cache.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Lab Topology: %s\n", snap.Lab.Title)
	fmt.Fprintf(&b, "State: %s\n", snap.Lab.State)
	if snap.Lab.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", snap.Lab.Description)
	}

	labels := make(map[string]string, len(snap.Nodes))
	b.WriteString("\nNodes:\n")
	if len(snap.Nodes) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, n := range snap.Nodes {
		labels[n.ID] = n.Label
		fmt.Fprintf(&b, "- %s (ID: %s)\n", n.Label, n.ID)
		fmt.Fprintf(&b, "  Type: %s\n", n.NodeDefinition)
		fmt.Fprintf(&b, "  State: %s\n", n.State)
	}

	ifLabels := make(map[string]string, len(snap.Interfaces))
	for _, ifc := range snap.Interfaces {
		name := ifc.Label
		if name == "" {
			name = fmt.Sprintf("slot %d", ifc.Slot)
		}
		ifLabels[ifc.ID] = name
	}

	b.WriteString("\nLinks:\n")
	if len(snap.Links) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, l := range snap.Links {
		fmt.Fprintf(&b, "- Link %s: %s (%s) -> %s (%s)\n",
			l.ID, labelOr(labels, l.NodeA), labelOr(ifLabels, l.InterfaceA),
			labelOr(labels, l.NodeB), labelOr(ifLabels, l.InterfaceB))
	}
	return b.String()
}

func labelOr(m map[string]string, id string) string {
	if v, ok := m[id]; ok {
		return v
	}
	return id
}
