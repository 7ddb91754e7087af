package catalog

import (
	"context"
	"strconv"

	"github.com/newtron-network/cmlkit/pkg/model"
)

// Device types used by the router and switch presets.
const (
	routerDefinition = "iosv"
	switchDefinition = "iosvl2"
)

type nodeArgs struct {
	LabID  string `json:"lab_id" validate:"required" desc:"Lab ID"`
	NodeID string `json:"node_id" validate:"required" desc:"Node ID"`
}

type addNodeArgs struct {
	LabID          string            `json:"lab_id" validate:"required" desc:"Lab ID"`
	Label          string            `json:"label" validate:"required" desc:"Node label, unique within the lab"`
	NodeDefinition string            `json:"node_definition" validate:"required" desc:"Device type, see list_node_definitions"`
	X              int               `json:"x" desc:"Canvas X coordinate"`
	Y              int               `json:"y" desc:"Canvas Y coordinate"`
	RAM            int               `json:"ram" validate:"gte=0" desc:"Memory in MB, 0 for the device default"`
	Parameters     map[string]string `json:"parameters" desc:"Device-specific node parameters"`
	Populate       bool              `json:"populate_interfaces" default:"true" desc:"Create the device's default interfaces"`
}

type routerArgs struct {
	LabID string `json:"lab_id" validate:"required" desc:"Lab ID"`
	Label string `json:"label" validate:"required" desc:"Router label"`
	X     int    `json:"x" desc:"Canvas X coordinate"`
	Y     int    `json:"y" desc:"Canvas Y coordinate"`
}

type switchArgs struct {
	LabID      string `json:"lab_id" validate:"required" desc:"Lab ID"`
	Label      string `json:"label" validate:"required" desc:"Switch label"`
	X          int    `json:"x" desc:"Canvas X coordinate"`
	Y          int    `json:"y" desc:"Canvas Y coordinate"`
	Interfaces int    `json:"num_interfaces" default:"8" validate:"min=1,max=64" desc:"Number of switch ports"`
}

type pushConfigArgs struct {
	LabID  string `json:"lab_id" validate:"required" desc:"Lab ID"`
	NodeID string `json:"node_id" validate:"required" desc:"Node ID"`
	Config string `json:"config" validate:"required" desc:"Full device configuration"`
}

func (c *Catalog) registerNodeOps() {
	ctrl := c.deps.Controller

	register(c, "list_node_definitions", "List the device types the platform can simulate.", false,
		func(ctx context.Context, _ noArgs) (any, error) {
			return ctrl.NodeDefinitions(ctx)
		})

	register(c, "list_nodes", "List the nodes of a lab.", false,
		func(ctx context.Context, a labArgs) (any, error) {
			nodes, err := ctrl.Nodes(ctx, a.LabID)
			if nodes == nil && err == nil {
				nodes = []model.Node{}
			}
			return nodes, err
		})

	register(c, "add_node", "Add a node of any device type to a lab.", true,
		func(ctx context.Context, a addNodeArgs) (any, error) {
			return ctrl.CreateNode(ctx, a.LabID, model.NodeSpec{
				Label:              a.Label,
				NodeDefinition:     a.NodeDefinition,
				X:                  a.X,
				Y:                  a.Y,
				RAM:                a.RAM,
				Parameters:         a.Parameters,
				PopulateInterfaces: a.Populate,
			})
		})

	register(c, "create_router", "Add an IOSv router with its default interfaces.", true,
		func(ctx context.Context, a routerArgs) (any, error) {
			return ctrl.CreateNode(ctx, a.LabID, model.NodeSpec{
				Label:              a.Label,
				NodeDefinition:     routerDefinition,
				X:                  a.X,
				Y:                  a.Y,
				PopulateInterfaces: true,
			})
		})

	register(c, "create_switch", "Add an IOSvL2 switch with the given number of ports.", true,
		func(ctx context.Context, a switchArgs) (any, error) {
			return ctrl.CreateNode(ctx, a.LabID, model.NodeSpec{
				Label:              a.Label,
				NodeDefinition:     switchDefinition,
				X:                  a.X,
				Y:                  a.Y,
				Parameters:         map[string]string{"slot1": strconv.Itoa(a.Interfaces)},
				PopulateInterfaces: true,
			})
		})

	register(c, "delete_node", "Delete a node that is not running, with its interfaces and links.", true,
		func(ctx context.Context, a nodeArgs) (any, error) {
			if err := ctrl.DeleteNode(ctx, a.LabID, a.NodeID); err != nil {
				return nil, err
			}
			return map[string]any{"lab_id": a.LabID, "node_id": a.NodeID, "deleted": true}, nil
		})

	register(c, "start_node", "Start one node and wait until it is RUNNING.", true,
		func(ctx context.Context, a nodeArgs) (any, error) {
			return ctrl.TransitionNode(ctx, a.LabID, a.NodeID, model.NodeRunning)
		})

	register(c, "stop_node", "Stop one node and wait until it is STOPPED.", true,
		func(ctx context.Context, a nodeArgs) (any, error) {
			return ctrl.TransitionNode(ctx, a.LabID, a.NodeID, model.NodeStopped)
		})

	register(c, "push_config", "Set a node's startup configuration. Identical configuration is not rewritten.", true,
		func(ctx context.Context, a pushConfigArgs) (any, error) {
			changed, err := ctrl.PushConfig(ctx, a.LabID, a.NodeID, a.Config)
			if err != nil {
				return nil, err
			}
			return map[string]any{"node_id": a.NodeID, "changed": changed}, nil
		})

	register(c, "get_config", "Return a node's startup configuration.", false,
		func(ctx context.Context, a nodeArgs) (any, error) {
			cfg, err := ctrl.NodeConfig(ctx, a.LabID, a.NodeID)
			if err != nil {
				return nil, err
			}
			return map[string]any{"node_id": a.NodeID, "config": cfg}, nil
		})
}
