package catalog

import (
	"context"
	"errors"

	"github.com/newtron-network/cmlkit/pkg/lifecycle"
	"github.com/newtron-network/cmlkit/pkg/model"
	"github.com/newtron-network/cmlkit/pkg/util"
)

type listInterfacesArgs struct {
	LabID        string `json:"lab_id" validate:"required" desc:"Lab ID"`
	NodeID       string `json:"node_id" validate:"required" desc:"Node ID"`
	PhysicalOnly bool   `json:"physical_only" desc:"Omit loopback and management interfaces"`
}

type addInterfaceArgs struct {
	LabID  string `json:"lab_id" validate:"required" desc:"Lab ID"`
	NodeID string `json:"node_id" validate:"required" desc:"Node ID"`
	Slot   *int   `json:"slot" validate:"omitempty,gte=0" desc:"Slot to create; every missing lower slot is created too. Omit to append"`
}

type addLinkArgs struct {
	LabID      string `json:"lab_id" validate:"required" desc:"Lab ID"`
	InterfaceA string `json:"interface_a" validate:"required" desc:"First interface ID"`
	InterfaceB string `json:"interface_b" validate:"required" desc:"Second interface ID"`
}

type linkNodesArgs struct {
	LabID string `json:"lab_id" validate:"required" desc:"Lab ID"`
	NodeA string `json:"node_a" validate:"required" desc:"First node ID"`
	NodeB string `json:"node_b" validate:"required" desc:"Second node ID"`
}

type linkArgs struct {
	LabID  string `json:"lab_id" validate:"required" desc:"Lab ID"`
	LinkID string `json:"link_id" validate:"required" desc:"Link ID"`
}

func (c *Catalog) registerLinkOps() {
	ctrl := c.deps.Controller

	register(c, "list_interfaces", "List a node's interfaces with their link state.", false,
		func(ctx context.Context, a listInterfacesArgs) (any, error) {
			ifs, err := ctrl.NodeInterfaces(ctx, a.LabID, a.NodeID)
			if err != nil {
				return nil, err
			}
			out := make([]model.Interface, 0, len(ifs))
			for _, ifc := range ifs {
				if a.PhysicalOnly && !ifc.IsPhysical() {
					continue
				}
				out = append(out, ifc)
			}
			return out, nil
		})

	register(c, "add_interface", "Add interfaces to a node. The lab must not be started.", true,
		func(ctx context.Context, a addInterfaceArgs) (any, error) {
			return ctrl.CreateInterface(ctx, a.LabID, a.NodeID, a.Slot)
		})

	register(c, "add_link", "Connect two interfaces.", true,
		func(ctx context.Context, a addLinkArgs) (any, error) {
			return ctrl.CreateLink(ctx, a.LabID, a.InterfaceA, a.InterfaceB)
		})

	register(c, "link_nodes", "Connect two nodes using the first free physical interface of each.", true,
		func(ctx context.Context, a linkNodesArgs) (any, error) {
			if a.NodeA == a.NodeB {
				return nil, util.NewValidationError("node_a and node_b must differ")
			}
			ifA, err := freeInterface(ctx, ctrl, a.LabID, a.NodeA)
			if err != nil {
				return nil, err
			}
			ifB, err := freeInterface(ctx, ctrl, a.LabID, a.NodeB)
			if err != nil {
				return nil, err
			}
			return ctrl.CreateLink(ctx, a.LabID, ifA.ID, ifB.ID)
		})

	register(c, "list_links", "List the links of a lab.", false,
		func(ctx context.Context, a labArgs) (any, error) {
			links, err := ctrl.Links(ctx, a.LabID)
			if links == nil && err == nil {
				links = []model.Link{}
			}
			return links, err
		})

	register(c, "delete_link", "Remove a link and free both interfaces.", true,
		func(ctx context.Context, a linkArgs) (any, error) {
			if err := ctrl.DeleteLink(ctx, a.LabID, a.LinkID); err != nil {
				return nil, err
			}
			return map[string]any{"lab_id": a.LabID, "link_id": a.LinkID, "deleted": true}, nil
		})
}

// freeInterface returns the node's first unconnected physical interface,
// adding one when every existing interface is taken and the lab is not
// started.
func freeInterface(ctx context.Context, ctrl *lifecycle.Controller, labID, nodeID string) (model.Interface, error) {
	ifc, err := ctrl.FreeInterface(ctx, labID, nodeID)
	if !errors.Is(err, util.ErrInUse) {
		return ifc, err
	}
	created, cerr := ctrl.CreateInterface(ctx, labID, nodeID, nil)
	if cerr != nil {
		if errors.Is(cerr, util.ErrPreconditionFailed) {
			return model.Interface{}, err
		}
		return model.Interface{}, cerr
	}
	for _, ifc := range created {
		if ifc.IsPhysical() && !ifc.IsConnected() {
			return ifc, nil
		}
	}
	return model.Interface{}, err
}
