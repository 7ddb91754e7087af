package lifecycle

import (
	"context"

	"github.com/newtron-network/cmlkit/pkg/cache"
	"github.com/newtron-network/cmlkit/pkg/cml"
	"github.com/newtron-network/cmlkit/pkg/model"
	"github.com/newtron-network/cmlkit/pkg/util"
)

// requireNotStarted rejects topology changes to a running lab.
func (c *Controller) requireNotStarted(ctx context.Context, op, labID string) error {
	lab, err := c.Lab(ctx, labID)
	if err != nil {
		return err
	}
	if lab.State == model.LabStarted {
		return util.NewPreconditionError(op, labEntity(labID), "lab must not be started", "stop the lab first")
	}
	return nil
}

// CreateInterface adds interfaces to a node. A nil slot appends the next
// free slot; otherwise every missing slot up to and including slot is
// created. Interfaces cannot be added while the lab is started.
func (c *Controller) CreateInterface(ctx context.Context, labID, nodeID string, slot *int) ([]model.Interface, error) {
	if err := c.requireNotStarted(ctx, "add interface", labID); err != nil {
		return nil, err
	}
	if _, err := c.Node(ctx, labID, nodeID); err != nil {
		return nil, err
	}

	created, err := c.remote.CreateInterface(ctx, labID, nodeID, slot)
	if err != nil {
		return nil, err
	}
	for _, ifc := range created {
		c.cache.UpsertInterface(ifc)
	}
	c.appendNodeInterfaces(labID, nodeID, created)
	return created, nil
}

func (c *Controller) appendNodeInterfaces(labID, nodeID string, ifs []model.Interface) {
	for {
		node, v, ok := c.cache.Node(labID, nodeID)
		if !ok {
			return
		}
		seen := make(map[string]bool, len(node.InterfaceIDs))
		for _, id := range node.InterfaceIDs {
			seen[id] = true
		}
		ids := append([]string(nil), node.InterfaceIDs...)
		for _, ifc := range ifs {
			if !seen[ifc.ID] {
				ids = append(ids, ifc.ID)
			}
		}
		node.InterfaceIDs = ids
		if _, swapped := c.cache.CompareAndSwapNode(node, v); swapped {
			return
		}
	}
}

// NodeInterfaces re-reads the interfaces of a node and caches them.
func (c *Controller) NodeInterfaces(ctx context.Context, labID, nodeID string) ([]model.Interface, error) {
	if c.cache.IsDeleted(labID) {
		return nil, errLabDeleted(labID)
	}
	ifs, err := c.remote.ListNodeInterfaces(ctx, labID, nodeID)
	if err != nil {
		return nil, err
	}
	for _, ifc := range ifs {
		c.cache.UpsertInterface(ifc)
	}
	return c.cache.NodeInterfaces(labID, nodeID), nil
}

// EnsureInterfaces makes sure the node has at least count interfaces and
// returns all of them in slot order.
func (c *Controller) EnsureInterfaces(ctx context.Context, labID, nodeID string, count int) ([]model.Interface, error) {
	ifs, err := c.NodeInterfaces(ctx, labID, nodeID)
	if err != nil {
		return nil, err
	}
	if len(ifs) >= count {
		return ifs, nil
	}
	slot := count - 1
	if _, err := c.CreateInterface(ctx, labID, nodeID, &slot); err != nil {
		return nil, err
	}
	return c.NodeInterfaces(ctx, labID, nodeID)
}

// FreeInterface returns the lowest-slot physical interface of the node that
// is not an endpoint of any link.
func (c *Controller) FreeInterface(ctx context.Context, labID, nodeID string) (model.Interface, error) {
	ifs, err := c.NodeInterfaces(ctx, labID, nodeID)
	if err != nil {
		return model.Interface{}, err
	}
	for _, ifc := range ifs {
		if ifc.IsPhysical() && !ifc.IsConnected() {
			return ifc, nil
		}
	}
	return model.Interface{}, util.NewInUseError("every physical interface of node "+nodeID, "existing links")
}

// CreateLink connects two interfaces. Both endpoints are claimed in the
// cache before the remote create so that racing creations on the same
// interface cannot both succeed; the loser gets an in-use error without
// contacting the platform.
func (c *Controller) CreateLink(ctx context.Context, labID, interfaceA, interfaceB string) (model.Link, error) {
	if interfaceA == interfaceB {
		return model.Link{}, util.NewValidationError("a link needs two distinct interfaces")
	}

	var ends [2]model.Interface
	for i, id := range []string{interfaceA, interfaceB} {
		ifc, err := c.Interface(ctx, labID, id)
		if err != nil {
			if cml.IsNotFound(err) {
				return model.Link{}, util.NewDependencyError("link", "interface", id)
			}
			return model.Link{}, err
		}
		ends[i] = ifc
	}

	claim, err := c.cache.ClaimInterfaces(labID, interfaceA, interfaceB)
	if err != nil {
		return model.Link{}, err
	}

	link, err := c.remote.CreateLink(ctx, labID, interfaceA, interfaceB)
	if err != nil {
		c.cache.ReleaseClaim(claim)
		if cml.IsKind(err, cml.KindConflict) {
			// our view was stale; learn the truth for next time
			for _, id := range []string{interfaceA, interfaceB} {
				if fresh, ferr := c.remote.GetInterface(ctx, labID, id); ferr == nil {
					c.cache.UpsertInterface(fresh)
				}
			}
		}
		return model.Link{}, err
	}
	if link.NodeA == "" {
		link.NodeA, link.NodeB = ends[0].NodeID, ends[1].NodeID
	}
	c.cache.CommitLink(claim, link)
	util.WithLab(labID).Infof("created link %s (%s <-> %s)", link.ID, interfaceA, interfaceB)
	return link, nil
}

// DeleteLink removes a link and frees both endpoints.
func (c *Controller) DeleteLink(ctx context.Context, labID, linkID string) error {
	if c.cache.IsDeleted(labID) {
		return errLabDeleted(labID)
	}
	err := c.remote.DeleteLink(ctx, labID, linkID)
	if err != nil && !cml.IsNotFound(err) {
		return err
	}
	c.cache.Invalidate(cache.KindLink, labID, linkID)
	return err
}

// Links re-reads the links of a lab and caches them.
func (c *Controller) Links(ctx context.Context, labID string) ([]model.Link, error) {
	if c.cache.IsDeleted(labID) {
		return nil, errLabDeleted(labID)
	}
	links, err := c.remote.ListLinks(ctx, labID)
	if err != nil {
		return nil, err
	}
	for _, l := range links {
		c.cache.UpsertLink(l)
	}
	return links, nil
}
