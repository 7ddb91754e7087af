package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/newtron-network/cmlkit/pkg/cache"
	"github.com/newtron-network/cmlkit/pkg/cml"
	"github.com/newtron-network/cmlkit/pkg/model"
	"github.com/newtron-network/cmlkit/pkg/util"
)

// CreateNode adds a node to a lab. With spec.PopulateInterfaces the
// platform's default interfaces are read back into the cache as well.
func (c *Controller) CreateNode(ctx context.Context, labID string, spec model.NodeSpec) (model.Node, error) {
	if _, err := c.Lab(ctx, labID); err != nil {
		return model.Node{}, err
	}

	node, err := c.remote.CreateNode(ctx, labID, spec)
	if err != nil {
		return model.Node{}, err
	}
	if spec.PopulateInterfaces {
		ifs, err := c.remote.ListNodeInterfaces(ctx, labID, node.ID)
		if err != nil {
			return node, err
		}
		node.InterfaceIDs = node.InterfaceIDs[:0]
		for _, ifc := range ifs {
			c.cache.UpsertInterface(ifc)
			node.InterfaceIDs = append(node.InterfaceIDs, ifc.ID)
		}
	}
	c.cache.UpsertNode(node)
	util.WithNode(labID, node.ID).Infof("created node %s (%s)", spec.Label, spec.NodeDefinition)
	return node, nil
}

// TransitionNode moves a node to target (RUNNING, STOPPED or DEFINED) and
// waits for the platform to report it.
func (c *Controller) TransitionNode(ctx context.Context, labID, nodeID string, target model.NodeState) (model.Node, error) {
	entity := nodeEntity(labID, nodeID)
	if c.cache.IsDeleted(labID) {
		return model.Node{}, &LifecycleError{
			Code: CodeInvalidTransition, Entity: entity,
			From: string(model.LabDeleted), To: string(target),
			Detail: "lab was deleted",
		}
	}

	node, err := c.Node(ctx, labID, nodeID)
	if err != nil {
		return model.Node{}, err
	}
	from := node.State
	if from == target {
		return node, nil
	}
	if !CanTransitionNode(from, target) {
		return node, &LifecycleError{Code: CodeInvalidTransition, Entity: entity, From: string(from), To: string(target)}
	}

	log := util.WithNode(labID, nodeID)
	log.Infof("node transition %s -> %s", from, target)

	switch {
	case target == model.NodeRunning && from == model.NodeBooting:
		// already on its way up
	case target == model.NodeRunning:
		if err := c.remote.StartNode(ctx, labID, nodeID); err != nil {
			return node, err
		}
		c.cache.SetNodeState(labID, nodeID, model.NodeBooting)
		if lab, _, ok := c.cache.Lab(labID); ok && lab.State != model.LabStarted {
			c.cache.SetLabState(labID, model.LabStarted)
		}
	case target == model.NodeStopped:
		if err := c.remote.StopNode(ctx, labID, nodeID); err != nil {
			return node, err
		}
	case target == model.NodeDefined:
		if err := c.remote.WipeNode(ctx, labID, nodeID); err != nil {
			return node, err
		}
	}

	err = c.converge(ctx, entity, string(from), string(target), func(ctx context.Context) (observation, error) {
		state, err := c.remote.NodeState(ctx, labID, nodeID)
		if err != nil {
			return observation{}, err
		}
		c.cache.SetNodeState(labID, nodeID, state)
		return observation{
			state:  string(state),
			done:   state == target,
			failed: state == model.NodeFailed,
		}, nil
	})
	if err != nil {
		log.Warnf("node transition %s -> %s failed: %v", from, target, err)
	}

	node, _, _ = c.cache.Node(labID, nodeID)
	return node, err
}

// DeleteNode removes a defined or stopped node together with its
// interfaces and links.
func (c *Controller) DeleteNode(ctx context.Context, labID, nodeID string) error {
	node, err := c.Node(ctx, labID, nodeID)
	if err != nil {
		return err
	}
	if !nodeDeletable(node.State) {
		return &LifecycleError{
			Code: CodeInvalidTransition, Entity: nodeEntity(labID, nodeID),
			From: string(node.State), To: "DELETED",
			Detail: "stop the node first",
		}
	}

	err = c.remote.DeleteNode(ctx, labID, nodeID)
	if err != nil && !cml.IsNotFound(err) {
		return err
	}
	c.cache.Invalidate(cache.KindNode, labID, nodeID)
	util.WithNode(labID, nodeID).Info("node deleted")
	return err
}

// WaitForNodes polls until every node of the lab reports target. It returns
// the last observed nodes.
func (c *Controller) WaitForNodes(ctx context.Context, labID string, target model.NodeState) ([]model.Node, error) {
	if _, err := c.Lab(ctx, labID); err != nil {
		return nil, err
	}

	var nodes []model.Node
	err := c.converge(ctx, labEntity(labID)+" nodes", "", string(target), func(ctx context.Context) (observation, error) {
		var err error
		nodes, err = c.remote.ListNodes(ctx, labID)
		if err != nil {
			return observation{}, err
		}

		var pending, failed []string
		for _, n := range nodes {
			c.cache.SetNodeState(labID, n.ID, n.State)
			switch n.State {
			case target:
			case model.NodeFailed:
				failed = append(failed, n.Label)
			default:
				pending = append(pending, fmt.Sprintf("%s=%s", n.Label, n.State))
			}
		}
		sort.Strings(pending)
		obs := observation{
			state: fmt.Sprintf("%d/%d %s", len(nodes)-len(pending)-len(failed), len(nodes), target),
			done:  len(pending) == 0 && len(failed) == 0,
		}
		if len(failed) > 0 {
			obs.failed = true
			obs.detail = "failed nodes: " + strings.Join(failed, ", ")
		} else if len(pending) > 0 {
			obs.detail = "pending: " + strings.Join(pending, ", ")
		}
		return obs, nil
	})
	return nodes, err
}

// PushConfig sets the node's configuration. The current configuration is
// read first and an identical one is not written again; the result reports
// whether anything changed.
func (c *Controller) PushConfig(ctx context.Context, labID, nodeID, config string) (bool, error) {
	if _, err := c.Node(ctx, labID, nodeID); err != nil {
		return false, err
	}

	current, err := c.remote.GetNodeConfig(ctx, labID, nodeID)
	if err != nil && !errors.Is(err, util.ErrNotFound) && !cml.IsNotFound(err) {
		return false, err
	}
	if normalizeConfig(current) == normalizeConfig(config) {
		util.WithNode(labID, nodeID).Debug("configuration unchanged")
		return false, nil
	}

	if err := c.remote.SetNodeConfig(ctx, labID, nodeID, config); err != nil {
		return false, err
	}
	util.WithNode(labID, nodeID).Info("configuration updated")
	return true, nil
}

// normalizeConfig ignores line-ending and trailing whitespace differences.
func normalizeConfig(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}
