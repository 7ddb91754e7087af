package lifecycle

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/newtron-network/cmlkit/pkg/cache"
	"github.com/newtron-network/cmlkit/pkg/cml"
	"github.com/newtron-network/cmlkit/pkg/model"
	"github.com/newtron-network/cmlkit/pkg/util"
)

// RefreshLab re-reads a lab with all its nodes, interfaces and links and
// replaces whatever the cache held for it.
func (c *Controller) RefreshLab(ctx context.Context, labID string) (cache.Snapshot, error) {
	if c.cache.IsDeleted(labID) {
		return cache.Snapshot{}, errLabDeleted(labID)
	}

	lab, err := c.remote.GetLab(ctx, labID)
	if err != nil {
		return cache.Snapshot{}, err
	}
	nodes, err := c.remote.ListNodes(ctx, labID)
	if err != nil {
		return cache.Snapshot{}, err
	}
	snap := cache.Snapshot{Lab: lab, Nodes: nodes}
	for i, n := range nodes {
		ifs, err := c.remote.ListNodeInterfaces(ctx, labID, n.ID)
		if err != nil {
			return cache.Snapshot{}, err
		}
		ids := make([]string, 0, len(ifs))
		for _, ifc := range ifs {
			if ifc.NodeID == "" {
				ifc.NodeID = n.ID
			}
			ids = append(ids, ifc.ID)
			snap.Interfaces = append(snap.Interfaces, ifc)
		}
		snap.Nodes[i].InterfaceIDs = ids
	}
	if snap.Links, err = c.remote.ListLinks(ctx, labID); err != nil {
		return cache.Snapshot{}, err
	}

	if !c.cache.ReplaceLab(snap) {
		return cache.Snapshot{}, errLabDeleted(labID)
	}
	out, _ := c.cache.Children(labID)
	return out, nil
}

// Rehydrate re-reads every lab on the platform. Labs are refreshed in
// parallel with bounded concurrency; concurrent Rehydrate calls share one
// pass. Labs that disappear while being read are skipped.
func (c *Controller) Rehydrate(ctx context.Context) ([]model.Lab, error) {
	v, err, shared := c.group.Do("rehydrate", func() (any, error) {
		labs, err := c.remote.ListLabs(ctx)
		if err != nil {
			return nil, err
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.cfg.RehydrateConcurrency)
		for _, lab := range labs {
			labID := lab.ID
			g.Go(func() error {
				_, err := c.RefreshLab(gctx, labID)
				if cml.IsNotFound(err) || errors.Is(err, util.ErrNotFound) {
					return nil
				}
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		util.Infof("rehydrated %d labs", len(labs))

		listed := make(map[string]bool, len(labs))
		for _, lab := range labs {
			listed[lab.ID] = true
		}
		out := make([]model.Lab, 0, len(labs))
		for _, lab := range c.cache.Labs() {
			if listed[lab.ID] {
				out = append(out, lab)
			}
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		util.Debugf("rehydrate shared with a concurrent caller")
	}
	return v.([]model.Lab), nil
}
