// Package lifecycle drives labs and nodes through their state machines and
// performs every cache-updating mutation against the platform.
//
// Start and stop requests return only after the platform reports the target
// state, polling at a fixed interval up to a convergence timeout. Illegal
// transitions are rejected before anything is sent to the platform.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/newtron-network/cmlkit/pkg/cache"
	"github.com/newtron-network/cmlkit/pkg/cml"
	"github.com/newtron-network/cmlkit/pkg/model"
	"github.com/newtron-network/cmlkit/pkg/util"
)

// Defaults for Config fields left at their zero value.
const (
	DefaultPollInterval         = 2 * time.Second
	DefaultConvergenceTimeout   = 120 * time.Second
	DefaultRehydrateConcurrency = 4
)

// Remote is the subset of the transport client the controller uses.
// *cml.Client implements it.
type Remote interface {
	ListLabs(ctx context.Context) ([]model.Lab, error)
	GetLab(ctx context.Context, labID string) (model.Lab, error)
	CreateLab(ctx context.Context, title, description string) (model.Lab, error)
	DeleteLab(ctx context.Context, labID string) error
	StartLab(ctx context.Context, labID string) error
	StopLab(ctx context.Context, labID string) error
	WipeLab(ctx context.Context, labID string) error
	LabState(ctx context.Context, labID string) (model.LabState, error)

	ListNodes(ctx context.Context, labID string) ([]model.Node, error)
	GetNode(ctx context.Context, labID, nodeID string) (model.Node, error)
	CreateNode(ctx context.Context, labID string, spec model.NodeSpec) (model.Node, error)
	DeleteNode(ctx context.Context, labID, nodeID string) error
	StartNode(ctx context.Context, labID, nodeID string) error
	StopNode(ctx context.Context, labID, nodeID string) error
	WipeNode(ctx context.Context, labID, nodeID string) error
	NodeState(ctx context.Context, labID, nodeID string) (model.NodeState, error)
	GetNodeConfig(ctx context.Context, labID, nodeID string) (string, error)
	SetNodeConfig(ctx context.Context, labID, nodeID, config string) error

	ListNodeInterfaces(ctx context.Context, labID, nodeID string) ([]model.Interface, error)
	GetInterface(ctx context.Context, labID, interfaceID string) (model.Interface, error)
	CreateInterface(ctx context.Context, labID, nodeID string, slot *int) ([]model.Interface, error)

	ListLinks(ctx context.Context, labID string) ([]model.Link, error)
	CreateLink(ctx context.Context, labID, interfaceA, interfaceB string) (model.Link, error)
	DeleteLink(ctx context.Context, labID, linkID string) error

	ListNodeDefinitions(ctx context.Context) ([]model.NodeDefinition, error)
}

var _ Remote = (*cml.Client)(nil)

// Config tunes polling.
type Config struct {
	PollInterval         time.Duration
	ConvergenceTimeout   time.Duration
	RehydrateConcurrency int
}

func (cfg Config) withDefaults() Config {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ConvergenceTimeout <= 0 {
		cfg.ConvergenceTimeout = DefaultConvergenceTimeout
	}
	if cfg.RehydrateConcurrency <= 0 {
		cfg.RehydrateConcurrency = DefaultRehydrateConcurrency
	}
	return cfg
}

// Controller owns every state-changing interaction with the platform.
type Controller struct {
	remote Remote
	cache  *cache.Cache
	cfg    Config
	group  singleflight.Group
}

// New creates a controller over remote that keeps c up to date.
func New(remote Remote, c *cache.Cache, cfg Config) *Controller {
	return &Controller{
		remote: remote,
		cache:  c,
		cfg:    cfg.withDefaults(),
	}
}

// Cache returns the cache the controller maintains.
func (c *Controller) Cache() *cache.Cache {
	return c.cache
}

// Remote returns the transport the controller drives.
func (c *Controller) Remote() Remote {
	return c.remote
}

// errLabDeleted is returned for any operation on a lab deleted through this
// process.
func errLabDeleted(labID string) error {
	return fmt.Errorf("lab %s was deleted: %w", labID, util.ErrNotFound)
}

// ================ Read-through helpers ================

// Lab returns the lab from the cache, reading it from the platform on a miss.
func (c *Controller) Lab(ctx context.Context, labID string) (model.Lab, error) {
	if c.cache.IsDeleted(labID) {
		return model.Lab{}, errLabDeleted(labID)
	}
	if lab, _, ok := c.cache.Lab(labID); ok && lab.State != model.LabUnknown {
		return lab, nil
	}
	lab, err := c.remote.GetLab(ctx, labID)
	if err != nil {
		return model.Lab{}, err
	}
	if _, ok := c.cache.UpsertLab(lab); !ok {
		return model.Lab{}, errLabDeleted(labID)
	}
	return lab, nil
}

// Node returns the node from the cache, reading it from the platform on a miss.
func (c *Controller) Node(ctx context.Context, labID, nodeID string) (model.Node, error) {
	if c.cache.IsDeleted(labID) {
		return model.Node{}, errLabDeleted(labID)
	}
	if n, _, ok := c.cache.Node(labID, nodeID); ok && n.State != model.NodeUnknown {
		return n, nil
	}
	n, err := c.remote.GetNode(ctx, labID, nodeID)
	if err != nil {
		return model.Node{}, err
	}
	c.cache.UpsertNode(n)
	return n, nil
}

// Interface returns the interface from the cache, reading it from the
// platform on a miss.
func (c *Controller) Interface(ctx context.Context, labID, interfaceID string) (model.Interface, error) {
	if c.cache.IsDeleted(labID) {
		return model.Interface{}, errLabDeleted(labID)
	}
	if ifc, ok := c.cache.Interface(labID, interfaceID); ok {
		return ifc, nil
	}
	ifc, err := c.remote.GetInterface(ctx, labID, interfaceID)
	if err != nil {
		return model.Interface{}, err
	}
	c.cache.UpsertInterface(ifc)
	return ifc, nil
}

// Nodes returns the nodes of a lab, loading the whole lab on first use.
func (c *Controller) Nodes(ctx context.Context, labID string) ([]model.Node, error) {
	snap, err := c.EnsureWarm(ctx, labID)
	if err != nil {
		return nil, err
	}
	return snap.Nodes, nil
}

// NodeConfig returns the configuration the platform holds for a node.
func (c *Controller) NodeConfig(ctx context.Context, labID, nodeID string) (string, error) {
	if _, err := c.Node(ctx, labID, nodeID); err != nil {
		return "", err
	}
	return c.remote.GetNodeConfig(ctx, labID, nodeID)
}

// NodeDefinitions lists the device types the platform can simulate.
func (c *Controller) NodeDefinitions(ctx context.Context) ([]model.NodeDefinition, error) {
	return c.remote.ListNodeDefinitions(ctx)
}

// EnsureWarm re-reads the lab unless it has been fully loaded already, so
// cache-based validations can be trusted.
func (c *Controller) EnsureWarm(ctx context.Context, labID string) (cache.Snapshot, error) {
	if c.cache.IsDeleted(labID) {
		return cache.Snapshot{}, errLabDeleted(labID)
	}
	if c.cache.Warm(labID) {
		if snap, ok := c.cache.Children(labID); ok {
			return snap, nil
		}
	}
	return c.RefreshLab(ctx, labID)
}
