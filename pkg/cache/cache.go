// Package cache holds the in-memory mirror of remote platform entities.
//
// Every entry carries a version that increases on each write. Callers that
// read-modify-write an entry use the CompareAndSwap methods so that two
// concurrent operations on the same entity cannot silently overwrite each
// other. Link endpoints are reserved with ClaimInterfaces before the remote
// create is issued; the claim is either committed with the created link or
// released on failure.
//
// The cache is never persisted. After a restart it is empty until a lab is
// re-read with ReplaceLab. A lab invalidated after its remote delete keeps a
// tombstone for the life of the process; later writes of that lab are
// refused, so a read that raced the delete cannot bring it back.
package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/newtron-network/cmlkit/pkg/model"
	"github.com/newtron-network/cmlkit/pkg/util"
)

// Kind names an entity type for Invalidate.
type Kind string

const (
	KindLab       Kind = "lab"
	KindNode      Kind = "node"
	KindInterface Kind = "interface"
	KindLink      Kind = "link"
)

type key struct {
	lab, id string
}

type versioned[T any] struct {
	value   T
	version uint64
}

// Snapshot is a consistent copy of one lab and everything it owns.
type Snapshot struct {
	Lab        model.Lab
	Nodes      []model.Node
	Interfaces []model.Interface
	Links      []model.Link
}

// Claim reserves two interfaces for a link that is being created.
type Claim struct {
	LabID      string
	InterfaceA string
	InterfaceB string
	token      string
}

// Cache is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	seq        uint64
	labs       map[string]*versioned[model.Lab]
	nodes      map[key]*versioned[model.Node]
	interfaces map[key]*versioned[model.Interface]
	links      map[key]*versioned[model.Link]
	claims     map[key]string
	warm       map[string]bool
	tombstones map[string]time.Time
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{
		labs:       make(map[string]*versioned[model.Lab]),
		nodes:      make(map[key]*versioned[model.Node]),
		interfaces: make(map[key]*versioned[model.Interface]),
		links:      make(map[key]*versioned[model.Link]),
		claims:     make(map[key]string),
		warm:       make(map[string]bool),
		tombstones: make(map[string]time.Time),
	}
}

func (c *Cache) next() uint64 {
	c.seq++
	return c.seq
}

// ================ Reads ================

// Lab returns a cached lab and its version.
func (c *Cache) Lab(id string) (model.Lab, uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.labs[id]; ok {
		return e.value, e.version, true
	}
	return model.Lab{}, 0, false
}

// Node returns a cached node and its version.
func (c *Cache) Node(labID, id string) (model.Node, uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.nodes[key{labID, id}]; ok {
		return e.value, e.version, true
	}
	return model.Node{}, 0, false
}

// Interface returns a cached interface.
func (c *Cache) Interface(labID, id string) (model.Interface, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.interfaces[key{labID, id}]; ok {
		return e.value, true
	}
	return model.Interface{}, false
}

// Link returns a cached link.
func (c *Cache) Link(labID, id string) (model.Link, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.links[key{labID, id}]; ok {
		return e.value, true
	}
	return model.Link{}, false
}

// Labs returns all cached labs ordered by title, then id.
func (c *Cache) Labs() []model.Lab {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Lab, 0, len(c.labs))
	for _, e := range c.labs {
		out = append(out, e.value)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// NodeInterfaces returns the cached interfaces of one node in slot order.
func (c *Cache) NodeInterfaces(labID, nodeID string) []model.Interface {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []model.Interface
	for k, e := range c.interfaces {
		if k.lab == labID && e.value.NodeID == nodeID {
			out = append(out, e.value)
		}
	}
	sortInterfaces(out)
	return out
}

// Children returns a snapshot of a lab and its nodes, interfaces and links.
// The second result is false if the lab is not cached.
func (c *Cache) Children(labID string) (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	le, ok := c.labs[labID]
	if !ok {
		return Snapshot{}, false
	}
	snap := Snapshot{Lab: le.value}
	for k, e := range c.nodes {
		if k.lab == labID {
			snap.Nodes = append(snap.Nodes, e.value)
		}
	}
	for k, e := range c.interfaces {
		if k.lab == labID {
			snap.Interfaces = append(snap.Interfaces, e.value)
		}
	}
	for k, e := range c.links {
		if k.lab == labID {
			snap.Links = append(snap.Links, e.value)
		}
	}
	sort.Slice(snap.Nodes, func(i, j int) bool {
		if snap.Nodes[i].Label != snap.Nodes[j].Label {
			return snap.Nodes[i].Label < snap.Nodes[j].Label
		}
		return snap.Nodes[i].ID < snap.Nodes[j].ID
	})
	sortInterfaces(snap.Interfaces)
	sort.Slice(snap.Links, func(i, j int) bool { return snap.Links[i].ID < snap.Links[j].ID })
	return snap, true
}

func sortInterfaces(ifs []model.Interface) {
	sort.Slice(ifs, func(i, j int) bool {
		if ifs[i].NodeID != ifs[j].NodeID {
			return ifs[i].NodeID < ifs[j].NodeID
		}
		if ifs[i].Slot != ifs[j].Slot {
			return ifs[i].Slot < ifs[j].Slot
		}
		return ifs[i].ID < ifs[j].ID
	})
}

// Warm reports whether the lab was fully loaded with ReplaceLab since start.
func (c *Cache) Warm(labID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.warm[labID]
}

// IsDeleted reports whether a delete of the lab was issued through this cache.
func (c *Cache) IsDeleted(labID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.tombstones[labID]
	return ok
}

// ================ Writes ================

// UpsertLab stores a lab and returns its new version. A lab deleted through
// this cache is never stored again; the second result is then false.
func (c *Cache) UpsertLab(lab model.Lab) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dead := c.tombstones[lab.ID]; dead {
		return 0, false
	}
	v := c.next()
	c.labs[lab.ID] = &versioned[model.Lab]{value: lab, version: v}
	return v, true
}

// UpsertNode stores a node and returns its new version, or 0 if its lab was
// deleted.
func (c *Cache) UpsertNode(node model.Node) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dead := c.tombstones[node.LabID]; dead {
		return 0
	}
	v := c.next()
	c.nodes[key{node.LabID, node.ID}] = &versioned[model.Node]{value: node, version: v}
	return v
}

// UpsertInterface stores an interface. A link reference already known to
// the cache is preserved when the incoming value carries none.
func (c *Cache) UpsertInterface(ifc model.Interface) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dead := c.tombstones[ifc.LabID]; dead {
		return
	}
	c.upsertInterfaceLocked(ifc)
}

func (c *Cache) upsertInterfaceLocked(ifc model.Interface) {
	k := key{ifc.LabID, ifc.ID}
	if old, ok := c.interfaces[k]; ok && ifc.LinkID == "" && ifc.Connected {
		ifc.LinkID = old.value.LinkID
	}
	c.interfaces[k] = &versioned[model.Interface]{value: ifc, version: c.next()}
}

// UpsertLink stores a link and points both endpoint interfaces at it.
func (c *Cache) UpsertLink(link model.Link) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dead := c.tombstones[link.LabID]; dead {
		return
	}
	c.upsertLinkLocked(link)
}

func (c *Cache) upsertLinkLocked(link model.Link) {
	c.links[key{link.LabID, link.ID}] = &versioned[model.Link]{value: link, version: c.next()}
	for _, id := range []string{link.InterfaceA, link.InterfaceB} {
		if e, ok := c.interfaces[key{link.LabID, id}]; ok {
			ifc := e.value
			ifc.LinkID = link.ID
			ifc.Connected = true
			c.interfaces[key{link.LabID, id}] = &versioned[model.Interface]{value: ifc, version: c.next()}
		}
	}
}

// CompareAndSwapLab replaces the lab only if its version is still expected.
// It returns the new version and whether the swap happened.
func (c *Cache) CompareAndSwapLab(lab model.Lab, expected uint64) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.labs[lab.ID]
	if !ok || e.version != expected {
		return 0, false
	}
	v := c.next()
	c.labs[lab.ID] = &versioned[model.Lab]{value: lab, version: v}
	return v, true
}

// CompareAndSwapNode replaces the node only if its version is still expected.
func (c *Cache) CompareAndSwapNode(node model.Node, expected uint64) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key{node.LabID, node.ID}
	e, ok := c.nodes[k]
	if !ok || e.version != expected {
		return 0, false
	}
	v := c.next()
	c.nodes[k] = &versioned[model.Node]{value: node, version: v}
	return v, true
}

// SetLabState updates the state of a cached lab. It is a no-op for labs
// that are not cached.
func (c *Cache) SetLabState(labID string, state model.LabState) {
	for {
		lab, v, ok := c.Lab(labID)
		if !ok {
			return
		}
		lab.State = state
		if _, swapped := c.CompareAndSwapLab(lab, v); swapped {
			return
		}
	}
}

// SetNodeState updates the state of a cached node.
func (c *Cache) SetNodeState(labID, nodeID string, state model.NodeState) {
	for {
		node, v, ok := c.Node(labID, nodeID)
		if !ok {
			return
		}
		node.State = state
		if _, swapped := c.CompareAndSwapNode(node, v); swapped {
			return
		}
	}
}

// SetNodeStates updates every cached node of a lab to state.
func (c *Cache) SetNodeStates(labID string, state model.NodeState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.nodes {
		if k.lab == labID {
			n := e.value
			n.State = state
			c.nodes[k] = &versioned[model.Node]{value: n, version: c.next()}
		}
	}
}

// ReplaceLab installs a fully re-read lab, discarding whatever was cached for
// it before, and marks the lab warm. Pending link claims survive the
// replacement. A snapshot of a lab deleted in the meantime is dropped and
// ReplaceLab returns false.
func (c *Cache) ReplaceLab(snap Snapshot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	labID := snap.Lab.ID
	if _, dead := c.tombstones[labID]; dead {
		return false
	}
	c.dropChildrenLocked(labID, false)
	c.labs[labID] = &versioned[model.Lab]{value: snap.Lab, version: c.next()}
	for _, n := range snap.Nodes {
		n.LabID = labID
		c.nodes[key{labID, n.ID}] = &versioned[model.Node]{value: n, version: c.next()}
	}
	for _, ifc := range snap.Interfaces {
		ifc.LabID = labID
		c.upsertInterfaceLocked(ifc)
	}
	for _, l := range snap.Links {
		l.LabID = labID
		c.upsertLinkLocked(l)
	}
	c.warm[labID] = true
	return true
}

// ================ Invalidation ================

// Invalidate removes an entity and everything that depends on it. It must
// only be called after the matching remote delete was issued. Labs leave a
// tombstone behind so later operations on them fail fast.
func (c *Cache) Invalidate(kind Kind, labID, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch kind {
	case KindLab:
		c.dropChildrenLocked(labID, true)
		delete(c.labs, labID)
		delete(c.warm, labID)
		c.tombstones[labID] = time.Now()
	case KindNode:
		c.dropNodeLocked(labID, id)
	case KindInterface:
		c.dropInterfaceLocked(labID, id)
	case KindLink:
		c.dropLinkLocked(labID, id)
	}
	util.WithLab(labID).WithFields(map[string]interface{}{"kind": kind, "id": id}).Debug("cache invalidated")
}

func (c *Cache) dropChildrenLocked(labID string, claims bool) {
	for k := range c.nodes {
		if k.lab == labID {
			delete(c.nodes, k)
		}
	}
	for k := range c.interfaces {
		if k.lab == labID {
			delete(c.interfaces, k)
		}
	}
	for k := range c.links {
		if k.lab == labID {
			delete(c.links, k)
		}
	}
	if !claims {
		return
	}
	for k := range c.claims {
		if k.lab == labID {
			delete(c.claims, k)
		}
	}
}

func (c *Cache) dropNodeLocked(labID, nodeID string) {
	delete(c.nodes, key{labID, nodeID})
	for k, e := range c.interfaces {
		if k.lab == labID && e.value.NodeID == nodeID {
			c.dropInterfaceLocked(labID, k.id)
		}
	}
}

func (c *Cache) dropInterfaceLocked(labID, ifcID string) {
	k := key{labID, ifcID}
	if e, ok := c.interfaces[k]; ok && e.value.LinkID != "" {
		c.dropLinkLocked(labID, e.value.LinkID)
	}
	for lk, e := range c.links {
		if lk.lab == labID && e.value.Touches(ifcID) {
			c.dropLinkLocked(labID, lk.id)
		}
	}
	delete(c.interfaces, k)
	delete(c.claims, k)
}

// dropLinkLocked removes a link and clears the reference from both endpoints.
func (c *Cache) dropLinkLocked(labID, linkID string) {
	k := key{labID, linkID}
	e, ok := c.links[k]
	if !ok {
		return
	}
	delete(c.links, k)
	for _, id := range []string{e.value.InterfaceA, e.value.InterfaceB} {
		ik := key{labID, id}
		if ie, ok := c.interfaces[ik]; ok && ie.value.LinkID == linkID {
			ifc := ie.value
			ifc.LinkID = ""
			ifc.Connected = false
			c.interfaces[ik] = &versioned[model.Interface]{value: ifc, version: c.next()}
		}
	}
}

// ================ Link claims ================

// ClaimInterfaces reserves both interfaces for a link that is about to be
// created. It fails with a *util.InUseError if either interface already
// terminates a link or is reserved by another pending creation. Interfaces
// not present in the cache are still reserved.
func (c *Cache) ClaimInterfaces(labID, a, b string) (Claim, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range []string{a, b} {
		k := key{labID, id}
		if e, ok := c.interfaces[k]; ok && e.value.IsConnected() {
			usedBy := e.value.LinkID
			if usedBy == "" {
				usedBy = "existing link"
			}
			return Claim{}, util.NewInUseError("interface "+id, "link "+usedBy)
		}
		if _, ok := c.claims[k]; ok {
			return Claim{}, util.NewInUseError("interface "+id, "pending link creation")
		}
	}

	claim := Claim{LabID: labID, InterfaceA: a, InterfaceB: b, token: uuid.NewString()}
	c.claims[key{labID, a}] = claim.token
	c.claims[key{labID, b}] = claim.token
	return claim, nil
}

// CommitLink releases a claim and stores the link that was created for it.
func (c *Cache) CommitLink(claim Claim, link model.Link) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseLocked(claim)
	if link.LabID == "" {
		link.LabID = claim.LabID
	}
	c.upsertLinkLocked(link)
}

// ReleaseClaim drops a claim whose link creation failed.
func (c *Cache) ReleaseClaim(claim Claim) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseLocked(claim)
}

func (c *Cache) releaseLocked(claim Claim) {
	for _, id := range []string{claim.InterfaceA, claim.InterfaceB} {
		k := key{claim.LabID, id}
		if c.claims[k] == claim.token {
			delete(c.claims, k)
		}
	}
}
