package cml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/newtron-network/cmlkit/pkg/model"
)

func nodePath(labID, nodeID string, parts ...string) string {
	return labPath(labID, append([]string{"nodes", url.PathEscape(nodeID)}, parts...)...)
}

// ListNodes returns every node of a lab.
func (c *Client) ListNodes(ctx context.Context, labID string) ([]model.Node, error) {
	raw, err := c.Call(ctx, http.MethodGet, labPath(labID, "nodes?data=true"), nil)
	if err != nil {
		return nil, err
	}
	objects, ids, err := splitEntries(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding node list: %w", err)
	}

	nodes := make([]model.Node, 0, len(objects)+len(ids))
	for _, obj := range objects {
		var w nodeWire
		if err := json.Unmarshal(obj, &w); err != nil {
			return nil, fmt.Errorf("decoding node: %w", err)
		}
		nodes = append(nodes, w.toModel(labID))
	}
	for _, id := range ids {
		n, err := c.GetNode(ctx, labID, id)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// GetNode reads one node.
func (c *Client) GetNode(ctx context.Context, labID, nodeID string) (model.Node, error) {
	var w nodeWire
	if err := c.callJSON(ctx, http.MethodGet, nodePath(labID, nodeID), nil, &w); err != nil {
		return model.Node{}, err
	}
	if w.ID == "" {
		w.ID = nodeID
	}
	return w.toModel(labID), nil
}

// CreateNode adds a node to a lab. With spec.PopulateInterfaces the platform
// creates the device type's default interfaces along with the node.
func (c *Client) CreateNode(ctx context.Context, labID string, spec model.NodeSpec) (model.Node, error) {
	body := map[string]any{
		"label":           spec.Label,
		"node_definition": spec.NodeDefinition,
		"x":               spec.X,
		"y":               spec.Y,
		"parameters":      spec.Parameters,
		"tags":            []string{},
		"hide_links":      false,
	}
	if spec.Parameters == nil {
		body["parameters"] = map[string]string{}
	}
	if spec.RAM > 0 {
		body["ram"] = spec.RAM
	}
	if spec.CPULimit > 0 {
		body["cpu_limit"] = spec.CPULimit
	}

	path := labPath(labID, "nodes")
	if spec.PopulateInterfaces {
		path += "?populate_interfaces=true"
	}

	var w nodeWire
	if err := c.callJSON(ctx, http.MethodPost, path, body, &w); err != nil {
		return model.Node{}, err
	}
	if w.ID == "" {
		return model.Node{}, &RemoteError{Kind: KindServer, Method: http.MethodPost, Path: apiPath(path), Message: "no node id in response"}
	}
	n := w.toModel(labID)
	if n.Label == "" {
		n.Label = spec.Label
	}
	if n.NodeDefinition == "" {
		n.NodeDefinition = spec.NodeDefinition
	}
	if n.X == 0 && n.Y == 0 {
		n.X, n.Y = spec.X, spec.Y
	}
	if n.State == model.NodeUnknown {
		n.State = model.NodeDefined
	}
	return n, nil
}

// DeleteNode removes a node and, on the platform side, its interfaces and links.
func (c *Client) DeleteNode(ctx context.Context, labID, nodeID string) error {
	_, err := c.Call(ctx, http.MethodDelete, nodePath(labID, nodeID), nil)
	return err
}

// StartNode triggers a boot of one node.
func (c *Client) StartNode(ctx context.Context, labID, nodeID string) error {
	_, err := c.Call(ctx, http.MethodPut, nodePath(labID, nodeID, "state", "start"), nil)
	return err
}

// StopNode triggers a shutdown of one node.
func (c *Client) StopNode(ctx context.Context, labID, nodeID string) error {
	_, err := c.Call(ctx, http.MethodPut, nodePath(labID, nodeID, "state", "stop"), nil)
	return err
}

// WipeNode discards the disk of a stopped node.
func (c *Client) WipeNode(ctx context.Context, labID, nodeID string) error {
	_, err := c.Call(ctx, http.MethodPut, nodePath(labID, nodeID, "wipe_disks"), nil)
	return err
}

// NodeState reads the current node state.
func (c *Client) NodeState(ctx context.Context, labID, nodeID string) (model.NodeState, error) {
	raw, err := c.Call(ctx, http.MethodGet, nodePath(labID, nodeID, "state"), nil)
	if err != nil {
		return model.NodeUnknown, err
	}
	s, err := stateString(raw)
	if err != nil {
		return model.NodeUnknown, err
	}
	return model.ParseNodeState(s), nil
}

// GetNodeConfig returns the node's startup configuration text.
func (c *Client) GetNodeConfig(ctx context.Context, labID, nodeID string) (string, error) {
	raw, err := c.do(ctx, http.MethodGet, apiPath(nodePath(labID, nodeID, "config")), "", nil)
	if err != nil {
		return "", err
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s, nil
		}
	}
	if bytes.Equal(trimmed, []byte("null")) {
		return "", nil
	}
	return string(raw), nil
}

// SetNodeConfig replaces the node's startup configuration. The body is sent
// as plain text.
func (c *Client) SetNodeConfig(ctx context.Context, labID, nodeID, config string) error {
	_, err := c.do(ctx, http.MethodPut, apiPath(nodePath(labID, nodeID, "config")), "text/plain", []byte(config))
	return err
}

// ListNodeDefinitions returns the platform's device-type catalog.
func (c *Client) ListNodeDefinitions(ctx context.Context) ([]model.NodeDefinition, error) {
	raw, err := c.Call(ctx, http.MethodGet, "/node_definitions", nil)
	if err != nil {
		return nil, err
	}
	objects, ids, err := splitEntries(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding node definitions: %w", err)
	}
	defs := make([]model.NodeDefinition, 0, len(objects)+len(ids))
	for _, obj := range objects {
		var w nodeDefinitionWire
		if err := json.Unmarshal(obj, &w); err != nil {
			return nil, fmt.Errorf("decoding node definition: %w", err)
		}
		defs = append(defs, w.toModel())
	}
	for _, id := range ids {
		defs = append(defs, model.NodeDefinition{ID: id})
	}
	return defs, nil
}
