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

// ListNodeInterfaces returns the interfaces of one node ordered as the
// platform reports them.
func (c *Client) ListNodeInterfaces(ctx context.Context, labID, nodeID string) ([]model.Interface, error) {
	raw, err := c.Call(ctx, http.MethodGet, nodePath(labID, nodeID, "interfaces?data=true"), nil)
	if err != nil {
		return nil, err
	}
	objects, ids, err := splitEntries(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding interface list: %w", err)
	}

	out := make([]model.Interface, 0, len(objects)+len(ids))
	for _, obj := range objects {
		var w interfaceWire
		if err := json.Unmarshal(obj, &w); err != nil {
			return nil, fmt.Errorf("decoding interface: %w", err)
		}
		ifc := w.toModel(labID)
		if ifc.NodeID == "" {
			ifc.NodeID = nodeID
		}
		out = append(out, ifc)
	}
	for _, id := range ids {
		ifc, err := c.GetInterface(ctx, labID, id)
		if err != nil {
			return nil, err
		}
		out = append(out, ifc)
	}
	return out, nil
}

// GetInterface reads one interface.
func (c *Client) GetInterface(ctx context.Context, labID, interfaceID string) (model.Interface, error) {
	var w interfaceWire
	path := labPath(labID, "interfaces", url.PathEscape(interfaceID))
	if err := c.callJSON(ctx, http.MethodGet, path, nil, &w); err != nil {
		return model.Interface{}, err
	}
	if w.ID == "" {
		w.ID = interfaceID
	}
	return w.toModel(labID), nil
}

// CreateInterface adds interfaces to a node. When slot is non-nil the
// platform creates every missing interface up to and including that slot,
// so more than one interface may be returned.
func (c *Client) CreateInterface(ctx context.Context, labID, nodeID string, slot *int) ([]model.Interface, error) {
	body := map[string]any{"node": nodeID}
	if slot != nil {
		body["slot"] = *slot
	}
	raw, err := c.Call(ctx, http.MethodPost, labPath(labID, "interfaces"), body)
	if err != nil {
		return nil, err
	}

	var wires []interfaceWire
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &wires); err != nil {
			return nil, fmt.Errorf("decoding created interfaces: %w", err)
		}
	} else {
		var w interfaceWire
		if err := json.Unmarshal(trimmed, &w); err != nil {
			return nil, fmt.Errorf("decoding created interface: %w", err)
		}
		wires = append(wires, w)
	}

	out := make([]model.Interface, 0, len(wires))
	for _, w := range wires {
		ifc := w.toModel(labID)
		if ifc.NodeID == "" {
			ifc.NodeID = nodeID
		}
		if ifc.Type == "" {
			ifc.Type = model.InterfacePhysical
		}
		out = append(out, ifc)
	}
	return out, nil
}
