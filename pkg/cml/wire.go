package cml

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/newtron-network/cmlkit/pkg/model"
)

// The platform returns collections in three shapes depending on version
// and query flags: a list of ids, a list of objects, or an object keyed by
// id. splitEntries normalizes all three.
func splitEntries(raw json.RawMessage) (objects []json.RawMessage, ids []string, err error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil, nil
	}

	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, nil, err
		}
		for _, item := range items {
			item = bytes.TrimSpace(item)
			if len(item) > 0 && item[0] == '"' {
				var id string
				if err := json.Unmarshal(item, &id); err != nil {
					return nil, nil, err
				}
				ids = append(ids, id)
				continue
			}
			objects = append(objects, item)
		}
	case '{':
		var keyed map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &keyed); err != nil {
			return nil, nil, err
		}
		keys := make([]string, 0, len(keyed))
		for k := range keyed {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			obj, err := withID(keyed[k], k)
			if err != nil {
				return nil, nil, err
			}
			objects = append(objects, obj)
		}
	default:
		return nil, nil, fmt.Errorf("unexpected collection payload %.40q", string(trimmed))
	}
	return objects, ids, nil
}

// withID adds an "id" member to obj when it lacks one.
func withID(obj json.RawMessage, id string) (json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(obj, &m); err != nil {
		return nil, err
	}
	if _, ok := m["id"]; ok {
		return obj, nil
	}
	idJSON, _ := json.Marshal(id)
	m["id"] = idJSON
	return json.Marshal(m)
}

// flexInt decodes numbers that some controller versions send as strings.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return err
		}
		*f = flexInt(n)
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexInt(int(n))
	return nil
}

// stateString decodes either a bare JSON string or {"state": "..."}.
func stateString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var obj struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", fmt.Errorf("decoding state: %w", err)
	}
	return obj.State, nil
}

type labWire struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	LabTitle       string  `json:"lab_title"`
	Description    string  `json:"description"`
	LabDescription string  `json:"lab_description"`
	State          string  `json:"state"`
	NodeCount      flexInt `json:"node_count"`
	LinkCount      flexInt `json:"link_count"`
}

func (w labWire) toModel() model.Lab {
	title := w.Title
	if title == "" {
		title = w.LabTitle
	}
	desc := w.Description
	if desc == "" {
		desc = w.LabDescription
	}
	return model.Lab{
		ID:          w.ID,
		Title:       title,
		Description: desc,
		State:       model.ParseLabState(w.State),
		NodeCount:   int(w.NodeCount),
		LinkCount:   int(w.LinkCount),
	}
}

type nodeWire struct {
	ID             string   `json:"id"`
	LabID          string   `json:"lab_id"`
	Label          string   `json:"label"`
	NodeDefinition string   `json:"node_definition"`
	State          string   `json:"state"`
	X              flexInt  `json:"x"`
	Y              flexInt  `json:"y"`
	Interfaces     []string `json:"interfaces"`
}

func (w nodeWire) toModel(labID string) model.Node {
	if w.LabID != "" {
		labID = w.LabID
	}
	return model.Node{
		ID:             w.ID,
		LabID:          labID,
		Label:          w.Label,
		NodeDefinition: w.NodeDefinition,
		State:          model.ParseNodeState(w.State),
		X:              int(w.X),
		Y:              int(w.Y),
		InterfaceIDs:   w.Interfaces,
	}
}

type interfaceWire struct {
	ID          string   `json:"id"`
	LabID       string   `json:"lab_id"`
	Node        string   `json:"node"`
	Label       string   `json:"label"`
	Slot        *flexInt `json:"slot"`
	Type        string   `json:"type"`
	IsConnected bool     `json:"is_connected"`
}

func (w interfaceWire) toModel(labID string) model.Interface {
	if w.LabID != "" {
		labID = w.LabID
	}
	slot := -1
	if w.Slot != nil {
		slot = int(*w.Slot)
	}
	return model.Interface{
		ID:        w.ID,
		LabID:     labID,
		NodeID:    w.Node,
		Label:     w.Label,
		Slot:      slot,
		Type:      w.Type,
		Connected: w.IsConnected,
	}
}

type linkWire struct {
	ID         string `json:"id"`
	LabID      string `json:"lab_id"`
	InterfaceA string `json:"interface_a"`
	InterfaceB string `json:"interface_b"`
	SrcInt     string `json:"src_int"`
	DstInt     string `json:"dst_int"`
	NodeA      string `json:"node_a"`
	NodeB      string `json:"node_b"`
	SrcNode    string `json:"src_node"`
	DstNode    string `json:"dst_node"`
	State      string `json:"state"`
}

func (w linkWire) toModel(labID string) model.Link {
	if w.LabID != "" {
		labID = w.LabID
	}
	pick := func(a, b string) string {
		if a != "" {
			return a
		}
		return b
	}
	return model.Link{
		ID:         w.ID,
		LabID:      labID,
		InterfaceA: pick(w.InterfaceA, w.SrcInt),
		InterfaceB: pick(w.InterfaceB, w.DstInt),
		NodeA:      pick(w.NodeA, w.SrcNode),
		NodeB:      pick(w.NodeB, w.DstNode),
		State:      w.State,
	}
}

type nodeDefinitionWire struct {
	ID      string `json:"id"`
	General struct {
		Description string `json:"description"`
		Nature      string `json:"nature"`
	} `json:"general"`
	UI struct {
		Label       string `json:"label"`
		Description string `json:"description"`
	} `json:"ui"`
	Device struct {
		Interfaces struct {
			Physical []string `json:"physical"`
		} `json:"interfaces"`
	} `json:"device"`
}

func (w nodeDefinitionWire) toModel() model.NodeDefinition {
	desc := w.General.Description
	if desc == "" {
		desc = w.UI.Description
	}
	return model.NodeDefinition{
		ID:          w.ID,
		Label:       w.UI.Label,
		Description: desc,
		Type:        w.General.Nature,
		Interfaces:  len(w.Device.Interfaces.Physical),
	}
}
