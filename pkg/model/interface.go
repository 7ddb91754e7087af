package model

// Interface types reported by the platform.
const (
	InterfacePhysical = "physical"
	InterfaceLoopback = "loopback"
)

// Interface is a connection point on a node. LinkID is empty when the
// interface is not an endpoint of any link. Connected mirrors the platform's
// own flag and may be set before the owning link has been read.
type Interface struct {
	ID        string `json:"id"`
	LabID     string `json:"lab_id"`
	NodeID    string `json:"node_id"`
	Label     string `json:"label,omitempty"`
	Slot      int    `json:"slot"`
	Type      string `json:"type,omitempty"`
	LinkID    string `json:"link_id,omitempty"`
	Connected bool   `json:"connected"`
}

// IsPhysical reports whether the interface can terminate a link.
// Interfaces without a type but with a slot are treated as physical.
func (i Interface) IsPhysical() bool {
	return i.Type == InterfacePhysical || (i.Type == "" && i.Slot >= 0)
}

// IsConnected reports whether the interface terminates a link.
func (i Interface) IsConnected() bool {
	return i.LinkID != "" || i.Connected
}
