package model

// Link connects exactly two distinct interfaces.
type Link struct {
	ID         string `json:"id"`
	LabID      string `json:"lab_id"`
	InterfaceA string `json:"interface_a"`
	InterfaceB string `json:"interface_b"`
	NodeA      string `json:"node_a,omitempty"`
	NodeB      string `json:"node_b,omitempty"`
	State      string `json:"state,omitempty"`
}

// Touches reports whether the link terminates on the given interface.
func (l Link) Touches(interfaceID string) bool {
	return l.InterfaceA == interfaceID || l.InterfaceB == interfaceID
}
