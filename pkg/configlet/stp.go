package configlet

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/newtron-network/cmlkit/pkg/util"
)

// Spanning-tree modes.
const (
	STPModeMST       = "mst"
	STPModeRapidPVST = "rapid-pvst"
	STPModePVST      = "pvst"
)

// Bridge roles and the priority each one is given.
const (
	STPRoleRoot      = "root"
	STPRoleSecondary = "secondary"
	STPRoleNormal    = "normal"
)

var stpPriority = map[string]int{
	STPRoleRoot:      4096,
	STPRoleSecondary: 8192,
	STPRoleNormal:    32768,
}

var stpRoleComment = map[string]string{
	STPRoleRoot:      "! Set as MST root for instance 0 (CST)",
	STPRoleSecondary: "! Set as MST secondary root",
	STPRoleNormal:    "! Normal switch (not root)",
}

// DefaultSTPVLANs is used when no VLANs are given.
var DefaultSTPVLANs = []int{1, 10, 20, 30, 40}

// STPOptions describes one switch's spanning-tree setup.
type STPOptions struct {
	SwitchName string
	Mode       string
	Role       string
	VLANs      []int
	// MSTInstances maps MST instance numbers to VLANs. Only used in MST
	// mode; when empty, instance 1 carries VLANs 10,20 and instance 2
	// carries 30,40.
	MSTInstances map[int][]int
}

func (o *STPOptions) applyDefaults() {
	if o.Mode == "" {
		o.Mode = STPModeMST
	}
	if o.Role == "" {
		o.Role = STPRoleRoot
	}
	if len(o.VLANs) == 0 {
		o.VLANs = append([]int(nil), DefaultSTPVLANs...)
	}
}

func (o *STPOptions) validate() error {
	vb := &util.ValidationBuilder{}
	vb.Add(strings.TrimSpace(o.SwitchName) != "", "switch name is required")
	vb.Add(o.Mode == STPModeMST || o.Mode == STPModeRapidPVST || o.Mode == STPModePVST,
		fmt.Sprintf("stp mode %q must be one of mst, rapid-pvst, pvst", o.Mode))
	_, ok := stpPriority[o.Role]
	vb.Add(ok, fmt.Sprintf("role %q must be one of root, secondary, normal", o.Role))
	for _, v := range o.VLANs {
		if v < 1 || v > 4094 {
			vb.AddErrorf("vlan %d out of range 1-4094", v)
		}
	}
	for inst, vlans := range o.MSTInstances {
		if inst < 1 || inst > 4094 {
			vb.AddErrorf("mst instance %d out of range 1-4094", inst)
		}
		if len(vlans) == 0 {
			vb.AddErrorf("mst instance %d maps no vlans", inst)
		}
	}
	return vb.Build()
}

// GenerateSTP renders a spanning-tree configuration for an IOS L2 switch.
func GenerateSTP(opts STPOptions) (string, error) {
	opts.applyDefaults()
	if err := opts.validate(); err != nil {
		return "", err
	}

	name := opts.SwitchName
	lines := []string{
		"! " + name + " Configuration",
		"!",
		"hostname " + name,
		"!",
		"! VLANs Configuration",
	}
	for _, v := range opts.VLANs {
		if v == 1 {
			continue
		}
		lines = append(lines, fmt.Sprintf("vlan %d", v), fmt.Sprintf(" name VLAN%d", v), "!")
	}

	lines = append(lines, "! Spanning-tree Configuration")
	priority := stpPriority[opts.Role]

	switch opts.Mode {
	case STPModeMST:
		lines = append(lines,
			"spanning-tree mode mst",
			"!",
			"! Configure MST instance to VLAN mapping",
			"spanning-tree mst configuration",
			" name "+name+"-REGION",
			" revision 1",
		)
		instances := []int{0}
		if len(opts.MSTInstances) > 0 {
			keys := make([]int, 0, len(opts.MSTInstances))
			for k := range opts.MSTInstances {
				keys = append(keys, k)
			}
			sort.Ints(keys)
			for _, k := range keys {
				lines = append(lines, fmt.Sprintf(" instance %d vlan %s", k, joinInts(opts.MSTInstances[k], ",")))
			}
			instances = append(instances, keys...)
		} else {
			lines = append(lines, " instance 1 vlan 10, 20", " instance 2 vlan 30, 40")
			instances = append(instances, 1, 2)
		}
		lines = append(lines, "!", stpRoleComment[opts.Role])
		for _, inst := range instances {
			lines = append(lines, fmt.Sprintf("spanning-tree mst %d priority %d", inst, priority))
		}
	default:
		lines = append(lines, "spanning-tree mode "+opts.Mode)
		for _, v := range opts.VLANs {
			lines = append(lines, fmt.Sprintf("spanning-tree vlan %d priority %d", v, priority))
		}
	}

	lines = append(lines,
		"!",
		"! Common STP features",
		"spanning-tree extend system-id",
		"spanning-tree portfast edge default",
		"spanning-tree portfast bpduguard default",
		"!",
		"! Configure interfaces",
		"!",
		"interface range GigabitEthernet0/0 - 7",
		" switchport trunk encapsulation dot1q",
		" switchport mode trunk",
		" switchport trunk allowed vlan all",
		" no shutdown",
		"!",
		"! Management interface",
		"interface Vlan1",
		fmt.Sprintf(" ip address 10.0.0.%d 255.255.255.0", opts.VLANs[0]),
		" no shutdown",
		"!",
		"! End of configuration",
	)
	return strings.Join(lines, "\n"), nil
}

func joinInts(vals []int, sep string) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, sep)
}
