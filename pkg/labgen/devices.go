package labgen

// DeviceDefaults is the number of interfaces a node of each device type is
// given when a template does not say otherwise. Nodes that need more links
// than this get as many interfaces as they have links.
var DeviceDefaults = map[string]int{
	"iosv":               4,
	"iosvl2":             8,
	"csr1000v":           4,
	"iosxrv9000":         4,
	"nxosv9000":          8,
	"alpine":             1,
	"ubuntu":             1,
	"server":             1,
	"unmanaged_switch":   8,
	"external_connector": 1,
}

// defaultInterfaces is used for device types missing from DeviceDefaults.
const defaultInterfaces = 1

func interfacesFor(definition string, override, needed int) int {
	n := override
	if n <= 0 {
		var ok bool
		if n, ok = DeviceDefaults[definition]; !ok {
			n = defaultInterfaces
		}
	}
	if needed > n {
		n = needed
	}
	return n
}
