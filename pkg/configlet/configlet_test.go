package configlet

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/newtron-network/cmlkit/pkg/util"
)

func TestResolveVariables(t *testing.T) {
	tests := []struct {
		name string
		in   string
		vars map[string]string
		want string
	}{
		{"simple", "hostname {{hostname}}", map[string]string{"hostname": "R1"}, "hostname R1"},
		{"spaces", "hostname {{ hostname }}", map[string]string{"hostname": "R1"}, "hostname R1"},
		{"repeated", "{{a}}-{{a}}", map[string]string{"a": "x"}, "x-x"},
		{"missing kept", "ip {{ip}}", map[string]string{}, "ip {{ip}}"},
		{"no placeholders", "plain", nil, "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveVariables(tt.in, tt.vars); got != tt.want {
				t.Errorf("ResolveVariables() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPlaceholders(t *testing.T) {
	got := Placeholders("{{b}} {{a}} {{ b }}")
	want := []string{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Placeholders() = %v, want %v", got, want)
	}
}

func TestRegistry_Builtins(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	var names []string
	for _, c := range r.List() {
		names = append(names, c.Name)
	}
	want := []string{"basic-router", "basic-switch", "ospf", "ospf-router"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("List() = %v, want %v", names, want)
	}
}

func TestRender(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatal(err)
	}

	out, err := r.Render("basic-router", map[string]string{"hostname": "R1", "interface_ip": "10.0.0.1"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	for _, want := range []string{"hostname R1", " ip address 10.0.0.1 255.255.255.0", "interface GigabitEthernet0/0"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered config missing %q:\n%s", want, out)
		}
	}

	_, err = r.Render("basic-router", map[string]string{"hostname": "R1"})
	var missing *MissingVariablesError
	if !errors.As(err, &missing) || !reflect.DeepEqual(missing.Missing, []string{"interface_ip"}) {
		t.Errorf("Render() missing error = %v", err)
	}
	if !errors.Is(err, util.ErrValidationFailed) {
		t.Error("MissingVariablesError should wrap ErrValidationFailed")
	}

	if _, err := r.Render("nope", nil); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("Render(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	good := "name: banner\ndescription: login banner\nvariables:\n  - name: text\nbody: |\n  banner motd ^{{text}}^\n"
	if err := os.WriteFile(filepath.Join(dir, "banner.yaml"), []byte(good), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0644); err != nil {
		t.Fatal(err)
	}

	r, err := NewRegistry()
	if err != nil {
		t.Fatal(err)
	}
	if err := r.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	out, err := r.Render("banner", map[string]string{"text": "hi"})
	if err != nil || out != "banner motd ^hi^\n" {
		t.Errorf("Render(banner) = %q, %v", out, err)
	}

	bad := "name: broken\nbody: |\n  hostname {{undeclared}}\n"
	if err := os.WriteFile(filepath.Join(dir, "broken.yml"), []byte(bad), 0644); err != nil {
		t.Fatal(err)
	}
	if err := r.LoadDir(dir); err == nil {
		t.Error("LoadDir() with undeclared placeholder should fail")
	}
}

// ===================== STP Tests =====================

func TestGenerateSTP_MSTRoot(t *testing.T) {
	out, err := GenerateSTP(STPOptions{SwitchName: "SW1"})
	if err != nil {
		t.Fatalf("GenerateSTP() error = %v", err)
	}
	for _, want := range []string{
		"hostname SW1",
		"vlan 10\n name VLAN10",
		"spanning-tree mode mst",
		" name SW1-REGION",
		" instance 1 vlan 10, 20",
		"spanning-tree mst 0 priority 4096",
		"spanning-tree mst 2 priority 4096",
		" ip address 10.0.0.1 255.255.255.0",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if strings.Contains(out, "vlan 1\n") {
		t.Error("default VLAN 1 should not be declared")
	}
}

func TestGenerateSTP_Modes(t *testing.T) {
	tests := []struct {
		mode, role string
		want       string
	}{
		{STPModeRapidPVST, STPRoleSecondary, "spanning-tree vlan 20 priority 8192"},
		{STPModePVST, STPRoleNormal, "spanning-tree vlan 40 priority 32768"},
		{STPModeMST, STPRoleNormal, "spanning-tree mst 1 priority 32768"},
	}
	for _, tt := range tests {
		t.Run(tt.mode+"/"+tt.role, func(t *testing.T) {
			out, err := GenerateSTP(STPOptions{SwitchName: "SW", Mode: tt.mode, Role: tt.role})
			if err != nil {
				t.Fatalf("GenerateSTP() error = %v", err)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("output missing %q", tt.want)
			}
			if !strings.Contains(out, "spanning-tree mode "+tt.mode) {
				t.Errorf("output missing mode line")
			}
		})
	}
}

func TestGenerateSTP_CustomInstances(t *testing.T) {
	out, err := GenerateSTP(STPOptions{
		SwitchName:   "SW",
		VLANs:        []int{100, 200},
		MSTInstances: map[int][]int{5: {100}, 3: {200}},
	})
	if err != nil {
		t.Fatal(err)
	}
	i3 := strings.Index(out, " instance 3 vlan 200")
	i5 := strings.Index(out, " instance 5 vlan 100")
	if i3 < 0 || i5 < 0 || i3 > i5 {
		t.Errorf("instances missing or unordered:\n%s", out)
	}
	if !strings.Contains(out, "10.0.0.100") {
		t.Error("management address should use the first VLAN")
	}
}

func TestGenerateSTP_Invalid(t *testing.T) {
	tests := []STPOptions{
		{},
		{SwitchName: "SW", Mode: "bogus"},
		{SwitchName: "SW", Role: "leader"},
		{SwitchName: "SW", VLANs: []int{0}},
	}
	for _, opts := range tests {
		if _, err := GenerateSTP(opts); !errors.Is(err, util.ErrValidationFailed) {
			t.Errorf("GenerateSTP(%+v) error = %v, want validation failure", opts, err)
		}
	}
}
