// Package labgen expands parameterised topology templates into ordered
// plans of create operations and executes those plans against a lab.
//
// Templates are YAML documents. A template declares typed parameters, node
// groups whose size and labels may depend on those parameters, and link
// rules that wire the groups together:
//
//	name: point-to-point
//	parameters:
//	  - name: routerCount
//	    type: int
//	    default: 2
//	nodes:
//	  - name: routers
//	    label: R{{index}}
//	    count: "{{routerCount}}"
//	    node_definition: iosv
//	links:
//	  - pattern: chain
//	    group: routers
package labgen

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParamType is the type of a template parameter.
type ParamType string

const (
	TypeInt    ParamType = "int"
	TypeString ParamType = "string"
	TypeBool   ParamType = "bool"
)

// Link rule patterns.
const (
	PatternChain    = "chain"
	PatternRing     = "ring"
	PatternMesh     = "mesh"
	PatternStar     = "star"
	PatternPairs    = "pairs"
	PatternFull     = "full"
	PatternExplicit = "explicit"
)

// Expr is a scalar that may contain {{placeholders}}. It accepts any YAML
// scalar, so both `count: 2` and `count: "{{n}}"` decode.
type Expr string

// UnmarshalYAML implements yaml.Unmarshaler.
func (e *Expr) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar", n.Line)
	}
	*e = Expr(n.Value)
	return nil
}

// Parameter is one entry of a template's parameter schema.
type Parameter struct {
	Name        string    `yaml:"name" json:"name"`
	Type        ParamType `yaml:"type" json:"type"`
	Required    bool      `yaml:"required,omitempty" json:"required,omitempty"`
	Default     any       `yaml:"default,omitempty" json:"default,omitempty"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
	Min         *int      `yaml:"min,omitempty" json:"min,omitempty"`
	Max         *int      `yaml:"max,omitempty" json:"max,omitempty"`
	Enum        []string  `yaml:"enum,omitempty" json:"enum,omitempty"`
}

// NodeGroup generates Count nodes of one device type.
type NodeGroup struct {
	Name           string            `yaml:"name"`
	Label          string            `yaml:"label"`
	Count          Expr              `yaml:"count"`
	NodeDefinition Expr              `yaml:"node_definition"`
	Interfaces     Expr              `yaml:"interfaces,omitempty"`
	When           Expr              `yaml:"when,omitempty"`
	X              int               `yaml:"x,omitempty"`
	Y              int               `yaml:"y,omitempty"`
	DX             int               `yaml:"dx,omitempty"`
	DY             int               `yaml:"dy,omitempty"`
	Configlet      string            `yaml:"configlet,omitempty"`
	Vars           map[string]string `yaml:"vars,omitempty"`
}

// LinkRule generates links between group members.
//
//	chain    group[i] - group[i+1]
//	ring     chain plus last - first
//	mesh     every pair within group
//	star     hub (peer:1 unless a is given) - every member of group
//	pairs    group[i] - peer[i]
//	full     every member of group - every member of peer
//	explicit a - z, both written as group:index
type LinkRule struct {
	Pattern string `yaml:"pattern"`
	Group   string `yaml:"group,omitempty"`
	Peer    string `yaml:"peer,omitempty"`
	A       Expr   `yaml:"a,omitempty"`
	Z       Expr   `yaml:"z,omitempty"`
	When    Expr   `yaml:"when,omitempty"`
}

// Template is immutable once loaded into a Registry.
type Template struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Parameters  []Parameter `yaml:"parameters"`
	Nodes       []NodeGroup `yaml:"nodes"`
	Links       []LinkRule  `yaml:"links"`
}

// Param returns the named parameter.
func (t *Template) Param(name string) (Parameter, bool) {
	for _, p := range t.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

func (t *Template) group(name string) (NodeGroup, bool) {
	for _, g := range t.Nodes {
		if g.Name == name {
			return g, true
		}
	}
	return NodeGroup{}, false
}

// ParseTemplate decodes and validates a YAML template.
func ParseTemplate(data []byte) (*Template, error) {
	var t Template
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("parsing template YAML: %w", err)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// builtinVars are placeholders available to every node expression.
var builtinVars = map[string]bool{"index": true, "seq": true, "group": true, "count": true}

func (t *Template) validate() error {
	invalid := func(format string, args ...any) error {
		return templateErr(CodeInvalidTemplate, t.Name, "", format, args...)
	}

	if t.Name == "" {
		return invalid("name is required")
	}
	if len(t.Nodes) == 0 {
		return invalid("at least one node group is required")
	}

	params := make(map[string]bool)
	for _, p := range t.Parameters {
		if p.Name == "" || builtinVars[p.Name] {
			return invalid("parameter name %q is empty or reserved", p.Name)
		}
		if params[p.Name] {
			return invalid("parameter %s declared twice", p.Name)
		}
		params[p.Name] = true
		switch p.Type {
		case TypeInt, TypeString, TypeBool:
		default:
			return invalid("parameter %s: unknown type %q", p.Name, p.Type)
		}
		if p.Default != nil {
			if _, err := coerce(t.Name, p, p.Default); err != nil {
				return invalid("parameter %s: bad default: %v", p.Name, err)
			}
		}
	}

	checkRefs := func(where, s string) error {
		for _, ref := range placeholderNames(s) {
			if !params[ref] && !builtinVars[ref] {
				return invalid("%s references undeclared parameter %q", where, ref)
			}
		}
		return nil
	}

	groups := make(map[string]bool)
	for _, g := range t.Nodes {
		where := "node group " + g.Name
		if g.Name == "" {
			return invalid("node group without name")
		}
		if groups[g.Name] {
			return invalid("node group %s declared twice", g.Name)
		}
		groups[g.Name] = true
		if g.Label == "" || g.Count == "" || g.NodeDefinition == "" {
			return invalid("%s: label, count and node_definition are required", where)
		}
		for _, s := range []string{g.Label, string(g.Count), string(g.NodeDefinition), string(g.Interfaces), string(g.When)} {
			if err := checkRefs(where, s); err != nil {
				return err
			}
		}
		for _, v := range g.Vars {
			if err := checkRefs(where, v); err != nil {
				return err
			}
		}
	}

	for i, l := range t.Links {
		where := fmt.Sprintf("link rule %d", i+1)
		if err := checkRefs(where, string(l.When)); err != nil {
			return err
		}
		switch l.Pattern {
		case PatternChain, PatternRing, PatternMesh:
			if !groups[l.Group] {
				return invalid("%s: unknown group %q", where, l.Group)
			}
		case PatternStar, PatternPairs, PatternFull:
			if !groups[l.Group] || !groups[l.Peer] {
				return invalid("%s: unknown group %q or peer %q", where, l.Group, l.Peer)
			}
		case PatternExplicit, "":
			for _, ep := range []Expr{l.A, l.Z} {
				g, _, ok := strings.Cut(string(ep), ":")
				if !ok || !groups[g] {
					return invalid("%s: endpoint %q must be group:index of a declared group", where, ep)
				}
				if err := checkRefs(where, string(ep)); err != nil {
					return err
				}
			}
		default:
			return invalid("%s: unknown pattern %q", where, l.Pattern)
		}
	}
	return nil
}
