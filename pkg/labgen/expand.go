package labgen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/newtron-network/cmlkit/pkg/configlet"
)

var placeholderNames = configlet.Placeholders

type plannedNode struct {
	label      string
	group      string
	definition string
	x, y       int
	override   int
	used       int
	vars       map[string]string
	configlet  string
}

type plannedLink struct {
	a, z string
}

type expander struct {
	tmpl     *Template
	configs  *configlet.Registry
	vars     map[string]string
	nodes    []*plannedNode
	byLabel  map[string]*plannedNode
	groups   map[string][]*plannedNode
	excluded map[string]bool
	links    []plannedLink
}

// Expand resolves params against the template and produces a Plan. No
// remote call is made; every error is a *TemplateError. configs renders
// the configlets that node groups reference and may be nil when no group
// names one.
func Expand(t *Template, params map[string]any, configs *configlet.Registry) (*Plan, error) {
	resolved, err := t.ResolveParams(params)
	if err != nil {
		return nil, err
	}
	e := &expander{
		tmpl:     t,
		configs:  configs,
		vars:     stringVars(resolved),
		byLabel:  make(map[string]*plannedNode),
		groups:   make(map[string][]*plannedNode),
		excluded: make(map[string]bool),
	}
	if err := e.expandNodes(); err != nil {
		return nil, err
	}
	if err := e.expandLinks(); err != nil {
		return nil, err
	}
	return e.plan(resolved)
}

func (e *expander) invalid(format string, args ...any) error {
	return templateErr(CodeInvalidTemplate, e.tmpl.Name, "", format, args...)
}

// resolve substitutes vars into s and fails if anything is left unresolved.
func (e *expander) resolve(where, s string, vars map[string]string) (string, error) {
	out := configlet.ResolveVariables(s, vars)
	if left := placeholderNames(out); len(left) > 0 {
		return "", e.invalid("%s: no value for %s", where, strings.Join(left, ", "))
	}
	return out, nil
}

func (e *expander) resolveInt(where, s string, vars map[string]string) (int, error) {
	v, err := e.resolve(where, s, vars)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, e.invalid("%s: %q is not an integer", where, v)
	}
	return n, nil
}

// condition evaluates a `when` expression. Supported forms are a bare
// boolean ("true", "{{flag}}") and an integer comparison such as
// "{{switches}} >= 4".
func (e *expander) condition(where string, when Expr, vars map[string]string) (bool, error) {
	if strings.TrimSpace(string(when)) == "" {
		return true, nil
	}
	s, err := e.resolve(where, string(when), vars)
	if err != nil {
		return false, err
	}
	s = strings.TrimSpace(s)
	if b, err := strconv.ParseBool(s); err == nil {
		return b, nil
	}

	for _, op := range []string{">=", "<=", "==", "!=", ">", "<"} {
		lhs, rhs, ok := strings.Cut(s, op)
		if !ok {
			continue
		}
		l, lerr := strconv.Atoi(strings.TrimSpace(lhs))
		r, rerr := strconv.Atoi(strings.TrimSpace(rhs))
		if lerr != nil || rerr != nil {
			return false, e.invalid("%s: cannot compare %q", where, s)
		}
		switch op {
		case ">=":
			return l >= r, nil
		case "<=":
			return l <= r, nil
		case "==":
			return l == r, nil
		case "!=":
			return l != r, nil
		case ">":
			return l > r, nil
		default:
			return l < r, nil
		}
	}
	return false, e.invalid("%s: cannot evaluate condition %q", where, s)
}

func (e *expander) expandNodes() error {
	seq := 0
	for _, g := range e.tmpl.Nodes {
		where := "node group " + g.Name
		groupVars := configlet.MergeVars(e.vars, map[string]string{"group": g.Name})

		ok, err := e.condition(where, g.When, groupVars)
		if err != nil {
			return err
		}
		if !ok {
			e.excluded[g.Name] = true
			continue
		}

		count, err := e.resolveInt(where+" count", string(g.Count), groupVars)
		if err != nil {
			return err
		}
		if count < 1 {
			return e.invalid("%s: count resolved to %d", where, count)
		}
		def, err := e.resolve(where+" node_definition", string(g.NodeDefinition), groupVars)
		if err != nil {
			return err
		}
		groupVars["count"] = strconv.Itoa(count)
		override := 0
		if g.Interfaces != "" {
			if override, err = e.resolveInt(where+" interfaces", string(g.Interfaces), groupVars); err != nil {
				return err
			}
		}

		dx, dy := g.DX, g.DY
		if dx == 0 && dy == 0 {
			dx = 150
		}

		for i := 1; i <= count; i++ {
			seq++
			nodeVars := configlet.MergeVars(groupVars, map[string]string{
				"index": strconv.Itoa(i),
				"seq":   strconv.Itoa(seq),
			})
			label, err := e.resolve(where+" label", g.Label, nodeVars)
			if err != nil {
				return err
			}
			if _, dup := e.byLabel[label]; dup {
				return e.invalid("%s: duplicate node label %q", where, label)
			}
			n := &plannedNode{
				label:      label,
				group:      g.Name,
				definition: def,
				x:          g.X + (i-1)*dx,
				y:          g.Y + (i-1)*dy,
				override:   override,
				vars:       nodeVars,
				configlet:  g.Configlet,
			}
			n.vars["hostname"] = label
			e.nodes = append(e.nodes, n)
			e.byLabel[label] = n
			e.groups[g.Name] = append(e.groups[g.Name], n)
		}
	}
	return nil
}

func (e *expander) expandLinks() error {
	for i, r := range e.tmpl.Links {
		where := fmt.Sprintf("link rule %d", i+1)
		ok, err := e.condition(where, r.When, e.vars)
		if err != nil {
			return err
		}
		if !ok || e.excluded[r.Group] || e.excluded[r.Peer] {
			continue
		}

		group, peer := e.groups[r.Group], e.groups[r.Peer]
		switch r.Pattern {
		case PatternChain, PatternRing:
			for j := 0; j+1 < len(group); j++ {
				e.connect(group[j], group[j+1])
			}
			if r.Pattern == PatternRing && len(group) > 2 {
				e.connect(group[len(group)-1], group[0])
			}
		case PatternMesh:
			for a := 0; a < len(group); a++ {
				for z := a + 1; z < len(group); z++ {
					e.connect(group[a], group[z])
				}
			}
		case PatternStar:
			hub := peer[0]
			if r.A != "" {
				if hub, err = e.member(where, r.A); err != nil {
					return err
				}
			}
			for _, n := range group {
				if n != hub {
					e.connect(hub, n)
				}
			}
		case PatternPairs:
			if len(group) != len(peer) {
				return e.invalid("%s: pairs needs equal group sizes, got %d and %d", where, len(group), len(peer))
			}
			for j := range group {
				e.connect(group[j], peer[j])
			}
		case PatternFull:
			for _, a := range group {
				for _, z := range peer {
					e.connect(a, z)
				}
			}
		default:
			a, err := e.member(where, r.A)
			if err != nil {
				return err
			}
			z, err := e.member(where, r.Z)
			if err != nil {
				return err
			}
			if a == z {
				return e.invalid("%s: link from %s to itself", where, a.label)
			}
			e.connect(a, z)
		}
	}
	return nil
}

// member resolves a "group:index" reference to a planned node. Explicit
// references to an excluded group are template errors.
func (e *expander) member(where string, ref Expr) (*plannedNode, error) {
	s, err := e.resolve(where, string(ref), e.vars)
	if err != nil {
		return nil, err
	}
	name, idx, _ := strings.Cut(s, ":")
	if e.excluded[name] {
		return nil, e.invalid("%s: group %s is excluded by its condition", where, name)
	}
	i, err := strconv.Atoi(strings.TrimSpace(idx))
	group := e.groups[name]
	if err != nil || i < 1 || i > len(group) {
		return nil, e.invalid("%s: %q is out of range (group %s has %d nodes)", where, s, name, len(group))
	}
	return group[i-1], nil
}

// connect assigns the next free slot on each end.
func (e *expander) connect(a, z *plannedNode) {
	e.links = append(e.links, plannedLink{
		a: endpoint(a.label, a.used),
		z: endpoint(z.label, z.used),
	})
	a.used++
	z.used++
}

func (e *expander) plan(params map[string]any) (*Plan, error) {
	p := &Plan{Template: e.tmpl.Name, Parameters: params}
	add := func(s Step) {
		s.Index = len(p.Steps)
		p.Steps = append(p.Steps, s)
	}

	for _, n := range e.nodes {
		add(Step{Kind: StepCreateNode, Node: n.label, NodeDefinition: n.definition, X: n.x, Y: n.y})
	}
	for _, n := range e.nodes {
		add(Step{Kind: StepCreateInterfaces, Node: n.label, Interfaces: interfacesFor(n.definition, n.override, n.used)})
	}
	for _, l := range e.links {
		add(Step{Kind: StepCreateLink, A: l.a, Z: l.z})
	}

	for _, n := range e.nodes {
		if n.configlet == "" {
			continue
		}
		cfg, err := e.render(n)
		if err != nil {
			return nil, err
		}
		add(Step{Kind: StepPushConfig, Node: n.label, Config: cfg})
	}
	return p, nil
}

func (e *expander) render(n *plannedNode) (string, error) {
	where := "node " + n.label
	if e.configs == nil {
		return "", e.invalid("%s: configlet %s requested but no configlets are loaded", where, n.configlet)
	}
	c, ok := e.configs.Get(n.configlet)
	if !ok {
		return "", e.invalid("%s: unknown configlet %s", where, n.configlet)
	}

	group, _ := e.tmpl.group(n.group)
	vars := configlet.MergeVars(n.vars)
	for k, v := range group.Vars {
		resolved, err := e.resolve(where+" var "+k, v, n.vars)
		if err != nil {
			return "", err
		}
		vars[k] = resolved
	}
	out, err := c.Render(vars)
	if err != nil {
		return "", e.invalid("%s: %v", where, err)
	}
	return out, nil
}
