// Package configlet renders device configuration snippets from
// {{variable}} templates.
package configlet

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/newtron-network/cmlkit/pkg/util"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Variable documents one placeholder of a configlet.
type Variable struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Default     string `yaml:"default,omitempty" json:"default,omitempty"`
	Required    bool   `yaml:"required,omitempty" json:"required,omitempty"`
}

// Configlet is a named configuration snippet.
type Configlet struct {
	Name        string     `yaml:"name" json:"name"`
	Description string     `yaml:"description" json:"description"`
	Platform    string     `yaml:"platform,omitempty" json:"platform,omitempty"`
	Variables   []Variable `yaml:"variables,omitempty" json:"variables,omitempty"`
	Body        string     `yaml:"body" json:"body"`
}

// MissingVariablesError reports placeholders left without a value.
type MissingVariablesError struct {
	Configlet string
	Missing   []string
}

func (e *MissingVariablesError) Error() string {
	return fmt.Sprintf("configlet %s: missing variables: %s", e.Configlet, strings.Join(e.Missing, ", "))
}

func (e *MissingVariablesError) Unwrap() error {
	return util.ErrValidationFailed
}

// Defaults returns the default value of every variable that has one.
func (c *Configlet) Defaults() map[string]string {
	out := make(map[string]string)
	for _, v := range c.Variables {
		if v.Default != "" {
			out[v.Name] = v.Default
		}
	}
	return out
}

// Render resolves the body against defaults overlaid with vars. Any
// placeholder still unresolved afterwards is an error.
func (c *Configlet) Render(vars map[string]string) (string, error) {
	out := ResolveVariables(c.Body, MergeVars(c.Defaults(), vars))
	if missing := Placeholders(out); len(missing) > 0 {
		return "", &MissingVariablesError{Configlet: c.Name, Missing: missing}
	}
	return out, nil
}

func (c *Configlet) validate() error {
	vb := &util.ValidationBuilder{}
	vb.Add(c.Name != "", "configlet name is required")
	vb.Add(strings.TrimSpace(c.Body) != "", fmt.Sprintf("configlet %s: body is required", c.Name))

	declared := make(map[string]bool, len(c.Variables))
	for _, v := range c.Variables {
		declared[v.Name] = true
	}
	for _, p := range Placeholders(c.Body) {
		if !declared[p] {
			vb.AddErrorf("configlet %s: placeholder {{%s}} is not declared", c.Name, p)
		}
	}
	return vb.Build()
}

// Registry is a set of configlets keyed by name. It is read-only after
// loading finishes.
type Registry struct {
	byName map[string]*Configlet
}

// NewRegistry returns a registry holding the built-in configlets.
func NewRegistry() (*Registry, error) {
	r := &Registry{byName: make(map[string]*Configlet)}
	entries, err := fs.Glob(builtinFS, "builtin/*.yaml")
	if err != nil {
		return nil, err
	}
	for _, name := range entries {
		data, err := builtinFS.ReadFile(name)
		if err != nil {
			return nil, err
		}
		if err := r.add(data, name); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// LoadDir adds every *.yaml and *.yml file in dir. A configlet with the same
// name as an existing one replaces it.
func (r *Registry) LoadDir(dir string) error {
	files, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading configlet dir: %w", err)
	}
	for _, f := range files {
		ext := filepath.Ext(f.Name())
		if f.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		path := filepath.Join(dir, f.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading configlet: %w", err)
		}
		if err := r.add(data, path); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) add(data []byte, source string) error {
	var c Configlet
	if err := yaml.Unmarshal(data, &c); err != nil {
		return fmt.Errorf("parsing configlet %s: %w", source, err)
	}
	c.Body = normalizeBody(c.Body)
	if err := c.validate(); err != nil {
		return fmt.Errorf("%s: %w", source, err)
	}
	if _, exists := r.byName[c.Name]; exists {
		util.Debugf("configlet %s from %s overrides an earlier definition", c.Name, source)
	}
	r.byName[c.Name] = &c
	return nil
}

// Get returns a configlet by name.
func (r *Registry) Get(name string) (*Configlet, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// List returns all configlets sorted by name.
func (r *Registry) List() []*Configlet {
	out := make([]*Configlet, 0, len(r.byName))
	for _, c := range r.byName {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Render resolves a configlet by name.
func (r *Registry) Render(name string, vars map[string]string) (string, error) {
	c, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("configlet %s: %w", name, util.ErrNotFound)
	}
	return c.Render(vars)
}
