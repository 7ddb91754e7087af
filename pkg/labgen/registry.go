package labgen

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/newtron-network/cmlkit/pkg/configlet"
	"github.com/newtron-network/cmlkit/pkg/util"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Registry holds named templates. It is populated at startup and read-only
// afterwards, so concurrent Get and Expand calls need no locking.
type Registry struct {
	templates map[string]*Template
	configs   *configlet.Registry
}

// NewRegistry returns a registry holding the built-in templates. configs is
// used to render node configurations during expansion.
func NewRegistry(configs *configlet.Registry) (*Registry, error) {
	r := &Registry{templates: make(map[string]*Template), configs: configs}
	entries, err := fs.ReadDir(builtinFS, "builtin")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		data, err := builtinFS.ReadFile("builtin/" + e.Name())
		if err != nil {
			return nil, err
		}
		if err := r.add(data, e.Name()); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// LoadDir adds every *.yaml template in dir, replacing built-ins of the
// same name. It must be called before the registry is shared.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading template dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := r.add(data, path); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) add(data []byte, source string) error {
	t, err := ParseTemplate(data)
	if err != nil {
		return fmt.Errorf("%s: %w", source, err)
	}
	if _, ok := r.templates[t.Name]; ok {
		util.WithField("template", t.Name).Debugf("Replacing template from %s", source)
	}
	r.templates[t.Name] = t
	return nil
}

// Get returns the named template.
func (r *Registry) Get(name string) (*Template, bool) {
	t, ok := r.templates[name]
	return t, ok
}

// List returns all templates sorted by name.
func (r *Registry) List() []*Template {
	out := make([]*Template, 0, len(r.templates))
	for _, t := range r.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Expand looks up name and expands it with params.
func (r *Registry) Expand(name string, params map[string]any) (*Plan, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, templateErr(CodeUnknownTemplate, name, "", "no such template")
	}
	return Expand(t, params, r.configs)
}
