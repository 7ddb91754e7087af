package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/newtron-network/cmlkit/pkg/configlet"
	"github.com/newtron-network/cmlkit/pkg/labgen"
)

type expandArgs struct {
	Template   string         `json:"template" validate:"required" desc:"Template name, see list_templates"`
	Parameters map[string]any `json:"parameters" desc:"Template parameter values"`
}

type applyArgs struct {
	Template    string         `json:"template" validate:"required" desc:"Template name, see list_templates"`
	Parameters  map[string]any `json:"parameters" desc:"Template parameter values"`
	LabID       string         `json:"lab_id" desc:"Existing lab to build into; a new lab is created when empty"`
	Title       string         `json:"title" desc:"Title of the new lab, defaults to the template name"`
	Description string         `json:"description" desc:"Description of the new lab"`
}

type renderArgs struct {
	Name string            `json:"name" validate:"required" desc:"Configlet name, see list_configlets"`
	Vars map[string]string `json:"vars" desc:"Variable values"`
}

type stpArgs struct {
	SwitchName string `json:"switch_name" validate:"required" desc:"Switch hostname"`
	Mode       string `json:"stp_mode" default:"mst" validate:"oneof=mst rapid-pvst pvst" desc:"Spanning-tree mode"`
	Role       string `json:"role" default:"root" validate:"oneof=root secondary normal" desc:"Bridge role"`
	VLANs      []int  `json:"vlans" validate:"dive,min=1,max=4094" desc:"VLANs to create, defaults to 1,10,20,30,40"`
}

// TemplateInfo describes a template to an agent.
type TemplateInfo struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  []labgen.Parameter `json:"parameters"`
}

// ConfigletInfo describes a configlet without its body.
type ConfigletInfo struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Platform    string               `json:"platform,omitempty"`
	Variables   []configlet.Variable `json:"variables"`
}

func (c *Catalog) templates() (*labgen.Registry, error) {
	if c.deps.Templates == nil {
		return nil, fmt.Errorf("template registry: %w", errUnavailable)
	}
	return c.deps.Templates, nil
}

func (c *Catalog) configlets() (*configlet.Registry, error) {
	if c.deps.Configlets == nil {
		return nil, fmt.Errorf("configlet registry: %w", errUnavailable)
	}
	return c.deps.Configlets, nil
}

func (c *Catalog) registerTemplateOps() {
	ctrl := c.deps.Controller

	register(c, "list_templates", "List topology templates and their parameters.", false,
		func(ctx context.Context, _ noArgs) (any, error) {
			reg, err := c.templates()
			if err != nil {
				return nil, err
			}
			out := []TemplateInfo{}
			for _, t := range reg.List() {
				params := t.Parameters
				if params == nil {
					params = []labgen.Parameter{}
				}
				out = append(out, TemplateInfo{Name: t.Name, Description: t.Description, Parameters: params})
			}
			return out, nil
		})

	register(c, "expand_template", "Expand a template into the ordered steps it would run, without changing anything.", false,
		func(ctx context.Context, a expandArgs) (any, error) {
			reg, err := c.templates()
			if err != nil {
				return nil, err
			}
			return reg.Expand(a.Template, a.Parameters)
		})

	register(c, "apply_template", "Build a template's topology in a new or existing lab.", true,
		func(ctx context.Context, a applyArgs) (any, error) {
			reg, err := c.templates()
			if err != nil {
				return nil, err
			}
			plan, err := reg.Expand(a.Template, a.Parameters)
			if err != nil {
				return nil, err
			}

			labID := a.LabID
			created := false
			if labID == "" {
				title := a.Title
				if title == "" {
					title = a.Template
				}
				lab, err := ctrl.CreateLab(ctx, title, a.Description)
				if err != nil {
					return nil, err
				}
				labID, created = lab.ID, true
			}
			res, err := ctrl.ExecutePlan(ctx, labID, plan)
			var perr *labgen.PartialExecutionError
			if created && errors.As(err, &perr) {
				// the lab itself goes last
				perr.Rollback = append(perr.Rollback, labgen.Undo{
					Operation: "delete_lab",
					Args:      map[string]string{"lab_id": labID},
				})
			}
			return res, err
		})

	register(c, "list_configlets", "List configuration snippets and their variables.", false,
		func(ctx context.Context, _ noArgs) (any, error) {
			reg, err := c.configlets()
			if err != nil {
				return nil, err
			}
			out := []ConfigletInfo{}
			for _, cfg := range reg.List() {
				vars := cfg.Variables
				if vars == nil {
					vars = []configlet.Variable{}
				}
				out = append(out, ConfigletInfo{Name: cfg.Name, Description: cfg.Description, Platform: cfg.Platform, Variables: vars})
			}
			return out, nil
		})

	register(c, "render_configlet", "Render a configuration snippet with the given variables.", false,
		func(ctx context.Context, a renderArgs) (any, error) {
			reg, err := c.configlets()
			if err != nil {
				return nil, err
			}
			out, err := reg.Render(a.Name, a.Vars)
			if err != nil {
				return nil, err
			}
			return map[string]any{"name": a.Name, "config": out}, nil
		})

	register(c, "generate_stp_config", "Generate a spanning-tree configuration for an IOS L2 switch.", false,
		func(ctx context.Context, a stpArgs) (any, error) {
			out, err := configlet.GenerateSTP(configlet.STPOptions{
				SwitchName: a.SwitchName,
				Mode:       a.Mode,
				Role:       a.Role,
				VLANs:      a.VLANs,
			})
			if err != nil {
				return nil, err
			}
			return map[string]any{"switch_name": a.SwitchName, "config": out}, nil
		})
}
