package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/newtron-network/cmlkit/pkg/cli"
	"github.com/newtron-network/cmlkit/pkg/labgen"
)

var listConfiglets bool

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List topology templates (or configlets)",
	Long: `List the topology templates apply_template can build, with their
parameters. Templates in the template_dir setting are listed alongside the
built-in ones.

Examples:
  cmlkit templates
  cmlkit templates --configlets`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		configs, templates, err := loadRegistries(userSettings)
		if err != nil {
			return err
		}

		if listConfiglets {
			list := configs.List()
			if jsonOutput {
				return printJSON(list)
			}
			t := cli.NewTable("CONFIGLET", "PLATFORM", "VARIABLES", "DESCRIPTION")
			for _, c := range list {
				names := make([]string, 0, len(c.Variables))
				for _, v := range c.Variables {
					names = append(names, v.Name)
				}
				t.Row(c.Name, c.Platform, strings.Join(names, ", "), c.Description)
			}
			t.Flush()
			return nil
		}

		list := templates.List()
		if jsonOutput {
			return printJSON(list)
		}
		t := cli.NewTable("TEMPLATE", "PARAMETERS", "DESCRIPTION")
		for _, tmpl := range list {
			t.Row(tmpl.Name, describeParams(tmpl.Parameters), tmpl.Description)
		}
		t.Flush()
		return nil
	},
}

var expandParams []string

var expandCmd = &cobra.Command{
	Use:   "expand <template>",
	Short: "Show the plan a template expands to, without touching the controller",
	Long: `Expand a topology template with the given parameters and print the
resulting plan of create operations. Nothing is sent to the controller.

Parameter values are parsed as YAML scalars, so numbers and booleans keep
their type.

Examples:
  cmlkit expand point-to-point
  cmlkit expand stp-campus -p switches=4
  cmlkit expand ospf-pair -p area=1 --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := parseParams(expandParams)
		if err != nil {
			return err
		}
		_, templates, err := loadRegistries(userSettings)
		if err != nil {
			return err
		}

		plan, err := templates.Expand(args[0], params)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(plan)
		}
		printPlan(plan)
		return nil
	},
}

// parseParams turns key=value pairs into template parameters.
func parseParams(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("parameter %q must be key=value", pair)
		}
		var v any
		if err := yaml.Unmarshal([]byte(value), &v); err != nil || v == nil {
			v = value
		}
		params[key] = v
	}
	return params, nil
}

func describeParams(params []labgen.Parameter) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		s := p.Name + ":" + string(p.Type)
		if p.Default != nil {
			s += "=" + fmt.Sprint(p.Default)
		}
		if p.Required {
			s += "*"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

func printPlan(plan *labgen.Plan) {
	fmt.Println(cli.Bold(plan.Summary()))

	keys := make([]string, 0, len(plan.Parameters))
	for k := range plan.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %s = %v\n", k, plan.Parameters[k])
	}
	fmt.Println()

	t := cli.NewTable("#", "STEP", "TARGET", "DETAIL")
	for _, s := range plan.Steps {
		var detail string
		switch s.Kind {
		case labgen.StepCreateNode:
			detail = fmt.Sprintf("%s at (%d,%d)", s.NodeDefinition, s.X, s.Y)
		case labgen.StepCreateInterfaces:
			detail = strconv.Itoa(s.Interfaces) + " interfaces"
		case labgen.StepPushConfig:
			detail = fmt.Sprintf("%d config lines", strings.Count(s.Config, "\n")+1)
		}
		t.Row(strconv.Itoa(s.Index), string(s.Kind), s.Ref(), detail)
	}
	t.Flush()
}

func init() {
	templatesCmd.Flags().BoolVar(&listConfiglets, "configlets", false, "List configlets instead of templates")
	addOutputFlags(templatesCmd)

	expandCmd.Flags().StringArrayVarP(&expandParams, "param", "p", nil, "Template parameter as key=value (repeatable)")
	addOutputFlags(expandCmd)
}
