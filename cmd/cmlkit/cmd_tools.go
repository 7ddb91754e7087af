package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/newtron-network/cmlkit/pkg/catalog"
	"github.com/newtron-network/cmlkit/pkg/cli"
)

var toolsCmd = &cobra.Command{
	Use:   "tools [operation]",
	Short: "List catalog operations or show one operation's schema",
	Long: `List the operations an agent can call, or print one operation's
input schema.

Examples:
  cmlkit tools
  cmlkit tools link_nodes`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := offlineCatalog(userSettings)
		if err != nil {
			return err
		}

		if len(args) == 1 {
			def, ok := cat.Definition(args[0])
			if !ok {
				return fmt.Errorf("unknown operation %q (see 'cmlkit tools')", args[0])
			}
			return printJSON(map[string]any{
				"name":        def.Name,
				"description": def.Description,
				"mutating":    def.Mutating,
				"inputSchema": def.InputSchema(),
			})
		}

		defs := cat.Definitions()
		if jsonOutput {
			return printJSON(defs)
		}
		printDefinitions(defs)
		return nil
	},
}

func printDefinitions(defs []catalog.Definition) {
	t := cli.NewTable("OPERATION", "MUTATES", "DESCRIPTION")
	for _, d := range defs {
		mutates := ""
		if d.Mutating {
			mutates = yellow("yes")
		}
		t.Row(d.Name, mutates, d.Description)
	}
	t.Flush()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func init() {
	addOutputFlags(toolsCmd)
}
