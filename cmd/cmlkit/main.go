// cmlkit - orchestration for Cisco Modeling Labs, driven by AI agents
//
// The main entry point is `cmlkit serve`, which exposes the operation catalog
// to an agent over the Model Context Protocol on stdin/stdout. The other
// commands run the same catalog from a shell:
//
//	cmlkit serve                                   # MCP server on stdio
//	cmlkit tools                                   # list operations
//	cmlkit tools link_nodes                        # show one operation's schema
//	cmlkit call list_labs                          # run an operation
//	cmlkit call create_router '{"lab_id":"...","label":"R1"}'
//	cmlkit templates                               # list topology templates
//	cmlkit expand ospf-pair -p area=1              # preview a template's plan
//	cmlkit audit list --last 24h                   # recorded mutations
//	cmlkit settings set base_url https://cml.lab
//
// Connection settings resolve as flag > environment (CML_URL, CML_USERNAME,
// CML_PASSWORD, CML_VERIFY_SSL) > settings file > defaults. The password is
// never stored; without CML_PASSWORD the CLI prompts when stdin is a terminal.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/newtron-network/cmlkit/pkg/settings"
	"github.com/newtron-network/cmlkit/pkg/util"
	"github.com/newtron-network/cmlkit/pkg/version"
)

var (
	// Connection flags
	baseURL   string
	username  string
	insecure  bool
	rateLimit float64

	// Global option flags
	verbose    bool
	jsonLogs   bool
	jsonOutput bool

	userSettings *settings.Settings
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, red("Error:"), err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "cmlkit",
	Short:             "Cisco Modeling Labs orchestration for AI agents",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Long: `cmlkit lets an AI agent build and operate network labs on a Cisco Modeling
Labs controller through a fixed catalog of operations.

Run 'cmlkit serve' from an MCP client, or drive the catalog directly with
'cmlkit call <operation> [json-arguments]'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Logs always go to stderr so stdout stays clean for MCP and JSON output
		util.SetLogOutput(os.Stderr)
		if jsonLogs {
			util.SetJSONFormat()
		}

		var err error
		userSettings, err = settings.Load()
		if err != nil {
			util.Warnf("Could not load settings: %v", err)
			userSettings = &settings.Settings{}
		}

		level := "warn"
		if userSettings.LogLevel != "" {
			level = userSettings.LogLevel
		}
		if verbose {
			level = "debug"
		}
		return util.SetLogLevel(level)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "url", "", "Controller URL (env CML_URL)")
	rootCmd.PersistentFlags().StringVarP(&username, "username", "u", "", "Controller username (env CML_USERNAME)")
	rootCmd.PersistentFlags().BoolVarP(&insecure, "insecure", "k", false, "Skip TLS certificate verification")
	rootCmd.PersistentFlags().Float64Var(&rateLimit, "rate-limit", 0, "Maximum requests per second to the controller (0 = unlimited)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "log-json", false, "Log in JSON format")

	rootCmd.AddGroup(
		&cobra.Group{ID: "agent", Title: "Agent Operations:"},
		&cobra.Group{ID: "templates", Title: "Templates:"},
		&cobra.Group{ID: "meta", Title: "Configuration & Meta:"},
	)

	for _, cmd := range []*cobra.Command{serveCmd, toolsCmd, callCmd} {
		cmd.GroupID = "agent"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{templatesCmd, expandCmd} {
		cmd.GroupID = "templates"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{settingsCmd, auditCmd, versionCmd} {
		cmd.GroupID = "meta"
		rootCmd.AddCommand(cmd)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if version.Version == "dev" {
			fmt.Println("cmlkit dev build (version is set with -ldflags at release)")
			return
		}
		fmt.Println("cmlkit " + version.Info())
	},
}

// addOutputFlags registers --json on commands that print structured data.
func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
}
