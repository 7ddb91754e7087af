package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/newtron-network/cmlkit/pkg/mcp"
	"github.com/newtron-network/cmlkit/pkg/util"
	"github.com/newtron-network/cmlkit/pkg/version"
)

var serveRehydrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the operation catalog over MCP on stdin/stdout",
	Long: `Serve the operation catalog to an MCP client over stdin/stdout.

Typical client configuration:

  {
    "command": "cmlkit",
    "args": ["serve"],
    "env": {"CML_URL": "https://cml.lab", "CML_USERNAME": "admin", "CML_PASSWORD": "..."}
  }

Logs go to stderr. The session ends when the client closes stdin.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := connect(ctx, userSettings)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.client.AuthOK(ctx); err != nil {
			// operations will report AUTH_FAILED or NETWORK to the agent
			util.Warnf("Controller not reachable yet: %v", err)
		} else if serveRehydrate {
			labs, err := a.ctrl.Rehydrate(ctx)
			if err != nil {
				util.Warnf("Initial rehydration failed: %v", err)
			} else {
				util.Infof("Loaded %d labs", len(labs))
			}
		}

		srv := mcp.NewServer(a.catalog, a.configs, "cmlkit", version.Version)
		return srv.Serve(ctx, os.Stdin, os.Stdout)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveRehydrate, "rehydrate", true, "Read all labs from the controller before serving")
}
