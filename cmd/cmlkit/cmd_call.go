package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/newtron-network/cmlkit/pkg/catalog"
)

var callCmd = &cobra.Command{
	Use:   "call <operation> [json-arguments | -]",
	Short: "Run one catalog operation and print its result",
	Long: `Run one catalog operation against the controller and print the result
as JSON, exactly as an agent would receive it. Arguments are a JSON object
given inline or, with '-', read from stdin.

Examples:
  cmlkit call list_labs
  cmlkit call create_lab '{"title":"demo"}'
  cmlkit call apply_template - < ospf.json`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := callArguments(args[1:], os.Stdin)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := connect(ctx, userSettings)
		if err != nil {
			return err
		}
		defer a.Close()

		res := a.catalog.Call(ctx, args[0], raw)
		if text, ok := res.Data.(string); ok && res.OK {
			fmt.Println(text)
			return nil
		}
		if err := printJSON(res); err != nil {
			return err
		}
		return resultError(args[0], res)
	},
}

// callArguments returns the operation arguments: none, inline JSON, or
// stdin when the argument is "-".
func callArguments(args []string, stdin io.Reader) (json.RawMessage, error) {
	if len(args) == 0 {
		return nil, nil
	}
	data := []byte(args[0])
	if args[0] == "-" {
		var err error
		if data, err = io.ReadAll(stdin); err != nil {
			return nil, fmt.Errorf("reading arguments: %w", err)
		}
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("arguments are not valid JSON")
	}
	return json.RawMessage(data), nil
}

func resultError(op string, res catalog.Result) error {
	if res.OK || res.Error == nil {
		return nil
	}
	return fmt.Errorf("%s failed: %s", op, res.Error.Code)
}
