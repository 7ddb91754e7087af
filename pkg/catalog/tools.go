package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/newtron-network/cmlkit/pkg/audit"
	"github.com/newtron-network/cmlkit/pkg/console"
	"github.com/newtron-network/cmlkit/pkg/util"
)

type consoleArgs struct {
	LabID    string   `json:"lab_id" validate:"required" desc:"Lab ID"`
	NodeID   string   `json:"node_id" validate:"required" desc:"Node ID"`
	Commands []string `json:"commands" validate:"required,min=1,dive,required" desc:"CLI commands to run in order"`
}

type auditArgs struct {
	LabID       string `json:"lab_id" desc:"Only events for this lab"`
	Operation   string `json:"operation" desc:"Only events of this operation"`
	Since       string `json:"since" desc:"RFC 3339 timestamp; only events at or after it"`
	FailureOnly bool   `json:"failure_only" desc:"Only failed operations"`
	Limit       int    `json:"limit" default:"50" validate:"min=1,max=1000" desc:"Maximum number of events"`
}

func (c *Catalog) registerToolOps() {
	ctrl := c.deps.Controller

	register(c, "console_exec", "Run CLI commands on a running node's console and return their output.", true,
		func(ctx context.Context, a consoleArgs) (any, error) {
			if c.deps.Console == nil {
				return nil, fmt.Errorf("console access: %w", errUnavailable)
			}
			node, err := ctrl.Node(ctx, a.LabID, a.NodeID)
			if err != nil {
				return nil, err
			}
			// console lines are addressed by lab ID and node label
			out, err := c.deps.Console.Exec(ctx, a.LabID, node.Label, a.Commands)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", errConsole, err)
			}
			if out == nil {
				out = []console.Output{}
			}
			return out, nil
		})

	register(c, "rehydrate_cache", "Re-read every lab from the platform into the local view.", false,
		func(ctx context.Context, _ noArgs) (any, error) {
			labs, err := ctrl.Rehydrate(ctx)
			if err != nil {
				return nil, err
			}
			return map[string]any{"labs": len(labs)}, nil
		})

	register(c, "list_audit_events", "List recorded mutating operations, newest last.", false,
		func(ctx context.Context, a auditArgs) (any, error) {
			filter := audit.Filter{
				Lab:         a.LabID,
				Operation:   a.Operation,
				FailureOnly: a.FailureOnly,
			}
			if a.Since != "" {
				since, err := time.Parse(time.RFC3339, a.Since)
				if err != nil {
					return nil, util.NewValidationError("since must be an RFC 3339 timestamp")
				}
				filter.StartTime = since
			}

			var events []*audit.Event
			var err error
			if c.deps.Audit != nil {
				events, err = c.deps.Audit.Query(filter)
			} else {
				events, err = audit.Query(filter)
			}
			if err != nil {
				return nil, err
			}
			if len(events) > a.Limit {
				events = events[len(events)-a.Limit:]
			}
			if events == nil {
				events = []*audit.Event{}
			}
			return events, nil
		})
}
