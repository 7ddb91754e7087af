package lifecycle

import (
	"context"

	"github.com/newtron-network/cmlkit/pkg/labgen"
)

var _ labgen.Target = (*Controller)(nil)

// ExecutePlan applies an expanded template to an existing lab. The lab must
// not be started. On failure the returned *labgen.PartialExecutionError
// lists what was created; nothing is removed automatically.
func (c *Controller) ExecutePlan(ctx context.Context, labID string, plan *labgen.Plan) (*labgen.Result, error) {
	if err := c.requireNotStarted(ctx, "apply template", labID); err != nil {
		return nil, err
	}
	if _, err := c.EnsureWarm(ctx, labID); err != nil {
		return nil, err
	}
	return labgen.Execute(ctx, c, labID, plan)
}
