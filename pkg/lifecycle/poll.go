package lifecycle

import (
	"context"
	"time"
)

// observation is one poll result.
type observation struct {
	state  string
	done   bool
	failed bool
	detail string
}

// converge polls observe every PollInterval until it reports done or
// failed, the convergence timeout expires, or ctx is canceled. The first
// observation happens immediately. Cancellation stops polling only; nothing
// on the platform is undone.
func (c *Controller) converge(ctx context.Context, entity, from, to string, observe func(context.Context) (observation, error)) error {
	timeout := time.NewTimer(c.cfg.ConvergenceTimeout)
	defer timeout.Stop()
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	last := from
	for {
		obs, err := observe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return &LifecycleError{Code: CodeCanceled, Entity: entity, From: from, To: to, LastObserved: last, Err: ctx.Err()}
			}
			return err
		}
		last = obs.state
		if obs.failed {
			return &LifecycleError{Code: CodeRemoteFailure, Entity: entity, From: from, To: to, LastObserved: last, Detail: obs.detail}
		}
		if obs.done {
			return nil
		}

		select {
		case <-ctx.Done():
			return &LifecycleError{Code: CodeCanceled, Entity: entity, From: from, To: to, LastObserved: last, Err: ctx.Err()}
		case <-timeout.C:
			return &LifecycleError{
				Code:         CodeTimeout,
				Entity:       entity,
				From:         from,
				To:           to,
				LastObserved: last,
				Detail:       obs.detail,
			}
		case <-ticker.C:
		}
	}
}
