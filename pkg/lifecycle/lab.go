package lifecycle

import (
	"context"
	"errors"

	"github.com/newtron-network/cmlkit/pkg/cache"
	"github.com/newtron-network/cmlkit/pkg/cml"
	"github.com/newtron-network/cmlkit/pkg/model"
	"github.com/newtron-network/cmlkit/pkg/util"
)

// CreateLab creates an empty lab. The new lab is cached as fully loaded.
func (c *Controller) CreateLab(ctx context.Context, title, description string) (model.Lab, error) {
	lab, err := c.remote.CreateLab(ctx, title, description)
	if err != nil {
		return model.Lab{}, err
	}
	c.cache.ReplaceLab(cache.Snapshot{Lab: lab})
	util.WithLab(lab.ID).Infof("created lab %q", title)
	return lab, nil
}

// TransitionLab moves a lab to target and waits until the platform reports
// it. Requesting the current state succeeds without contacting the
// platform's state endpoints. Moving to DELETED removes the lab (wiping a
// stopped lab first) and invalidates it in the cache.
func (c *Controller) TransitionLab(ctx context.Context, labID string, target model.LabState) (model.Lab, error) {
	entity := labEntity(labID)
	if c.cache.IsDeleted(labID) {
		return model.Lab{}, &LifecycleError{
			Code: CodeInvalidTransition, Entity: entity,
			From: string(model.LabDeleted), To: string(target),
			Detail: "lab was deleted",
		}
	}

	lab, err := c.Lab(ctx, labID)
	if err != nil {
		return model.Lab{}, err
	}
	from := lab.State
	if from == target {
		return lab, nil
	}
	if !CanTransitionLab(from, target) {
		return lab, &LifecycleError{Code: CodeInvalidTransition, Entity: entity, From: string(from), To: string(target)}
	}

	log := util.WithLab(labID)
	log.Infof("lab transition %s -> %s", from, target)

	switch target {
	case model.LabStarted:
		if err := c.remote.StartLab(ctx, labID); err != nil {
			return lab, err
		}
		c.cache.SetNodeStates(labID, model.NodeBooting)
	case model.LabStopped:
		if err := c.remote.StopLab(ctx, labID); err != nil {
			return lab, err
		}
	case model.LabDefined:
		if err := c.remote.WipeLab(ctx, labID); err != nil {
			return lab, err
		}
	case model.LabDeleted:
		if from == model.LabStopped {
			if err := c.remote.WipeLab(ctx, labID); err != nil {
				return lab, err
			}
		}
		err := c.remote.DeleteLab(ctx, labID)
		if err != nil && !cml.IsNotFound(err) {
			return lab, err
		}
		c.cache.Invalidate(cache.KindLab, labID, labID)
		log.Info("lab deleted")
		lab.State = model.LabDeleted
		return lab, err
	}

	err = c.converge(ctx, entity, string(from), string(target), func(ctx context.Context) (observation, error) {
		state, err := c.remote.LabState(ctx, labID)
		if err != nil {
			return observation{}, err
		}
		c.cache.SetLabState(labID, state)
		return observation{
			state:  string(state),
			done:   state == target,
			failed: state == model.LabFailed,
		}, nil
	})
	if err != nil {
		var le *LifecycleError
		if errors.As(err, &le) && le.Code == CodeRemoteFailure {
			c.cache.SetLabState(labID, model.LabFailed)
		}
		log.Warnf("lab transition %s -> %s failed: %v", from, target, err)
	} else {
		switch target {
		case model.LabStopped:
			c.cache.SetNodeStates(labID, model.NodeStopped)
		case model.LabDefined:
			c.cache.SetNodeStates(labID, model.NodeDefined)
		}
	}

	lab, _, _ = c.cache.Lab(labID)
	return lab, err
}

// DeleteLab removes a lab. A started lab is rejected; stop it first.
func (c *Controller) DeleteLab(ctx context.Context, labID string) error {
	_, err := c.TransitionLab(ctx, labID, model.LabDeleted)
	return err
}
