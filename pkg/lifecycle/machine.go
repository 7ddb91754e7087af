package lifecycle

import "github.com/newtron-network/cmlkit/pkg/model"

// labTransitions lists the states a lab may be moved to from each state.
var labTransitions = map[model.LabState][]model.LabState{
	model.LabDefined: {model.LabStarted, model.LabDeleted},
	model.LabStarted: {model.LabStopped},
	model.LabStopped: {model.LabStarted, model.LabDefined, model.LabDeleted},
	model.LabFailed:  {model.LabStopped},
}

// nodeTransitions lists the target states a node may be moved to. A booting
// node asked to run is only waited on.
var nodeTransitions = map[model.NodeState][]model.NodeState{
	model.NodeDefined: {model.NodeRunning},
	model.NodeBooting: {model.NodeRunning, model.NodeStopped},
	model.NodeRunning: {model.NodeStopped},
	model.NodeStopped: {model.NodeRunning, model.NodeDefined},
	model.NodeFailed:  {model.NodeStopped},
}

// CanTransitionLab reports whether from -> to is a legal lab transition.
func CanTransitionLab(from, to model.LabState) bool {
	for _, s := range labTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanTransitionNode reports whether from -> to is a legal node transition.
func CanTransitionNode(from, to model.NodeState) bool {
	for _, s := range nodeTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// nodeDeletable reports whether a node in state s may be deleted.
func nodeDeletable(s model.NodeState) bool {
	return s == model.NodeDefined || s == model.NodeStopped
}
