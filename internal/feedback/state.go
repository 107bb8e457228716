package feedback

// State is a stage of one expansion.
type State int

const (
	StateInit State = iota
	StateParamsValidated
	StateInitialRetrieved
	StateStatsCollected
	StateWeightsEstimated
	StateExpansionBuilt
	StateInterpolated
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateInit:             "init",
	StateParamsValidated:  "params_validated",
	StateInitialRetrieved: "initial_retrieved",
	StateStatsCollected:   "stats_collected",
	StateWeightsEstimated: "weights_estimated",
	StateExpansionBuilt:   "expansion_built",
	StateInterpolated:     "interpolated",
	StateDone:             "done",
	StateFailed:           "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
