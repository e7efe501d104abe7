package usecase

import "time"

// State is a job's position in the generation state machine.
type State string

const (
	Created    State = "created"
	StoryReady State = "story_ready"
	AudioReady State = "audio_ready"
	PlanBuilt  State = "plan_built"
	Rendered   State = "rendered"
	Cleaned    State = "cleaned"
	Failed     State = "failed"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool { return s == Cleaned || s == Failed }

// next lists the only forward transition out of every non-terminal state.
// Failed is reachable from all of them.
var next = map[State]State{
	Created:    StoryReady,
	StoryReady: AudioReady,
	AudioReady: PlanBuilt,
	PlanBuilt:  Rendered,
	Rendered:   Cleaned,
}

// CanTransition reports whether from → to is a legal move.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	return to == Failed || next[from] == to
}

type Transition struct {
	From    State         `json:"from"`
	To      State         `json:"to"`
	Elapsed time.Duration `json:"elapsed"`
}
