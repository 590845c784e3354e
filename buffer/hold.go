package buffer

import (
	"time"

	"github.com/jonboulle/clockwork"

	"lifesync/schedule"
)

// HoldMultiplier scales each repeat while a counter button is held down.
const HoldMultiplier = 10

// Hold is a press-and-hold repeater. The first step is applied on press,
// then amount*HoldMultiplier every interval until Release or until apply
// reports false.
type Hold struct {
	task *schedule.Task
}

func StartHold(clock clockwork.Clock, interval time.Duration, amount int, apply func(delta int) bool) *Hold {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if !apply(amount) {
		return &Hold{}
	}
	return &Hold{
		task: schedule.Every(clock, interval, func() bool {
			return apply(amount * HoldMultiplier)
		}),
	}
}

// Release stops repeating. Safe to call more than once.
func (h *Hold) Release() {
	if h == nil {
		return
	}
	h.task.Cancel()
}
