package coordinator

import (
	"fmt"
	"strings"

	"github.com/aliskhannn/image-distributor/internal/model"
)

// State is a step of the coordinator loop.
type State int

const (
	Idle State = iota
	Claim
	Download
	Partition
	Dispatch
	Gather
	Assemble
	Publish
	Shutdown
)

var stateNames = [...]string{
	Idle:      "idle",
	Claim:     "claim",
	Download:  "download",
	Partition: "partition",
	Dispatch:  "dispatch",
	Gather:    "gather",
	Assemble:  "assemble",
	Publish:   "publish",
	Shutdown:  "shutdown",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Event reports a state transition. Task is zero outside of a task.
type Event struct {
	State State
	Task  model.Task
}

// Policy decides what happens to a task that failed after being claimed.
type Policy int

const (
	// Drop logs the failure and forgets the task.
	Drop Policy = iota
	// Requeue resends the task with a higher attempt count, then dead-letters it.
	Requeue
	// DeadLetter sends the task to the dead-letter queue.
	DeadLetter
)

// ParsePolicy parses "drop", "requeue" or "dead_letter".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "", "drop":
		return Drop, nil
	case "requeue":
		return Requeue, nil
	case "dead_letter", "deadletter":
		return DeadLetter, nil
	default:
		return 0, fmt.Errorf("unknown failure policy %q", s)
	}
}

func (p Policy) String() string {
	switch p {
	case Requeue:
		return "requeue"
	case DeadLetter:
		return "dead_letter"
	default:
		return "drop"
	}
}
