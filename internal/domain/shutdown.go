package domain

import (
	"fmt"
	"time"
)

// ShutdownState only moves forward: Running -> Draining -> Terminated.
type ShutdownState int32

const (
	StateRunning ShutdownState = iota
	StateDraining
	StateTerminated
)

func (s ShutdownState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// DrainResult describes how a drain cycle ended.
type DrainResult struct {
	Drained   bool
	Elapsed   time.Duration
	Remaining int64
	Reason    string
}

// Outcome is "drained" or "forced", used for logs and metric labels.
func (r DrainResult) Outcome() string {
	if r.Drained {
		return "drained"
	}
	return "forced"
}

// ShutdownNotice is the text sent to every client when an instance starts draining.
func ShutdownNotice(timeout time.Duration) string {
	return fmt.Sprintf("Server will shut down in %d seconds, please disconnect.", int(timeout.Seconds()))
}

// HeartbeatMessage is the periodic status text sent while clients are connected.
func HeartbeatMessage(now time.Time) string {
	return "Hello from server, time: " + now.UTC().Format(time.RFC3339)
}
