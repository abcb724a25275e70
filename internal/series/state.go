package series

import "time"

// State is the lifecycle state of a Worker.
type State int

const (
	StateCreated State = iota
	StateRunning
	StateWaiting
	StateFinalizing
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateWaiting:
		return "waiting"
	case StateFinalizing:
		return "finalizing"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// accepting reports whether a worker in this state takes new items.
func (s State) accepting() bool {
	return s == StateRunning || s == StateWaiting
}

// WorkerInfo is a point-in-time snapshot of a worker.
type WorkerInfo struct {
	Key          string        `json:"key"`
	ID           string        `json:"id"`
	State        State         `json:"-"`
	StateName    string        `json:"state"`
	Timeout      time.Duration `json:"timeout"`
	StartedAt    time.Time     `json:"started_at"`
	LastActivity time.Time     `json:"last_activity"`
	Items        int           `json:"items"`
	Failures     int           `json:"failures"`
	Terminated   bool          `json:"terminated"`
}
