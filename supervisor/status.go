package supervisor

import "deckhost/launch"

type State string

const (
	StateRunning State = "running"
	StateStopped State = "stopped"
	StateError   State = "error"
)

// Status is what every control surface reports. Fields other than State are
// only set where they apply: Port, Pid, RunId and Mode while running, Message
// for errors.
type Status struct {
	State   State       `json:"state"`
	Port    int         `json:"port,omitempty"`
	Pid     int         `json:"pid,omitempty"`
	RunId   string      `json:"runId,omitempty"`
	Mode    launch.Mode `json:"mode,omitempty"`
	Message string      `json:"message,omitempty"`
}

func runningStatus(h *launch.ServerHandle) Status {
	return Status{
		State: StateRunning,
		Port:  h.Port,
		Pid:   h.Pid(),
		RunId: h.RunId,
		Mode:  h.Mode,
	}
}

func stoppedStatus() Status {
	return Status{State: StateStopped}
}

func errorStatus(message string) Status {
	return Status{State: StateError, Message: message}
}

func (s Status) Running() bool {
	return s.State == StateRunning
}
