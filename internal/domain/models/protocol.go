package models

// Command names accepted on the websocket.
const (
	CommandStartPhase = "startPhase"
	CommandStatus     = "status"
)

// Command is an inbound control message, e.g. {"command":"startPhase","phase":"planning"}.
type Command struct {
	Command     string            `json:"command"`
	Phase       string            `json:"phase,omitempty"`
	TradingDate string            `json:"tradingDate,omitempty"`
	Options     map[string]string `json:"options,omitempty"`
}

// FrameType is the discriminant of outbound frames.
type FrameType string

const (
	FrameEvent     FrameType = "event"
	FrameLifecycle FrameType = "lifecycle"
	FrameError     FrameType = "error"
)

// Lifecycle status strings carried by lifecycle frames.
const (
	LifecycleStarted   = "started"
	LifecycleRunning   = "running"
	LifecycleCached    = "cached"
	LifecycleCompleted = "completed"
	LifecycleErrored   = "errored"
	LifecycleIdle      = "idle"
)

// Frame is an outbound message. Event frames carry Event, lifecycle frames
// carry Status, error frames carry Error.
type Frame struct {
	Type        FrameType      `json:"type"`
	Phase       Phase          `json:"phase,omitempty"`
	TradingDate string         `json:"tradingDate,omitempty"`
	Event       *Event         `json:"event,omitempty"`
	Status      string         `json:"status,omitempty"`
	Error       string         `json:"error,omitempty"`
	Service     *ServiceStatus `json:"service,omitempty"`
}

func EventFrame(e Event) Frame {
	return Frame{Type: FrameEvent, Phase: e.Phase, TradingDate: e.TradingDate, Event: &e}
}

func LifecycleFrame(date string, phase Phase, status string) Frame {
	return Frame{Type: FrameLifecycle, Phase: phase, TradingDate: date, Status: status}
}

func ErrorFrame(phase Phase, msg string) Frame {
	return Frame{Type: FrameError, Phase: phase, Error: msg}
}

// StatusFrame answers the status command as a lifecycle frame naming the
// running phase, or idle.
func StatusFrame(st ServiceStatus) Frame {
	f := Frame{Type: FrameLifecycle, Status: LifecycleIdle, Service: &st}
	if st.Running != nil {
		f.Status = LifecycleRunning
		f.Phase = st.Running.Phase
		f.TradingDate = st.Running.TradingDate
	}
	return f
}

// ServiceStatus answers the status command.
type ServiceStatus struct {
	Running   *PhaseRef  `json:"running,omitempty"`
	Queued    []PhaseRef `json:"queued"`
	Completed []PhaseRef `json:"completed"`
}

type PhaseRef struct {
	TradingDate string `json:"tradingDate"`
	Phase       Phase  `json:"phase"`
}
