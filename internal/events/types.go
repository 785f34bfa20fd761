package events

// Event type constants for kelindar/event.
const (
	TypeSessionStateChanged uint32 = iota + 1
	TypeSegmentFinalized
	TypeFrameDropped
	TypeDeviceLost
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// SessionStateChangedEvent is published on every recording session transition.
type SessionStateChangedEvent struct {
	Session   string `json:"session" example:"rec-1" doc:"Session identifier"`
	State     string `json:"state" example:"recording" doc:"New session state"`
	Segment   int    `json:"segment" example:"0" doc:"Current output segment index"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionStateChangedEvent.
func (e SessionStateChangedEvent) Type() uint32 { return TypeSessionStateChanged }

// SegmentFinalizedEvent is published after an output file has been committed.
type SegmentFinalizedEvent struct {
	Session   string `json:"session" doc:"Session identifier"`
	Path      string `json:"path" example:"capture-1.mp4" doc:"Finalized output path"`
	Frames    int64  `json:"frames" example:"1800" doc:"Frames written to the segment"`
	Timestamp string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for SegmentFinalizedEvent.
func (e SegmentFinalizedEvent) Type() uint32 { return TypeSegmentFinalized }

// FrameDroppedEvent reports a frame or packet discarded by a full queue.
type FrameDroppedEvent struct {
	Session   string `json:"session" doc:"Session identifier"`
	Queue     string `json:"queue" example:"encode" doc:"Queue that dropped the item"`
	Total     uint64 `json:"total" example:"3" doc:"Items dropped by this queue so far"`
	Timestamp string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for FrameDroppedEvent.
func (e FrameDroppedEvent) Type() uint32 { return TypeFrameDropped }

// DeviceLostEvent is published when the frame source reports device loss.
type DeviceLostEvent struct {
	Session   string `json:"session" doc:"Session identifier"`
	Source    string `json:"source" example:"screen" doc:"Source kind"`
	Attempt   int    `json:"attempt" example:"1" doc:"Re-initialization attempt about to run"`
	Error     string `json:"error" doc:"Reported device error"`
	Timestamp string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for DeviceLostEvent.
func (e DeviceLostEvent) Type() uint32 { return TypeDeviceLost }
