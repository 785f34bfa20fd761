package process

import "time"

// State represents the current state of a subprocess.
type State string

// Process states.
const (
	StateIdle     State = "idle"     // Not running
	StateStarting State = "starting" // Being started
	StateRunning  State = "running"  // Active
	StateStopping State = "stopping" // Being stopped
	StateError    State = "error"    // Failed to start or exited non-zero
)

// Info contains information about a subprocess.
type Info struct {
	ID        string
	State     State
	PID       int
	StartedAt time.Time
	LastError error
}
