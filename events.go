package agentloop

import (
	"time"

	"github.com/gcastel/agentloop/internal/buffer"
)

// Phase identifies one state of the loop's state machine. The driver emits a
// StepEvent on every transition.
type Phase string

const (
	PhaseInit         Phase = "init"
	PhaseDiscovering  Phase = "discovering"
	PhaseReasoning    Phase = "reasoning"
	PhaseDeciding     Phase = "deciding"
	PhaseExecuting    Phase = "executing"
	PhaseSynthesizing Phase = "synthesizing"
	PhaseFinalAnswer  Phase = "final_answer"
	PhaseAborted      Phase = "aborted"
)

// Terminal reports whether the phase ends the loop run.
func (p Phase) Terminal() bool {
	return p == PhaseFinalAnswer || p == PhaseAborted
}

// StepEvent is one entry in the driver-to-presentation stream.
type StepEvent struct {
	// Phase is the state the loop entered.
	Phase Phase

	// Detail is a human-readable description of the transition.
	Detail string

	// Turn is the reasoning turn the event belongs to (1-indexed, 0 for
	// events before the first turn).
	Turn int

	// Time is when the transition happened.
	Time time.Time
}

// StepStream carries StepEvents from the driver to an optional consumer.
// Send never blocks, even with no reader: the loop's correctness must not
// depend on whether anything renders its events.
type StepStream struct {
	buf *buffer.Unbounded[StepEvent]
}

// NewStepStream creates a stream ready to receive events.
func NewStepStream() *StepStream {
	return &StepStream{buf: buffer.NewUnbounded[StepEvent]()}
}

// Send publishes an event. Never blocks; events sent after Close are
// dropped.
func (s *StepStream) Send(ev StepEvent) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	s.buf.Send(ev)
}

// Events returns the receive channel. It is closed after Close once all
// pending events have been drained.
func (s *StepStream) Events() <-chan StepEvent {
	return s.buf.Receive()
}

// Close ends the stream. Safe to call multiple times.
func (s *StepStream) Close() {
	s.buf.Close()
}
