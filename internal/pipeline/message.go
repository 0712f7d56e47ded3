package pipeline

import (
	"context"
	"errors"
	"time"
)

// Message is one stream delivery, decoupled from the transport so the
// processor can be driven directly in tests.
type Message struct {
	Subject   string
	Data      []byte
	Partition int
	// Attempt is the 1-based delivery attempt reported by the transport.
	Attempt int
}

// State is one step in the processing lifecycle of a message. The processor
// records the full trace in its Result so tests can assert transitions.
type State string

const (
	StateReceived   State = "RECEIVED"
	StateDedupCheck State = "DEDUP_CHECK"
	StateSkip       State = "SKIP"
	StateProcess    State = "PROCESS"
	StateAck        State = "ACK"
	StateRetry      State = "RETRY"
	StateDeadLetter State = "DEAD_LETTER"
)

// Disposition tells the transport what to do with the delivery.
type Disposition int

const (
	// DispositionAck acknowledges the message; it will not be redelivered.
	DispositionAck Disposition = iota
	// DispositionRedeliver leaves the message unacknowledged so the
	// transport delivers it again after Result.Backoff.
	DispositionRedeliver
)

// Result is the outcome of processing one message.
type Result struct {
	EventID     string
	States      []State
	Disposition Disposition
	// Backoff is the redelivery delay when Disposition is Redeliver.
	Backoff time.Duration
	// Err is the processing error, if any. A dead-lettered message can
	// carry an error and still be acknowledged.
	Err error
}

// Last returns the final state of the trace.
func (r *Result) Last() State {
	if len(r.States) == 0 {
		return ""
	}
	return r.States[len(r.States)-1]
}

// DeadLetter is the payload published to the dead-letter stream when a
// message exhausts its retries or is unprocessable.
type DeadLetter struct {
	Source   string    `json:"source"`
	Subject  string    `json:"subject"`
	EventID  string    `json:"eventId,omitempty"`
	Payload  []byte    `json:"payload"`
	Reason   string    `json:"reason"`
	Attempts int       `json:"attempts"`
	FailedAt time.Time `json:"failedAt"`
}

// DeadLetterPublisher writes dead letters to durable storage.
type DeadLetterPublisher interface {
	PublishDeadLetter(ctx context.Context, dl *DeadLetter) error
}

// ErrNoMessage is returned by a Source when a partition has nothing pending.
var ErrNoMessage = errors.New("no message available")

// Delivery pairs a message with its transport acknowledgement hooks.
type Delivery struct {
	Msg *Message
	// Ack acknowledges the delivery.
	Ack func() error
	// Redeliver schedules redelivery after the given delay.
	Redeliver func(delay time.Duration) error
}

// Source hands out pending deliveries partition by partition.
type Source interface {
	// Next returns the next delivery for the partition, or ErrNoMessage
	// when none is pending within the source's wait window.
	Next(ctx context.Context, partition int) (*Delivery, error)
}
