package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/studysync/feedrank/internal/dedup"
)

// Default retry policy: three delivery attempts spaced by a fixed backoff.
const (
	DefaultMaxAttempts = 3
	DefaultBackoff     = time.Second
)

// Handler decodes and applies one event type. The processor owns the
// surrounding lifecycle (dedup, retry, dead-letter); handlers own semantics.
type Handler interface {
	// Name identifies the handler in logs, metrics, and dead letters.
	Name() string

	// Decode parses and validates the payload. Decode failures are
	// malformed by definition and never retried.
	Decode(data []byte) (any, error)

	// EventID returns the dedup identity for a decoded event.
	EventID(ev any) string

	// Process applies the event's effects. Errors are retried unless
	// wrapped as Malformed or ErrNonRetryable.
	Process(ctx context.Context, ev any) error
}

// Processor runs one message through the processing state machine:
//
//	RECEIVED -> DEDUP_CHECK -> SKIP (duplicate, ack)
//	                        -> PROCESS -> ACK
//	                                   -> RETRY (transient, attempts left)
//	                                   -> DEAD_LETTER (exhausted or non-retryable)
//
// Dedup marking happens only after successful processing, so a crash between
// effect and marker reprocesses the event instead of losing it.
type Processor struct {
	handler     Handler
	guard       dedup.Guard
	dlq         DeadLetterPublisher
	maxAttempts int
	backoff     time.Duration
	logger      *slog.Logger
	metrics     *Metrics
	observer    DeadLetterObserver
}

// DeadLetterObserver is notified after a dead letter is durably published.
// Used to fan dead letters out to live watchers.
type DeadLetterObserver interface {
	DeadLettered(dl *DeadLetter)
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithRetryPolicy overrides the default attempt budget and backoff.
func WithRetryPolicy(maxAttempts int, backoff time.Duration) ProcessorOption {
	return func(p *Processor) {
		if maxAttempts > 0 {
			p.maxAttempts = maxAttempts
		}
		if backoff > 0 {
			p.backoff = backoff
		}
	}
}

// WithMetrics attaches pipeline metrics.
func WithMetrics(m *Metrics) ProcessorOption {
	return func(p *Processor) { p.metrics = m }
}

// WithDeadLetterObserver attaches a live dead-letter observer.
func WithDeadLetterObserver(o DeadLetterObserver) ProcessorOption {
	return func(p *Processor) { p.observer = o }
}

// NewProcessor creates a processor for one handler.
func NewProcessor(handler Handler, guard dedup.Guard, dlq DeadLetterPublisher, logger *slog.Logger, opts ...ProcessorOption) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		handler:     handler,
		guard:       guard,
		dlq:         dlq,
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultBackoff,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle runs one message through the state machine and returns the outcome.
func (p *Processor) Handle(ctx context.Context, msg *Message) *Result {
	start := time.Now()
	res := &Result{States: []State{StateReceived}, Disposition: DispositionAck}
	defer func() {
		if p.metrics != nil {
			p.metrics.ObserveProcessLatency(time.Since(start).Seconds())
		}
	}()

	ev, err := p.handler.Decode(msg.Data)
	if err != nil {
		res.Err = Malformed(err)
		p.deadLetter(ctx, msg, res, "decode failed: "+err.Error())
		return res
	}
	res.EventID = p.handler.EventID(ev)

	res.States = append(res.States, StateDedupCheck)
	seen, err := p.guard.Seen(ctx, res.EventID)
	if err != nil {
		// Guards fail open, so an error here is unexpected. Treat it as
		// unseen and process.
		p.logger.Warn("dedup check errored, processing event",
			slog.String("event_id", res.EventID),
			slog.String("error", err.Error()))
	}
	if seen {
		res.States = append(res.States, StateSkip, StateAck)
		if p.metrics != nil {
			p.metrics.IncEventsSkipped()
		}
		p.logger.Debug("skipped duplicate event",
			slog.String("handler", p.handler.Name()),
			slog.String("event_id", res.EventID))
		return res
	}

	res.States = append(res.States, StateProcess)
	if err := p.handler.Process(ctx, ev); err != nil {
		res.Err = err
		p.resolveFailure(ctx, msg, res, err)
		return res
	}

	if err := p.guard.Mark(ctx, res.EventID); err != nil {
		p.logger.Warn("failed to mark event processed",
			slog.String("event_id", res.EventID),
			slog.String("error", err.Error()))
	}
	res.States = append(res.States, StateAck)
	if p.metrics != nil {
		p.metrics.IncEventsProcessed()
	}
	return res
}

// resolveFailure routes a processing error to retry or dead-letter.
func (p *Processor) resolveFailure(ctx context.Context, msg *Message, res *Result, err error) {
	if Retryable(err) && msg.Attempt < p.maxAttempts {
		res.States = append(res.States, StateRetry)
		res.Disposition = DispositionRedeliver
		res.Backoff = p.backoff
		if p.metrics != nil {
			p.metrics.IncEventsRetried()
		}
		p.logger.Warn("event processing failed, scheduling retry",
			slog.String("handler", p.handler.Name()),
			slog.String("event_id", res.EventID),
			slog.Int("attempt", msg.Attempt),
			slog.Int("max_attempts", p.maxAttempts),
			slog.String("error", err.Error()))
		return
	}
	p.deadLetter(ctx, msg, res, err.Error())
}

// deadLetter publishes the message to the dead-letter stream. The original
// message is acknowledged only when the dead letter is durably stored;
// otherwise it stays on the stream for redelivery so nothing is lost.
func (p *Processor) deadLetter(ctx context.Context, msg *Message, res *Result, reason string) {
	res.States = append(res.States, StateDeadLetter)
	dl := &DeadLetter{
		Source:   p.handler.Name(),
		Subject:  msg.Subject,
		EventID:  res.EventID,
		Payload:  msg.Data,
		Reason:   reason,
		Attempts: msg.Attempt,
		FailedAt: time.Now().UTC(),
	}
	if err := p.dlq.PublishDeadLetter(ctx, dl); err != nil {
		p.logger.Error("failed to publish dead letter, leaving message for redelivery",
			slog.String("handler", p.handler.Name()),
			slog.String("event_id", res.EventID),
			slog.String("error", err.Error()))
		res.Disposition = DispositionRedeliver
		res.Backoff = p.backoff
		return
	}
	res.States = append(res.States, StateAck)
	res.Disposition = DispositionAck
	if p.metrics != nil {
		p.metrics.IncEventsDeadLettered()
	}
	if p.observer != nil {
		p.observer.DeadLettered(dl)
	}
	p.logger.Error("event dead-lettered",
		slog.String("handler", p.handler.Name()),
		slog.String("event_id", res.EventID),
		slog.String("subject", msg.Subject),
		slog.Int("attempts", msg.Attempt),
		slog.String("reason", reason))
}
