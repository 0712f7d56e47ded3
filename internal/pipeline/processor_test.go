package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/studysync/feedrank/internal/dedup"
)

// fakeHandler drives the processor with scripted behavior.
type fakeHandler struct {
	decodeErr  error
	processErr error
	eventID    string
	processed  int
}

func (h *fakeHandler) Name() string { return "fake" }

func (h *fakeHandler) Decode(data []byte) (any, error) {
	if h.decodeErr != nil {
		return nil, h.decodeErr
	}
	return string(data), nil
}

func (h *fakeHandler) EventID(ev any) string {
	if h.eventID != "" {
		return h.eventID
	}
	return ev.(string)
}

func (h *fakeHandler) Process(ctx context.Context, ev any) error {
	h.processed++
	return h.processErr
}

// captureDLQ records published dead letters.
type captureDLQ struct {
	mu      sync.Mutex
	err     error
	letters []*DeadLetter
}

func (d *captureDLQ) PublishDeadLetter(ctx context.Context, dl *DeadLetter) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.letters = append(d.letters, dl)
	return nil
}

func statesEqual(got []State, want ...State) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func msg(data string, attempt int) *Message {
	return &Message{Subject: "interactions.p0", Data: []byte(data), Attempt: attempt}
}

func TestProcessorHappyPath(t *testing.T) {
	handler := &fakeHandler{}
	guard := dedup.NewMemoryGuard(time.Hour)
	dlq := &captureDLQ{}
	p := NewProcessor(handler, guard, dlq, nil)

	res := p.Handle(context.Background(), msg("ev-1", 1))
	if res.Disposition != DispositionAck {
		t.Errorf("Disposition = %v, want Ack", res.Disposition)
	}
	if !statesEqual(res.States, StateReceived, StateDedupCheck, StateProcess, StateAck) {
		t.Errorf("States = %v", res.States)
	}
	if res.Err != nil {
		t.Errorf("Err = %v, want nil", res.Err)
	}
	if handler.processed != 1 {
		t.Errorf("processed = %d, want 1", handler.processed)
	}

	// The event is marked processed after success.
	seen, _ := guard.Seen(context.Background(), "ev-1")
	if !seen {
		t.Error("event not marked in guard after successful processing")
	}
}

func TestProcessorSkipsDuplicate(t *testing.T) {
	handler := &fakeHandler{}
	guard := dedup.NewMemoryGuard(time.Hour)
	p := NewProcessor(handler, guard, &captureDLQ{}, nil)

	_ = guard.Mark(context.Background(), "ev-1")

	res := p.Handle(context.Background(), msg("ev-1", 1))
	if res.Disposition != DispositionAck {
		t.Errorf("Disposition = %v, want Ack", res.Disposition)
	}
	if !statesEqual(res.States, StateReceived, StateDedupCheck, StateSkip, StateAck) {
		t.Errorf("States = %v", res.States)
	}
	if handler.processed != 0 {
		t.Errorf("duplicate was processed %d times", handler.processed)
	}
}

func TestProcessorMalformedGoesStraightToDeadLetter(t *testing.T) {
	handler := &fakeHandler{decodeErr: errors.New("bad json")}
	dlq := &captureDLQ{}
	p := NewProcessor(handler, dedup.NewMemoryGuard(time.Hour), dlq, nil)

	res := p.Handle(context.Background(), msg("garbage", 1))
	if res.Disposition != DispositionAck {
		t.Errorf("Disposition = %v, want Ack", res.Disposition)
	}
	if !statesEqual(res.States, StateReceived, StateDeadLetter, StateAck) {
		t.Errorf("States = %v", res.States)
	}
	if len(dlq.letters) != 1 {
		t.Fatalf("dead letters = %d, want 1", len(dlq.letters))
	}
	if dlq.letters[0].Source != "fake" || string(dlq.letters[0].Payload) != "garbage" {
		t.Errorf("dead letter = %+v", dlq.letters[0])
	}
	if handler.processed != 0 {
		t.Error("malformed event reached Process")
	}
}

func TestProcessorTransientFailureRetriesThenDeadLetters(t *testing.T) {
	handler := &fakeHandler{processErr: errors.New("db down")}
	dlq := &captureDLQ{}
	p := NewProcessor(handler, dedup.NewMemoryGuard(time.Hour), dlq, nil,
		WithRetryPolicy(3, 10*time.Millisecond))

	// Attempts 1 and 2 schedule redelivery.
	for attempt := 1; attempt <= 2; attempt++ {
		res := p.Handle(context.Background(), msg("ev-1", attempt))
		if res.Disposition != DispositionRedeliver {
			t.Errorf("attempt %d: Disposition = %v, want Redeliver", attempt, res.Disposition)
		}
		if res.Backoff != 10*time.Millisecond {
			t.Errorf("attempt %d: Backoff = %v", attempt, res.Backoff)
		}
		if res.Last() != StateRetry {
			t.Errorf("attempt %d: Last() = %v, want RETRY", attempt, res.Last())
		}
	}

	// The final attempt exhausts the budget and dead-letters.
	res := p.Handle(context.Background(), msg("ev-1", 3))
	if res.Disposition != DispositionAck {
		t.Errorf("Disposition = %v, want Ack", res.Disposition)
	}
	if !statesEqual(res.States, StateReceived, StateDedupCheck, StateProcess, StateDeadLetter, StateAck) {
		t.Errorf("States = %v", res.States)
	}
	if len(dlq.letters) != 1 {
		t.Fatalf("dead letters = %d, want 1", len(dlq.letters))
	}
	if dlq.letters[0].Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", dlq.letters[0].Attempts)
	}
}

func TestProcessorNonRetryableSkipsRetryBudget(t *testing.T) {
	handler := &fakeHandler{processErr: ErrNonRetryable}
	dlq := &captureDLQ{}
	p := NewProcessor(handler, dedup.NewMemoryGuard(time.Hour), dlq, nil)

	res := p.Handle(context.Background(), msg("ev-1", 1))
	if res.Last() != StateAck || res.States[len(res.States)-2] != StateDeadLetter {
		t.Errorf("States = %v, want dead letter on first attempt", res.States)
	}
	if len(dlq.letters) != 1 {
		t.Errorf("dead letters = %d, want 1", len(dlq.letters))
	}
}

func TestProcessorFailedEventNotMarkedProcessed(t *testing.T) {
	handler := &fakeHandler{processErr: errors.New("transient")}
	guard := dedup.NewMemoryGuard(time.Hour)
	p := NewProcessor(handler, guard, &captureDLQ{}, nil)

	_ = p.Handle(context.Background(), msg("ev-1", 1))
	seen, _ := guard.Seen(context.Background(), "ev-1")
	if seen {
		t.Error("failed event was marked processed; redelivery would be skipped")
	}
}

func TestProcessorRedeliversWhenDeadLetterPublishFails(t *testing.T) {
	// If the dead letter cannot be stored durably the message must stay on
	// the stream rather than vanish.
	handler := &fakeHandler{decodeErr: errors.New("bad json")}
	dlq := &captureDLQ{err: errors.New("dlq unavailable")}
	p := NewProcessor(handler, dedup.NewMemoryGuard(time.Hour), dlq, nil)

	res := p.Handle(context.Background(), msg("garbage", 1))
	if res.Disposition != DispositionRedeliver {
		t.Errorf("Disposition = %v, want Redeliver when DLQ publish fails", res.Disposition)
	}
}

func TestProcessorNotifiesObserver(t *testing.T) {
	handler := &fakeHandler{processErr: ErrNonRetryable}
	var notified []*DeadLetter
	observer := deadLetterFunc(func(dl *DeadLetter) { notified = append(notified, dl) })
	p := NewProcessor(handler, dedup.NewMemoryGuard(time.Hour), &captureDLQ{}, nil,
		WithDeadLetterObserver(observer))

	_ = p.Handle(context.Background(), msg("ev-1", 1))
	if len(notified) != 1 {
		t.Errorf("observer notified %d times, want 1", len(notified))
	}
}

type deadLetterFunc func(dl *DeadLetter)

func (f deadLetterFunc) DeadLettered(dl *DeadLetter) { f(dl) }

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("db down"), true},
		{"wrapped transient", errors.Join(errors.New("outer"), errors.New("inner")), true},
		{"malformed", Malformed(errors.New("bad")), false},
		{"non-retryable", ErrNonRetryable, false},
		{"wrapped non-retryable", errors.Join(errors.New("ctx"), ErrNonRetryable), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
