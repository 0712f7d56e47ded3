package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strconv"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/studysync/feedrank/internal/event"
	"github.com/studysync/feedrank/internal/pipeline"
)

// Publisher writes events to the JetStream streams. Interaction and
// lifecycle events are routed to a partition by key so all events for one
// (user, post) pair or one post land on the same subject and stay ordered.
type Publisher struct {
	js         jetstream.JetStream
	partitions int
}

// NewPublisher creates a publisher over the given JetStream context.
func NewPublisher(js jetstream.JetStream, partitions int) *Publisher {
	if partitions <= 0 {
		partitions = DefaultPartitions
	}
	return &Publisher{js: js, partitions: partitions}
}

// partitionFor hashes a routing key onto a partition.
func (p *Publisher) partitionFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(p.partitions))
}

// interactionKey is the partition routing key for an interaction event.
func interactionKey(ev *event.InteractionEvent) string {
	return strconv.FormatInt(ev.UserID, 10) + "-" + strconv.FormatInt(ev.PostID, 10)
}

// PublishInteraction publishes an interaction event to its partition. The
// eventID doubles as the JetStream message ID for server-side dedup inside
// the duplicate window.
func (p *Publisher) PublishInteraction(ctx context.Context, ev *event.InteractionEvent, eventID string) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode interaction event: %w", err)
	}
	subject := InteractionSubject(p.partitionFor(interactionKey(ev)))
	opts := []jetstream.PublishOpt{}
	if eventID != "" {
		opts = append(opts, jetstream.WithMsgID(eventID))
	}
	if _, err := p.js.Publish(ctx, subject, data, opts...); err != nil {
		return fmt.Errorf("failed to publish interaction event: %w", err)
	}
	return nil
}

// PublishLifecycle publishes a lifecycle event, partitioned by post ID.
func (p *Publisher) PublishLifecycle(ctx context.Context, ev *event.LifecycleEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode lifecycle event: %w", err)
	}
	subject := LifecycleSubject(p.partitionFor(strconv.FormatInt(ev.PostID, 10)))
	opts := []jetstream.PublishOpt{}
	if ev.EventID != "" {
		opts = append(opts, jetstream.WithMsgID(ev.EventID))
	}
	if _, err := p.js.Publish(ctx, subject, data, opts...); err != nil {
		return fmt.Errorf("failed to publish lifecycle event: %w", err)
	}
	return nil
}

// PublishRecommendations publishes a generated recommendation set.
func (p *Publisher) PublishRecommendations(ctx context.Context, ev *event.RecommendationEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode recommendation event: %w", err)
	}
	if _, err := p.js.Publish(ctx, SubjectResults, data); err != nil {
		return fmt.Errorf("failed to publish recommendation event: %w", err)
	}
	return nil
}

// PublishDeadLetter implements pipeline.DeadLetterPublisher.
func (p *Publisher) PublishDeadLetter(ctx context.Context, dl *pipeline.DeadLetter) error {
	data, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("failed to encode dead letter: %w", err)
	}
	if _, err := p.js.Publish(ctx, SubjectDeadLetters, data); err != nil {
		return fmt.Errorf("failed to publish dead letter: %w", err)
	}
	return nil
}
