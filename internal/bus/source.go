package bus

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/studysync/feedrank/internal/pipeline"
)

// SourceConfig controls the durable pull consumers backing a PartitionSource.
type SourceConfig struct {
	// Stream is the stream name the consumers attach to.
	Stream string
	// DurablePrefix names the consumers; partition N becomes
	// "<prefix>-pN" so restarts resume where the last run stopped.
	DurablePrefix string
	// SubjectPrefix is the partitioned subject prefix to filter on.
	SubjectPrefix string
	Partitions    int
	// MaxDeliver caps transport-level redeliveries. It sits above the
	// processor's own retry budget so the processor always gets the last
	// word on dead-lettering.
	MaxDeliver int
	AckWait    time.Duration
	// FetchWait bounds how long Next blocks waiting for a message.
	FetchWait time.Duration
}

// InteractionSourceConfig returns the consumer settings for the
// interactions stream.
func InteractionSourceConfig(partitions int) SourceConfig {
	return SourceConfig{
		Stream:        StreamInteractions,
		DurablePrefix: "feedrank-interactions",
		SubjectPrefix: SubjectInteractionPrefix,
		Partitions:    partitions,
	}
}

// LifecycleSourceConfig returns the consumer settings for the post
// lifecycle stream.
func LifecycleSourceConfig(partitions int) SourceConfig {
	return SourceConfig{
		Stream:        StreamLifecycle,
		DurablePrefix: "feedrank-lifecycle",
		SubjectPrefix: SubjectLifecyclePrefix,
		Partitions:    partitions,
	}
}

// PartitionSource implements pipeline.Source over one durable pull consumer
// per partition. Each partition maps to exactly one filtered subject, so a
// single worker draining it sees events strictly in publish order.
type PartitionSource struct {
	cfg       SourceConfig
	consumers []jetstream.Consumer
}

// NewPartitionSource provisions the durable consumers and returns a source
// ready for the worker pool.
func NewPartitionSource(ctx context.Context, js jetstream.JetStream, cfg SourceConfig) (*PartitionSource, error) {
	if cfg.Partitions <= 0 {
		cfg.Partitions = DefaultPartitions
	}
	if cfg.MaxDeliver <= 0 {
		// One more than the processor's retry budget so the processor can
		// dead-letter on its own terms before the server gives up.
		cfg.MaxDeliver = pipeline.DefaultMaxAttempts + 1
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = 30 * time.Second
	}
	if cfg.FetchWait <= 0 {
		cfg.FetchWait = 2 * time.Second
	}

	stream, err := js.Stream(ctx, cfg.Stream)
	if err != nil {
		return nil, fmt.Errorf("lookup stream %s: %w", cfg.Stream, err)
	}

	consumers := make([]jetstream.Consumer, cfg.Partitions)
	for p := 0; p < cfg.Partitions; p++ {
		durable := durableName(cfg.DurablePrefix, p)
		consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
			Durable:       durable,
			FilterSubject: cfg.SubjectPrefix + strconv.Itoa(p),
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       cfg.AckWait,
			MaxDeliver:    cfg.MaxDeliver,
			DeliverPolicy: jetstream.DeliverAllPolicy,
			ReplayPolicy:  jetstream.ReplayInstantPolicy,
		})
		if err != nil {
			return nil, fmt.Errorf("create consumer %s: %w", durable, err)
		}
		consumers[p] = consumer
	}

	return &PartitionSource{cfg: cfg, consumers: consumers}, nil
}

// Partitions returns the partition count the source was provisioned with.
func (s *PartitionSource) Partitions() int {
	return s.cfg.Partitions
}

// Next fetches the next pending delivery for the partition. It returns
// pipeline.ErrNoMessage when the partition is idle.
func (s *PartitionSource) Next(ctx context.Context, partition int) (*pipeline.Delivery, error) {
	if partition < 0 || partition >= len(s.consumers) {
		return nil, fmt.Errorf("partition %d out of range", partition)
	}

	batch, err := s.consumers[partition].Fetch(1, jetstream.FetchMaxWait(s.cfg.FetchWait))
	if err != nil {
		if errors.Is(err, jetstream.ErrNoMessages) || errors.Is(err, context.DeadlineExceeded) {
			return nil, pipeline.ErrNoMessage
		}
		return nil, fmt.Errorf("fetch partition %d: %w", partition, err)
	}

	// The batch channel closes without a message when the wait expires.
	msg, ok := <-batch.Messages()
	if !ok {
		if err := batch.Error(); err != nil && !errors.Is(err, jetstream.ErrNoMessages) {
			return nil, fmt.Errorf("fetch partition %d: %w", partition, err)
		}
		return nil, pipeline.ErrNoMessage
	}

	attempt := 1
	if meta, err := msg.Metadata(); err == nil {
		attempt = int(meta.NumDelivered)
	}

	return &pipeline.Delivery{
		Msg: &pipeline.Message{
			Subject:   msg.Subject(),
			Data:      msg.Data(),
			Partition: partition,
			Attempt:   attempt,
		},
		Ack: msg.Ack,
		Redeliver: func(delay time.Duration) error {
			return msg.NakWithDelay(delay)
		},
	}, nil
}

func durableName(prefix string, partition int) string {
	return strings.ReplaceAll(prefix, ".", "-") + "-p" + strconv.Itoa(partition)
}
