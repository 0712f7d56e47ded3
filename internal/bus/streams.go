// Package bus provides the NATS JetStream transport: stream provisioning,
// partitioned publishing, and the pull-based partition source consumed by the
// pipeline worker pool.
package bus

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Stream and subject layout. Interaction and lifecycle subjects are
// partitioned (one subject per partition) so consumers can drain each
// partition strictly in order.
const (
	StreamInteractions = "INTERACTIONS"
	StreamLifecycle    = "POST_LIFECYCLE"
	StreamResults      = "RECOMMENDATION_RESULTS"
	StreamDeadLetters  = "DEAD_LETTERS"

	SubjectInteractionPrefix = "interactions.p"
	SubjectLifecyclePrefix   = "lifecycle.p"
	SubjectResults           = "recommendations.results"
	SubjectDeadLetters       = "deadletters.events"
)

// DefaultPartitions is the default partition count for the event streams.
const DefaultPartitions = 3

// StreamsConfig controls stream provisioning.
type StreamsConfig struct {
	Partitions int           `koanf:"partitions"`
	MaxAge     time.Duration `koanf:"max_age"`
	// DuplicateWindow is the JetStream server-side dedup window for
	// publishes carrying a Nats-Msg-Id. This is a second line of defense;
	// the pipeline's own guard covers the full retention window.
	DuplicateWindow time.Duration `koanf:"duplicate_window"`
	Replicas        int           `koanf:"replicas"`
}

// DefaultStreamsConfig returns the default stream provisioning settings.
func DefaultStreamsConfig() StreamsConfig {
	return StreamsConfig{
		Partitions:      DefaultPartitions,
		MaxAge:          7 * 24 * time.Hour,
		DuplicateWindow: 2 * time.Minute,
		Replicas:        1,
	}
}

// InteractionSubject returns the subject for one interaction partition.
func InteractionSubject(partition int) string {
	return SubjectInteractionPrefix + strconv.Itoa(partition)
}

// LifecycleSubject returns the subject for one lifecycle partition.
func LifecycleSubject(partition int) string {
	return SubjectLifecyclePrefix + strconv.Itoa(partition)
}

// EnsureStreams creates or updates the four streams. The operation is
// idempotent; publishers and consumers rely on it having run at startup.
func EnsureStreams(ctx context.Context, js jetstream.JetStream, cfg StreamsConfig) error {
	if cfg.Partitions <= 0 {
		cfg.Partitions = DefaultPartitions
	}

	interactionSubjects := make([]string, cfg.Partitions)
	lifecycleSubjects := make([]string, cfg.Partitions)
	for p := 0; p < cfg.Partitions; p++ {
		interactionSubjects[p] = InteractionSubject(p)
		lifecycleSubjects[p] = LifecycleSubject(p)
	}

	streams := []jetstream.StreamConfig{
		{
			Name:       StreamInteractions,
			Subjects:   interactionSubjects,
			Retention:  jetstream.LimitsPolicy,
			MaxAge:     cfg.MaxAge,
			Duplicates: cfg.DuplicateWindow,
			Replicas:   cfg.Replicas,
			Storage:    jetstream.FileStorage,
			Discard:    jetstream.DiscardOld,
		},
		{
			Name:       StreamLifecycle,
			Subjects:   lifecycleSubjects,
			Retention:  jetstream.LimitsPolicy,
			MaxAge:     cfg.MaxAge,
			Duplicates: cfg.DuplicateWindow,
			Replicas:   cfg.Replicas,
			Storage:    jetstream.FileStorage,
			Discard:    jetstream.DiscardOld,
		},
		{
			Name:      StreamResults,
			Subjects:  []string{SubjectResults},
			Retention: jetstream.LimitsPolicy,
			MaxAge:    cfg.MaxAge,
			Replicas:  cfg.Replicas,
			Storage:   jetstream.FileStorage,
			Discard:   jetstream.DiscardOld,
		},
		{
			// Dead letters keep a longer horizon; they are the record of
			// what the pipeline could not process.
			Name:      StreamDeadLetters,
			Subjects:  []string{SubjectDeadLetters},
			Retention: jetstream.LimitsPolicy,
			MaxAge:    30 * 24 * time.Hour,
			Replicas:  cfg.Replicas,
			Storage:   jetstream.FileStorage,
			Discard:   jetstream.DiscardOld,
		},
	}

	for _, streamCfg := range streams {
		if err := ensureStream(ctx, js, streamCfg); err != nil {
			return err
		}
	}
	return nil
}

// ensureStream creates the stream or updates its configuration when it
// already exists.
func ensureStream(ctx context.Context, js jetstream.JetStream, cfg jetstream.StreamConfig) error {
	_, err := js.Stream(ctx, cfg.Name)
	if err == nil {
		if _, err := js.UpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("update stream %s: %w", cfg.Name, err)
		}
		return nil
	}
	if errors.Is(err, jetstream.ErrStreamNotFound) {
		if _, err := js.CreateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		return nil
	}
	return fmt.Errorf("check stream %s: %w", cfg.Name, err)
}
