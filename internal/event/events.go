// Package event defines the wire types shared by the stream pipeline,
// the transport layer, and the HTTP API.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// InteractionType identifies the kind of user interaction with a post.
type InteractionType string

// Supported interaction types.
const (
	InteractionLike     InteractionType = "LIKE"
	InteractionUnlike   InteractionType = "UNLIKE"
	InteractionComment  InteractionType = "COMMENT"
	InteractionShare    InteractionType = "SHARE"
	InteractionView     InteractionType = "VIEW"
	InteractionBookmark InteractionType = "BOOKMARK"
	InteractionClick    InteractionType = "CLICK"
)

// ErrInvalidInteractionType is returned when an interaction type is not recognized.
var ErrInvalidInteractionType = errors.New("invalid interaction type")

// Valid reports whether t is one of the supported interaction types.
func (t InteractionType) Valid() bool {
	switch t {
	case InteractionLike, InteractionUnlike, InteractionComment,
		InteractionShare, InteractionView, InteractionBookmark, InteractionClick:
		return true
	}
	return false
}

// InteractionEvent is one user interaction with a post, as carried on the
// interaction-events stream. Delivery is at-least-once; events may duplicate
// or reorder across partitions.
type InteractionEvent struct {
	UserID          int64           `json:"userId"`
	PostID          int64           `json:"postId"`
	InteractionType InteractionType `json:"interactionType"`
	Timestamp       time.Time       `json:"timestamp"`
	Metadata        map[string]any  `json:"metadata,omitempty"`
}

// Category returns the category carried in the event metadata, or "".
func (e *InteractionEvent) Category() string {
	return metadataString(e.Metadata, "category")
}

// ExplicitEventID returns the eventId carried in the event metadata, or "".
// When absent, callers derive a deterministic ID from the event fields.
func (e *InteractionEvent) ExplicitEventID() string {
	return metadataString(e.Metadata, "eventId")
}

// Validate checks the event for structural problems that make it
// unprocessable regardless of system state.
func (e *InteractionEvent) Validate() error {
	if e.UserID <= 0 {
		return fmt.Errorf("userId must be positive, got %d", e.UserID)
	}
	if e.PostID <= 0 {
		return fmt.Errorf("postId must be positive, got %d", e.PostID)
	}
	if !e.InteractionType.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidInteractionType, e.InteractionType)
	}
	return nil
}

// LifecycleType identifies a post lifecycle transition.
type LifecycleType string

// Lifecycle event types as they appear on the wire.
const (
	LifecycleCreated     LifecycleType = "POST_CREATED"
	LifecycleUpdated     LifecycleType = "POST_UPDATED"
	LifecycleDeleted     LifecycleType = "POST_DELETED"
	LifecyclePublished   LifecycleType = "POST_PUBLISHED"
	LifecycleUnpublished LifecycleType = "POST_UNPUBLISHED"
)

// LifecycleEvent is a post lifecycle transition published by the content
// backend when posts are created, updated, published, or removed.
type LifecycleEvent struct {
	EventType string         `json:"eventType"`
	PostID    int64          `json:"postId"`
	AuthorID  int64          `json:"authorId"`
	Timestamp time.Time      `json:"timestamp"`
	PostData  map[string]any `json:"postData,omitempty"`
	EventID   string         `json:"eventId,omitempty"`
}

// Type returns the typed lifecycle event kind, or "" when the wire value
// is not recognized. Unknown types are a forward-compatible no-op for
// consumers, not an error.
func (e *LifecycleEvent) Type() LifecycleType {
	switch t := LifecycleType(e.EventType); t {
	case LifecycleCreated, LifecycleUpdated, LifecycleDeleted,
		LifecyclePublished, LifecycleUnpublished:
		return t
	}
	return ""
}

// Category returns the category from the post data payload, or "".
func (e *LifecycleEvent) Category() string {
	return metadataString(e.PostData, "category")
}

// Title returns the title from the post data payload, or "".
func (e *LifecycleEvent) Title() string {
	return metadataString(e.PostData, "title")
}

// IsCreation reports whether the event initializes a post (created or published).
func (e *LifecycleEvent) IsCreation() bool {
	t := e.Type()
	return t == LifecycleCreated || t == LifecyclePublished
}

// IsDeletion reports whether the event removes a post (deleted or unpublished).
func (e *LifecycleEvent) IsDeletion() bool {
	t := e.Type()
	return t == LifecycleDeleted || t == LifecycleUnpublished
}

// Validate checks the event for structural problems.
func (e *LifecycleEvent) Validate() error {
	if e.PostID <= 0 {
		return fmt.Errorf("postId must be positive, got %d", e.PostID)
	}
	return nil
}

// RecommendedPost is one entry in a personalized recommendation list.
type RecommendedPost struct {
	PostID     int64    `json:"postId"`
	Score      float64  `json:"score"`
	Reason     string   `json:"reason"`
	Categories []string `json:"categories"`
}

// RecommendationEvent is the payload published on the recommendation-results
// stream after a generation pass for one user.
type RecommendationEvent struct {
	UserID          int64             `json:"userId"`
	Recommendations []RecommendedPost `json:"recommendations"`
	Algorithm       string            `json:"algorithm"`
	GeneratedAt     time.Time         `json:"generatedAt"`
}

// DecodeInteraction parses an interaction event from its JSON wire form.
func DecodeInteraction(data []byte) (*InteractionEvent, error) {
	var ev InteractionEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode interaction event: %w", err)
	}
	return &ev, nil
}

// DecodeLifecycle parses a lifecycle event from its JSON wire form.
func DecodeLifecycle(data []byte) (*LifecycleEvent, error) {
	var ev LifecycleEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode lifecycle event: %w", err)
	}
	return &ev, nil
}

// metadataString extracts a string-valued key from a loosely typed metadata map.
func metadataString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Sprintf("%v", v)
	}
	return s
}
