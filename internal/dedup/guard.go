// Package dedup suppresses duplicate stream events on the at-least-once
// delivery path. Event IDs are remembered for a retention window; an ID seen
// within the window is skipped and acknowledged without reprocessing.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// DefaultRetention is how long processed event IDs are remembered. Duplicates
// older than this window are processed again, which is safe for counter
// updates and merely wasteful for everything else.
const DefaultRetention = 24 * time.Hour

// Guard tracks processed event IDs.
//
// Implementations fail open: when the backing store is unreachable, Seen
// reports false and Mark drops the write, trading duplicate suppression for
// pipeline availability.
type Guard interface {
	// Seen reports whether eventID was marked within the retention window.
	Seen(ctx context.Context, eventID string) (bool, error)

	// Mark records eventID as processed. Called only after the event's
	// effects are durably committed, so a crash between commit and mark
	// results in a reprocessed event, never a lost one.
	Mark(ctx context.Context, eventID string) error
}

// DeriveInteractionID builds a deterministic event ID for an interaction
// event that carries no explicit eventId. Fields are hashed with NUL
// separators so adjacent values cannot collide by concatenation.
func DeriveInteractionID(userID, postID int64, interactionType string, ts time.Time) string {
	return deriveID(
		strconv.FormatInt(userID, 10),
		strconv.FormatInt(postID, 10),
		interactionType,
		strconv.FormatInt(ts.UnixMilli(), 10),
	)
}

// DeriveLifecycleID builds a deterministic event ID for a lifecycle event
// that carries no explicit eventId.
func DeriveLifecycleID(eventType string, postID int64, ts time.Time) string {
	return deriveID(
		eventType,
		strconv.FormatInt(postID, 10),
		strconv.FormatInt(ts.UnixMilli(), 10),
	)
}

func deriveID(fields ...string) string {
	var data []byte
	for i, f := range fields {
		if i > 0 {
			data = append(data, 0)
		}
		data = append(data, f...)
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
