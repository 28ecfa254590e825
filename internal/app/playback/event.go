package playback

import "github.com/osa030/vibebox/internal/domain/track"

// EventType represents a session event type.
type EventType int

const (
	EventTrackChanged        EventType = iota // A new track became active
	EventTrackResolved                        // The active track received its audio reference
	EventResolveFailed                        // Resolution of the active track failed
	EventResolutionDiscarded                  // A late result arrived for a track no longer active
	EventQueueEnded                           // Navigation ran past the last track
	EventPlayerHidden                         // The player was hidden
	EventProgress                             // Playback progress was reported
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackChanged:
		return "track_changed"
	case EventTrackResolved:
		return "track_resolved"
	case EventResolveFailed:
		return "resolve_failed"
	case EventResolutionDiscarded:
		return "resolution_discarded"
	case EventQueueEnded:
		return "queue_ended"
	case EventPlayerHidden:
		return "player_hidden"
	case EventProgress:
		return "progress"
	default:
		return "unknown"
	}
}

// Event represents a session event.
type Event struct {
	Type    EventType
	TrackID string             // Track the event refers to (empty for teardown events)
	Track   *track.ActiveTrack // Active track after the event (nil when none)
	State   State              // Session state after the event
	Err     error              // Resolution error for EventResolveFailed
}
