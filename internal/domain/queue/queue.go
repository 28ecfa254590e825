// Package queue provides the play queue domain entity.
package queue

import (
	"time"

	"github.com/osa030/vibebox/internal/domain/track"
)

// Move describes the outcome of a navigation step.
type Move int

const (
	Unchanged Move = iota // Nothing happened (boundary or no current track)
	Moved                 // Current index changed
	Ended                 // Ran past the last track; the queue was reset
)

// String returns the string representation of the move.
func (m Move) String() string {
	switch m {
	case Unchanged:
		return "unchanged"
	case Moved:
		return "moved"
	case Ended:
		return "ended"
	default:
		return "unknown"
	}
}

// Queue is an ordered list of tracks with an optional current position.
// Slots are addressed by index; resolved audio references are attached by track ID.
type Queue struct {
	slots   []track.ActiveTrack
	current int // -1 when there is no current track
}

// New creates a queue from catalog tracks. No track is current yet.
func New(tracks []track.Track) *Queue {
	slots := make([]track.ActiveTrack, len(tracks))
	for i, t := range tracks {
		slots[i] = track.NewActive(t)
	}
	return &Queue{slots: slots, current: -1}
}

// Len returns the number of slots.
func (q *Queue) Len() int {
	return len(q.slots)
}

// IsEmpty returns true if the queue has no slots.
func (q *Queue) IsEmpty() bool {
	return len(q.slots) == 0
}

// Start makes index i current. Returns false if i is out of range.
func (q *Queue) Start(i int) bool {
	if i < 0 || i >= len(q.slots) {
		return false
	}
	q.current = i
	return true
}

// Index returns the current index and whether one is set.
func (q *Queue) Index() (int, bool) {
	if q.current < 0 {
		return 0, false
	}
	return q.current, true
}

// Current returns a copy of the current slot.
func (q *Queue) Current() (track.ActiveTrack, bool) {
	if q.current < 0 || q.current >= len(q.slots) {
		return track.ActiveTrack{}, false
	}
	return q.slots[q.current], true
}

// At returns a copy of slot i.
func (q *Queue) At(i int) (track.ActiveTrack, bool) {
	if i < 0 || i >= len(q.slots) {
		return track.ActiveTrack{}, false
	}
	return q.slots[i], true
}

// Next advances the current index. Moving past the last slot resets the queue.
func (q *Queue) Next() Move {
	if q.current < 0 {
		return Unchanged
	}
	if q.current >= len(q.slots)-1 {
		q.Reset()
		return Ended
	}
	q.current++
	return Moved
}

// Previous steps back one slot. It is a no-op at index 0 or with no current track.
func (q *Queue) Previous() Move {
	if q.current <= 0 {
		return Unchanged
	}
	q.current--
	return Moved
}

// Reset empties the queue and clears the current index.
func (q *Queue) Reset() {
	q.slots = nil
	q.current = -1
}

// Attach sets the audio reference on every slot holding the given track ID.
// Returns the number of slots updated.
func (q *Queue) Attach(trackID, url string) int {
	n := 0
	for i := range q.slots {
		if q.slots[i].ID == trackID {
			q.slots[i].AudioURL = url
			n++
		}
	}
	return n
}

// URLFor returns the audio reference known for a track ID.
func (q *Queue) URLFor(trackID string) (string, bool) {
	for _, s := range q.slots {
		if s.ID == trackID && s.AudioURL != "" {
			return s.AudioURL, true
		}
	}
	return "", false
}

// Window returns the unresolved tracks in the depth slots following the current one.
// The window is clipped at the end of the queue.
func (q *Queue) Window(depth int) []track.Track {
	if q.current < 0 || depth <= 0 {
		return nil
	}
	end := q.current + depth
	if end > len(q.slots)-1 {
		end = len(q.slots) - 1
	}
	var out []track.Track
	for i := q.current + 1; i <= end; i++ {
		if !q.slots[i].Resolved() {
			out = append(out, q.slots[i].Track)
		}
	}
	return out
}

// Snapshot returns a copy of all slots.
func (q *Queue) Snapshot() []track.ActiveTrack {
	out := make([]track.ActiveTrack, len(q.slots))
	copy(out, q.slots)
	return out
}

// TrackIDs returns all track IDs in the queue.
func (q *Queue) TrackIDs() []string {
	ids := make([]string, len(q.slots))
	for i, s := range q.slots {
		ids[i] = s.ID
	}
	return ids
}

// TotalDuration returns the total duration of all tracks.
func (q *Queue) TotalDuration() time.Duration {
	var total time.Duration
	for _, s := range q.slots {
		total += s.Duration
	}
	return total
}
