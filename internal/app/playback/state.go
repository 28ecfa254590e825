// Package playback provides the playback session: queue, active track, resolution and prefetch.
package playback

import (
	"math"

	"github.com/osa030/vibebox/internal/domain/track"
)

// State represents the player state derived from the session.
type State int

const (
	StateHidden     State = iota // No active track, player not shown
	StateLoading                 // Active track is waiting for its audio reference
	StateReady                   // Active track has a playable audio reference
	StateUnplayable              // Resolution failed; transport controls should be disabled
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateHidden:
		return "hidden"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateUnplayable:
		return "unplayable"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "loading":
		*s = StateLoading
	case "ready":
		*s = StateReady
	case "unplayable":
		*s = StateUnplayable
	default:
		*s = StateHidden
	}
	return nil
}

// Progress is the playback position reported by the audio element, in seconds.
type Progress struct {
	CurrentTime float64 `json:"current_time"`
	Duration    float64 `json:"duration"`
}

// Fraction returns the played fraction in [0, 1].
func (p Progress) Fraction() float64 {
	if p.Duration <= 0 {
		return 0
	}
	return math.Min(p.CurrentTime/p.Duration, 1)
}

// Remaining returns the seconds left to play.
func (p Progress) Remaining() float64 {
	if p.Duration <= 0 {
		return 0
	}
	return math.Max(p.Duration-p.CurrentTime, 0)
}

// clamped returns p with invalid values zeroed and the position capped at the duration.
func (p Progress) clamped() Progress {
	p.CurrentTime = finiteNonNegative(p.CurrentTime)
	p.Duration = finiteNonNegative(p.Duration)
	if p.Duration > 0 && p.CurrentTime > p.Duration {
		p.CurrentTime = p.Duration
	}
	return p
}

func finiteNonNegative(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// Snapshot is a point-in-time copy of the session.
type Snapshot struct {
	QueueID      string              `json:"queue_id,omitempty"`
	State        State               `json:"state"`
	Visible      bool                `json:"visible"`
	Loading      bool                `json:"loading"`
	CurrentIndex *int                `json:"current_index"`
	ActiveTrack  *track.ActiveTrack  `json:"active_track"`
	Queue        []track.ActiveTrack `json:"queue"`
	Progress     Progress            `json:"progress"`
}

// Index returns the current index and whether one is set.
func (s Snapshot) Index() (int, bool) {
	if s.CurrentIndex == nil {
		return 0, false
	}
	return *s.CurrentIndex, true
}
