package connect

import (
	"github.com/osa030/vibebox/internal/app/notification"
	"github.com/osa030/vibebox/internal/app/playback"
	"github.com/osa030/vibebox/internal/domain/track"
)

// PlayTracksRequest starts a queue from explicit tracks or catalog track IDs.
// When both are set, Tracks wins.
type PlayTracksRequest struct {
	Tracks     []track.Track `json:"tracks,omitempty"`
	TrackIDs   []string      `json:"track_ids,omitempty"`
	StartIndex int           `json:"start_index"`
}

type PlayAlbumRequest struct {
	AlbumID    string `json:"album_id"`
	StartIndex int    `json:"start_index"`
}

type PlayArtistTopTracksRequest struct {
	ArtistID   string `json:"artist_id"`
	StartIndex int    `json:"start_index"`
}

type PlaySavedTracksRequest struct {
	Limit      int `json:"limit"`
	StartIndex int `json:"start_index"`
}

// PlayTopTracksRequest plays the user's most played tracks. TimeRange is one of
// short_term, medium_term (default) or long_term.
type PlayTopTracksRequest struct {
	Limit      int    `json:"limit"`
	TimeRange  string `json:"time_range,omitempty"`
	StartIndex int    `json:"start_index"`
}

type ListSavedAlbumsRequest struct {
	Limit int `json:"limit"`
}

type ListSavedAlbumsResponse struct {
	Albums []track.AlbumSummary `json:"albums"`
}

type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type SearchResponse struct {
	Tracks []track.Track `json:"tracks"`
}

// EmptyRequest is used by procedures without parameters.
type EmptyRequest struct{}

type SetTrackProgressRequest struct {
	CurrentTime float64 `json:"current_time"`
	Duration    float64 `json:"duration"`
}

// StateResponse carries the session state after a call.
type StateResponse struct {
	Snapshot playback.Snapshot `json:"snapshot"`
}

// StateNotification is streamed by SubscribeState.
type StateNotification = notification.Notification
