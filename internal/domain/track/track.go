// Package track provides the Track domain entity.
package track

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrInvalidTrack is returned by Validate when a track cannot be looked up.
var ErrInvalidTrack = errors.New("invalid track metadata")

// Image represents an album cover image.
type Image struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Album represents the album a track belongs to.
type Album struct {
	ID     string  `json:"id,omitempty"`
	Name   string  `json:"name"`
	Images []Image `json:"images,omitempty"`
}

// AlbumSummary is an album listed from the user's library.
type AlbumSummary struct {
	Album
	Artists     []string `json:"artists"`
	ReleaseDate string   `json:"release_date,omitempty"`
	AddedAt     string   `json:"added_at,omitempty"`
}

// ArtistLine returns the album artist names joined for display.
func (a *AlbumSummary) ArtistLine() string {
	return strings.Join(a.Artists, ", ")
}

// Track represents a catalog track entity.
// Contains only information retrieved from the catalog and is never mutated by playback.
// On the wire the duration is carried as duration_ms, the catalog's unit.
type Track struct {
	ID       string        // Catalog track ID
	Name     string        // Track name
	Artists  []string      // Artist names, in catalog order
	Album    Album         // Owning album
	Duration time.Duration // Track duration
	URL      string
}

type trackJSON struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Artists    []string `json:"artists"`
	Album      Album    `json:"album"`
	DurationMs int64    `json:"duration_ms"`
	URL        string   `json:"url,omitempty"`
}

func (t Track) wire() trackJSON {
	return trackJSON{
		ID:         t.ID,
		Name:       t.Name,
		Artists:    t.Artists,
		Album:      t.Album,
		DurationMs: t.DurationMs(),
		URL:        t.URL,
	}
}

func (w trackJSON) track() Track {
	return Track{
		ID:       w.ID,
		Name:     w.Name,
		Artists:  w.Artists,
		Album:    w.Album,
		Duration: FromMilliseconds(w.DurationMs),
		URL:      w.URL,
	}
}

func (t Track) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.wire())
}

func (t *Track) UnmarshalJSON(data []byte) error {
	var w trackJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return errors.Wrap(err, "failed to decode track")
	}
	*t = w.track()
	return nil
}

// FromMilliseconds converts a catalog duration in milliseconds.
func FromMilliseconds(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// DurationMs returns the duration in whole milliseconds, the unit the audio backend matches on.
func (t *Track) DurationMs() int64 {
	return t.Duration.Milliseconds()
}

// DurationSeconds returns the duration in seconds, the unit used for playback progress.
func (t *Track) DurationSeconds() float64 {
	return t.Duration.Seconds()
}

// ArtistLine returns the artist names joined for display and lookup.
func (t *Track) ArtistLine() string {
	return strings.Join(t.Artists, ", ")
}

// CoverURL returns the first album image URL, or empty if the album has none.
func (t *Track) CoverURL() string {
	if len(t.Album.Images) == 0 {
		return ""
	}
	return t.Album.Images[0].URL
}

// Validate checks that the track carries enough metadata for an audio lookup.
func (t *Track) Validate() error {
	switch {
	case t.ID == "":
		return errors.Wrap(ErrInvalidTrack, "empty id")
	case strings.TrimSpace(t.Name) == "":
		return errors.Wrapf(ErrInvalidTrack, "track %s: empty name", t.ID)
	case len(t.Artists) == 0 || strings.TrimSpace(t.Artists[0]) == "":
		return errors.Wrapf(ErrInvalidTrack, "track %s: no artist", t.ID)
	case t.DurationMs() <= 0:
		return errors.Wrapf(ErrInvalidTrack, "track %s: duration below one millisecond", t.ID)
	}
	return nil
}

// ActiveTrack is a track plus its playable audio reference, if resolved.
type ActiveTrack struct {
	Track
	AudioURL string `json:"audio_url,omitempty"`
}

type activeTrackJSON struct {
	trackJSON
	AudioURL string `json:"audio_url,omitempty"`
}

func (a ActiveTrack) MarshalJSON() ([]byte, error) {
	return json.Marshal(activeTrackJSON{trackJSON: a.Track.wire(), AudioURL: a.AudioURL})
}

func (a *ActiveTrack) UnmarshalJSON(data []byte) error {
	var w activeTrackJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return errors.Wrap(err, "failed to decode active track")
	}
	*a = ActiveTrack{Track: w.trackJSON.track(), AudioURL: w.AudioURL}
	return nil
}

// NewActive wraps a track with no audio reference.
func NewActive(t Track) ActiveTrack {
	return ActiveTrack{Track: t}
}

// Resolved reports whether a playable audio reference is attached.
func (a ActiveTrack) Resolved() bool {
	return a.AudioURL != ""
}

// WithAudio returns a copy of the track carrying the given audio reference.
func (a ActiveTrack) WithAudio(url string) ActiveTrack {
	a.AudioURL = url
	return a
}
