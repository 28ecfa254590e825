package playback

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vibebox/internal/app/resolver"
	"github.com/osa030/vibebox/internal/domain/queue"
	"github.com/osa030/vibebox/internal/domain/track"
)

// Errors
var (
	ErrEmptyQueue   = errors.New("no tracks to play")
	ErrInvalidIndex = errors.New("start index out of range")
	ErrClosed       = errors.New("session closed")
)

const (
	defaultResolveTimeout = 20 * time.Second
	defaultEventBuffer    = 32
)

// Warmer asks the backend to prepare a track ahead of playback.
// Warm must not block; onReady may be called with a ready URL.
type Warmer interface {
	Warm(t track.Track, onReady func(url string))
}

// Config holds session configuration.
type Config struct {
	PrefetchDepth  int           // Number of tracks after the current one to warm; 0 disables
	ResolveTimeout time.Duration // Per-attempt resolution timeout
	EventBuffer    int           // Event channel capacity
}

// Session owns the play queue and the active track.
//
// Every navigation performs its state change under the lock before any asynchronous work
// starts. Resolutions complete on their own goroutines and are applied through
// applyResolution, which ignores results for tracks that are no longer active.
type Session struct {
	mu sync.RWMutex

	queueID  string
	queue    *queue.Queue
	active   *track.ActiveTrack
	visible  bool
	loading  bool
	failed   bool
	progress Progress

	attempts      uint64 // Resolution attempts issued so far
	activeAttempt uint64 // Attempt issued for the current active track

	resolver resolver.Resolver
	warmer   Warmer
	config   Config

	eventCh chan Event
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSession creates an empty, hidden session.
// warmer may be nil, in which case nothing is prefetched.
func NewSession(config Config, r resolver.Resolver, warmer Warmer) (*Session, error) {
	if r == nil {
		return nil, errors.New("resolver is required")
	}
	if config.PrefetchDepth < 0 {
		config.PrefetchDepth = 0
	}
	if config.ResolveTimeout <= 0 {
		config.ResolveTimeout = defaultResolveTimeout
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = defaultEventBuffer
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		queue:    queue.New(nil),
		resolver: r,
		warmer:   warmer,
		config:   config,
		eventCh:  make(chan Event, config.EventBuffer),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Events returns the event channel. It is closed by Close.
func (s *Session) Events() <-chan Event {
	return s.eventCh
}

// PlayTracks replaces the queue and starts playback at startIndex.
// Audio references already known for the same tracks are kept.
func (s *Session) PlayTracks(tracks []track.Track, startIndex int) error {
	if len(tracks) == 0 {
		return ErrEmptyQueue
	}
	if startIndex < 0 || startIndex >= len(tracks) {
		return errors.Wrapf(ErrInvalidIndex, "index %d, queue length %d", startIndex, len(tracks))
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}

	q := queue.New(tracks)
	for _, id := range q.TrackIDs() {
		if url, ok := s.queue.URLFor(id); ok {
			q.Attach(id, url)
		}
	}
	q.Start(startIndex)

	s.queue = q
	s.queueID = uuid.New().String()
	s.visible = true
	zlog.Info().Msgf("playback: queue started: queue_id=%s tracks=%d start=%d", s.queueID, q.Len(), startIndex)

	window := s.focusLocked()
	s.mu.Unlock()

	s.prefetch(window)
	return nil
}

// PlayNext moves to the next track. Moving past the last track ends the session.
// It is a no-op when nothing is playing.
func (s *Session) PlayNext() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}

	var window []track.Track
	switch s.queue.Next() {
	case queue.Moved:
		window = s.focusLocked()
	case queue.Ended:
		zlog.Info().Msgf("playback: queue ended: queue_id=%s", s.queueID)
		s.teardownLocked()
		s.sendEventLocked(Event{Type: EventQueueEnded, State: s.stateLocked()})
	}
	s.mu.Unlock()

	s.prefetch(window)
	return nil
}

// PlayPrevious moves to the previous track. It is a no-op at the first track or when
// nothing is playing.
func (s *Session) PlayPrevious() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}

	var window []track.Track
	if s.queue.Previous() == queue.Moved {
		window = s.focusLocked()
	}
	s.mu.Unlock()

	s.prefetch(window)
	return nil
}

// HidePlayer hides the player and clears the queue.
func (s *Session) HidePlayer() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if !s.visible && s.active == nil && s.queue.IsEmpty() {
		return nil
	}

	zlog.Info().Msgf("playback: player hidden: queue_id=%s", s.queueID)
	s.teardownLocked()
	s.sendEventLocked(Event{Type: EventPlayerHidden, State: s.stateLocked()})
	return nil
}

// SetTrackProgress records the position reported by the audio element.
// It is ignored when no track is active and never triggers resolution.
func (s *Session) SetTrackProgress(p Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.active == nil {
		return nil
	}

	if p.Duration <= 0 {
		p.Duration = s.active.DurationSeconds()
	}
	s.progress = p.clamped()
	s.sendEventLocked(Event{
		Type:    EventProgress,
		TrackID: s.active.ID,
		Track:   s.activeCopyLocked(),
		State:   s.stateLocked(),
	})
	return nil
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		QueueID:     s.queueID,
		State:       s.stateLocked(),
		Visible:     s.visible,
		Loading:     s.loading,
		ActiveTrack: s.activeCopyLocked(),
		Queue:       s.queue.Snapshot(),
		Progress:    s.progress,
	}
	if i, ok := s.queue.Index(); ok {
		snap.CurrentIndex = &i
	}
	return snap
}

// Close stops the session, waits for outstanding resolutions and closes the event channel.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	close(s.eventCh)
}

// focusLocked makes the queue's current slot the active track, starts its resolution
// when needed, and returns the tracks to warm.
// Must be called with lock held.
func (s *Session) focusLocked() []track.Track {
	current, ok := s.queue.Current()
	if !ok {
		return nil
	}

	s.active = &current
	s.failed = false
	s.progress = Progress{Duration: current.DurationSeconds()}
	s.loading = !current.Resolved()

	zlog.Debug().Msgf("playback: track changed: track_id=%s name=%s resolved=%t",
		current.ID, current.Name, current.Resolved())
	s.sendEventLocked(Event{
		Type:    EventTrackChanged,
		TrackID: current.ID,
		Track:   s.activeCopyLocked(),
		State:   s.stateLocked(),
	})

	if s.loading {
		s.attempts++
		s.activeAttempt = s.attempts
		s.resolveLocked(current.Track, s.activeAttempt)
	}

	return s.queue.Window(s.config.PrefetchDepth)
}

// resolveLocked runs the resolver on its own goroutine.
// Must be called with lock held.
func (s *Session) resolveLocked(t track.Track, attempt uint64) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(s.ctx, s.config.ResolveTimeout)
		defer cancel()

		s.applyResolution(resolver.Run(ctx, s.resolver, t, attempt))
	}()
}

// applyResolution applies a resolution result.
// A successful URL is always written into the queue slots for that track. The active
// track and loading flag change only if the result belongs to the active track.
func (s *Session) applyResolution(res resolver.Resolution) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	isActive := s.active != nil && s.active.ID == res.TrackID

	if res.OK() {
		s.queue.Attach(res.TrackID, res.URL)
		if isActive && !s.active.Resolved() {
			resolved := s.active.WithAudio(res.URL)
			s.active = &resolved
			s.loading = false
			s.failed = false
			zlog.Debug().Msgf("playback: track resolved: track_id=%s attempt=%d", res.TrackID, res.Attempt)
			s.sendEventLocked(Event{
				Type:    EventTrackResolved,
				TrackID: res.TrackID,
				Track:   s.activeCopyLocked(),
				State:   s.stateLocked(),
			})
			return
		}
		if !isActive {
			s.discardLocked(res)
		}
		return
	}

	if isActive && !s.active.Resolved() && res.Attempt == s.activeAttempt {
		s.loading = false
		s.failed = true
		zlog.Warn().Msgf("playback: resolution failed: track_id=%s name=%s error=%v",
			res.TrackID, s.active.Name, res.Err)
		s.sendEventLocked(Event{
			Type:    EventResolveFailed,
			TrackID: res.TrackID,
			Track:   s.activeCopyLocked(),
			State:   s.stateLocked(),
			Err:     res.Err,
		})
		return
	}
	s.discardLocked(res)
}

// discardLocked records a result that no longer matches the active track.
// Must be called with lock held.
func (s *Session) discardLocked(res resolver.Resolution) {
	zlog.Debug().Msgf("playback: stale resolution discarded: track_id=%s attempt=%d ok=%t",
		res.TrackID, res.Attempt, res.OK())
	s.sendEventLocked(Event{
		Type:    EventResolutionDiscarded,
		TrackID: res.TrackID,
		Track:   s.activeCopyLocked(),
		State:   s.stateLocked(),
		Err:     res.Err,
	})
}

// prefetch warms the given tracks. URLs reported ready are attached to the queue.
// Must be called without the lock, since a warmer may call back synchronously.
func (s *Session) prefetch(tracks []track.Track) {
	if s.warmer == nil {
		return
	}
	for _, t := range tracks {
		id := t.ID
		s.warmer.Warm(t, func(url string) {
			s.applyResolution(resolver.Resolution{TrackID: id, URL: url})
		})
	}
}

// teardownLocked resets the session to its empty, hidden state.
// Must be called with lock held.
func (s *Session) teardownLocked() {
	s.queue.Reset()
	s.queueID = ""
	s.active = nil
	s.visible = false
	s.loading = false
	s.failed = false
	s.progress = Progress{}
}

func (s *Session) stateLocked() State {
	switch {
	case s.active == nil:
		return StateHidden
	case s.active.Resolved():
		return StateReady
	case s.failed:
		return StateUnplayable
	default:
		return StateLoading
	}
}

func (s *Session) activeCopyLocked() *track.ActiveTrack {
	if s.active == nil {
		return nil
	}
	a := *s.active
	return &a
}

// sendEventLocked sends an event without blocking.
// Must be called with lock held.
func (s *Session) sendEventLocked(e Event) {
	if s.closed {
		return
	}
	select {
	case s.eventCh <- e:
	default:
		zlog.Debug().Msgf("playback: event dropped: type=%s", e.Type)
	}
}
