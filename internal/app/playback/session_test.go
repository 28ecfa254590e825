package playback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/vibebox/internal/domain/track"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

type reply struct {
	url string
	err error
}

type resolveCall struct {
	trackID string
	reply   chan reply
}

// fakeResolver blocks every Resolve call until the test replies to it.
type fakeResolver struct {
	mu    sync.Mutex
	calls []*resolveCall
}

func (f *fakeResolver) Resolve(ctx context.Context, t track.Track) (string, error) {
	c := &resolveCall{trackID: t.ID, reply: make(chan reply, 1)}
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()

	select {
	case r := <-c.reply:
		return r.url, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (f *fakeResolver) Name() string { return "fake" }

func (f *fakeResolver) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// respond answers the i-th Resolve call.
func (f *fakeResolver) respond(t *testing.T, i int, url string, err error) {
	t.Helper()
	require.Eventually(t, func() bool { return f.count() > i }, waitFor, tick)
	f.mu.Lock()
	c := f.calls[i]
	f.mu.Unlock()
	c.reply <- reply{url: url, err: err}
}

func (f *fakeResolver) trackOf(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i].trackID
}

// fakeWarmer records warmed track IDs and optionally reports a URL synchronously.
type fakeWarmer struct {
	mu     sync.Mutex
	warmed []string
	ready  func(id string) string
}

func (w *fakeWarmer) Warm(t track.Track, onReady func(url string)) {
	w.mu.Lock()
	w.warmed = append(w.warmed, t.ID)
	ready := w.ready
	w.mu.Unlock()

	if ready != nil {
		if url := ready(t.ID); url != "" {
			onReady(url)
		}
	}
}

func (w *fakeWarmer) ids() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.warmed...)
}

func tracks(ids ...string) []track.Track {
	out := make([]track.Track, len(ids))
	for i, id := range ids {
		out[i] = track.Track{
			ID:       id,
			Name:     "Song " + id,
			Artists:  []string{"Artist"},
			Duration: 200 * time.Second,
		}
	}
	return out
}

func newTestSession(t *testing.T, depth int) (*Session, *fakeResolver, *fakeWarmer) {
	t.Helper()
	r := &fakeResolver{}
	w := &fakeWarmer{}
	s, err := NewSession(Config{PrefetchDepth: depth, ResolveTimeout: time.Minute}, r, w)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, r, w
}

func TestSession_PlayTracksSetsCurrentIndex(t *testing.T) {
	queue := tracks("t1", "t2", "t3")

	for i := range queue {
		t.Run(queue[i].ID, func(t *testing.T) {
			s, _, _ := newTestSession(t, 2)

			require.NoError(t, s.PlayTracks(queue, i))

			snap := s.Snapshot()
			idx, ok := snap.Index()
			require.True(t, ok)
			assert.Equal(t, i, idx)
			require.NotNil(t, snap.ActiveTrack)
			assert.Equal(t, queue[i].ID, snap.ActiveTrack.ID)
			assert.True(t, snap.Visible)
			assert.True(t, snap.Loading)
			assert.Equal(t, StateLoading, snap.State)
			assert.Len(t, snap.Queue, 3)
			assert.NotEmpty(t, snap.QueueID)
		})
	}
}

func TestSession_PlayTracksRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		tracks  []track.Track
		index   int
		wantErr error
	}{
		{name: "empty", tracks: nil, index: 0, wantErr: ErrEmptyQueue},
		{name: "negative index", tracks: tracks("a"), index: -1, wantErr: ErrInvalidIndex},
		{name: "index past end", tracks: tracks("a", "b"), index: 2, wantErr: ErrInvalidIndex},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, r, _ := newTestSession(t, 2)
			before := s.Snapshot()

			err := s.PlayTracks(tt.tracks, tt.index)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.Equal(t, before, s.Snapshot())
			assert.Equal(t, 0, r.count())
		})
	}
}

func TestSession_ResolveAndPrefetchScenario(t *testing.T) {
	s, r, w := newTestSession(t, 2)

	require.NoError(t, s.PlayTracks(tracks("t1", "t2", "t3"), 0))

	snap := s.Snapshot()
	assert.Equal(t, "t1", snap.ActiveTrack.ID)
	assert.True(t, snap.Loading)
	assert.Equal(t, []string{"t2", "t3"}, w.ids())

	r.respond(t, 0, "u1", nil)

	require.Eventually(t, func() bool { return !s.Snapshot().Loading }, waitFor, tick)
	snap = s.Snapshot()
	assert.Equal(t, "t1", snap.ActiveTrack.ID)
	assert.Equal(t, "u1", snap.ActiveTrack.AudioURL)
	assert.Equal(t, "u1", snap.Queue[0].AudioURL)
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, 1, r.count())
}

func TestSession_PrefetchWindowIsClipped(t *testing.T) {
	tests := []struct {
		name  string
		depth int
		start int
		want  []string
	}{
		{name: "full window", depth: 2, start: 0, want: []string{"b", "c"}},
		{name: "clipped at end", depth: 2, start: 2, want: []string{"d"}},
		{name: "last track", depth: 2, start: 3, want: nil},
		{name: "disabled", depth: 0, start: 0, want: nil},
		{name: "deep", depth: 5, start: 1, want: []string{"c", "d"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, w := newTestSession(t, tt.depth)
			require.NoError(t, s.PlayTracks(tracks("a", "b", "c", "d"), tt.start))
			assert.Equal(t, tt.want, w.ids())
		})
	}
}

func TestSession_PlayNextAtLastIndexEndsSession(t *testing.T) {
	s, _, _ := newTestSession(t, 2)
	require.NoError(t, s.PlayTracks(tracks("t1", "t2", "t3"), 2))

	require.NoError(t, s.PlayNext())

	snap := s.Snapshot()
	assert.False(t, snap.Visible)
	assert.False(t, snap.Loading)
	assert.Nil(t, snap.ActiveTrack)
	assert.Nil(t, snap.CurrentIndex)
	assert.Empty(t, snap.Queue)
	assert.Equal(t, StateHidden, snap.State)
}

func TestSession_PlayNextMovesAndResolves(t *testing.T) {
	s, r, w := newTestSession(t, 1)
	require.NoError(t, s.PlayTracks(tracks("a", "b", "c"), 0))
	r.respond(t, 0, "ua", nil)
	require.Eventually(t, func() bool { return !s.Snapshot().Loading }, waitFor, tick)

	require.NoError(t, s.PlayNext())

	snap := s.Snapshot()
	idx, _ := snap.Index()
	assert.Equal(t, 1, idx)
	assert.Equal(t, "b", snap.ActiveTrack.ID)
	assert.True(t, snap.Loading)
	assert.Equal(t, []string{"b", "c"}, w.ids())

	r.respond(t, 1, "ub", nil)
	require.Eventually(t, func() bool { return !s.Snapshot().Loading }, waitFor, tick)
	assert.Equal(t, "ub", s.Snapshot().ActiveTrack.AudioURL)
}

func TestSession_PlayPreviousNoOp(t *testing.T) {
	t.Run("at first index", func(t *testing.T) {
		s, r, _ := newTestSession(t, 2)
		require.NoError(t, s.PlayTracks(tracks("a", "b"), 0))
		require.Eventually(t, func() bool { return r.count() == 1 }, waitFor, tick)
		before := s.Snapshot()

		require.NoError(t, s.PlayPrevious())

		assert.Equal(t, before, s.Snapshot())
		assert.Equal(t, 1, r.count())
	})

	t.Run("with no current track", func(t *testing.T) {
		s, r, _ := newTestSession(t, 2)
		before := s.Snapshot()

		require.NoError(t, s.PlayPrevious())
		require.NoError(t, s.PlayNext())

		assert.Equal(t, before, s.Snapshot())
		assert.Equal(t, 0, r.count())
	})
}

func TestSession_PlayPreviousReusesResolvedSlot(t *testing.T) {
	s, r, _ := newTestSession(t, 0)
	require.NoError(t, s.PlayTracks(tracks("a", "b"), 0))
	r.respond(t, 0, "ua", nil)
	require.Eventually(t, func() bool { return !s.Snapshot().Loading }, waitFor, tick)

	require.NoError(t, s.PlayNext())
	require.NoError(t, s.PlayPrevious())

	snap := s.Snapshot()
	assert.Equal(t, "a", snap.ActiveTrack.ID)
	assert.Equal(t, "ua", snap.ActiveTrack.AudioURL)
	assert.False(t, snap.Loading, "slot already carries its url")
}

func TestSession_LateResolutionDoesNotOverwriteActiveTrack(t *testing.T) {
	s, r, _ := newTestSession(t, 0)
	require.NoError(t, s.PlayTracks(tracks("a", "b"), 0))
	require.Eventually(t, func() bool { return r.count() == 1 }, waitFor, tick)

	require.NoError(t, s.PlayNext())
	require.Eventually(t, func() bool { return r.count() == 2 }, waitFor, tick)

	// the result for a arrives after the user moved on to b
	r.respond(t, 0, "ua", nil)
	require.Eventually(t, func() bool { return s.Snapshot().Queue[0].AudioURL == "ua" }, waitFor, tick)

	snap := s.Snapshot()
	assert.Equal(t, "b", snap.ActiveTrack.ID)
	assert.Empty(t, snap.ActiveTrack.AudioURL)
	assert.True(t, snap.Loading)

	r.respond(t, 1, "ub", nil)
	require.Eventually(t, func() bool { return !s.Snapshot().Loading }, waitFor, tick)
	snap = s.Snapshot()
	assert.Equal(t, "b", snap.ActiveTrack.ID)
	assert.Equal(t, "ub", snap.ActiveTrack.AudioURL)
}

func TestSession_LateFailureDoesNotClearLoading(t *testing.T) {
	s, r, _ := newTestSession(t, 0)
	require.NoError(t, s.PlayTracks(tracks("a", "b"), 0))
	require.Eventually(t, func() bool { return r.count() == 1 }, waitFor, tick)
	require.NoError(t, s.PlayNext())
	require.Eventually(t, func() bool { return r.count() == 2 }, waitFor, tick)

	// back to a: a second attempt for a is issued
	require.NoError(t, s.PlayPrevious())
	require.Eventually(t, func() bool { return r.count() == 3 }, waitFor, tick)
	require.Equal(t, "a", r.trackOf(2))

	// the first attempt for a fails; it is superseded by the third call
	r.respond(t, 0, "", errors.New("timeout"))
	r.respond(t, 1, "", errors.New("timeout"))

	events := drain(s)
	require.Eventually(t, func() bool {
		events = append(events, drain(s)...)
		return countEvents(events, EventResolutionDiscarded) == 2
	}, waitFor, tick)

	snap := s.Snapshot()
	assert.Equal(t, "a", snap.ActiveTrack.ID)
	assert.True(t, snap.Loading, "stale failures leave loading untouched")
	assert.Equal(t, 0, countEvents(events, EventResolveFailed))

	r.respond(t, 2, "ua", nil)
	require.Eventually(t, func() bool { return !s.Snapshot().Loading }, waitFor, tick)
	assert.Equal(t, "ua", s.Snapshot().ActiveTrack.AudioURL)
}

func TestSession_ResolutionFailureLeavesTrackUnplayable(t *testing.T) {
	s, r, _ := newTestSession(t, 0)
	require.NoError(t, s.PlayTracks(tracks("a", "b"), 0))

	r.respond(t, 0, "", errors.New("backend returned 502"))

	require.Eventually(t, func() bool { return !s.Snapshot().Loading }, waitFor, tick)
	snap := s.Snapshot()
	require.NotNil(t, snap.ActiveTrack)
	assert.Equal(t, "a", snap.ActiveTrack.ID)
	assert.Empty(t, snap.ActiveTrack.AudioURL)
	assert.True(t, snap.Visible)
	assert.Equal(t, StateUnplayable, snap.State)

	// the session stays navigable
	require.NoError(t, s.PlayNext())
	assert.Equal(t, "b", s.Snapshot().ActiveTrack.ID)
}

func TestSession_HidePlayer(t *testing.T) {
	s, r, _ := newTestSession(t, 2)
	require.NoError(t, s.PlayTracks(tracks("a", "b", "c"), 1))

	require.NoError(t, s.HidePlayer())

	snap := s.Snapshot()
	assert.False(t, snap.Visible)
	assert.Nil(t, snap.ActiveTrack)
	assert.False(t, snap.Loading)
	assert.Nil(t, snap.CurrentIndex)
	assert.Empty(t, snap.Queue)

	// navigation after hide does nothing and a late result is dropped
	require.NoError(t, s.PlayNext())
	require.NoError(t, s.PlayPrevious())
	r.respond(t, 0, "ub", nil)

	events := drain(s)
	require.Eventually(t, func() bool {
		events = append(events, drain(s)...)
		return countEvents(events, EventResolutionDiscarded) == 1
	}, waitFor, tick)
	assert.Nil(t, s.Snapshot().ActiveTrack)
	assert.Equal(t, 1, r.count())
}

func TestSession_PlayTracksKeepsKnownURLs(t *testing.T) {
	s, r, _ := newTestSession(t, 0)
	require.NoError(t, s.PlayTracks(tracks("a", "b"), 0))
	r.respond(t, 0, "ua", nil)
	require.Eventually(t, func() bool { return !s.Snapshot().Loading }, waitFor, tick)

	require.NoError(t, s.PlayTracks(tracks("c", "a"), 1))

	snap := s.Snapshot()
	assert.Equal(t, "a", snap.ActiveTrack.ID)
	assert.Equal(t, "ua", snap.ActiveTrack.AudioURL)
	assert.False(t, snap.Loading)
	assert.Equal(t, 1, r.count(), "pre-resolved track is not resolved again")
}

func TestSession_PrefetchedURLIsAttached(t *testing.T) {
	s, r, w := newTestSession(t, 2)
	w.ready = func(id string) string { return "warm-" + id }

	require.NoError(t, s.PlayTracks(tracks("a", "b", "c"), 0))

	snap := s.Snapshot()
	assert.Equal(t, "warm-b", snap.Queue[1].AudioURL)
	assert.Equal(t, "warm-c", snap.Queue[2].AudioURL)
	assert.True(t, snap.Loading, "prefetch does not touch the active track")

	require.NoError(t, s.PlayNext())

	snap = s.Snapshot()
	assert.Equal(t, "b", snap.ActiveTrack.ID)
	assert.Equal(t, "warm-b", snap.ActiveTrack.AudioURL)
	assert.False(t, snap.Loading)
	require.Eventually(t, func() bool { return r.count() == 1 }, waitFor, tick)
	assert.Equal(t, "a", r.trackOf(0), "only a needed a resolution")
	assert.Equal(t, []string{"b", "c"}, w.ids(), "resolved tracks are not warmed again")
}

func TestSession_SetTrackProgress(t *testing.T) {
	s, _, _ := newTestSession(t, 0)

	require.NoError(t, s.SetTrackProgress(Progress{CurrentTime: 10, Duration: 100}))
	assert.Equal(t, Progress{}, s.Snapshot().Progress, "ignored without an active track")

	require.NoError(t, s.PlayTracks(tracks("a"), 0))
	assert.Equal(t, Progress{Duration: 200}, s.Snapshot().Progress)

	tests := []struct {
		name string
		in   Progress
		want Progress
	}{
		{name: "plain", in: Progress{CurrentTime: 12.5, Duration: 200}, want: Progress{CurrentTime: 12.5, Duration: 200}},
		{name: "duration from track", in: Progress{CurrentTime: 30}, want: Progress{CurrentTime: 30, Duration: 200}},
		{name: "negative position", in: Progress{CurrentTime: -3, Duration: 200}, want: Progress{CurrentTime: 0, Duration: 200}},
		{name: "past the end", in: Progress{CurrentTime: 250, Duration: 200}, want: Progress{CurrentTime: 200, Duration: 200}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, s.SetTrackProgress(tt.in))
			snap := s.Snapshot()
			assert.Equal(t, tt.want, snap.Progress)
			assert.True(t, snap.Loading, "progress never changes loading")
		})
	}
}

func TestSession_Events(t *testing.T) {
	s, r, _ := newTestSession(t, 0)
	require.NoError(t, s.PlayTracks(tracks("a"), 0))
	r.respond(t, 0, "ua", nil)
	require.Eventually(t, func() bool { return !s.Snapshot().Loading }, waitFor, tick)
	require.NoError(t, s.PlayNext())

	var types []EventType
	for _, e := range drain(s) {
		types = append(types, e.Type)
	}
	assert.Equal(t, []EventType{EventTrackChanged, EventTrackResolved, EventQueueEnded}, types)
}

func TestSession_Close(t *testing.T) {
	r := &fakeResolver{}
	s, err := NewSession(Config{}, r, nil)
	require.NoError(t, err)
	require.NoError(t, s.PlayTracks(tracks("a"), 0))
	require.Eventually(t, func() bool { return r.count() == 1 }, waitFor, tick)

	// Close cancels the pending resolution and returns
	s.Close()
	s.Close()

	assert.True(t, errors.Is(s.PlayTracks(tracks("a"), 0), ErrClosed))
	assert.True(t, errors.Is(s.PlayNext(), ErrClosed))
	assert.True(t, errors.Is(s.HidePlayer(), ErrClosed))

	for range s.Events() {
	}
}

func TestNewSession_RequiresResolver(t *testing.T) {
	_, err := NewSession(Config{}, nil, nil)
	assert.Error(t, err)
}

func drain(s *Session) []Event {
	var out []Event
	for {
		select {
		case e := <-s.Events():
			out = append(out, e)
		default:
			return out
		}
	}
}

func countEvents(events []Event, typ EventType) int {
	n := 0
	for _, e := range events {
		if e.Type == typ {
			n++
		}
	}
	return n
}
