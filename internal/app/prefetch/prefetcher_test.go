package prefetch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/vibebox/internal/domain/track"
	"github.com/osa030/vibebox/internal/infra/audiobackend"
)

// fakeClient counts lookups and optionally blocks until released.
type fakeClient struct {
	calls   atomic.Int32
	release chan struct{}
	url     string
	err     error
	panics  bool
}

func (f *fakeClient) CacheLookup(ctx context.Context, q audiobackend.Query) (*audiobackend.LookupResult, error) {
	f.calls.Add(1)
	if f.panics {
		panic("backend exploded")
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &audiobackend.LookupResult{Success: true, URL: f.url}, nil
}

func song(id string) track.Track {
	return track.Track{ID: id, Name: "Song " + id, Artists: []string{"Artist"}, Duration: 3 * time.Minute}
}

func TestPrefetcher_WarmIsIdempotent(t *testing.T) {
	client := &fakeClient{release: make(chan struct{}), url: "http://cdn/a.mp3"}
	p := New(client, Config{})
	defer p.Close()

	p.Warm(song("a"), nil)
	p.Warm(song("a"), nil)
	assert.Equal(t, StateInFlight, p.State("a"))

	close(client.release)
	p.Wait()

	p.Warm(song("a"), nil)
	p.Wait()

	assert.Equal(t, int32(1), client.calls.Load(), "backend is hit once per track")
	assert.Equal(t, StateWarmed, p.State("a"))

	stats := p.Stats()
	assert.Equal(t, 3, stats.Requested)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 0, stats.Failed)
}

func TestPrefetcher_WarmDoesNotBlock(t *testing.T) {
	client := &fakeClient{release: make(chan struct{})}
	p := New(client, Config{})
	defer p.Close()

	done := make(chan struct{})
	go func() {
		p.Warm(song("a"), nil)
		p.Warm(song("b"), nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Warm blocked on the backend")
	}
	close(client.release)
}

func TestPrefetcher_OnReady(t *testing.T) {
	client := &fakeClient{url: "http://cdn/a.mp3"}
	p := New(client, Config{})
	defer p.Close()

	var mu sync.Mutex
	var got []string
	onReady := func(url string) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, url)
	}

	p.Warm(song("a"), onReady)
	p.Wait()

	// already warmed: the cached url is handed back without another request
	p.Warm(song("a"), onReady)
	p.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"http://cdn/a.mp3", "http://cdn/a.mp3"}, got)
	assert.Equal(t, int32(1), client.calls.Load())
}

func TestPrefetcher_FailuresAreSwallowed(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeClient
		track  track.Track
		calls  int32
	}{
		{
			name:   "backend error",
			client: &fakeClient{err: audiobackend.ErrLookupFailed},
			track:  song("a"),
			calls:  1,
		},
		{
			name:   "panic",
			client: &fakeClient{panics: true},
			track:  song("a"),
			calls:  1,
		},
		{
			name:   "invalid metadata",
			client: &fakeClient{},
			track:  track.Track{ID: "a", Name: "No Artist", Duration: time.Minute},
			calls:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.client, Config{})
			defer p.Close()

			called := false
			p.Warm(tt.track, func(string) { called = true })
			p.Wait()

			assert.False(t, called)
			assert.Equal(t, tt.calls, tt.client.calls.Load())
			assert.Equal(t, StateUnknown, p.State("a"), "failed warms are forgotten")
			assert.Equal(t, 1, p.Stats().Failed)
		})
	}
}

func TestPrefetcher_RetryAfterFailure(t *testing.T) {
	client := &fakeClient{err: audiobackend.ErrLookupFailed}
	p := New(client, Config{})
	defer p.Close()

	p.Warm(song("a"), nil)
	p.Wait()
	p.Warm(song("a"), nil)
	p.Wait()

	assert.Equal(t, int32(2), client.calls.Load())
}

func TestPrefetcher_CloseCancelsOutstanding(t *testing.T) {
	client := &fakeClient{release: make(chan struct{})}
	p := New(client, Config{Timeout: time.Minute})

	p.Warm(song("a"), nil)
	require.Eventually(t, func() bool { return client.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		p.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not cancel the outstanding request")
	}

	p.Warm(song("b"), nil)
	assert.Equal(t, StateUnknown, p.State("b"), "closed prefetcher ignores new work")
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "unknown", StateUnknown.String())
	assert.Equal(t, "in_flight", StateInFlight.String())
	assert.Equal(t, "warmed", StateWarmed.String())
}
