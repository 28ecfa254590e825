// Package prefetch warms the audio backend cache for tracks that are about to play.
package prefetch

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/osa030/vibebox/internal/app/resolver"
	"github.com/osa030/vibebox/internal/domain/track"
	"github.com/osa030/vibebox/internal/infra/audiobackend"
)

// State represents what the prefetcher knows about a track.
type State int

const (
	StateUnknown  State = iota // Never warmed, or the last attempt failed
	StateInFlight              // A warm request is outstanding
	StateWarmed                // The backend reported the track ready
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateInFlight:
		return "in_flight"
	case StateWarmed:
		return "warmed"
	default:
		return "unknown"
	}
}

// Config holds prefetcher configuration.
type Config struct {
	RatePerSec float64       // Sustained warm requests per second
	Burst      int           // Limiter burst
	Timeout    time.Duration // Per-request timeout
}

// Stats holds prefetch counters.
type Stats struct {
	Requested int // Warm calls received
	Skipped   int // Calls ignored because the track was in flight or warmed
	Succeeded int
	Failed    int
}

// Prefetcher issues detached cache-warm requests. Warm never blocks the caller,
// and failures never leave this package except as log lines and counters.
type Prefetcher struct {
	mu     sync.Mutex
	client resolver.LookupClient
	states map[string]State
	urls   map[string]string
	stats  Stats

	limiter *rate.Limiter
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new prefetcher.
func New(client resolver.LookupClient, cfg Config) *Prefetcher {
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Prefetcher{
		client:  client,
		states:  make(map[string]State),
		urls:    make(map[string]string),
		limiter: rate.NewLimiter(limit, burst),
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Warm asks the backend to prepare the track. onReady, if non-nil, is called from the
// background goroutine when the backend returns a ready URL; it is also called
// immediately (synchronously) when the track was already warmed with a URL.
func (p *Prefetcher) Warm(t track.Track, onReady func(url string)) {
	p.mu.Lock()
	p.stats.Requested++

	if p.ctx.Err() != nil {
		p.mu.Unlock()
		return
	}

	switch p.states[t.ID] {
	case StateInFlight:
		p.stats.Skipped++
		p.mu.Unlock()
		zlog.Debug().Msgf("prefetch: skip in-flight track: track_id=%s", t.ID)
		return
	case StateWarmed:
		p.stats.Skipped++
		url := p.urls[t.ID]
		p.mu.Unlock()
		zlog.Debug().Msgf("prefetch: skip already warmed track: track_id=%s", t.ID)
		if url != "" && onReady != nil {
			onReady(url)
		}
		return
	}

	p.states[t.ID] = StateInFlight
	p.wg.Add(1)
	p.mu.Unlock()

	go p.run(t, onReady)
}

func (p *Prefetcher) run(t track.Track, onReady func(url string)) {
	defer p.wg.Done()

	url, err := p.warm(t)

	p.mu.Lock()
	if err != nil {
		delete(p.states, t.ID)
		p.stats.Failed++
		p.mu.Unlock()
		if errors.Is(err, context.Canceled) {
			return
		}
		zlog.Warn().Msgf("prefetch: warm failed: track_id=%s name=%s error=%v", t.ID, t.Name, err)
		return
	}
	p.states[t.ID] = StateWarmed
	if url != "" {
		p.urls[t.ID] = url
	}
	p.stats.Succeeded++
	p.mu.Unlock()

	zlog.Debug().Msgf("prefetch: warmed: track_id=%s name=%s has_url=%t", t.ID, t.Name, url != "")

	if url != "" && onReady != nil {
		onReady(url)
	}
}

// warm performs the throttled request and converts panics into errors.
func (p *Prefetcher) warm(t track.Track) (url string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("prefetch panicked: %v", r)
		}
	}()

	if err := t.Validate(); err != nil {
		return "", err
	}
	if err := p.limiter.Wait(p.ctx); err != nil {
		return "", errors.Wrap(err, "rate limiter")
	}

	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()

	result, err := p.client.CacheLookup(ctx, audiobackend.QueryFor(t))
	if err != nil {
		return "", err
	}
	return result.URL, nil
}

// State returns the prefetch state of a track.
func (p *Prefetcher) State(trackID string) State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.states[trackID]
}

// Stats returns a copy of the counters.
func (p *Prefetcher) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Wait blocks until all outstanding warm requests finish.
func (p *Prefetcher) Wait() {
	p.wg.Wait()
}

// Close cancels outstanding requests and waits for them to return.
func (p *Prefetcher) Close() {
	p.cancel()
	p.wg.Wait()
}
