// Package resolver turns catalog tracks into playable audio references.
package resolver

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/osa030/vibebox/internal/domain/track"
	"github.com/osa030/vibebox/internal/infra/audiobackend"
)

var (
	ErrInvalidTrack = track.ErrInvalidTrack
	ErrNoAudio      = errors.New("backend returned no playable audio")
)

// Resolver is the interface for audio resolution strategies.
// Implementations issue at most one backend request per call and never retry;
// retry policy belongs to the caller.
type Resolver interface {
	// Resolve returns a playable audio URL for the track.
	Resolve(ctx context.Context, t track.Track) (string, error)

	// Name returns the strategy name (used in config).
	Name() string
}

// LookupClient defines the backend operations needed by resolvers.
type LookupClient interface {
	CacheLookup(ctx context.Context, q audiobackend.Query) (*audiobackend.LookupResult, error)
}

// Resolution is the outcome of one resolution attempt, tagged with the track it was
// requested for so a late result can be matched against the current state.
type Resolution struct {
	TrackID string
	Attempt uint64
	URL     string
	Err     error
}

// OK reports whether the attempt produced a playable URL.
func (r Resolution) OK() bool {
	return r.Err == nil && r.URL != ""
}

// Run resolves t with r and packages the outcome. It never panics across its boundary.
func Run(ctx context.Context, r Resolver, t track.Track, attempt uint64) (res Resolution) {
	res = Resolution{TrackID: t.ID, Attempt: attempt}
	defer func() {
		if p := recover(); p != nil {
			res.URL = ""
			res.Err = errors.Newf("resolver %s panicked: %v", r.Name(), p)
		}
	}()

	url, err := r.Resolve(ctx, t)
	if err != nil {
		res.Err = err
		return res
	}
	if url == "" {
		res.Err = ErrNoAudio
		return res
	}
	res.URL = url
	return res
}
