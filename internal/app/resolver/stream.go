package resolver

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vibebox/internal/domain/track"
	"github.com/osa030/vibebox/internal/infra/audiobackend"
)

type StreamResolverConfig struct {
	// PublicBaseURL is where players fetch the stream from (usually this server's audio proxy).
	PublicBaseURL string `yaml:"public_base_url" mapstructure:"public_base_url" validate:"required,url"`
	// Probe issues a cache lookup first so a failing backend is reported before playback.
	Probe bool `yaml:"probe" mapstructure:"probe" default:"false"`
}

// StreamResolver resolves tracks to the backend streaming endpoint URL.
type StreamResolver struct {
	client LookupClient
	config *StreamResolverConfig
}

// NewStreamResolver creates a new StreamResolver. The client is only needed when probing.
func NewStreamResolver(client LookupClient, settings map[string]any) (*StreamResolver, error) {
	var config StreamResolverConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	zlog.Debug().Msgf("stream resolver config: %+v", config)
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}
	if config.Probe && client == nil {
		return nil, errors.New("backend client is required when probe is enabled")
	}

	return &StreamResolver{client: client, config: &config}, nil
}

// Resolve builds the stream URL for the track.
func (r *StreamResolver) Resolve(ctx context.Context, t track.Track) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}

	q := audiobackend.QueryFor(t)
	if r.config.Probe {
		if _, err := r.client.CacheLookup(ctx, q); err != nil {
			return "", errors.Wrapf(err, "probe failed for track %s", t.ID)
		}
	}

	return audiobackend.StreamURL(r.config.PublicBaseURL, q), nil
}

// Name returns the strategy name.
func (r *StreamResolver) Name() string {
	return "stream"
}
