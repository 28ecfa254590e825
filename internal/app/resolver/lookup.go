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

type LookupResolverConfig struct {
	// FallbackToStream resolves to the stream endpoint when the lookup succeeds without a URL.
	FallbackToStream bool   `yaml:"fallback_to_stream" mapstructure:"fallback_to_stream" default:"false"`
	StreamBaseURL    string `yaml:"stream_base_url" mapstructure:"stream_base_url" validate:"omitempty,url"`
}

// LookupResolver resolves tracks through the backend cache-lookup endpoint.
type LookupResolver struct {
	client LookupClient
	config *LookupResolverConfig
}

// NewLookupResolver creates a new LookupResolver.
func NewLookupResolver(client LookupClient, settings map[string]any) (*LookupResolver, error) {
	if client == nil {
		return nil, errors.New("backend client is required")
	}

	var config LookupResolverConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	zlog.Debug().Msgf("lookup resolver config: %+v", config)
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}
	if config.FallbackToStream && config.StreamBaseURL == "" {
		return nil, errors.New("stream_base_url is required when fallback_to_stream is enabled")
	}

	return &LookupResolver{client: client, config: &config}, nil
}

// Resolve looks the track up on the backend.
func (r *LookupResolver) Resolve(ctx context.Context, t track.Track) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}

	q := audiobackend.QueryFor(t)
	result, err := r.client.CacheLookup(ctx, q)
	if err != nil {
		return "", errors.Wrapf(err, "lookup failed for track %s", t.ID)
	}

	if result.URL != "" {
		return result.URL, nil
	}
	if r.config.FallbackToStream {
		return audiobackend.StreamURL(r.config.StreamBaseURL, q), nil
	}
	return "", errors.Wrapf(ErrNoAudio, "track %s", t.ID)
}

// Name returns the strategy name.
func (r *LookupResolver) Name() string {
	return "lookup"
}
