package resolver

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vibebox/internal/infra/config"
)

// NewFromConfig creates the resolver selected by configuration.
func NewFromConfig(cfg *config.Config, client LookupClient) (Resolver, error) {
	rcfg := cfg.Resolver
	settings := rcfg.Settings
	if settings == nil {
		settings = map[string]any{}
	}

	zlog.Debug().Msgf("creating resolver: type=%s settings=%+v", rcfg.Type, settings)

	var (
		r   Resolver
		err error
	)
	switch rcfg.Type {
	case "lookup":
		r, err = NewLookupResolver(client, withStreamBase(settings, "stream_base_url", cfg.Server.PublicURL))
	case "stream":
		r, err = NewStreamResolver(client, withStreamBase(settings, "public_base_url", cfg.Server.PublicURL))
	default:
		return nil, errors.Newf("unsupported resolver type: %s", rcfg.Type)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create resolver (type %s)", rcfg.Type)
	}

	zlog.Info().Msgf("registered resolver: type=%s", r.Name())
	return r, nil
}

// withStreamBase fills the stream base URL from the server's public audio proxy
// when the settings do not set one.
func withStreamBase(settings map[string]any, key, publicURL string) map[string]any {
	if _, ok := settings[key]; ok || publicURL == "" {
		return settings
	}
	out := make(map[string]any, len(settings)+1)
	for k, v := range settings {
		out[k] = v
	}
	out[key] = publicURL + "/audio"
	return out
}
