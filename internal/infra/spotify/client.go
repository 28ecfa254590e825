// Package spotify provides the catalog client backed by the Spotify Web API.
package spotify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/osa030/vibebox/internal/domain/track"
)

var (
	// ErrUserTokenRequired is returned by library endpoints when no refresh token is configured.
	ErrUserTokenRequired = errors.New("a user refresh token is required for library access")
	ErrInvalidTimeRange  = errors.New("unsupported top tracks time range")
)

// DefaultTimeRange is the affinity window used for top tracks when none is given.
const DefaultTimeRange = "medium_term"

const pageLimit = 50

// Client is a Spotify API client.
type Client struct {
	client     *spotify.Client
	market     string
	userScoped bool
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string // Optional; enables saved tracks. Client credentials are used otherwise.
	Market       string
}

// New creates a new Spotify client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("spotify client credentials are required")
	}

	var httpClient *http.Client
	if cfg.RefreshToken != "" {
		auth := spotifyauth.New(
			spotifyauth.WithClientID(cfg.ClientID),
			spotifyauth.WithClientSecret(cfg.ClientSecret),
			spotifyauth.WithScopes(spotifyauth.ScopeUserLibraryRead, spotifyauth.ScopeUserTopRead),
		)
		// Get HTTP client with auto-refresh capability
		httpClient = auth.Client(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	} else {
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     spotifyauth.TokenURL,
		}
		httpClient = cc.Client(ctx)
	}

	return newClient(spotify.New(httpClient), cfg), nil
}

func newClient(c *spotify.Client, cfg Config) *Client {
	market := cfg.Market
	if market == "" {
		market = "US"
	}
	return &Client{
		client:     c,
		market:     market,
		userScoped: cfg.RefreshToken != "",
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

// GetTrack retrieves track information by ID, URL, or URI.
func (c *Client) GetTrack(ctx context.Context, trackID string) (*track.Track, error) {
	id := extractID(trackID, "track")

	var result *spotify.FullTrack
	err := c.retry(func() error {
		t, err := c.client.GetTrack(ctx, spotify.ID(id), spotify.Market(c.market))
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get track %s", id)
	}

	t := convertFullTrack(result)
	return &t, nil
}

// Search searches for tracks.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]track.Track, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("search query is required")
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > pageLimit {
		limit = pageLimit
	}

	var result *spotify.SearchResult
	err := c.retry(func() error {
		r, err := c.client.Search(ctx, query, spotify.SearchTypeTrack,
			spotify.Limit(limit),
			spotify.Market(c.market),
		)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to search")
	}

	if result.Tracks == nil {
		return []track.Track{}, nil
	}
	return convertFullTracks(result.Tracks.Tracks), nil
}

// GetAlbumTracks retrieves all tracks of an album, in album order.
func (c *Client) GetAlbumTracks(ctx context.Context, albumID string) ([]track.Track, error) {
	id := spotify.ID(extractID(albumID, "album"))
	if id == "" {
		return nil, errors.New("invalid album ID")
	}

	var album *spotify.FullAlbum
	err := c.retry(func() error {
		a, err := c.client.GetAlbum(ctx, id, spotify.Market(c.market))
		if err != nil {
			return err
		}
		album = a
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get album %s", id)
	}
	owner := convertAlbum(album.SimpleAlbum)

	var tracks []track.Track
	offset := 0
	for {
		var page *spotify.SimpleTrackPage
		err := c.retry(func() error {
			p, err := c.client.GetAlbumTracks(ctx, id,
				spotify.Limit(pageLimit),
				spotify.Offset(offset),
				spotify.Market(c.market),
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to get album tracks %s", id)
		}

		for _, st := range page.Tracks {
			if st.ID == "" {
				continue
			}
			tracks = append(tracks, convertSimpleTrack(st, owner))
		}

		if len(page.Tracks) < pageLimit {
			break
		}
		offset += pageLimit
	}

	zlog.Debug().Msgf("spotify: album tracks fetched: album_id=%s name=%s tracks=%d", id, owner.Name, len(tracks))
	return tracks, nil
}

// GetArtistTopTracks retrieves an artist's top tracks in the configured market.
func (c *Client) GetArtistTopTracks(ctx context.Context, artistID string) ([]track.Track, error) {
	id := spotify.ID(extractID(artistID, "artist"))
	if id == "" {
		return nil, errors.New("invalid artist ID")
	}

	var result []spotify.FullTrack
	err := c.retry(func() error {
		ts, err := c.client.GetArtistsTopTracks(ctx, id, c.market)
		if err != nil {
			return err
		}
		result = ts
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get top tracks for artist %s", id)
	}

	return convertFullTracks(result), nil
}

// GetSavedTracks retrieves up to limit of the user's saved tracks, most recent first.
func (c *Client) GetSavedTracks(ctx context.Context, limit int) ([]track.Track, error) {
	if !c.userScoped {
		return nil, ErrUserTokenRequired
	}
	if limit <= 0 {
		limit = pageLimit
	}

	var tracks []track.Track
	offset := 0
	for len(tracks) < limit {
		n := limit - len(tracks)
		if n > pageLimit {
			n = pageLimit
		}

		var page *spotify.SavedTrackPage
		err := c.retry(func() error {
			p, err := c.client.CurrentUsersTracks(ctx,
				spotify.Limit(n),
				spotify.Offset(offset),
				spotify.Market(c.market),
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to get saved tracks")
		}

		for _, st := range page.Tracks {
			if st.ID != "" {
				tracks = append(tracks, convertFullTrack(&st.FullTrack))
			}
		}

		if len(page.Tracks) < n {
			break
		}
		offset += n
	}

	return tracks, nil
}

// GetTopTracks retrieves the user's most played tracks over the given time range
// (short_term, medium_term or long_term; empty means DefaultTimeRange).
func (c *Client) GetTopTracks(ctx context.Context, limit int, timeRange string) ([]track.Track, error) {
	if !c.userScoped {
		return nil, ErrUserTokenRequired
	}
	r, err := parseTimeRange(timeRange)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > pageLimit {
		limit = pageLimit
	}

	var page *spotify.FullTrackPage
	err = c.retry(func() error {
		p, err := c.client.CurrentUsersTopTracks(ctx,
			spotify.Limit(limit),
			spotify.Timerange(r),
		)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get top tracks")
	}

	zlog.Debug().Msgf("spotify: top tracks fetched: time_range=%s tracks=%d", r, len(page.Tracks))
	return convertFullTracks(page.Tracks), nil
}

// GetSavedAlbums lists up to limit of the user's saved albums, most recent first.
func (c *Client) GetSavedAlbums(ctx context.Context, limit int) ([]track.AlbumSummary, error) {
	if !c.userScoped {
		return nil, ErrUserTokenRequired
	}
	if limit <= 0 {
		limit = pageLimit
	}

	var albums []track.AlbumSummary
	offset := 0
	for len(albums) < limit {
		n := limit - len(albums)
		if n > pageLimit {
			n = pageLimit
		}

		var page *spotify.SavedAlbumPage
		err := c.retry(func() error {
			p, err := c.client.CurrentUsersAlbums(ctx,
				spotify.Limit(n),
				spotify.Offset(offset),
				spotify.Market(c.market),
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to get saved albums")
		}

		for _, sa := range page.Albums {
			if sa.ID == "" {
				continue
			}
			albums = append(albums, track.AlbumSummary{
				Album:       convertAlbum(sa.SimpleAlbum),
				Artists:     artistNames(sa.Artists),
				ReleaseDate: sa.ReleaseDate,
				AddedAt:     sa.AddedAt,
			})
		}

		if len(page.Albums) < n {
			break
		}
		offset += n
	}

	return albums, nil
}

func parseTimeRange(timeRange string) (spotify.Range, error) {
	switch timeRange {
	case "":
		return spotify.Range(DefaultTimeRange), nil
	case string(spotify.ShortTermRange), string(spotify.MediumTermRange), string(spotify.LongTermRange):
		return spotify.Range(timeRange), nil
	default:
		return "", errors.Wrapf(ErrInvalidTimeRange, "%q", timeRange)
	}
}

// GetTrackURL returns the Spotify URL for a track.
func GetTrackURL(trackID string) string {
	return fmt.Sprintf("https://open.spotify.com/track/%s", trackID)
}

func convertAlbum(a spotify.SimpleAlbum) track.Album {
	images := make([]track.Image, 0, len(a.Images))
	for _, img := range a.Images {
		images = append(images, track.Image{
			URL:    img.URL,
			Width:  int(img.Width),
			Height: int(img.Height),
		})
	}
	return track.Album{
		ID:     string(a.ID),
		Name:   a.Name,
		Images: images,
	}
}

func artistNames(artists []spotify.SimpleArtist) []string {
	names := make([]string, len(artists))
	for i, a := range artists {
		names[i] = a.Name
	}
	return names
}

// convertFullTrack converts a Spotify FullTrack to a domain Track.
func convertFullTrack(t *spotify.FullTrack) track.Track {
	return track.Track{
		ID:       string(t.ID),
		Name:     t.Name,
		Artists:  artistNames(t.Artists),
		Album:    convertAlbum(t.Album),
		Duration: track.FromMilliseconds(int64(t.Duration)),
		URL:      GetTrackURL(string(t.ID)),
	}
}

func convertFullTracks(ts []spotify.FullTrack) []track.Track {
	out := make([]track.Track, 0, len(ts))
	for i := range ts {
		if ts[i].ID == "" {
			continue
		}
		out = append(out, convertFullTrack(&ts[i]))
	}
	return out
}

// convertSimpleTrack converts an album track. Simple tracks carry no album, so the owner is passed in.
func convertSimpleTrack(t spotify.SimpleTrack, album track.Album) track.Track {
	return track.Track{
		ID:       string(t.ID),
		Name:     t.Name,
		Artists:  artistNames(t.Artists),
		Album:    album,
		Duration: track.FromMilliseconds(int64(t.Duration)),
		URL:      GetTrackURL(string(t.ID)),
	}
}

// retry retries an operation with linear backoff.
func (c *Client) retry(fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			zlog.Debug().Msgf("spotify: retrying: attempt=%d error=%v", i+1, err)
			time.Sleep(c.retryDelay * time.Duration(i+1))
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is a rate limit or server error.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= http.StatusInternalServerError
	}

	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// extractID extracts the ID from a Spotify URL or URI of the given kind (track, album, artist).
func extractID(input, kind string) string {
	input = strings.TrimSpace(input)

	// Handle Spotify URI format: spotify:<kind>:ID
	uriPrefix := "spotify:" + kind + ":"
	if strings.HasPrefix(input, uriPrefix) {
		return strings.TrimPrefix(input, uriPrefix)
	}

	// Handle URL format: https://open.spotify.com/<kind>/ID or https://open.spotify.com/intl-XX/<kind>/ID
	segment := "/" + kind + "/"
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, segment) {
		parts := strings.Split(input, segment)
		id := strings.Split(parts[len(parts)-1], "?")[0]
		return strings.TrimRight(id, "/")
	}

	// Assume it's already an ID
	return input
}
