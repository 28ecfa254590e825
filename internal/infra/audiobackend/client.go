// Package audiobackend provides a client for the audio lookup/stream backend.
package audiobackend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vibebox/internal/domain/track"
)

var (
	ErrBackendStatus = errors.New("audio backend returned non-success status")
	ErrLookupFailed  = errors.New("audio backend lookup failed")
	ErrInvalidQuery  = errors.New("song name, artist name and duration are required")
)

const (
	lookupPath = "/cache-lookup"
	streamPath = "/stream"
)

// Config represents audio backend client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client is an audio backend HTTP client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	// streamClient has no overall timeout; streams are bounded by the request context.
	streamClient *http.Client
}

// Query identifies a song for the backend. There is no shared identifier between the
// catalog and the backend, so matching is done on name, artist and duration.
type Query struct {
	SongName   string
	ArtistName string
	DurationMs int64
}

// QueryFor builds the backend query for a catalog track.
func QueryFor(t track.Track) Query {
	return Query{
		SongName:   t.Name,
		ArtistName: t.ArtistLine(),
		DurationMs: t.DurationMs(),
	}
}

// Validate checks that all query fields are set.
func (q Query) Validate() error {
	if strings.TrimSpace(q.SongName) == "" || strings.TrimSpace(q.ArtistName) == "" || q.DurationMs <= 0 {
		return ErrInvalidQuery
	}
	return nil
}

// Values encodes the query parameters.
func (q Query) Values() url.Values {
	params := url.Values{}
	params.Set("songName", q.SongName)
	params.Set("artistName", q.ArtistName)
	params.Set("durationMs", strconv.FormatInt(q.DurationMs, 10))
	return params
}

// ParseQuery decodes query parameters. Missing or malformed fields fail validation.
func ParseQuery(values url.Values) (Query, error) {
	q := Query{
		SongName:   values.Get("songName"),
		ArtistName: values.Get("artistName"),
	}
	if ms := values.Get("durationMs"); ms != "" {
		d, err := strconv.ParseInt(ms, 10, 64)
		if err != nil {
			return q, errors.Wrap(ErrInvalidQuery, "malformed durationMs")
		}
		q.DurationMs = d
	}
	return q, q.Validate()
}

// LookupResult represents the response of the cache-lookup endpoint.
type LookupResult struct {
	Success bool   `json:"success"`
	URL     string `json:"url,omitempty"`
	Cached  bool   `json:"cached,omitempty"`
	Message string `json:"message,omitempty"`
}

// New creates a new audio backend client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("audio backend base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, errors.Wrap(err, "invalid audio backend base URL")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
	}, nil
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CacheLookup asks the backend for a ready audio URL, which also makes it start
// preparing the file when it is not cached yet.
// Any non-success HTTP status, malformed body, or success=false is an error.
func (c *Client) CacheLookup(ctx context.Context, q Query) (*LookupResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	status, body, err := c.ForwardLookup(ctx, q.Values().Encode())
	if err != nil {
		return nil, err
	}

	if status < 200 || status > 299 {
		var failure LookupResult
		if err := json.Unmarshal(body, &failure); err == nil && failure.Message != "" {
			return nil, errors.Wrapf(ErrBackendStatus, "status %d: %s", status, failure.Message)
		}
		return nil, errors.Wrapf(ErrBackendStatus, "status %d", status)
	}

	var result LookupResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, errors.Wrap(err, "failed to parse response")
	}
	if !result.Success {
		msg := result.Message
		if msg == "" {
			msg = "backend reported failure"
		}
		return nil, errors.Wrapf(ErrLookupFailed, "%s - %s: %s", q.ArtistName, q.SongName, msg)
	}

	zlog.Debug().Msgf("audio backend: lookup ok: song=%s artist=%s cached=%t has_url=%t",
		q.SongName, q.ArtistName, result.Cached, result.URL != "")

	return &result, nil
}

// ForwardLookup calls the cache-lookup endpoint with an already encoded query and
// returns the raw status and body.
func (c *Client) ForwardLookup(ctx context.Context, rawQuery string) (int, []byte, error) {
	reqURL := c.baseURL + lookupPath + "?" + rawQuery

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, errors.Wrap(err, "failed to read response body")
	}

	return resp.StatusCode, body, nil
}

// OpenStream opens the backend stream endpoint. The caller owns the response body.
// Non-success responses are returned as-is so proxies can relay the status.
func (c *Client) OpenStream(ctx context.Context, rawQuery string) (*http.Response, error) {
	reqURL := c.baseURL + streamPath + "?" + rawQuery

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open stream")
	}
	return resp, nil
}

// StreamURL builds the streaming endpoint URL for a query under the given base URL.
func StreamURL(baseURL string, q Query) string {
	return strings.TrimRight(baseURL, "/") + streamPath + "?" + q.Values().Encode()
}
