// Package audioproxy exposes the audio backend to players through the server, so the
// backend address never reaches the client.
package audioproxy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vibebox/internal/infra/audiobackend"
)

const (
	// Prefix is the path prefix the proxy is mounted under.
	Prefix = "/audio/"

	CacheLookupPath = "/audio/cache-lookup"
	StreamPath      = "/audio/stream"
)

// Backend is the subset of the audio backend client used by the proxy.
type Backend interface {
	ForwardLookup(ctx context.Context, rawQuery string) (int, []byte, error)
	OpenStream(ctx context.Context, rawQuery string) (*http.Response, error)
}

type failure struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Handler serves the proxy routes.
type Handler struct {
	backend Backend
	mux     *http.ServeMux
}

// NewHandler creates the proxy handler.
func NewHandler(backend Backend) *Handler {
	h := &Handler{backend: backend, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET "+CacheLookupPath, h.cacheLookup)
	h.mux.HandleFunc("GET "+StreamPath, h.stream)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) cacheLookup(w http.ResponseWriter, r *http.Request) {
	q, err := audiobackend.ParseQuery(r.URL.Query())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, failure{Message: "Missing required query parameters"})
		return
	}

	status, body, err := h.backend.ForwardLookup(r.Context(), q.Values().Encode())
	if err != nil {
		zlog.Error().Msgf("audio proxy: cache lookup failed: song=%s artist=%s err=%v", q.SongName, q.ArtistName, err)
		writeJSON(w, http.StatusInternalServerError, failure{
			Message: "An internal server error occurred while proxying the request.",
		})
		return
	}

	if status < 200 || status > 299 {
		zlog.Warn().Msgf("audio proxy: backend lookup status: status=%d song=%s", status, q.SongName)
		w.WriteHeader(status)
		_, _ = w.Write(body)
		return
	}

	if !json.Valid(body) {
		zlog.Error().Msgf("audio proxy: backend returned malformed JSON: song=%s", q.SongName)
		writeJSON(w, http.StatusInternalServerError, failure{
			Message: "An internal server error occurred while proxying the request.",
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	zlog.Debug().Msgf("audio proxy: forwarding stream request: query=%s", r.URL.RawQuery)

	resp, err := h.backend.OpenStream(r.Context(), r.URL.RawQuery)
	if err != nil {
		zlog.Error().Msgf("audio proxy: stream failed: err=%v", err)
		writeJSON(w, http.StatusInternalServerError, failure{Message: "Internal Server Error in audio proxy."})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		zlog.Warn().Msgf("audio proxy: backend stream status: status=%d", resp.StatusCode)
		w.WriteHeader(resp.StatusCode)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(flushWriter{w}, resp.Body); err != nil && !errors.Is(err, context.Canceled) {
		zlog.Debug().Msgf("audio proxy: stream interrupted: err=%v", err)
	}
}

// flushWriter pushes each chunk to the client as soon as it is read.
type flushWriter struct {
	w http.ResponseWriter
}

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if fl, ok := f.w.(http.Flusher); ok {
		fl.Flush()
	}
	return n, err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Debug().Msgf("audio proxy: failed to write response: err=%v", err)
	}
}
