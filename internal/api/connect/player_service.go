package connect

import (
	"context"
	"net/http"
	"sync"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vibebox/internal/app/notification"
	"github.com/osa030/vibebox/internal/app/playback"
	"github.com/osa030/vibebox/internal/domain/track"
	"github.com/osa030/vibebox/internal/infra/spotify"
)

// PlayerServiceName is the fully-qualified name of the player service.
const PlayerServiceName = "vibebox.player.v1.PlayerService"

// Procedure paths.
const (
	PlayTracksProcedure          = "/" + PlayerServiceName + "/PlayTracks"
	PlayAlbumProcedure           = "/" + PlayerServiceName + "/PlayAlbum"
	PlayArtistTopTracksProcedure = "/" + PlayerServiceName + "/PlayArtistTopTracks"
	PlaySavedTracksProcedure     = "/" + PlayerServiceName + "/PlaySavedTracks"
	PlayTopTracksProcedure       = "/" + PlayerServiceName + "/PlayTopTracks"
	ListSavedAlbumsProcedure     = "/" + PlayerServiceName + "/ListSavedAlbums"
	SearchProcedure              = "/" + PlayerServiceName + "/Search"
	PlayNextProcedure            = "/" + PlayerServiceName + "/PlayNext"
	PlayPreviousProcedure        = "/" + PlayerServiceName + "/PlayPrevious"
	HidePlayerProcedure          = "/" + PlayerServiceName + "/HidePlayer"
	SetTrackProgressProcedure    = "/" + PlayerServiceName + "/SetTrackProgress"
	GetStateProcedure            = "/" + PlayerServiceName + "/GetState"
	SubscribeStateProcedure      = "/" + PlayerServiceName + "/SubscribeState"
)

// Player is the playback session surface exposed over RPC.
type Player interface {
	PlayTracks(tracks []track.Track, startIndex int) error
	PlayNext() error
	PlayPrevious() error
	HidePlayer() error
	SetTrackProgress(p playback.Progress) error
	Snapshot() playback.Snapshot
}

// Catalog is the music catalog collaborator.
type Catalog interface {
	GetTrack(ctx context.Context, trackID string) (*track.Track, error)
	GetAlbumTracks(ctx context.Context, albumID string) ([]track.Track, error)
	GetArtistTopTracks(ctx context.Context, artistID string) ([]track.Track, error)
	GetSavedTracks(ctx context.Context, limit int) ([]track.Track, error)
	GetTopTracks(ctx context.Context, limit int, timeRange string) ([]track.Track, error)
	GetSavedAlbums(ctx context.Context, limit int) ([]track.AlbumSummary, error)
	Search(ctx context.Context, query string, limit int) ([]track.Track, error)
}

// PlayerService implements the PlayerService RPC.
type PlayerService struct {
	player   Player
	catalog  Catalog
	notifier *notification.Manager

	done      chan struct{}
	closeOnce sync.Once
}

// NewPlayerService creates a new PlayerService.
func NewPlayerService(player Player, catalog Catalog, notifier *notification.Manager) *PlayerService {
	return &PlayerService{
		player:   player,
		catalog:  catalog,
		notifier: notifier,
		done:     make(chan struct{}),
	}
}

// Close ends all open state subscriptions.
func (s *PlayerService) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// NewHandler mounts every procedure and returns the service path prefix and its handler.
// A non-empty token enables bearer authentication.
func NewHandler(svc *PlayerService, token string, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)
	if token != "" {
		opts = append(opts, connect.WithInterceptors(NewTokenInterceptor(token)))
	}

	mux := http.NewServeMux()
	mux.Handle(PlayTracksProcedure, connect.NewUnaryHandler(PlayTracksProcedure, svc.PlayTracks, opts...))
	mux.Handle(PlayAlbumProcedure, connect.NewUnaryHandler(PlayAlbumProcedure, svc.PlayAlbum, opts...))
	mux.Handle(PlayArtistTopTracksProcedure, connect.NewUnaryHandler(PlayArtistTopTracksProcedure, svc.PlayArtistTopTracks, opts...))
	mux.Handle(PlaySavedTracksProcedure, connect.NewUnaryHandler(PlaySavedTracksProcedure, svc.PlaySavedTracks, opts...))
	mux.Handle(PlayTopTracksProcedure, connect.NewUnaryHandler(PlayTopTracksProcedure, svc.PlayTopTracks, opts...))
	mux.Handle(ListSavedAlbumsProcedure, connect.NewUnaryHandler(ListSavedAlbumsProcedure, svc.ListSavedAlbums, opts...))
	mux.Handle(SearchProcedure, connect.NewUnaryHandler(SearchProcedure, svc.Search, opts...))
	mux.Handle(PlayNextProcedure, connect.NewUnaryHandler(PlayNextProcedure, svc.PlayNext, opts...))
	mux.Handle(PlayPreviousProcedure, connect.NewUnaryHandler(PlayPreviousProcedure, svc.PlayPrevious, opts...))
	mux.Handle(HidePlayerProcedure, connect.NewUnaryHandler(HidePlayerProcedure, svc.HidePlayer, opts...))
	mux.Handle(SetTrackProgressProcedure, connect.NewUnaryHandler(SetTrackProgressProcedure, svc.SetTrackProgress, opts...))
	mux.Handle(GetStateProcedure, connect.NewUnaryHandler(GetStateProcedure, svc.GetState, opts...))
	mux.Handle(SubscribeStateProcedure, connect.NewServerStreamHandler(SubscribeStateProcedure, svc.SubscribeState, opts...))

	return "/" + PlayerServiceName + "/", mux
}

// PlayTracks starts a queue from the given tracks or track IDs.
func (s *PlayerService) PlayTracks(
	ctx context.Context,
	req *connect.Request[PlayTracksRequest],
) (*connect.Response[StateResponse], error) {
	tracks := req.Msg.Tracks
	if len(tracks) == 0 && len(req.Msg.TrackIDs) > 0 {
		tracks = make([]track.Track, 0, len(req.Msg.TrackIDs))
		for _, id := range req.Msg.TrackIDs {
			t, err := s.catalog.GetTrack(ctx, id)
			if err != nil {
				return nil, catalogError(err)
			}
			tracks = append(tracks, *t)
		}
	}
	return s.play(tracks, req.Msg.StartIndex)
}

// PlayAlbum plays an album from the catalog.
func (s *PlayerService) PlayAlbum(
	ctx context.Context,
	req *connect.Request[PlayAlbumRequest],
) (*connect.Response[StateResponse], error) {
	if req.Msg.AlbumID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("album_id is required"))
	}
	tracks, err := s.catalog.GetAlbumTracks(ctx, req.Msg.AlbumID)
	if err != nil {
		return nil, catalogError(err)
	}
	zlog.Info().Msgf("rpc: play album: album_id=%s tracks=%d", req.Msg.AlbumID, len(tracks))
	return s.play(tracks, req.Msg.StartIndex)
}

// PlayArtistTopTracks plays an artist's top tracks.
func (s *PlayerService) PlayArtistTopTracks(
	ctx context.Context,
	req *connect.Request[PlayArtistTopTracksRequest],
) (*connect.Response[StateResponse], error) {
	if req.Msg.ArtistID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("artist_id is required"))
	}
	tracks, err := s.catalog.GetArtistTopTracks(ctx, req.Msg.ArtistID)
	if err != nil {
		return nil, catalogError(err)
	}
	zlog.Info().Msgf("rpc: play artist: artist_id=%s tracks=%d", req.Msg.ArtistID, len(tracks))
	return s.play(tracks, req.Msg.StartIndex)
}

// PlaySavedTracks plays the user's saved tracks.
func (s *PlayerService) PlaySavedTracks(
	ctx context.Context,
	req *connect.Request[PlaySavedTracksRequest],
) (*connect.Response[StateResponse], error) {
	tracks, err := s.catalog.GetSavedTracks(ctx, req.Msg.Limit)
	if err != nil {
		return nil, catalogError(err)
	}
	return s.play(tracks, req.Msg.StartIndex)
}

// PlayTopTracks plays the user's most played tracks.
func (s *PlayerService) PlayTopTracks(
	ctx context.Context,
	req *connect.Request[PlayTopTracksRequest],
) (*connect.Response[StateResponse], error) {
	tracks, err := s.catalog.GetTopTracks(ctx, req.Msg.Limit, req.Msg.TimeRange)
	if err != nil {
		return nil, catalogError(err)
	}
	zlog.Info().Msgf("rpc: play top tracks: time_range=%s tracks=%d", req.Msg.TimeRange, len(tracks))
	return s.play(tracks, req.Msg.StartIndex)
}

// ListSavedAlbums lists the user's saved albums. Play one with PlayAlbum.
func (s *PlayerService) ListSavedAlbums(
	ctx context.Context,
	req *connect.Request[ListSavedAlbumsRequest],
) (*connect.Response[ListSavedAlbumsResponse], error) {
	albums, err := s.catalog.GetSavedAlbums(ctx, req.Msg.Limit)
	if err != nil {
		return nil, catalogError(err)
	}
	if albums == nil {
		albums = []track.AlbumSummary{}
	}
	return connect.NewResponse(&ListSavedAlbumsResponse{Albums: albums}), nil
}

// Search searches the catalog for tracks.
func (s *PlayerService) Search(
	ctx context.Context,
	req *connect.Request[SearchRequest],
) (*connect.Response[SearchResponse], error) {
	if req.Msg.Query == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("query is required"))
	}
	tracks, err := s.catalog.Search(ctx, req.Msg.Query, req.Msg.Limit)
	if err != nil {
		return nil, catalogError(err)
	}
	return connect.NewResponse(&SearchResponse{Tracks: tracks}), nil
}

// PlayNext moves to the next track.
func (s *PlayerService) PlayNext(
	ctx context.Context,
	req *connect.Request[EmptyRequest],
) (*connect.Response[StateResponse], error) {
	if err := s.player.PlayNext(); err != nil {
		return nil, sessionError(err)
	}
	return s.state(), nil
}

// PlayPrevious moves to the previous track.
func (s *PlayerService) PlayPrevious(
	ctx context.Context,
	req *connect.Request[EmptyRequest],
) (*connect.Response[StateResponse], error) {
	if err := s.player.PlayPrevious(); err != nil {
		return nil, sessionError(err)
	}
	return s.state(), nil
}

// HidePlayer hides the player.
func (s *PlayerService) HidePlayer(
	ctx context.Context,
	req *connect.Request[EmptyRequest],
) (*connect.Response[StateResponse], error) {
	if err := s.player.HidePlayer(); err != nil {
		return nil, sessionError(err)
	}
	return s.state(), nil
}

// SetTrackProgress records the playback position reported by the client.
func (s *PlayerService) SetTrackProgress(
	ctx context.Context,
	req *connect.Request[SetTrackProgressRequest],
) (*connect.Response[StateResponse], error) {
	err := s.player.SetTrackProgress(playback.Progress{
		CurrentTime: req.Msg.CurrentTime,
		Duration:    req.Msg.Duration,
	})
	if err != nil {
		return nil, sessionError(err)
	}
	return s.state(), nil
}

// GetState returns the current session state.
func (s *PlayerService) GetState(
	ctx context.Context,
	req *connect.Request[EmptyRequest],
) (*connect.Response[StateResponse], error) {
	return s.state(), nil
}

// SubscribeState streams the current state, then every state change.
func (s *PlayerService) SubscribeState(
	ctx context.Context,
	req *connect.Request[EmptyRequest],
	stream *connect.ServerStream[StateNotification],
) error {
	// Subscribe before taking the snapshot so no change is missed. Holding the adapter
	// lock keeps broadcasts queued until the initial state has been sent.
	adapter := &notificationStreamAdapter{stream: stream}
	adapter.mu.Lock()
	subscriptionID := s.notifier.Subscribe(adapter)
	defer s.notifier.Unsubscribe(subscriptionID)

	initial := &StateNotification{
		SequenceNo: s.notifier.SequenceNo(),
		Event:      "initial_state",
	}
	initial.Snapshot = s.player.Snapshot()
	err := stream.Send(initial)
	adapter.mu.Unlock()
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-s.done:
	}
	return nil
}

func (s *PlayerService) play(tracks []track.Track, startIndex int) (*connect.Response[StateResponse], error) {
	if err := s.player.PlayTracks(tracks, startIndex); err != nil {
		return nil, sessionError(err)
	}
	return s.state(), nil
}

func (s *PlayerService) state() *connect.Response[StateResponse] {
	return connect.NewResponse(&StateResponse{Snapshot: s.player.Snapshot()})
}

// sessionError maps session errors to connect codes.
func sessionError(err error) error {
	switch {
	case errors.Is(err, playback.ErrEmptyQueue), errors.Is(err, playback.ErrInvalidIndex):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, playback.ErrClosed):
		return connect.NewError(connect.CodeUnavailable, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

// catalogError maps catalog errors to connect codes.
func catalogError(err error) error {
	switch {
	case errors.Is(err, spotify.ErrUserTokenRequired):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, spotify.ErrInvalidTimeRange):
		return connect.NewError(connect.CodeInvalidArgument, err)
	}
	zlog.Warn().Msgf("rpc: catalog request failed: error=%v", err)
	return connect.NewError(connect.CodeUnavailable, err)
}

// notificationStreamAdapter adapts connect.ServerStream to notification.Stream.
// Sends are serialized since a timed-out send may still be running when the next one starts.
type notificationStreamAdapter struct {
	mu     sync.Mutex
	stream *connect.ServerStream[StateNotification]
}

func (a *notificationStreamAdapter) Send(n *notification.Notification) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stream.Send(n)
}
