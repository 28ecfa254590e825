package connect

import (
	"context"
	"strings"

	"connectrpc.com/connect"
)

// Client is a typed client for the player service.
type Client struct {
	playTracks          *connect.Client[PlayTracksRequest, StateResponse]
	playAlbum           *connect.Client[PlayAlbumRequest, StateResponse]
	playArtistTopTracks *connect.Client[PlayArtistTopTracksRequest, StateResponse]
	playSavedTracks     *connect.Client[PlaySavedTracksRequest, StateResponse]
	playTopTracks       *connect.Client[PlayTopTracksRequest, StateResponse]
	listSavedAlbums     *connect.Client[ListSavedAlbumsRequest, ListSavedAlbumsResponse]
	search              *connect.Client[SearchRequest, SearchResponse]
	playNext            *connect.Client[EmptyRequest, StateResponse]
	playPrevious        *connect.Client[EmptyRequest, StateResponse]
	hidePlayer          *connect.Client[EmptyRequest, StateResponse]
	setTrackProgress    *connect.Client[SetTrackProgressRequest, StateResponse]
	getState            *connect.Client[EmptyRequest, StateResponse]
	subscribeState      *connect.Client[EmptyRequest, StateNotification]
}

// NewClient creates a player service client for the server at baseURL.
// A non-empty token is sent as a bearer token.
func NewClient(httpClient connect.HTTPClient, baseURL, token string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
	if token != "" {
		opts = append(opts, connect.WithInterceptors(NewTokenInterceptor(token)))
	}

	return &Client{
		playTracks:          connect.NewClient[PlayTracksRequest, StateResponse](httpClient, baseURL+PlayTracksProcedure, opts...),
		playAlbum:           connect.NewClient[PlayAlbumRequest, StateResponse](httpClient, baseURL+PlayAlbumProcedure, opts...),
		playArtistTopTracks: connect.NewClient[PlayArtistTopTracksRequest, StateResponse](httpClient, baseURL+PlayArtistTopTracksProcedure, opts...),
		playSavedTracks:     connect.NewClient[PlaySavedTracksRequest, StateResponse](httpClient, baseURL+PlaySavedTracksProcedure, opts...),
		playTopTracks:       connect.NewClient[PlayTopTracksRequest, StateResponse](httpClient, baseURL+PlayTopTracksProcedure, opts...),
		listSavedAlbums:     connect.NewClient[ListSavedAlbumsRequest, ListSavedAlbumsResponse](httpClient, baseURL+ListSavedAlbumsProcedure, opts...),
		search:              connect.NewClient[SearchRequest, SearchResponse](httpClient, baseURL+SearchProcedure, opts...),
		playNext:            connect.NewClient[EmptyRequest, StateResponse](httpClient, baseURL+PlayNextProcedure, opts...),
		playPrevious:        connect.NewClient[EmptyRequest, StateResponse](httpClient, baseURL+PlayPreviousProcedure, opts...),
		hidePlayer:          connect.NewClient[EmptyRequest, StateResponse](httpClient, baseURL+HidePlayerProcedure, opts...),
		setTrackProgress:    connect.NewClient[SetTrackProgressRequest, StateResponse](httpClient, baseURL+SetTrackProgressProcedure, opts...),
		getState:            connect.NewClient[EmptyRequest, StateResponse](httpClient, baseURL+GetStateProcedure, opts...),
		subscribeState:      connect.NewClient[EmptyRequest, StateNotification](httpClient, baseURL+SubscribeStateProcedure, opts...),
	}
}

func unary[Req, Res any](ctx context.Context, c *connect.Client[Req, Res], msg *Req) (*Res, error) {
	res, err := c.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) PlayTracks(ctx context.Context, req *PlayTracksRequest) (*StateResponse, error) {
	return unary(ctx, c.playTracks, req)
}

func (c *Client) PlayAlbum(ctx context.Context, req *PlayAlbumRequest) (*StateResponse, error) {
	return unary(ctx, c.playAlbum, req)
}

func (c *Client) PlayArtistTopTracks(ctx context.Context, req *PlayArtistTopTracksRequest) (*StateResponse, error) {
	return unary(ctx, c.playArtistTopTracks, req)
}

func (c *Client) PlaySavedTracks(ctx context.Context, req *PlaySavedTracksRequest) (*StateResponse, error) {
	return unary(ctx, c.playSavedTracks, req)
}

func (c *Client) PlayTopTracks(ctx context.Context, req *PlayTopTracksRequest) (*StateResponse, error) {
	return unary(ctx, c.playTopTracks, req)
}

func (c *Client) ListSavedAlbums(ctx context.Context, req *ListSavedAlbumsRequest) (*ListSavedAlbumsResponse, error) {
	return unary(ctx, c.listSavedAlbums, req)
}

func (c *Client) Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	return unary(ctx, c.search, req)
}

func (c *Client) PlayNext(ctx context.Context) (*StateResponse, error) {
	return unary(ctx, c.playNext, &EmptyRequest{})
}

func (c *Client) PlayPrevious(ctx context.Context) (*StateResponse, error) {
	return unary(ctx, c.playPrevious, &EmptyRequest{})
}

func (c *Client) HidePlayer(ctx context.Context) (*StateResponse, error) {
	return unary(ctx, c.hidePlayer, &EmptyRequest{})
}

func (c *Client) SetTrackProgress(ctx context.Context, req *SetTrackProgressRequest) (*StateResponse, error) {
	return unary(ctx, c.setTrackProgress, req)
}

func (c *Client) GetState(ctx context.Context) (*StateResponse, error) {
	return unary(ctx, c.getState, &EmptyRequest{})
}

// SubscribeState opens the state stream. The caller must Close the returned stream.
func (c *Client) SubscribeState(ctx context.Context) (*connect.ServerStreamForClient[StateNotification], error) {
	return c.subscribeState.CallServerStream(ctx, connect.NewRequest(&EmptyRequest{}))
}
