// Package connect provides the Connect RPC player service.
package connect

import (
	"context"
	"crypto/subtle"
	"strings"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
)

const (
	// AuthorizationHeader carries the bearer token.
	AuthorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "
)

var errInvalidToken = errors.New("invalid or missing bearer token")

// tokenInterceptor validates the bearer token on unary and streaming calls,
// and attaches it on the client side.
type tokenInterceptor struct {
	token string
}

// NewTokenInterceptor creates an interceptor that requires "Authorization: Bearer <token>".
// Used on a client, it sets the header instead.
func NewTokenInterceptor(token string) connect.Interceptor {
	return &tokenInterceptor{token: token}
}

func (i *tokenInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			req.Header().Set(AuthorizationHeader, bearerPrefix+i.token)
			return next(ctx, req)
		}
		if !i.valid(req.Header().Get(AuthorizationHeader)) {
			return nil, connect.NewError(connect.CodeUnauthenticated, errInvalidToken)
		}
		return next(ctx, req)
	}
}

func (i *tokenInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return func(ctx context.Context, spec connect.Spec) connect.StreamingClientConn {
		conn := next(ctx, spec)
		conn.RequestHeader().Set(AuthorizationHeader, bearerPrefix+i.token)
		return conn
	}
}

func (i *tokenInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		if !i.valid(conn.RequestHeader().Get(AuthorizationHeader)) {
			return connect.NewError(connect.CodeUnauthenticated, errInvalidToken)
		}
		return next(ctx, conn)
	}
}

func (i *tokenInterceptor) valid(header string) bool {
	got, ok := strings.CutPrefix(header, bearerPrefix)
	if !ok || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(i.token)) == 1
}
