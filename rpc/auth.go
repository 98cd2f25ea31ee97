package rpc

import (
	"context"
	"strings"

	"connectrpc.com/connect"

	"github.com/OperatorFoundation/nahoftu4i/notify"
)

// NewAuthInterceptor rejects handler calls that lack a valid Bearer token
// signed with secret.
func NewAuthInterceptor(secret string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if req.Spec().IsClient {
				return next(ctx, req)
			}
			token, _ := strings.CutPrefix(req.Header().Get("Authorization"), "Bearer ")
			if _, err := notify.VerifyToken(secret, token); err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, err)
			}
			return next(ctx, req)
		}
	}
}

// NewTokenInterceptor attaches token as a Bearer credential to every client
// call.
func NewTokenInterceptor(token string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if req.Spec().IsClient {
				req.Header().Set("Authorization", "Bearer "+token)
			}
			return next(ctx, req)
		}
	}
}
