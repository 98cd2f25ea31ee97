// Package rpc exposes the receive engine as a Connect service. Messages are
// google.protobuf.Struct values carrying the engine's JSON shapes, so the
// service needs no generated code and any Connect, gRPC or gRPC-Web client
// can call it.
package rpc

import (
	"context"
	"errors"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/OperatorFoundation/nahoftu4i/capture"
	"github.com/OperatorFoundation/nahoftu4i/clock"
	"github.com/OperatorFoundation/nahoftu4i/keys"
	"github.com/OperatorFoundation/nahoftu4i/session"
)

// ServiceName is the fully-qualified name of the receiver service.
const ServiceName = "nahoftu4i.receiver.v1.ReceiverService"

// Procedure paths.
const (
	StartProcedure  = "/" + ServiceName + "/Start"
	StopProcedure   = "/" + ServiceName + "/Stop"
	ExtendProcedure = "/" + ServiceName + "/Extend"
	AttachProcedure = "/" + ServiceName + "/Attach"
	DetachProcedure = "/" + ServiceName + "/Detach"
	StatusProcedure = "/" + ServiceName + "/Status"
	SubmitProcedure = "/" + ServiceName + "/Submit"
)

// Engine is the part of the receive engine the service drives.
type Engine interface {
	Start(ctx context.Context, identity string, key []byte) error
	Stop(ctx context.Context) error
	Extend(ctx context.Context) error
	Attach(ctx context.Context) error
	Detach(ctx context.Context) error
	Snapshot() session.Snapshot
	Submit(ctx context.Context, batch capture.Batch) error
}

// StartRequest selects the counterparty to receive from. Key is the
// counterparty's base64 public key.
type StartRequest struct {
	Identity string `json:"identity"`
	Key      string `json:"key"`
}

type service struct {
	engine   Engine
	attached *attachments
}

type handlerConfig struct {
	connect []connect.HandlerOption
	ttl     time.Duration
	clock   clock.Clock
}

// Option configures NewHandler.
type Option func(*handlerConfig)

// WithHandlerOptions passes Connect options (interceptors, limits) to every
// procedure.
func WithHandlerOptions(opts ...connect.HandlerOption) Option {
	return func(c *handlerConfig) { c.connect = append(c.connect, opts...) }
}

// WithAttachTTL sets how long an observer lease survives without renewal.
func WithAttachTTL(d time.Duration) Option {
	return func(c *handlerConfig) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithClock sets the clock that expires observer leases.
func WithClock(c clock.Clock) Option {
	return func(cfg *handlerConfig) { cfg.clock = c }
}

// NewHandler returns the mount path and handler for the receiver service.
// Remote attaches are held as leases; a lease that is neither renewed nor
// released within its TTL detaches itself, so a client that goes away
// cannot hold the engine's observer count up.
func NewHandler(engine Engine, options ...Option) (string, http.Handler) {
	cfg := handlerConfig{ttl: DefaultAttachTTL, clock: clock.Real()}
	for _, o := range options {
		o(&cfg)
	}
	opts := cfg.connect

	s := &service{engine: engine, attached: newAttachments(engine, cfg.clock, cfg.ttl)}

	mux := http.NewServeMux()
	mux.Handle(StartProcedure, connect.NewUnaryHandler(StartProcedure, s.start, opts...))
	mux.Handle(StopProcedure, connect.NewUnaryHandler(StopProcedure, s.simple(engine.Stop), opts...))
	mux.Handle(ExtendProcedure, connect.NewUnaryHandler(ExtendProcedure, s.simple(engine.Extend), opts...))
	mux.Handle(AttachProcedure, connect.NewUnaryHandler(AttachProcedure, s.attach, opts...))
	mux.Handle(DetachProcedure, connect.NewUnaryHandler(DetachProcedure, s.detach, opts...))
	mux.Handle(StatusProcedure, connect.NewUnaryHandler(StatusProcedure, s.status,
		append(opts, connect.WithIdempotency(connect.IdempotencyNoSideEffects))...))
	mux.Handle(SubmitProcedure, connect.NewUnaryHandler(SubmitProcedure, s.submit, opts...))

	return "/" + ServiceName + "/", mux
}

func (s *service) start(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[emptypb.Empty], error) {
	var in StartRequest
	if err := fromStruct(req.Msg, &in); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	key, err := keys.Decode(in.Key)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if err := s.engine.Start(ctx, in.Identity, key[:]); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}

func (s *service) simple(fn func(context.Context) error) func(context.Context, *connect.Request[emptypb.Empty]) (*connect.Response[emptypb.Empty], error) {
	return func(ctx context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[emptypb.Empty], error) {
		if err := fn(ctx); err != nil {
			return nil, toConnectError(err)
		}
		return connect.NewResponse(&emptypb.Empty{}), nil
	}
}

func (s *service) attach(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	var in AttachRequest
	if err := fromStruct(req.Msg, &in); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	lease, err := s.attached.attach(ctx, in.Lease)
	if err != nil {
		return nil, toConnectError(err)
	}
	out, err := toStruct(lease)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(out), nil
}

func (s *service) detach(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[emptypb.Empty], error) {
	var in AttachRequest
	if err := fromStruct(req.Msg, &in); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if in.Lease == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("lease is required"))
	}
	if err := s.attached.detach(ctx, in.Lease); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}

func (s *service) status(ctx context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	out, err := toStruct(s.engine.Snapshot())
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(out), nil
}

func (s *service) submit(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[emptypb.Empty], error) {
	var batch capture.Batch
	if err := fromStruct(req.Msg, &batch); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if err := s.engine.Submit(ctx, batch); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}
