package rpc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/OperatorFoundation/nahoftu4i/capture"
	"github.com/OperatorFoundation/nahoftu4i/keys"
	"github.com/OperatorFoundation/nahoftu4i/session"
)

// Client calls a remote receiver service. Errors are Connect errors; use
// connect.CodeOf to classify them.
type Client struct {
	start  *connect.Client[structpb.Struct, emptypb.Empty]
	stop   *connect.Client[emptypb.Empty, emptypb.Empty]
	extend *connect.Client[emptypb.Empty, emptypb.Empty]
	attach *connect.Client[structpb.Struct, structpb.Struct]
	detach *connect.Client[structpb.Struct, emptypb.Empty]
	status *connect.Client[emptypb.Empty, structpb.Struct]
	submit *connect.Client[structpb.Struct, emptypb.Empty]
}

// NewClient creates a Client for the service at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		start:  connect.NewClient[structpb.Struct, emptypb.Empty](httpClient, baseURL+StartProcedure, opts...),
		stop:   connect.NewClient[emptypb.Empty, emptypb.Empty](httpClient, baseURL+StopProcedure, opts...),
		extend: connect.NewClient[emptypb.Empty, emptypb.Empty](httpClient, baseURL+ExtendProcedure, opts...),
		attach: connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+AttachProcedure, opts...),
		detach: connect.NewClient[structpb.Struct, emptypb.Empty](httpClient, baseURL+DetachProcedure, opts...),
		status: connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+StatusProcedure,
			append(opts, connect.WithIdempotency(connect.IdempotencyNoSideEffects))...),
		submit: connect.NewClient[structpb.Struct, emptypb.Empty](httpClient, baseURL+SubmitProcedure, opts...),
	}
}

// Start starts receiving from identity, whose public key is key.
func (c *Client) Start(ctx context.Context, identity string, key [keys.KeySize]byte) error {
	msg, err := toStruct(StartRequest{Identity: identity, Key: keys.Encode(key)})
	if err != nil {
		return err
	}
	_, err = c.start.CallUnary(ctx, connect.NewRequest(msg))
	return err
}

func (c *Client) Stop(ctx context.Context) error {
	return callEmpty(ctx, c.stop)
}

func (c *Client) Extend(ctx context.Context) error {
	return callEmpty(ctx, c.extend)
}

// Attach takes an observer lease when id is empty and renews lease id
// otherwise. A lease that is not renewed within its TTL is released by the
// server.
func (c *Client) Attach(ctx context.Context, id string) (Lease, error) {
	var lease Lease
	msg, err := toStruct(AttachRequest{Lease: id})
	if err != nil {
		return lease, err
	}
	resp, err := c.attach.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return lease, err
	}
	if err := fromStruct(resp.Msg, &lease); err != nil {
		return lease, fmt.Errorf("decode lease: %w", err)
	}
	return lease, nil
}

// Detach releases lease id.
func (c *Client) Detach(ctx context.Context, id string) error {
	msg, err := toStruct(AttachRequest{Lease: id})
	if err != nil {
		return err
	}
	_, err = c.detach.CallUnary(ctx, connect.NewRequest(msg))
	return err
}

// Observe holds an observer lease until ctx is done, renewing it at a third
// of its TTL, then releases it. It returns nil when ctx ends normally.
func (c *Client) Observe(ctx context.Context) error {
	lease, err := c.Attach(ctx, "")
	if err != nil {
		return err
	}
	defer func() {
		release, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		c.Detach(release, lease.ID)
	}()

	every := time.Duration(lease.TTL) / 3
	if every <= 0 {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := c.Attach(ctx, lease.ID); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("renew lease: %w", err)
			}
		}
	}
}

// Status returns the engine's current snapshot.
func (c *Client) Status(ctx context.Context) (session.Snapshot, error) {
	var snap session.Snapshot
	resp, err := c.status.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		return snap, err
	}
	if err := fromStruct(resp.Msg, &snap); err != nil {
		return snap, fmt.Errorf("decode status: %w", err)
	}
	return snap, nil
}

// Submit pushes a decode batch to the engine.
func (c *Client) Submit(ctx context.Context, batch capture.Batch) error {
	msg, err := toStruct(batch)
	if err != nil {
		return err
	}
	_, err = c.submit.CallUnary(ctx, connect.NewRequest(msg))
	return err
}

func callEmpty(ctx context.Context, client *connect.Client[emptypb.Empty, emptypb.Empty]) error {
	_, err := client.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{}))
	return err
}
