package rpc

import (
	"context"
	"errors"

	"connectrpc.com/connect"

	"github.com/OperatorFoundation/nahoftu4i/capture"
	"github.com/OperatorFoundation/nahoftu4i/lease"
	"github.com/OperatorFoundation/nahoftu4i/receiver"
)

var codes = []struct {
	err  error
	code connect.Code
}{
	{receiver.ErrNoIdentity, connect.CodeInvalidArgument},
	{receiver.ErrSessionActive, connect.CodeAlreadyExists},
	{receiver.ErrNotActive, connect.CodeFailedPrecondition},
	{receiver.ErrSubmitUnsupported, connect.CodeUnimplemented},
	{receiver.ErrClosed, connect.CodeUnavailable},
	{capture.ErrUnavailable, connect.CodeUnavailable},
	{lease.ErrResourceAcquisition, connect.CodeResourceExhausted},
	{ErrLeaseNotFound, connect.CodeNotFound},
	{context.Canceled, connect.CodeCanceled},
	{context.DeadlineExceeded, connect.CodeDeadlineExceeded},
}

// toConnectError maps engine errors to Connect codes. Unknown errors are
// internal.
func toConnectError(err error) error {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return connect.NewError(c.code, err)
		}
	}
	return connect.NewError(connect.CodeInternal, err)
}
