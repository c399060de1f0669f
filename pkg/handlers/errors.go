package handlers

import (
	"context"
	stdErrors "errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	gridErrors "github.com/TFMV/ignis/pkg/errors"
)

// ToStatus maps a pipeline error onto a gRPC status error.
// Only the message crosses the wire; details stay in the server logs.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case stdErrors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case stdErrors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}

	return status.Error(codeFor(gridErrors.GetCode(err)), gridErrors.GetMessage(err))
}

func codeFor(code string) codes.Code {
	switch code {
	case gridErrors.CodeNoValidTargets, gridErrors.CodeInvalidRequest:
		return codes.InvalidArgument
	case gridErrors.CodeCacheNotFound:
		return codes.NotFound
	case gridErrors.CodeTransport:
		return codes.Unavailable
	case gridErrors.CodeUnauthenticated:
		return codes.Unauthenticated
	case gridErrors.CodeUnimplemented:
		return codes.Unimplemented
	default:
		return codes.Internal
	}
}
