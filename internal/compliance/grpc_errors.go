package compliance

import (
	"context"
	"errors"

	"github.com/signalsfoundry/svc-compliance/internal/region"
	"github.com/signalsfoundry/svc-compliance/internal/telemetry"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var errPanic = errors.New("internal error")

// ToStatusError maps service errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, region.ErrRejected):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, region.ErrUnknownRequest):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, telemetry.ErrNoChannel):
		return status.Error(codes.Unavailable, err.Error())

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
