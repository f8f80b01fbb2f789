package grpc

import (
	"context"
	"errors"
	"time"

	"github.com/alprslanymeria/oauthserver/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// loggingInterceptor logs every unary call and converts taxonomy errors
// returned by handlers into gRPC statuses.
func (s *GRPCServer) loggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()

	resp, err := handler(ctx, req)
	st := toStatus(err)

	code := status.Code(st)
	args := []any{"method", info.FullMethod, "code", code.String(), "duration", time.Since(start).String()}
	if code == codes.Internal || code == codes.Unknown {
		s.logger.Error(ctx, "grpc call failed", append(args, "error", err.Error())...)
	} else {
		s.logger.Info(ctx, "grpc call", args...)
	}

	return resp, st
}

func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	msg := common.Kind(err).Error()
	if msgs := common.Messages(err); len(msgs) > 0 {
		msg = msgs[0]
	}

	switch {
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, msg)
	case errors.Is(err, common.ErrorUnauthorized):
		return status.Error(codes.Unauthenticated, msg)
	case errors.Is(err, common.ErrorForbidden):
		return status.Error(codes.PermissionDenied, msg)
	case errors.Is(err, common.ErrorConflict):
		return status.Error(codes.AlreadyExists, msg)
	case errors.Is(err, common.ErrorBusiness):
		return status.Error(codes.InvalidArgument, msg)
	default:
		return status.Error(codes.Internal, common.ErrorInternal.Error())
	}
}
