package api

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/matheus3301/mixdesk/internal/backend"
	"github.com/matheus3301/mixdesk/internal/chat"
)

// toStatus maps a store error to a gRPC status carrying the user-visible message.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.Canceled):
		return grpcstatus.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return grpcstatus.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, chat.ErrNoIdentity):
		return grpcstatus.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, chat.ErrEmptyMessage):
		return grpcstatus.Error(codes.InvalidArgument, err.Error())
	}

	msg := backend.UserMessage(err)
	switch code := backend.StatusOf(err); {
	case code == 0:
		return grpcstatus.Error(codes.Unavailable, msg)
	case code == http.StatusUnauthorized:
		return grpcstatus.Error(codes.Unauthenticated, msg)
	case code == http.StatusForbidden:
		return grpcstatus.Error(codes.PermissionDenied, msg)
	case code == http.StatusNotFound:
		return grpcstatus.Error(codes.NotFound, msg)
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		return grpcstatus.Error(codes.InvalidArgument, msg)
	case code >= 500:
		return grpcstatus.Error(codes.Unavailable, msg)
	default:
		return grpcstatus.Error(codes.Internal, msg)
	}
}
