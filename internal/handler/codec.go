package handler

import (
	"context"
	"encoding/json"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"appointment-scheduler/internal/middleware"
	"appointment-scheduler/internal/schedule"
)

func uid(ctx context.Context) (string, error) {
	id, ok := middleware.UserID(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "no user")
	}
	return id, nil
}

// decode maps the request struct onto v through its JSON form.
func decode(in *structpb.Struct, v any) error {
	if in == nil {
		in = &structpb.Struct{}
	}
	b, err := protojson.Marshal(in)
	if err != nil {
		return status.Error(codes.InvalidArgument, "malformed request")
	}
	if err := json.Unmarshal(b, v); err != nil {
		return status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}
	return nil
}

func encode(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

// toStatus maps scheduling errors onto gRPC codes. Anything outside the
// scheduling taxonomy is reported as a bare internal error.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}

	var (
		vErr *schedule.ValidationError
		cErr *schedule.ConflictError
		aErr *schedule.AuthorizationError
		sErr *schedule.StateError
		nErr *schedule.NotFoundError
	)
	switch {
	case errors.As(err, &vErr), errors.As(err, &sErr):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.As(err, &cErr):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.As(err, &aErr):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.As(err, &nErr):
		return status.Error(codes.NotFound, err.Error())
	}
	return status.Error(codes.Internal, "internal error")
}
