package grpc

import (
	"context"
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"viewings/backend/internal/apperr"
)

const errorDomain = "viewings.v1"

func codeFor(kind apperr.Kind) codes.Code {
	switch kind {
	case apperr.KindNotFound:
		return codes.NotFound
	case apperr.KindForbidden:
		return codes.PermissionDenied
	case apperr.KindInvalidArgument, apperr.KindInvalidTime:
		return codes.InvalidArgument
	case apperr.KindInvalidState:
		return codes.FailedPrecondition
	}
	return codes.Internal
}

// statusError builds a status whose ErrorInfo reason is the machine-readable kind.
func statusError(code codes.Code, reason, msg string) error {
	st := status.New(code, msg)
	if withInfo, err := st.WithDetails(&errdetails.ErrorInfo{Reason: reason, Domain: errorDomain}); err == nil {
		st = withInfo
	}
	return st.Err()
}

func invalidArgument(msg string) error {
	return statusError(codes.InvalidArgument, string(apperr.KindInvalidArgument), msg)
}

// toStatus maps a service error. The bool reports whether the error was expected
// (a rejected operation) rather than an internal failure.
func toStatus(err error) (error, bool) {
	var e *apperr.Error
	if errors.As(err, &e) {
		return statusError(codeFor(e.Kind), string(e.Kind), e.Message), true
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "request timed out"), false
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request canceled"), false
	}
	return status.Error(codes.Internal, "internal error"), false
}
