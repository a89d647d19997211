package rpc

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/torosent/benchhub/internal/errdefs"
)

var codeTable = []struct {
	err  error
	code codes.Code
}{
	{errdefs.ErrAdmissionDenied, codes.ResourceExhausted},
	{errdefs.ErrUnknownClient, codes.NotFound},
	{errdefs.ErrBackpressure, codes.Unavailable},
	{errdefs.ErrMalformed, codes.InvalidArgument},
	{errdefs.ErrShuttingDown, codes.FailedPrecondition},
}

// ToStatus converts a service error into a gRPC status error. Errors that
// already carry a status pass through unchanged.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	for _, entry := range codeTable {
		if errors.Is(err, entry.err) {
			return status.Error(entry.code, err.Error())
		}
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// FromStatus maps a gRPC status back onto the errdefs sentinels so callers
// can branch with errors.Is. Unmapped codes are returned unchanged.
func FromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	for _, entry := range codeTable {
		if st.Code() == entry.code {
			return &remoteError{sentinel: entry.err, status: st}
		}
	}
	switch st.Code() {
	case codes.Canceled:
		return fmt.Errorf("%s: %w", st.Message(), context.Canceled)
	case codes.DeadlineExceeded:
		return fmt.Errorf("%s: %w", st.Message(), context.DeadlineExceeded)
	}
	return err
}

// remoteError keeps the original status reachable through errors.As while
// matching the sentinel with errors.Is.
type remoteError struct {
	sentinel error
	status   *status.Status
}

func (e *remoteError) Error() string { return e.status.Message() }

func (e *remoteError) Is(target error) bool { return target == e.sentinel }

func (e *remoteError) GRPCStatus() *status.Status { return e.status }
