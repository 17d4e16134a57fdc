package grpccas

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/xdoc/storage"
)

// ErrRejected wraps an InvalidArgument reply that is not about a CID, such
// as a Digest request whose bytes are not a document.
var ErrRejected = errors.New("grpccas: request rejected by server")

// sentinels are matched by message when the status code alone is ambiguous.
var sentinels = []error{
	storage.ErrNotFound,
	storage.ErrInvalidCID,
	storage.ErrCIDMismatch,
	storage.ErrImmutable,
}

// mapRPC turns a gRPC status back into the storage sentinel the server
// started from, so callers can use errors.Is across the wire.
func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.NotFound:
		return storage.ErrNotFound
	case codes.DataLoss:
		return storage.ErrCIDMismatch
	case codes.AlreadyExists:
		return storage.ErrImmutable
	case codes.Canceled:
		return fmt.Errorf("%w: %s", context.Canceled, st.Message())
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", context.DeadlineExceeded, st.Message())
	case codes.InvalidArgument:
		if st.Message() == storage.ErrInvalidCID.Error() {
			return storage.ErrInvalidCID
		}
		return fmt.Errorf("%w: %s", ErrRejected, st.Message())
	}
	for _, s := range sentinels {
		if st.Message() == s.Error() {
			return s
		}
	}
	return err
}
