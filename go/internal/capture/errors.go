package capture

import (
	"errors"

	"connectrpc.com/connect"
)

var (
	ErrNoBibs          = errors.New("at least one bib number is required")
	ErrInvalidBib      = errors.New("bib number must be greater than 0")
	ErrItemNotFound    = errors.New("capture item not found")
	ErrItemStillQueued = errors.New("pending items cannot be dismissed")
)

// IsSemantic reports whether the timing service rejected a submission on
// its merits. Such items are never retried; everything else is treated as
// a transient failure.
func IsSemantic(err error) bool {
	switch connect.CodeOf(err) {
	case connect.CodeNotFound,
		connect.CodeAlreadyExists,
		connect.CodeFailedPrecondition,
		connect.CodeInvalidArgument:
		return true
	}
	return false
}

// reason extracts the message the operator should see.
func reason(err error) string {
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return connectErr.Message()
	}
	return err.Error()
}
