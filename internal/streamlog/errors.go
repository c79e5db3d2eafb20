package streamlog

import (
	"errors"
	"fmt"
)

// Error categories. Every usage error matches ErrInvalidArgument or
// ErrIllegalState with errors.Is.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrIllegalState    = errors.New("illegal state")
)

var (
	ErrUnknownLog          = fmt.Errorf("%w: unknown log", ErrInvalidArgument)
	ErrPartitionOutOfRange = fmt.Errorf("%w: partition out of range", ErrInvalidArgument)
	ErrTailerAlreadyOpen   = fmt.Errorf("%w: tailer already open for group and partition", ErrInvalidArgument)
	ErrForeignFiles        = fmt.Errorf("%w: log storage holds foreign entries", ErrInvalidArgument)
	ErrCodecMismatch       = fmt.Errorf("%w: codec mismatch", ErrInvalidArgument)
	ErrInvalidName         = fmt.Errorf("%w: invalid name", ErrInvalidArgument)

	ErrNotAssigned = fmt.Errorf("%w: partition not assigned", ErrIllegalState)
	ErrClosed      = fmt.Errorf("%w: closed", ErrIllegalState)

	// ErrSubscribeNotSupported is returned by backends without group
	// coordination.
	ErrSubscribeNotSupported = errors.New("subscribe not supported by backend")

	// ErrRebalance means the tailer assignment changed; drop any per-partition
	// state and read again.
	ErrRebalance = errors.New("rebalance: tailer assignment changed")
)

// IsRebalance reports whether err signals a rebalance.
func IsRebalance(err error) bool {
	return errors.Is(err, ErrRebalance)
}
