package rank

import (
	"errors"
	"fmt"

	"github.com/danmuck/cictl/internal/protocol/wire"
)

var (
	ErrTimeout       = errors.New("rank: timeout")
	ErrInvalidTarget = errors.New("rank: invalid target")
	ErrInvalidLane   = errors.New("rank: invalid lane")
	ErrInvalidUnit   = errors.New("rank: invalid unit")
	ErrInvalidGroup  = errors.New("rank: invalid group")
	ErrInvalidConfig = errors.New("rank: invalid config")
	ErrByteOrder     = errors.New("rank: incompatible byte order")
	ErrIdentity      = errors.New("rank: identity mismatch")
	ErrInconsistent  = errors.New("rank: lanes disagree")
	ErrTxDone        = errors.New("rank: transaction already finished")
)

// TimeoutError reports an exchange whose lanes never all completed.
type TimeoutError struct {
	Rank     string
	Op       string
	Pending  wire.Mask
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("rank %s: %s timed out after %d reads (pending lanes %s)", e.Rank, e.Op, e.Attempts, e.Pending)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// ErrorClass groups errors by how a caller should react to them.
type ErrorClass int

const (
	ClassNone ErrorClass = iota
	// ClassTimeout: lanes never produced a complete answer.
	ClassTimeout
	// ClassFault: a configuration check found lanes in an unexpected state.
	ClassFault
	// ClassTransport: the bus binding failed; the exchange is lost.
	ClassTransport
	// ClassInvariant: a caller asked for something that cannot exist.
	ClassInvariant
)

func (c ErrorClass) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassTimeout:
		return "timeout"
	case ClassFault:
		return "fault"
	case ClassTransport:
		return "transport"
	case ClassInvariant:
		return "invariant"
	default:
		return "unknown"
	}
}

// Classify maps err onto its class. Errors not produced by this package are
// assumed to come from the transport.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrTimeout):
		return ClassTimeout
	case errors.Is(err, ErrByteOrder), errors.Is(err, ErrIdentity), errors.Is(err, ErrInconsistent):
		return ClassFault
	case errors.Is(err, ErrInvalidTarget), errors.Is(err, ErrInvalidLane), errors.Is(err, ErrInvalidUnit),
		errors.Is(err, ErrInvalidGroup), errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrTxDone):
		return ClassInvariant
	default:
		return ClassTransport
	}
}
