package sensor

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error kinds. Match with errors.Is.
var (
	ErrInvalidStateTransition       = errors.New("invalid state transition")
	ErrProfileNotSupported          = errors.New("stream profile not supported")
	ErrSamplingFrequencyUnsupported = errors.New("sampling frequency unsupported")
	ErrNotImplemented               = errors.New("not implemented")
	ErrHardwareCommunication        = errors.New("hardware communication failure")
)

// HardwareError wraps a transport failure. It matches ErrHardwareCommunication
// and unwraps to the transport's own error.
type HardwareError struct {
	Op  string
	Err error
}

func (e *HardwareError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrHardwareCommunication, e.Op, e.Err)
}

func (e *HardwareError) Unwrap() error { return e.Err }

func (e *HardwareError) Is(target error) bool {
	return target == ErrHardwareCommunication
}

// Hardware wraps err as a HardwareError for op. It returns nil for a nil err.
func Hardware(op string, err error) error {
	if err == nil {
		return nil
	}
	return &HardwareError{Op: op, Err: err}
}
