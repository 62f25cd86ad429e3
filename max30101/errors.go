package max30101

import (
	"errors"
	"fmt"
)

var (
	// ErrNotDevice throws an error when the device part ID does not match a
	// MAX30101 signature (0x15).
	ErrNotDevice = errors.New("max30101: part ID does not match (0x15)")
	// ErrNotConfigured is returned when samples are requested before an
	// operating mode has been applied.
	ErrNotConfigured = errors.New("max30101: operating mode not configured")
	// ErrOutOfRange matches every *OutOfRangeError.
	ErrOutOfRange = errors.New("max30101: value out of range")
)

// OutOfRangeError reports a configuration value outside its valid range. The
// device is left untouched when it is returned.
type OutOfRangeError struct {
	Param string
	Got   float64
	Min   float64
	Max   float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("max30101: %s %g is out of range: valid range is %g-%g",
		e.Param, e.Got, e.Min, e.Max)
}

// Is reports whether target is ErrOutOfRange.
func (e *OutOfRangeError) Is(target error) bool {
	return target == ErrOutOfRange
}

// TransportError indicates that the I2C bus could not be opened or used.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("max30101: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
