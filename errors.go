package cannm

import "fmt"

// Reason identifies the class of failure behind a CanNmError, so callers and
// logs can branch on cause without string matching, as spec.md §7 requires.
type Reason uint8

const (
	// ReasonUninit means the module or channel has not completed Init.
	ReasonUninit Reason = iota + 1
	// ReasonWrongMode means the operation is not valid in the channel's current Mode/State.
	ReasonWrongMode
	// ReasonDisabled means communication has been disabled on the channel.
	ReasonDisabled
	// ReasonNoData means no PDU has been received yet on the channel.
	ReasonNoData
	// ReasonOutOfRange means a channel handle or configuration value is invalid.
	ReasonOutOfRange
	// ReasonLowerLayer means the configured transport rejected a transmit request.
	ReasonLowerLayer
)

func (r Reason) String() string {
	switch r {
	case ReasonUninit:
		return "uninit"
	case ReasonWrongMode:
		return "wrong-mode"
	case ReasonDisabled:
		return "disabled"
	case ReasonNoData:
		return "no-data"
	case ReasonOutOfRange:
		return "out-of-range"
	case ReasonLowerLayer:
		return "lower-layer"
	default:
		return "unknown"
	}
}

// CanNmError is the typed error returned by every Ok/NotOk public operation.
type CanNmError struct {
	msg    string
	reason Reason
}

func (err *CanNmError) Error() string {
	return err.msg
}

// Reason returns the class of failure behind the error.
func (err *CanNmError) Reason() Reason {
	return err.reason
}

func newError(reason Reason, format string, args ...interface{}) *CanNmError {
	return &CanNmError{fmt.Sprintf(format, args...), reason}
}

func errUninit(format string, args ...interface{}) *CanNmError {
	return newError(ReasonUninit, format, args...)
}

func errWrongMode(format string, args ...interface{}) *CanNmError {
	return newError(ReasonWrongMode, format, args...)
}

func errDisabled(format string, args ...interface{}) *CanNmError {
	return newError(ReasonDisabled, format, args...)
}

func errNoData(format string, args ...interface{}) *CanNmError {
	return newError(ReasonNoData, format, args...)
}

func errOutOfRange(format string, args ...interface{}) *CanNmError {
	return newError(ReasonOutOfRange, format, args...)
}

func errLowerLayer(format string, args ...interface{}) *CanNmError {
	return newError(ReasonLowerLayer, format, args...)
}
