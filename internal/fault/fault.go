// Package fault defines the error taxonomy shared by every whispercli component.
//
// Components wrap one of the sentinels with context:
//
//	fmt.Errorf("%w: microphone index %d out of range", fault.ErrDevice, idx)
//
// and callers classify with errors.Is.
package fault

import "errors"

var (
	// ErrConfiguration reports invalid CLI or config input; no work is performed.
	ErrConfiguration = errors.New("configuration error")
	// ErrAssetUnavailable reports a model that could not be resolved or downloaded.
	ErrAssetUnavailable = errors.New("asset unavailable")
	// ErrDevice reports a missing or out-of-range capture device.
	ErrDevice = errors.New("device error")
	// ErrAlreadyRunning reports lock contention with another instance.
	ErrAlreadyRunning = errors.New("another instance is already running")
	// ErrTranscription reports an engine fault in the middle of a segment stream.
	ErrTranscription = errors.New("transcription fault")
	// ErrConversion reports input media that could not be normalized. Fatal for that input only.
	ErrConversion = errors.New("conversion failed")
	// ErrIO reports an output write or temp file cleanup failure.
	ErrIO = errors.New("io fault")
)

// ExitCode maps an error to the process exit status.
// Lock contention is a quiet no-op exit, not a failure.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrAlreadyRunning):
		return 0
	case errors.Is(err, ErrConfiguration):
		return 2
	default:
		return 1
	}
}

// Fatal reports whether err aborts the run before any transcript can exist.
func Fatal(err error) bool {
	return errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrAssetUnavailable) ||
		errors.Is(err, ErrDevice)
}
