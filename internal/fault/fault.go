// Package fault classifies session errors so the controller can tell fatal
// failures (catalog, log, playback, config) from trial-scoped ones (capture).
package fault

import "errors"

type Kind string

const (
	KindCatalog  Kind = "catalog"
	KindLog      Kind = "log"
	KindCapture  Kind = "capture"
	KindPlayback Kind = "playback"
	KindConfig   Kind = "config"
)

const (
	CodePoolSizeMismatch  = "pool_size_mismatch"
	CodeWriteFailed       = "write_failed"
	CodeOutOfOrder        = "out_of_order"
	CodeDeviceUnavailable = "device_unavailable"
	CodeArtifactFailed    = "artifact_failed"
	CodePlaybackFailed    = "playback_failed"
	CodeProtocolInvalid   = "protocol_invalid"
)

type classifiedError struct {
	kind  Kind
	code  string
	cause error
}

func (e *classifiedError) Error() string {
	if e.cause == nil {
		return "unknown error"
	}
	return e.cause.Error()
}

func (e *classifiedError) Unwrap() error {
	return e.cause
}

// Is matches another classified error with the same kind and code, which
// lets package sentinels be compared with errors.Is after wrapping.
func (e *classifiedError) Is(target error) bool {
	var other *classifiedError
	if !errors.As(target, &other) {
		return false
	}
	return e.kind == other.kind && e.code == other.code
}

// Wrap attaches a kind and code to cause. A nil cause stays nil.
func Wrap(cause error, kind Kind, code string) error {
	if cause == nil {
		return nil
	}
	return &classifiedError{kind: kind, code: code, cause: cause}
}

// New returns a classified error with a plain message.
func New(kind Kind, code, message string) error {
	return Wrap(errors.New(message), kind, code)
}

func KindOf(err error) Kind {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.kind
	}
	return ""
}

func CodeOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.code
	}
	return ""
}

// IsFatal reports whether err must end the session. Capture errors are
// isolated to their trial; everything else, classified or not, is fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err) != KindCapture
}
