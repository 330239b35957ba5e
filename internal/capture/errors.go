package capture

import "errors"

// Error kinds. Every error returned by Capture matches exactly one of these
// through errors.Is.
var (
	ErrConnection         = errors.New("capture: cannot reach display server or message bus")
	ErrEnumeration        = errors.New("capture: no monitor information available")
	ErrCapture            = errors.New("capture: screen read failed")
	ErrEncoding           = errors.New("capture: image encoding failed")
	ErrBackendUnavailable = errors.New("capture: backend unavailable")
)

// Specific failures. Each also matches its kind.
var (
	ErrNoDisplayServerConnection = newKindError(ErrConnection, "capture: cannot connect to display server")
	ErrBusConnectionFailed       = newKindError(ErrConnection, "capture: session bus connection failed")
	ErrNoMultiMonitorExtension   = newKindError(ErrEnumeration, "capture: multi-monitor extension unavailable")
	ErrSurfaceReadFailed         = newKindError(ErrCapture, "capture: surface region read failed")
	ErrRequestRejected           = newKindError(ErrCapture, "capture: screenshot portal request rejected")
	ErrTemporaryFileUnreadable   = newKindError(ErrCapture, "capture: portal screenshot file unreadable")
	ErrEncodingFailed            = newKindError(ErrEncoding, "capture: encoder produced no data")
)

type kindError struct {
	kind    error
	message string
}

func newKindError(kind error, message string) error {
	return &kindError{kind: kind, message: message}
}

func (e *kindError) Error() string {
	return e.message
}

func (e *kindError) Is(target error) bool {
	return target == e.kind
}
