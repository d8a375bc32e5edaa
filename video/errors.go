package video

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors matched by the typed errors below via errors.Is.
var (
	// ErrMissingSource indicates an expected audio, image or background file is absent.
	ErrMissingSource = errors.New("missing source")
	// ErrPrecondition indicates a timing or sizing invariant was violated upstream.
	ErrPrecondition = errors.New("precondition violated")
	// ErrEncoding indicates the encoder or the trim step failed.
	ErrEncoding = errors.New("encoding failed")
)

// MissingSourceError names the absent file. It is fatal for the job.
type MissingSourceError struct {
	// Kind is "audio", "image" or "background".
	Kind string
	Path string
	Err  error
}

func (e *MissingSourceError) Error() string {
	return fmt.Sprintf("missing %s source %s", e.Kind, e.Path)
}

func (e *MissingSourceError) Unwrap() error { return e.Err }

func (e *MissingSourceError) Is(target error) bool { return target == ErrMissingSource }

// PreconditionError reports a programmer-error class violation, such as an
// audio/visual duration mismatch or a trim past the end of the composite.
type PreconditionError struct {
	Op     string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: precondition violated: %s", e.Op, e.Reason)
}

func (e *PreconditionError) Is(target error) bool { return target == ErrPrecondition }

func preconditionf(op, format string, args ...any) error {
	return &PreconditionError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// EncodingError wraps an encoder failure with the tool's own output, verbatim.
type EncodingError struct {
	// Stage is "encode" or "trim".
	Stage  string
	Path   string
	Output string
	Err    error
}

func (e *EncodingError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Stage, e.Path, e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += "\n" + out
	}
	return msg
}

func (e *EncodingError) Unwrap() error { return e.Err }

func (e *EncodingError) Is(target error) bool { return target == ErrEncoding }
