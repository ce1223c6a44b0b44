// Package apperr defines the fatal error kinds from the engine's error
// handling design: every run either produces a complete cache or aborts
// with one of these four kinds and the matching exit code. No kind is
// retried or recovered-and-logged-through.
package apperr

import "errors"

// Sentinel kinds. Wrap one of these with fmt.Errorf("...: %w", Err*) so
// callers can classify a failure with errors.Is without inspecting text.
var (
	// ErrConfig marks mutually exclusive modes, a missing required flag,
	// a negative ratio, min_mask > max_mask, or mask flags without auto mode.
	ErrConfig = errors.New("configuration error")

	// ErrParse marks a malformed CIDR, an unrecognized auto-type, an
	// invalid regex, or a services file open/parse failure.
	ErrParse = errors.New("parse error")

	// ErrCapture marks a pcap open failure, a BPF compile failure, or
	// zero packets processed.
	ErrCapture = errors.New("capture error")

	// ErrWrite marks an output file open or write failure.
	ErrWrite = errors.New("write error")
)

// ExitCode maps a fatal error to the process exit code: 0 success, 1
// configuration/IO error. Every apperr kind is fatal, so any non-nil err
// classified by this package exits 1; a nil err exits 0.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}

// Kind returns the sentinel the given error was wrapped with, or nil if
// err does not wrap one of the four kinds above.
func Kind(err error) error {
	for _, k := range []error{ErrConfig, ErrParse, ErrCapture, ErrWrite} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
