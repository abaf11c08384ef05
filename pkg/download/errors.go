package download

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCancelled          = errors.New("download cancelled")
	ErrExecutableNotFound = errors.New("external downloader executable not found")
	ErrShortBody          = errors.New("response body shorter than content length")
)

type HTTPStatusError struct {
	StatusCode int
}

func ErrUnexpectedHTTPStatus(statusCode int) error {
	return &HTTPStatusError{StatusCode: statusCode}
}

var _ error = &HTTPStatusError{}

func (c *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d", c.StatusCode)
}

// ProcessExitError reports a non-zero exit of the external downloader together with the last
// lines it printed.
type ProcessExitError struct {
	ExitCode int
	Output   []string
}

var _ error = &ProcessExitError{}

func (e *ProcessExitError) Error() string {
	msg := fmt.Sprintf("external downloader exited with code %d", e.ExitCode)
	if len(e.Output) > 0 {
		msg += ": " + e.Output[len(e.Output)-1]
	}
	return msg
}

// Snippet returns the captured output joined by newlines, for logging.
func (e *ProcessExitError) Snippet() string {
	return strings.Join(e.Output, "\n")
}
