package runner

import (
	"errors"
	"fmt"

	"collection-runner/internal/transport"
)

var (
	// ErrAlreadyRunning is returned by Start while a run is in progress.
	ErrAlreadyRunning = errors.New("a run is already in progress")
	// ErrEmptyCollection is returned by Start when there is nothing to run.
	ErrEmptyCollection = errors.New("no requests to run")
)

// TransportError is a failure before any HTTP response was received.
type TransportError struct {
	Message string
}

func (e *TransportError) Error() string {
	return e.Message
}

// HTTPStatusError is a response with a status code of 400 or above.
type HTTPStatusError struct {
	Status     int
	StatusText string
	Data       any
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.StatusText)
}

// Classify maps the outcome of one transport call onto an item status. The
// returned error is a *TransportError or *HTTPStatusError when the status is
// StatusError, nil otherwise.
func Classify(resp *transport.Response, err error) (ItemStatus, error) {
	if err != nil {
		return StatusError, &TransportError{Message: err.Error()}
	}
	if resp == nil {
		return StatusError, &TransportError{Message: "no response received"}
	}
	if resp.Status >= 400 {
		return StatusError, &HTTPStatusError{
			Status:     resp.Status,
			StatusText: resp.StatusText,
			Data:       resp.Data,
		}
	}
	return StatusSuccess, nil
}
