package relay

import (
	"errors"
	"fmt"
)

// ErrWorkflowNotWaiting is returned when n8n answers 404 for a resume call.
// This usually means the execution ID is wrong or the workflow already moved
// past its Wait node.
var ErrWorkflowNotWaiting = errors.New("workflow is not waiting for this execution ID")

// StatusError reports a non-2xx response from n8n other than 404.
type StatusError struct {
	StatusCode int
	Body       string // response body excerpt for logs
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("n8n returned status %d", e.StatusCode)
}
