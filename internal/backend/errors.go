package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// GenericMessage is shown when a failure carries no server explanation.
const GenericMessage = "Something went wrong. Please try again."

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status  int
	Path    string
	Message string // server-provided ExceptionMessage, may be empty
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %d %s: %s", e.Path, e.Status, http.StatusText(e.Status), e.Message)
	}
	return fmt.Sprintf("%s: %d %s", e.Path, e.Status, http.StatusText(e.Status))
}

// IsUnauthorized reports whether err is a 401 from the backend.
func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}

// StatusOf returns the HTTP status carried by err, or 0 for transport errors.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// UserMessage returns the text to surface to the user for err: the server's
// ExceptionMessage when there is one, GenericMessage otherwise.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return GenericMessage
}

type exceptionBody struct {
	ExceptionMessage string `json:"ExceptionMessage"`
}

func newAPIError(status int, path string, body []byte) *APIError {
	var eb exceptionBody
	// Bodies that are not JSON (proxies, HTML error pages) just leave Message empty.
	_ = json.Unmarshal(body, &eb)
	return &APIError{Status: status, Path: path, Message: eb.ExceptionMessage}
}
