package api

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// APIError is the wire error format clients expect: {"code": int, "message": string}.
type APIError struct {
	status  int
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) GetStatus() int {
	return e.status
}

func init() {
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		if len(errs) > 0 && msg == "" {
			msg = errs[0].Error()
		}
		return &APIError{
			status:  status,
			Code:    status,
			Message: msg,
		}
	}
}

// errInvalid renders a request validation failure.
func errInvalid(msg string) error {
	return huma.NewError(http.StatusBadRequest, msg)
}

// errUnavailable renders a storage failure. The message stays generic; the
// underlying error goes to the log, never to the client.
func errUnavailable() error {
	return huma.NewError(http.StatusServiceUnavailable, "storage unavailable")
}
