package chatsync

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotConnected is returned by socket sends while the connection is not
	// in the connected state. The frame is dropped, never queued.
	ErrNotConnected = errors.New("chatsync: not connected")

	// ErrMalformedPayload marks a server payload that failed to decode or
	// lacks a required field.
	ErrMalformedPayload = errors.New("chatsync: malformed payload")

	// ErrUnknownEvent is returned when decoding an event name outside the
	// known set.
	ErrUnknownEvent = errors.New("chatsync: unknown event")

	// ErrMessageNotFound is returned when a message cannot be located in the
	// cache or on the server.
	ErrMessageNotFound = errors.New("chatsync: message not found")

	// ErrMissingParam is returned when a route placeholder has no value.
	ErrMissingParam = errors.New("chatsync: missing route parameter")

	// ErrInviteRejected is returned when the server refuses a guild invite.
	ErrInviteRejected = errors.New("chatsync: invite rejected")
)

// APIError is the error body a server may return alongside a failing status.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// RequestError reports a non-2xx response for a logical request.
type RequestError struct {
	Event  EventName
	Status int
	Body   []byte
	API    *APIError
}

func (e *RequestError) Error() string {
	if e.API != nil && e.API.Message != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Event, e.Status, e.API.Message)
	}
	return fmt.Sprintf("%s: status %d", e.Event, e.Status)
}

// Unauthorized reports whether the request was rejected for credentials.
// Such failures are never retried.
func (e *RequestError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// IsUnauthorized reports whether err wraps a 401/403 RequestError.
func IsUnauthorized(err error) bool {
	var re *RequestError
	return errors.As(err, &re) && re.Unauthorized()
}
