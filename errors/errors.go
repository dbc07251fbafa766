package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

var (
	ErrMalformedMessage   = fmt.Errorf("malformed message")
	ErrChannelNotFound    = fmt.Errorf("channel not found")
	ErrPersistenceFailure = fmt.Errorf("persistence failure")
	ErrDeliveryFailure    = fmt.Errorf("delivery failure")
	ErrMessageNotFound    = fmt.Errorf("message not found")
	ErrInvalidChannel     = fmt.Errorf("invalid channel")
	ErrSessionClosed      = fmt.Errorf("session closed")
	ErrOutboxFull         = fmt.Errorf("outbox full")
	ErrUnknownEvent       = fmt.Errorf("unknown event")
	ErrMissingToken       = fmt.Errorf("authorization token is missing")
	ErrInvalidToken       = fmt.Errorf("invalid or expired token")
	ErrWorkerPanic        = fmt.Errorf("worker panic")
	ErrEmptyWords         = fmt.Errorf("no words have been found")
)

// Code is the stable identifier sent to clients in a send-failed event.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case stderrors.Is(err, ErrMalformedMessage), stderrors.Is(err, ErrUnknownEvent):
		return "MALFORMED_MESSAGE"
	case stderrors.Is(err, ErrChannelNotFound):
		return "CHANNEL_NOT_FOUND"
	case stderrors.Is(err, ErrPersistenceFailure):
		return "PERSISTENCE_FAILURE"
	case stderrors.Is(err, ErrInvalidChannel):
		return "INVALID_CHANNEL"
	case stderrors.Is(err, ErrMessageNotFound):
		return "MESSAGE_NOT_FOUND"
	default:
		return "INTERNAL"
	}
}

// HTTPStatus maps a service error to the status returned by the HTTP layer.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case stderrors.Is(err, ErrMalformedMessage), stderrors.Is(err, ErrUnknownEvent), stderrors.Is(err, ErrInvalidChannel):
		return http.StatusBadRequest
	case stderrors.Is(err, ErrChannelNotFound), stderrors.Is(err, ErrMessageNotFound):
		return http.StatusNotFound
	case stderrors.Is(err, ErrMissingToken), stderrors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
