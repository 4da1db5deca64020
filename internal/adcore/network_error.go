package adcore

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
)

// Reason is the closed set of fetch failure reasons a caller can observe.
type Reason int

const (
	ReasonUnspecified Reason = iota
	ReasonNoFill
	ReasonNoConnection
	ReasonBadRequest
	ReasonServerError
)

func (r Reason) String() string {
	switch r {
	case ReasonNoFill:
		return "no_fill"
	case ReasonNoConnection:
		return "no_connection"
	case ReasonBadRequest:
		return "bad_request"
	case ReasonServerError:
		return "server_error"
	default:
		return "unspecified"
	}
}

// Sentinels for errors.Is; a NetworkError matches the sentinel of its Reason.
var (
	ErrUnspecified  = &NetworkError{Reason: ReasonUnspecified, Message: "unspecified error"}
	ErrNoFill       = &NetworkError{Reason: ReasonNoFill, Message: "no fill"}
	ErrNoConnection = &NetworkError{Reason: ReasonNoConnection, Message: "no connection"}
	ErrBadRequest   = &NetworkError{Reason: ReasonBadRequest, Message: "bad request"}
	ErrServerError  = &NetworkError{Reason: ReasonServerError, Message: "server error"}
)

// NetworkError is the only error type delivered to a loader listener.
type NetworkError struct {
	Reason  Reason
	Message string
	Cause   error
}

func NewNetworkError(reason Reason, message string) *NetworkError {
	return &NetworkError{Reason: reason, Message: message}
}

func WrapNetworkError(reason Reason, cause error) *NetworkError {
	msg := reason.String()
	if cause != nil {
		msg = cause.Error()
	}
	return &NetworkError{Reason: reason, Message: msg, Cause: cause}
}

func (e *NetworkError) Error() string {
	if e.Message == "" {
		return e.Reason.String()
	}
	return e.Message
}

func (e *NetworkError) Unwrap() error {
	return e.Cause
}

func (e *NetworkError) Is(target error) bool {
	t, ok := target.(*NetworkError)
	return ok && t.Reason == e.Reason
}

// StatusCoder is implemented by transport errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// Classify maps any transport failure onto a NetworkError. A NetworkError
// already in the chain is returned unchanged; unknown failures become
// ReasonUnspecified with err kept as the cause.
func Classify(err error) *NetworkError {
	if err == nil {
		return nil
	}

	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		return WrapNetworkError(reasonForStatus(sc.StatusCode()), err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return WrapNetworkError(ReasonNoConnection, err)
	}

	return WrapNetworkError(ReasonUnspecified, err)
}

// ReasonOf returns the classified reason of err.
func ReasonOf(err error) Reason {
	if ne := Classify(err); ne != nil {
		return ne.Reason
	}
	return ReasonUnspecified
}

func reasonForStatus(code int) Reason {
	switch {
	case code == http.StatusNoContent:
		return ReasonNoFill
	case code >= 400 && code < 500:
		return ReasonBadRequest
	case code >= 500:
		return ReasonServerError
	default:
		return ReasonUnspecified
	}
}
