// Package apperror defines the error taxonomy shared by services and HTTP handlers.
// Services wrap one of the sentinel kinds with %w; the transport maps the kind to a status.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMissingParams means a required field is absent.
	ErrMissingParams = errors.New("missing params")
	// ErrBadParams means fields are present but semantically invalid.
	ErrBadParams = errors.New("bad params")
	// ErrNotAuthenticated means a credential or token could not be resolved.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNotAuthorized means the resolved identity lacks permission.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrServer is an unexpected internal failure.
	ErrServer = errors.New("server error")
)

// Server wraps a collaborator error as ErrServer. nil stays nil. Errors that
// already carry a kind are returned unchanged.
func Server(err error) error {
	if err == nil {
		return nil
	}
	if Kind(err) != ErrServer || errors.Is(err, ErrServer) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrServer, err)
}

// Kind returns the sentinel err belongs to. Unrecognized errors are ErrServer.
func Kind(err error) error {
	for _, k := range []error{ErrMissingParams, ErrBadParams, ErrNotAuthenticated, ErrNotAuthorized} {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrServer
}

// HTTPStatus maps err to its response status.
func HTTPStatus(err error) int {
	switch Kind(err) {
	case ErrMissingParams, ErrBadParams:
		return http.StatusBadRequest
	case ErrNotAuthenticated:
		return http.StatusUnauthorized
	case ErrNotAuthorized:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the message safe to return to a caller: the kind, never the cause.
func PublicMessage(err error) string {
	return Kind(err).Error()
}
