package feed

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a local precondition failure; nothing reached the network.
	ErrValidation = errors.New("feed: validation failed")
	// ErrPostNotFound indicates the post is not present in the local feed.
	ErrPostNotFound = fmt.Errorf("%w: post not found", ErrValidation)
	// ErrAuthMissing indicates a write was attempted without a credential.
	ErrAuthMissing = errors.New("feed: credential missing")
	// ErrRemoteUnavailable indicates the remote endpoint is missing or not implemented.
	ErrRemoteUnavailable = errors.New("feed: remote endpoint unavailable")
	// ErrRemoteRejected indicates the remote store answered with an error.
	ErrRemoteRejected = errors.New("feed: remote rejected request")
	// ErrNetworkFailure indicates the request never completed.
	ErrNetworkFailure = errors.New("feed: network failure")

	errMissingBackend  = errors.New("feed: backend is required")
	errMissingIdentity = errors.New("feed: identity resolver is required")
)

// RemoteError describes a failed call against the persistence collaborator.
// Kind is one of ErrRemoteUnavailable, ErrRemoteRejected or ErrNetworkFailure.
type RemoteError struct {
	Kind       error
	Operation  string
	StatusCode int
	Message    string
	Err        error
}

func (e *RemoteError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s: %v (status %d): %s", e.Operation, e.Kind, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: %v (status %d)", e.Operation, e.Kind, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v: %v", e.Operation, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Operation, e.Kind)
	}
}

// Unwrap exposes both the classification and the underlying cause.
func (e *RemoteError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewRemoteError builds a RemoteError of the given kind.
func NewRemoteError(kind error, operation string, statusCode int, message string, cause error) *RemoteError {
	return &RemoteError{
		Kind:       kind,
		Operation:  operation,
		StatusCode: statusCode,
		Message:    message,
		Err:        cause,
	}
}
