package domain

import (
	"errors"
	"fmt"
)

// Common domain errors
var (
	ErrUnknownIdentifier = errors.New("unknown identifier")
	ErrDownloadFailed    = errors.New("download failed")
)

// FetchErrorKind classifies why a transfer failed.
type FetchErrorKind int

const (
	// KindNetwork covers transport and protocol failures, including non-2xx responses
	KindNetwork FetchErrorKind = iota
	// KindInterrupted means the caller cancelled the transfer
	KindInterrupted
	// KindIO covers local filesystem failures
	KindIO
)

// String returns the kind name used in logs and history records
func (k FetchErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindInterrupted:
		return "interrupted"
	case KindIO:
		return "io"
	default:
		return "unknown"
	}
}

// FetchError is returned by a fetcher when a transfer cannot complete.
// The destination file never survives a FetchError.
type FetchError struct {
	Kind       FetchErrorKind
	URL        string
	StatusCode int
	Err        error
}

// Error returns the error message
func (e *FetchError) Error() string {
	msg := e.Kind.String() + " error"
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: HTTP %d", msg, e.StatusCode)
	}
	if e.URL != "" {
		msg += " (" + e.URL + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a network FetchError
func NewNetworkError(url string, statusCode int, err error) *FetchError {
	return &FetchError{Kind: KindNetwork, URL: url, StatusCode: statusCode, Err: err}
}

// NewInterruptedError creates a FetchError for a cancelled transfer
func NewInterruptedError(url string, err error) *FetchError {
	return &FetchError{Kind: KindInterrupted, URL: url, Err: err}
}

// NewIOError creates a FetchError for a local filesystem failure
func NewIOError(url string, err error) *FetchError {
	return &FetchError{Kind: KindIO, URL: url, Err: err}
}

// FetchErrorKindOf returns the kind of the FetchError in err's chain
func FetchErrorKindOf(err error) (FetchErrorKind, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return 0, false
}

// IsInterrupted returns true if err was caused by a cancelled transfer
func IsInterrupted(err error) bool {
	kind, ok := FetchErrorKindOf(err)
	return ok && kind == KindInterrupted
}

// IsNetwork returns true if err was caused by a transport or protocol failure
func IsNetwork(err error) bool {
	kind, ok := FetchErrorKindOf(err)
	return ok && kind == KindNetwork
}

// IsUnknownIdentifier returns true if err reports an unknown release or platform
func IsUnknownIdentifier(err error) bool {
	return errors.Is(err, ErrUnknownIdentifier)
}
