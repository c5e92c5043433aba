package mediacache

import (
	"errors"

	"github.com/hupe1980/mediacache/chunk"
)

var (
	// ErrClosed is returned by operations on a closed Service.
	ErrClosed = errors.New("mediacache: service closed")

	// ErrInvalidOffset is returned for negative stream offsets.
	ErrInvalidOffset = errors.New("mediacache: invalid offset")

	// ErrNotFound is returned by Stream.Read when the remote asset does not exist.
	ErrNotFound = chunk.ErrNotFound
)

// FetchError is returned by Stream.Read when the remote fetch failed.
type FetchError = chunk.FetchError

// IsNotFound reports whether err means the asset does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, chunk.ErrNotFound)
}

// IsFetchError reports whether err is a failed remote fetch.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
