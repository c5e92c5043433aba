package chunk

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrNotFound is returned by Cursor.Read when the remote asset does not exist.
	ErrNotFound = errors.New("asset not found")

	// ErrSequenceClosed is returned when pushing after a terminal status.
	ErrSequenceClosed = errors.New("sequence closed")

	// ErrReleased is returned when using a sequence whose blobs were freed.
	ErrReleased = errors.New("sequence released")
)

// FetchError carries the message of a failed remote fetch.
type FetchError struct {
	Message string
}

func (e *FetchError) Error() string {
	return "fetch failed: " + e.Message
}

// Status tags a chunk. StatusBuffer chunks carry data; all others are terminal.
type Status uint8

const (
	StatusBuffer Status = iota
	StatusLoaded
	StatusNotFound
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusBuffer:
		return "buffer"
	case StatusLoaded:
		return "loaded"
	case StatusNotFound:
		return "not_found"
	case StatusError:
		return "error"
	default:
		return "status(" + strconv.Itoa(int(s)) + ")"
	}
}

// Chunk is either a data buffer or a terminal status.
type Chunk struct {
	Status  Status
	Data    []byte
	Message string // StatusError only
}

// Buffer returns a data chunk.
func Buffer(data []byte) Chunk { return Chunk{Status: StatusBuffer, Data: data} }

// Loaded returns the chunk that marks a complete stream.
func Loaded() Chunk { return Chunk{Status: StatusLoaded} }

// NotFound returns the chunk that marks a missing asset.
func NotFound() Chunk { return Chunk{Status: StatusNotFound} }

// Failed returns the chunk that marks a failed fetch.
func Failed(msg string) Chunk { return Chunk{Status: StatusError, Message: msg} }

// Terminal reports whether c ends its sequence.
func (c Chunk) Terminal() bool { return c.Status != StatusBuffer }

// Err converts a terminal status into the error a reader observes.
// Buffer and Loaded chunks return nil.
func (c Chunk) Err() error {
	switch c.Status {
	case StatusNotFound:
		return ErrNotFound
	case StatusError:
		return &FetchError{Message: c.Message}
	}
	return nil
}

// Key identifies a cache entry. Distinct offsets of one asset are distinct entries.
type Key struct {
	Asset  string `json:"asset"`
	Offset int64  `json:"offset"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s@%d", k.Asset, k.Offset)
}
