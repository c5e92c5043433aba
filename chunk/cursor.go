package chunk

import (
	"context"
	"io"
	"sync"
)

// Cursor reads a Sequence in order. A Cursor is not safe for concurrent use.
type Cursor struct {
	seq   *Sequence
	index int
	skip  int64
	done  bool

	closeOnce sync.Once
}

// Read returns the next non-empty piece of data.
//
// It returns io.EOF once the stream is complete, and the terminal error
// (ErrNotFound or *FetchError) exactly once before reporting io.EOF on all
// later calls. When no chunk is available yet, Read blocks until one is
// pushed or ctx is done.
func (c *Cursor) Read(ctx context.Context) ([]byte, error) {
	for {
		if c.done {
			return nil, io.EOF
		}

		rec, ok, wake := c.seq.lookup(c.index)
		if !ok {
			if c.seq.isReleased() {
				c.done = true
				return nil, ErrReleased
			}
			select {
			case <-wake:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		next, err := c.seq.hydrate(ctx, c.index, rec)
		if err != nil {
			return nil, err
		}
		c.index++

		if next.Terminal() {
			c.done = true
			if err := next.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}

		data := next.Data
		if c.skip > 0 {
			if c.skip >= int64(len(data)) {
				c.skip -= int64(len(data))
				continue
			}
			data = data[c.skip:]
			c.skip = 0
		}
		if len(data) == 0 {
			continue
		}
		return data, nil
	}
}

// Close releases the cursor's reference. It never affects the driver.
func (c *Cursor) Close() error {
	c.closeOnce.Do(c.seq.Release)
	return nil
}

func (s *Sequence) isReleased() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Sequence returns the sequence the cursor reads.
func (c *Cursor) Sequence() *Sequence {
	return c.seq
}
