package fetch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/hupe1980/mediacache/chunk"
	"github.com/hupe1980/mediacache/internal/resource"
	"github.com/hupe1980/mediacache/storage"
)

const (
	// DefaultFlushThreshold is the accumulator size at which a buffer chunk is pushed.
	DefaultFlushThreshold = 16 << 20

	// MaxFlushThreshold bounds a single buffer chunk.
	MaxFlushThreshold = 1 << 30

	// readSize is the size of a single read from the backend stream.
	readSize = 64 << 10
)

// Result summarizes one finished fetch.
type Result struct {
	Key      chunk.Key
	Path     string
	Bytes    int64
	Chunks   int
	Status   chunk.Status
	Err      error
	Duration time.Duration
}

// Option configures a Driver.
type Option func(*Driver)

// WithFlushThreshold sets the accumulator size that triggers a push.
func WithFlushThreshold(n int) Option {
	return func(d *Driver) {
		if n > 0 {
			d.flushThreshold = min(n, MaxFlushThreshold)
		}
	}
}

// WithResourceController bounds concurrent fetches, accumulator memory and
// read throughput.
func WithResourceController(rc *resource.Controller) Option {
	return func(d *Driver) {
		d.rc = rc
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithObserver registers fn to receive the result of every fetch.
func WithObserver(fn func(Result)) Option {
	return func(d *Driver) {
		d.observe = fn
	}
}

// Driver moves bytes from a storage.Backend into sequences.
type Driver struct {
	backend        storage.Backend
	rc             *resource.Controller
	logger         *slog.Logger
	observe        func(Result)
	flushThreshold int

	wg sync.WaitGroup
}

// New creates a Driver reading from backend.
func New(backend storage.Backend, opts ...Option) *Driver {
	d := &Driver{
		backend:        backend,
		logger:         slog.New(slog.DiscardHandler),
		flushThreshold: DefaultFlushThreshold,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start fetches path into seq in a new goroutine. The driver takes its own
// reference on seq and releases it when done.
func (d *Driver) Start(ctx context.Context, seq *chunk.Sequence, path string) error {
	if err := seq.Retain(); err != nil {
		return err
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer seq.Release()
		d.Run(ctx, seq, path)
	}()
	return nil
}

// Wait blocks until every started fetch has finished.
func (d *Driver) Wait() {
	d.wg.Wait()
}

// Run fetches path into seq synchronously. The sequence always ends with a
// terminal status unless it was already closed.
func (d *Driver) Run(ctx context.Context, seq *chunk.Sequence, path string) Result {
	start := time.Now()
	res := Result{Key: seq.Key(), Path: path}

	err := d.fetch(ctx, seq, path, &res)

	final := chunk.Loaded()
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		final = chunk.NotFound()
	default:
		final = chunk.Failed(err.Error())
	}
	res.Status = final.Status
	res.Err = err

	// Terminal pushes do not touch the blob store, so they succeed even on a
	// cancelled context.
	if perr := seq.Push(ctx, final); perr != nil && !errors.Is(perr, chunk.ErrSequenceClosed) {
		d.logger.Warn("failed to push terminal status", "key", res.Key.String(), "error", perr)
	}

	res.Duration = time.Since(start)
	if d.observe != nil {
		d.observe(res)
	}
	return res
}

func (d *Driver) fetch(ctx context.Context, seq *chunk.Sequence, path string, res *Result) error {
	if d.rc != nil {
		if err := d.rc.AcquireFetch(ctx); err != nil {
			return err
		}
		defer d.rc.ReleaseFetch()
	}

	obj, err := d.backend.Get(ctx, path, seq.Key().Offset)
	if err != nil {
		return err
	}
	defer func() { _ = obj.Body.Close() }()

	seq.SetAllBytes(obj.Size)
	seq.SetContentType(obj.ContentType)

	var r io.Reader = obj.Body
	if d.rc != nil {
		r = resource.NewRateLimitedReader(ctx, obj.Body, d.rc)
	}

	acc := &accumulator{
		seq:       seq,
		rc:        d.rc,
		threshold: d.flushThreshold,
		res:       res,
	}
	defer acc.releaseAll()

	scratch := make([]byte, readSize)
	for {
		want := acc.room(len(scratch))
		for !acc.reserve(int64(want)) {
			if err := acc.flush(ctx); err != nil {
				return err
			}
			want = acc.room(len(scratch))
		}

		n, rerr := r.Read(scratch[:want])
		if n > 0 {
			acc.buf = append(acc.buf, scratch[:n]...)
			if len(acc.buf) >= acc.threshold {
				if err := acc.flush(ctx); err != nil {
					return err
				}
			}
		}
		if rerr == io.EOF {
			return acc.flush(ctx)
		}
		if rerr != nil {
			if err := acc.flush(ctx); err != nil {
				return errors.Join(rerr, err)
			}
			return rerr
		}
	}
}

// accumulator gathers read bytes until a flush pushes them as one chunk.
type accumulator struct {
	seq       *chunk.Sequence
	rc        *resource.Controller
	threshold int
	res       *Result

	buf      []byte
	reserved int64
}

// room returns how many bytes the next read may add without passing the
// flush threshold.
func (a *accumulator) room(limit int) int {
	return min(limit, a.threshold-len(a.buf))
}

// reserve accounts for n more bytes. It returns false when the controller
// denies the memory while data is pending, meaning the caller should flush
// first. With nothing pending the read proceeds so the fetch makes progress.
func (a *accumulator) reserve(n int64) bool {
	if a.rc == nil {
		return true
	}
	if a.rc.TryAcquireBuffer(n) {
		a.reserved += n
		return true
	}
	return len(a.buf) == 0
}

func (a *accumulator) flush(ctx context.Context) error {
	if len(a.buf) == 0 {
		return nil
	}
	if err := a.seq.Push(ctx, chunk.Buffer(a.buf)); err != nil {
		return err
	}
	a.res.Bytes += int64(len(a.buf))
	a.res.Chunks++
	a.buf = a.buf[:0]
	a.releaseAll()
	return nil
}

func (a *accumulator) releaseAll() {
	if a.rc != nil && a.reserved > 0 {
		a.rc.ReleaseBuffer(a.reserved)
	}
	a.reserved = 0
}
