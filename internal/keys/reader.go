package keys

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/joygram/flowOSD-sub000/internal/stream"
)

const (
	reportBuffer = 64
	retryDelay   = 500 * time.Millisecond
)

// InputSource blocks for the next input report.
type InputSource interface {
	ReadInput(ctx context.Context, buf []byte) (int, error)
}

// Reader turns input reports into key events and activity ticks.
type Reader struct {
	src   InputSource
	log   zerolog.Logger
	start time.Time

	keys     *stream.Subject[Code]
	activity *stream.Subject[int64]

	rawMu sync.Mutex
	raw   []byte
}

func NewReader(src InputSource, log zerolog.Logger) *Reader {
	return &Reader{
		src:      src,
		log:      log.With().Str("component", "keys").Logger(),
		start:    time.Now(),
		keys:     stream.NewSubject[Code](),
		activity: stream.NewSubject[int64](),
	}
}

// Keys carries one event per recognized key press.
func (r *Reader) Keys() *stream.Subject[Code] { return r.keys }

// Activity carries milliseconds since the reader started, once per report
// longer than one byte.
func (r *Reader) Activity() *stream.Subject[int64] { return r.activity }

// Run reads until ctx is cancelled. Cancellation does not interrupt a read
// in flight, but a report that arrives after it is discarded and the loop
// exits. Read errors are logged and retried.
func (r *Reader) Run(ctx context.Context) error {
	buf := make([]byte, reportBuffer)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := r.src.ReadInput(ctx, buf)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			r.log.Warn().Err(err).Msg("input read failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(retryDelay):
			}
			continue
		}
		r.handle(buf[:n])
	}
}

func (r *Reader) handle(report []byte) {
	if len(report) == 0 {
		return
	}
	r.setLastReport(report)
	if len(report) > 1 {
		r.activity.Publish(time.Since(r.start).Milliseconds())
	}
	if c, ok := Decode(report); ok {
		r.log.Debug().Stringer("key", c).Msg("key pressed")
		r.keys.Publish(c)
	}
}

func (r *Reader) setLastReport(report []byte) {
	dup := make([]byte, len(report))
	copy(dup, report)
	r.rawMu.Lock()
	r.raw = dup
	r.rawMu.Unlock()
}

// LastReport returns a copy of the most recent input report.
func (r *Reader) LastReport() ([]byte, bool) {
	r.rawMu.Lock()
	defer r.rawMu.Unlock()
	if len(r.raw) == 0 {
		return nil, false
	}
	return append([]byte(nil), r.raw...), true
}
