// Package events implements the append-only security event trail.
//
// Events are buffered in memory and flushed to a durable sink by a
// single background worker, either on a fixed interval or immediately
// when the buffer fills up. Backpressure policy: once the buffer is
// saturated Record fails fast with ErrBufferSaturated instead of
// blocking the request handler or silently dropping the event.
package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bfc-vpn/mfa-core/internal/domain"
)

var (
	// ErrBufferSaturated signals that the in-memory buffer is full and a
	// forced flush has been requested. The caller should surface a
	// retryable failure.
	ErrBufferSaturated = errors.New("events: buffer saturated")

	// ErrClosed is returned by Record after Close.
	ErrClosed = errors.New("events: recorder closed")
)

// Sink receives flushed event batches. Batches preserve Record order,
// so per-user FIFO ordering holds as long as the sink appends.
type Sink interface {
	Flush(ctx context.Context, events []domain.SecurityEvent) error
}

// Options configures buffering and flush behavior.
type Options struct {
	BufferSize    int           // events held in memory before Record fails fast
	FlushInterval time.Duration // periodic flush cadence
	FlushTimeout  time.Duration // per-flush sink timeout
	MaxBackoff    time.Duration // retry backoff cap after sink failures
	Clock         func() time.Time
}

func (o Options) withDefaults() Options {
	if o.BufferSize == 0 {
		o.BufferSize = 256
	}
	if o.FlushInterval == 0 {
		o.FlushInterval = 5 * time.Second
	}
	if o.FlushTimeout == 0 {
		o.FlushTimeout = 5 * time.Second
	}
	if o.MaxBackoff == 0 {
		o.MaxBackoff = 30 * time.Second
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// Recorder buffers security events and flushes them in the background.
type Recorder struct {
	sink     Sink
	opts     Options
	buf      chan domain.SecurityEvent
	flushNow chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup

	mu        sync.Mutex
	closed    bool
	failures  int
	lastErr   error
	retryAt   time.Time
	closeOnce sync.Once
}

// NewRecorder creates a recorder and starts its flush worker.
func NewRecorder(sink Sink, opts Options) *Recorder {
	if sink == nil {
		panic("events: sink cannot be nil")
	}
	opts = opts.withDefaults()

	r := &Recorder{
		sink:     sink,
		opts:     opts,
		buf:      make(chan domain.SecurityEvent, opts.BufferSize),
		flushNow: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	r.wg.Add(1)
	go r.worker()
	return r
}

// Record appends an event to the buffer and returns immediately.
// Missing id/timestamp/severity are filled in here so callers only
// provide what they know.
func (r *Recorder) Record(event domain.SecurityEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = r.opts.Clock()
	}
	if event.Severity == "" {
		event.Severity = domain.SeverityInfo
	}

	// The closed flag and the send share the lock: once Close has set
	// the flag, no Record is still mid-send, so the worker's final
	// drain sees every event that was accepted.
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}

	select {
	case r.buf <- event:
		// Backpressure valve: force a flush once the buffer is full so
		// the next Record finds room again.
		if len(r.buf) == cap(r.buf) {
			r.requestFlush()
		}
		return nil
	default:
		r.requestFlush()
		return ErrBufferSaturated
	}
}

// Healthy reports whether the sink accepted the most recent flushes.
// Exposed on the readiness endpoint so repeated sink failures alert
// operators instead of looping silently.
func (r *Recorder) Healthy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures < 3
}

// LastError returns the most recent flush error, nil when healthy.
func (r *Recorder) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Close stops the worker after a final drain-and-flush attempt. The
// context bounds how long shutdown may wait.
func (r *Recorder) Close(ctx context.Context) error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		close(r.done)
	})

	finished := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) requestFlush() {
	select {
	case r.flushNow <- struct{}{}:
	default:
	}
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.opts.FlushInterval)
	defer ticker.Stop()

	// pending holds drained-but-unflushed events across failed
	// attempts; order is never reshuffled, preserving per-user FIFO.
	var pending []domain.SecurityEvent

	for {
		select {
		case <-ticker.C:
			pending = r.flush(pending, false)
		case <-r.flushNow:
			pending = r.flush(pending, false)
		case <-r.done:
			r.flush(pending, true)
			return
		}
	}
}

// flush drains the buffer into pending and attempts one sink write.
// On failure pending is retained for the next attempt; between failed
// attempts a capped exponential backoff applies (skipped on final
// shutdown flush).
func (r *Recorder) flush(pending []domain.SecurityEvent, final bool) []domain.SecurityEvent {
	// While backing off, leave events in the channel so the saturation
	// limit stays the configured buffer size rather than growing the
	// pending list without bound during a sink outage.
	if !final {
		r.mu.Lock()
		retryAt := r.retryAt
		r.mu.Unlock()
		if r.opts.Clock().Before(retryAt) {
			return pending
		}
	}

	pending = r.drain(pending)
	if len(pending) == 0 {
		return pending
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.opts.FlushTimeout)
	err := r.sink.Flush(ctx, pending)
	cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		r.failures++
		r.lastErr = err
		backoff := time.Second << min(r.failures-1, 10)
		if backoff > r.opts.MaxBackoff {
			backoff = r.opts.MaxBackoff
		}
		r.retryAt = r.opts.Clock().Add(backoff)
		slog.Warn("Security event flush failed",
			slog.Int("pending", len(pending)),
			slog.Int("consecutive_failures", r.failures),
			slog.Duration("retry_in", backoff),
			slog.Any("error", err),
		)
		return pending
	}

	r.failures = 0
	r.lastErr = nil
	r.retryAt = time.Time{}
	return pending[:0]
}

func (r *Recorder) drain(pending []domain.SecurityEvent) []domain.SecurityEvent {
	for {
		select {
		case e := <-r.buf:
			pending = append(pending, e)
		default:
			return pending
		}
	}
}
