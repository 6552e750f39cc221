package dds

import (
	"context"
	"sync"
	"sync/atomic"
)

// Handler is how AsyncReader.Stream hands over samples: through a callback
// (Closure) or a channel (FifoChannel, RingChannel).
type Handler[T any] interface {
	// ToCbDropHandler returns the callback, an optional drop function run
	// once delivery stops, and the receive channel. For callback-based
	// handlers the channel is nil.
	ToCbDropHandler() (callback func(T), drop func(), receiver <-chan T)
}

// Closure wraps a direct callback. Stream calls it on its own goroutine.
type Closure[T any] struct {
	call func(T)
	drop func()
}

// ToCbDropHandler returns the callback and drop functions with no channel.
func (c *Closure[T]) ToCbDropHandler() (func(T), func(), <-chan T) {
	return c.call, c.drop, nil
}

// NewClosure creates a callback-based handler. drop may be nil.
func NewClosure[T any](call func(T), drop func()) *Closure[T] {
	return &Closure[T]{call: call, drop: drop}
}

// ctxSender is a channel handler whose blocking send can be abandoned.
type ctxSender[T any] interface {
	sendContext(ctx context.Context, closed <-chan struct{}, v T) error
}

// FifoChannel delivers to a buffered channel.
// When the channel is full, delivery blocks until space is available,
// which holds back the reader's async operations too. Stream gives up a
// blocked send when its context ends or the reader closes.
type FifoChannel[T any] struct {
	channel chan T
	once    sync.Once
}

// ToCbDropHandler returns a callback that sends to the channel.
func (f *FifoChannel[T]) ToCbDropHandler() (func(T), func(), <-chan T) {
	callback := func(s T) {
		f.channel <- s
	}
	drop := func() {
		f.once.Do(func() { close(f.channel) })
	}
	return callback, drop, f.channel
}

func (f *FifoChannel[T]) sendContext(ctx context.Context, closed <-chan struct{}, v T) error {
	select {
	case f.channel <- v:
		return nil
	case <-ctx.Done():
		return ctxError(ctx)
	case <-closed:
		return newKindError(KindAlreadyDestroyed, "reader closed")
	}
}

// NewFifoChannel creates a channel-based handler with the given buffer size.
// A buffer size of 0 creates an unbuffered channel (synchronous).
func NewFifoChannel[T any](bufferSize int) *FifoChannel[T] {
	return &FifoChannel[T]{
		channel: make(chan T, bufferSize),
	}
}

// RingChannel delivers to a channel with ring buffer semantics.
// When the channel is full, the oldest value is dropped to make room.
type RingChannel[T any] struct {
	channel chan T
	mu      sync.Mutex
	once    sync.Once
	dropped atomic.Uint64
}

// ToCbDropHandler returns a callback that sends to the channel with ring buffer behavior.
func (r *RingChannel[T]) ToCbDropHandler() (func(T), func(), <-chan T) {
	callback := func(s T) {
		r.mu.Lock()
		defer r.mu.Unlock()
		for {
			select {
			case r.channel <- s:
				return
			default:
			}
			// Full: evict the oldest. The consumer may have emptied the
			// channel in between, so retry the send either way.
			select {
			case <-r.channel:
				r.dropped.Add(1)
			default:
			}
		}
	}
	drop := func() {
		r.once.Do(func() { close(r.channel) })
	}
	return callback, drop, r.channel
}

// Dropped returns how many values were evicted unread.
func (r *RingChannel[T]) Dropped() uint64 {
	return r.dropped.Load()
}

// NewRingChannel creates a ring buffer channel handler with the given capacity.
// The capacity must be greater than 0.
func NewRingChannel[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ring channel capacity must be > 0")
	}
	return &RingChannel[T]{
		channel: make(chan T, capacity),
	}
}
