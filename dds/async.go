package dds

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"
	"weak"
)

// AsyncState is the state of an AsyncReader.
type AsyncState int32

const (
	// AsyncIdle: no operation in progress
	AsyncIdle AsyncState = iota
	// AsyncWaiting: suspended until data arrives
	AsyncWaiting
	// AsyncReady: woken by data, about to poll again
	AsyncReady
)

func (s AsyncState) String() string {
	switch s {
	case AsyncWaiting:
		return "waiting"
	case AsyncReady:
		return "ready"
	default:
		return "idle"
	}
}

// waiter is the wake-up registration of one suspended operation.
type waiter struct {
	mu    sync.Mutex
	state AsyncState
	wake  chan struct{}
}

func (w *waiter) notify() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != AsyncWaiting {
		return
	}
	w.state = AsyncReady
	close(w.wake)
	asyncWakes.Inc()
}

// asyncHub fans the data-available events of one reader out to its
// suspended async operations.
type asyncHub struct {
	e       *entity
	once    sync.Once
	hookErr error

	mu      sync.Mutex
	waiters map[*waiter]struct{}
}

func newAsyncHub(e *entity) *asyncHub {
	return &asyncHub{e: e, waiters: make(map[*waiter]struct{})}
}

// hook installs the data-available hook on first use. The hook refers to
// the hub weakly so that an unreferenced reader can still be finalized.
func (hub *asyncHub) hook() error {
	hub.once.Do(func() {
		h, err := hub.e.liveHandle()
		if err != nil {
			hub.hookErr = err
			return
		}
		wp := weak.Make(hub)
		hub.hookErr = hub.e.reg.setDataHook(h, func() {
			if hub := wp.Value(); hub != nil {
				hub.fire()
			}
		})
	})
	return hub.hookErr
}

func (hub *asyncHub) fire() {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	for w := range hub.waiters {
		w.notify()
	}
}

func (hub *asyncHub) add(w *waiter) {
	hub.mu.Lock()
	hub.waiters[w] = struct{}{}
	hub.mu.Unlock()
}

func (hub *asyncHub) remove(w *waiter) {
	hub.mu.Lock()
	delete(hub.waiters, w)
	hub.mu.Unlock()
}

// AsyncReader takes samples without blocking a goroutine on the runtime:
// an operation with no data suspends until the reader's data-available
// event or the end of its context. One operation runs at a time.
//
// Example:
//
//	for s, err := range reader.Async().Samples(ctx) {
//	    if err != nil {
//	        return err
//	    }
//	    handle(s.Data)
//	}
type AsyncReader[T any] struct {
	r    *Reader[T]
	w    waiter
	busy atomic.Bool
}

// Async returns an asynchronous view of r
func (r *Reader[T]) Async() *AsyncReader[T] {
	return &AsyncReader[T]{r: r}
}

// State returns the current state
func (a *AsyncReader[T]) State() AsyncState {
	a.w.mu.Lock()
	defer a.w.mu.Unlock()
	return a.w.state
}

// Take waits for samples and takes them. It returns ctx's error, with a
// passed deadline as ErrTimeout, or ErrAlreadyDestroyed once the reader is
// closed.
func (a *AsyncReader[T]) Take(ctx context.Context) ([]Sample[T], error) {
	return a.next(ctx, a.r.Take)
}

// Read waits for unread samples and reads them
func (a *AsyncReader[T]) Read(ctx context.Context) ([]Sample[T], error) {
	return a.next(ctx, func() ([]Sample[T], error) { return a.r.ReadMask(MaskNotRead) })
}

// arm registers interest before polling so no wake-up is lost between an
// empty poll and suspending.
func (a *AsyncReader[T]) arm() <-chan struct{} {
	a.w.mu.Lock()
	a.w.state = AsyncWaiting
	a.w.wake = make(chan struct{})
	wake := a.w.wake
	a.w.mu.Unlock()
	a.r.async.add(&a.w)
	return wake
}

// disarm drops the registration; no wake-up is delivered afterwards.
func (a *AsyncReader[T]) disarm() {
	a.r.async.remove(&a.w)
	a.w.mu.Lock()
	a.w.state = AsyncIdle
	a.w.wake = nil
	a.w.mu.Unlock()
}

func (a *AsyncReader[T]) next(ctx context.Context, get func() ([]Sample[T], error)) ([]Sample[T], error) {
	if !a.busy.CompareAndSwap(false, true) {
		return nil, newKindError(KindPreconditionNotMet, "async reader already has an operation in progress")
	}
	defer a.busy.Store(false)
	if err := a.r.async.hook(); err != nil {
		return nil, err
	}
	for {
		wake := a.arm()
		samples, err := get()
		if err != nil || len(samples) > 0 {
			a.disarm()
			return samples, err
		}
		select {
		case <-wake:
			// Data arrived, or a spurious wake: poll again.
		case <-ctx.Done():
			a.disarm()
			return nil, ctxError(ctx)
		case <-a.r.done:
			a.disarm()
			return nil, newKindError(KindAlreadyDestroyed, "reader closed")
		}
	}
}

// Samples returns the endless sequence of taken samples. It stops when the
// consumer stops or after yielding an error.
func (a *AsyncReader[T]) Samples(ctx context.Context) iter.Seq2[Sample[T], error] {
	return func(yield func(Sample[T], error) bool) {
		for {
			batch, err := a.Take(ctx)
			if err != nil {
				yield(Sample[T]{}, err)
				return
			}
			for _, s := range batch {
				if !yield(s, nil) {
					return
				}
			}
		}
	}
}

// Stream delivers taken samples to h from a new goroutine until ctx ends
// or the reader is closed. A FifoChannel send that waits on a slow
// consumer is abandoned at that point too. The handler's drop function
// runs when delivery stops, which closes the channel of FifoChannel and
// RingChannel. The error channel receives the reason and is closed.
//
// Example:
//
//	ch, errc := reader.Async().Stream(ctx, dds.NewFifoChannel[dds.Sample[Reading]](64))
//	for s := range ch {
//	    log.Printf("%v", s.Data)
//	}
//	err := <-errc
func (a *AsyncReader[T]) Stream(ctx context.Context, h Handler[Sample[T]]) (<-chan Sample[T], <-chan error) {
	callback, drop, receiver := h.ToCbDropHandler()
	send := func(s Sample[T]) error {
		callback(s)
		return nil
	}
	if cs, ok := h.(ctxSender[Sample[T]]); ok {
		send = func(s Sample[T]) error { return cs.sendContext(ctx, a.r.done, s) }
	}
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		if drop != nil {
			defer drop()
		}
		for s, err := range a.Samples(ctx) {
			if err == nil {
				err = send(s)
			}
			if err != nil {
				errc <- err
				return
			}
		}
	}()
	return receiver, errc
}
