package dds

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ZettaScaleLabs/dds-go/internal/native"
)

// Reader receives samples of T from a topic
type Reader[T any] struct {
	*entity
	subscriber *Subscriber
	topic      *Topic[T]
	batch      int

	waitOnce sync.Once
	waitErr  error
	ws       *WaitSet
	notRead  *ReadCondition

	async *asyncHub
}

// ReaderBuilder builds a Reader
type ReaderBuilder[T any] struct {
	subscriber *Subscriber
	topic      *Topic[T]
	qos        *Qos
	listener   *Listener
}

// CreateReader creates a new reader builder. The subscriber and the topic
// must belong to the same participant.
func CreateReader[T any](sub *Subscriber, topic *Topic[T]) *ReaderBuilder[T] {
	return &ReaderBuilder[T]{subscriber: sub, topic: topic}
}

// WithQos sets the reader policies
func (b *ReaderBuilder[T]) WithQos(qos *Qos) *ReaderBuilder[T] {
	b.qos = qos
	return b
}

// WithListener installs listener callbacks at creation
func (b *ReaderBuilder[T]) WithListener(l *Listener) *ReaderBuilder[T] {
	b.listener = l
	return b
}

// Build creates the reader
func (b *ReaderBuilder[T]) Build() (*Reader[T], error) {
	th, err := b.topic.liveHandle()
	if err != nil {
		return nil, err
	}
	e, err := b.subscriber.newChild(KindReader, b.listener, func(sub native.Entity, l *native.Listener) native.Entity {
		return native.CreateReader(sub, th, b.qos.toNative(), l)
	})
	if err != nil {
		return nil, err
	}
	r := &Reader[T]{
		entity:     e,
		subscriber: b.subscriber,
		topic:      b.topic,
		batch:      b.subscriber.participant.cfg.ReadBatchSize,
	}
	r.async = newAsyncHub(e)
	runtime.SetFinalizer(r, (*Reader[T]).Close)
	return r, nil
}

// Topic returns the topic the reader reads from
func (r *Reader[T]) Topic() *Topic[T] {
	return r.topic
}

// Subscriber returns the owning subscriber
func (r *Reader[T]) Subscriber() *Subscriber {
	return r.subscriber
}

// Take removes and returns up to the configured batch of samples.
// An empty result means no data.
func (r *Reader[T]) Take() ([]Sample[T], error) {
	return r.TakeMask(AnyState)
}

// Read returns up to the configured batch of samples without removing
// them. Returned samples are marked read.
func (r *Reader[T]) Read() ([]Sample[T], error) {
	return r.ReadMask(AnyState)
}

// TakeMask is Take restricted to samples in the states of mask
func (r *Reader[T]) TakeMask(mask StateMask) ([]Sample[T], error) {
	h, err := r.liveHandle()
	if err != nil {
		return nil, err
	}
	return r.collect(h, mask, true)
}

// ReadMask is Read restricted to samples in the states of mask
func (r *Reader[T]) ReadMask(mask StateMask) ([]Sample[T], error) {
	h, err := r.liveHandle()
	if err != nil {
		return nil, err
	}
	return r.collect(h, mask, false)
}

// TakeCondition takes the samples matching the mask of c, which must have
// been created on r.
func (r *Reader[T]) TakeCondition(c *ReadCondition) ([]Sample[T], error) {
	return r.withCondition(c, true)
}

// ReadCondition reads the samples matching the mask of c
func (r *Reader[T]) ReadCondition(c *ReadCondition) ([]Sample[T], error) {
	return r.withCondition(c, false)
}

func (r *Reader[T]) withCondition(c *ReadCondition, take bool) ([]Sample[T], error) {
	if c.reader != Entity(r) {
		return nil, fmt.Errorf("%w: condition belongs to another reader", ErrBadParameter)
	}
	if _, err := r.liveHandle(); err != nil {
		return nil, err
	}
	h, err := c.liveHandle()
	if err != nil {
		return nil, err
	}
	return r.collect(h, 0, take)
}

// collect runs one native read or take on h, the reader or one of its
// conditions.
func (r *Reader[T]) collect(h native.Entity, mask StateMask, take bool) ([]Sample[T], error) {
	buf := make([]T, r.batch)
	ptrs := make([]unsafe.Pointer, r.batch)
	for i := range buf {
		ptrs[i] = unsafe.Pointer(&buf[i])
	}
	infos := make([]native.SampleInfo, r.batch)

	op := "read"
	var n int32
	if take {
		op = "take"
		n = native.Take(h, ptrs, infos, uint32(mask))
	} else {
		n = native.Read(h, ptrs, infos, uint32(mask))
	}
	runtime.KeepAlive(buf)
	if n < 0 {
		if rc := native.ReturnCode(n); rc != native.RetNoData {
			return nil, retError(rc, "reader[%s] %s", r.topic.name, op)
		}
		return nil, nil
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]Sample[T], n)
	for i := range out {
		out[i] = Sample[T]{Data: buf[i], Info: sampleInfoFromNative(&infos[i]), keys: r.topic.ts.keys}
	}
	samplesRead.WithLabelValues(r.topic.name, op).Add(float64(n))
	return out, nil
}

// TakeWait blocks until the reader has unread samples, then takes. It
// fails with ErrTimeout when the deadline of ctx passes first.
func (r *Reader[T]) TakeWait(ctx context.Context) ([]Sample[T], error) {
	return r.waitFor(ctx, r.Take)
}

// ReadWait blocks until the reader has unread samples and reads them
func (r *Reader[T]) ReadWait(ctx context.Context) ([]Sample[T], error) {
	return r.waitFor(ctx, func() ([]Sample[T], error) { return r.ReadMask(MaskNotRead) })
}

func (r *Reader[T]) waitFor(ctx context.Context, get func() ([]Sample[T], error)) ([]Sample[T], error) {
	ws, err := r.waitSet()
	if err != nil {
		return nil, err
	}
	for {
		samples, err := get()
		if err != nil || len(samples) > 0 {
			return samples, err
		}
		if _, err := ws.Wait(ctx); err != nil {
			if r.IsClosed() {
				return nil, newKindError(KindAlreadyDestroyed, "reader closed while waiting")
			}
			return nil, err
		}
	}
}

// waitSet lazily creates the wait set TakeWait and ReadWait block on. It
// is closed together with the reader.
func (r *Reader[T]) waitSet() (*WaitSet, error) {
	r.waitOnce.Do(func() {
		ws, err := r.subscriber.participant.CreateWaitSet()
		if err != nil {
			r.waitErr = err
			return
		}
		cond, err := newReadCondition(r.entity, r, MaskNotRead)
		if err == nil {
			err = ws.Attach(cond)
		}
		if err != nil {
			_ = ws.Close()
			r.waitErr = err
			return
		}
		r.ws, r.notRead = ws, cond
		r.addCloseHook(func() { _ = ws.Close() })
	})
	return r.ws, r.waitErr
}

// CreateReadCondition creates a condition triggering while the reader holds
// samples matching mask
func (r *Reader[T]) CreateReadCondition(mask StateMask) (*ReadCondition, error) {
	return newReadCondition(r.entity, r, mask)
}

// LookupInstance returns the handle of the instance of sample, zero when
// the reader does not know it.
func (r *Reader[T]) LookupInstance(sample *T) InstanceHandle {
	h, err := r.liveHandle()
	if err != nil || sample == nil {
		return 0
	}
	ih := native.LookupInstance(h, unsafe.Pointer(sample))
	runtime.KeepAlive(sample)
	return InstanceHandle(ih)
}

// SubscriptionMatchedStatus returns and resets the subscription matched status
func (r *Reader[T]) SubscriptionMatchedStatus() (SubscriptionMatchedStatus, error) {
	return statusGetter(r.entity, native.GetSubscriptionMatchedStatus, subscriptionMatchedFromNative, "subscription matched")
}

// RequestedIncompatibleQosStatus returns and resets the requested
// incompatible QoS status
func (r *Reader[T]) RequestedIncompatibleQosStatus() (IncompatibleQosStatus, error) {
	return statusGetter(r.entity, native.GetRequestedIncompatibleQosStatus, incompatibleQosFromNative, "requested incompatible qos")
}

// SampleRejectedStatus returns and resets the sample rejected status
func (r *Reader[T]) SampleRejectedStatus() (SampleRejectedStatus, error) {
	return statusGetter(r.entity, native.GetSampleRejectedStatus, sampleRejectedFromNative, "sample rejected")
}

// LivelinessChangedStatus returns and resets the liveliness changed status
func (r *Reader[T]) LivelinessChangedStatus() (LivelinessChangedStatus, error) {
	return statusGetter(r.entity, native.GetLivelinessChangedStatus, livelinessChangedFromNative, "liveliness changed")
}
