package dds

import (
	"fmt"
	"runtime"
	"time"
	"unsafe"

	"github.com/ZettaScaleLabs/dds-go/internal/native"
)

// Writer publishes samples of T on a topic
type Writer[T any] struct {
	*entity
	publisher *Publisher
	topic     *Topic[T]
}

// WriterBuilder builds a Writer
type WriterBuilder[T any] struct {
	publisher *Publisher
	topic     *Topic[T]
	qos       *Qos
	listener  *Listener
}

// CreateWriter creates a new writer builder. The publisher and the topic
// must belong to the same participant.
func CreateWriter[T any](pub *Publisher, topic *Topic[T]) *WriterBuilder[T] {
	return &WriterBuilder[T]{publisher: pub, topic: topic}
}

// WithQos sets the writer policies
func (b *WriterBuilder[T]) WithQos(qos *Qos) *WriterBuilder[T] {
	b.qos = qos
	return b
}

// WithListener installs listener callbacks at creation
func (b *WriterBuilder[T]) WithListener(l *Listener) *WriterBuilder[T] {
	b.listener = l
	return b
}

// Build creates the writer
func (b *WriterBuilder[T]) Build() (*Writer[T], error) {
	th, err := b.topic.liveHandle()
	if err != nil {
		return nil, err
	}
	e, err := b.publisher.newChild(KindWriter, b.listener, func(pub native.Entity, l *native.Listener) native.Entity {
		return native.CreateWriter(pub, th, b.qos.toNative(), l)
	})
	if err != nil {
		return nil, err
	}
	w := &Writer[T]{entity: e, publisher: b.publisher, topic: b.topic}
	runtime.SetFinalizer(w, (*Writer[T]).Close)
	return w, nil
}

// Topic returns the topic the writer publishes on
func (w *Writer[T]) Topic() *Topic[T] {
	return w.topic
}

// Publisher returns the owning publisher
func (w *Writer[T]) Publisher() *Publisher {
	return w.publisher
}

func (w *Writer[T]) count(op string, err error) error {
	if err != nil {
		writeErrors.WithLabelValues(w.topic.name, errorKindLabel(err)).Inc()
		return err
	}
	samplesWritten.WithLabelValues(w.topic.name, op).Inc()
	return nil
}

func (w *Writer[T]) do(op string, sample *T, call func(native.Entity, unsafe.Pointer) native.ReturnCode) error {
	if sample == nil {
		return w.count(op, fmt.Errorf("%w: nil sample", ErrBadParameter))
	}
	h, err := w.liveHandle()
	if err != nil {
		return w.count(op, err)
	}
	rc := call(h, unsafe.Pointer(sample))
	runtime.KeepAlive(sample)
	logger.Debug("writer "+op, "topic", w.topic.name, "rc", rc)
	return w.count(op, retError(rc, "writer[%s] %s", w.topic.name, op))
}

// Write publishes sample. A reliable writer blocks while a matched reliable
// reader has no room for it, for at most the max blocking time, and then
// fails with ErrTimeout. sample must not change during the call.
func (w *Writer[T]) Write(sample *T) error {
	return w.do("write", sample, native.Write)
}

// WriteWithTimestamp publishes sample with an explicit source timestamp
func (w *Writer[T]) WriteWithTimestamp(sample *T, ts time.Time) error {
	return w.do("write", sample, func(h native.Entity, p unsafe.Pointer) native.ReturnCode {
		return native.WriteTs(h, p, ts.UnixNano())
	})
}

// WriteDispose publishes sample and disposes its instance
func (w *Writer[T]) WriteDispose(sample *T) error {
	return w.do("write_dispose", sample, native.WriteDispose)
}

// Dispose marks the instance whose key fields are set in sample as
// disposed. Only the key fields are read.
func (w *Writer[T]) Dispose(sample *T) error {
	return w.do("dispose", sample, native.Dispose)
}

// Unregister tells readers the writer stops updating the instance of
// sample. With autodispose enabled, the default, the instance is disposed
// too. Unregistering an instance the writer never wrote fails with
// ErrPreconditionNotMet.
func (w *Writer[T]) Unregister(sample *T) error {
	return w.do("unregister", sample, native.Unregister)
}

// RegisterInstance announces the instance of sample without writing data
// and returns its handle.
func (w *Writer[T]) RegisterInstance(sample *T) (InstanceHandle, error) {
	if sample == nil {
		return 0, fmt.Errorf("%w: nil sample", ErrBadParameter)
	}
	h, err := w.liveHandle()
	if err != nil {
		return 0, err
	}
	ih, rc := native.RegisterInstance(h, unsafe.Pointer(sample))
	runtime.KeepAlive(sample)
	if err := retError(rc, "writer[%s] register instance", w.topic.name); err != nil {
		return 0, err
	}
	return InstanceHandle(ih), nil
}

// LookupInstance returns the handle of the instance of sample, zero when
// the writer does not know it.
func (w *Writer[T]) LookupInstance(sample *T) InstanceHandle {
	h, err := w.liveHandle()
	if err != nil || sample == nil {
		return 0
	}
	ih := native.LookupInstance(h, unsafe.Pointer(sample))
	runtime.KeepAlive(sample)
	return InstanceHandle(ih)
}

// PublicationMatchedStatus returns and resets the publication matched status
func (w *Writer[T]) PublicationMatchedStatus() (PublicationMatchedStatus, error) {
	return statusGetter(w.entity, native.GetPublicationMatchedStatus, publicationMatchedFromNative, "publication matched")
}

// OfferedIncompatibleQosStatus returns and resets the offered incompatible
// QoS status
func (w *Writer[T]) OfferedIncompatibleQosStatus() (IncompatibleQosStatus, error) {
	return statusGetter(w.entity, native.GetOfferedIncompatibleQosStatus, incompatibleQosFromNative, "offered incompatible qos")
}
