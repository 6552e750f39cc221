package dds

import (
	"sync"
	"sync/atomic"
	"weak"

	"github.com/ZettaScaleLabs/dds-go/internal/native"
)

// EventKind identifies a listener callback.
type EventKind int

const (
	EventDataAvailable EventKind = iota
	EventDataOnReaders
	EventSubscriptionMatched
	EventPublicationMatched
	EventLivelinessChanged
	EventRequestedIncompatibleQos
	EventOfferedIncompatibleQos
	EventSampleRejected
	EventInconsistentTopic
)

var eventNames = [...]string{
	EventDataAvailable:            "data_available",
	EventDataOnReaders:            "data_on_readers",
	EventSubscriptionMatched:      "subscription_matched",
	EventPublicationMatched:       "publication_matched",
	EventLivelinessChanged:        "liveliness_changed",
	EventRequestedIncompatibleQos: "requested_incompatible_qos",
	EventOfferedIncompatibleQos:   "offered_incompatible_qos",
	EventSampleRejected:           "sample_rejected",
	EventInconsistentTopic:        "inconsistent_topic",
}

func (k EventKind) String() string {
	if k >= 0 && int(k) < len(eventNames) {
		return eventNames[k]
	}
	return "unknown"
}

// Status returns the status whose change raises the event.
func (k EventKind) Status() StatusMask {
	switch k {
	case EventDataAvailable:
		return StatusDataAvailable
	case EventDataOnReaders:
		return StatusDataOnReaders
	case EventSubscriptionMatched:
		return StatusSubscriptionMatched
	case EventPublicationMatched:
		return StatusPublicationMatched
	case EventLivelinessChanged:
		return StatusLivelinessChanged
	case EventRequestedIncompatibleQos:
		return StatusRequestedIncompatibleQos
	case EventOfferedIncompatibleQos:
		return StatusOfferedIncompatibleQos
	case EventSampleRejected:
		return StatusSampleRejected
	case EventInconsistentTopic:
		return StatusInconsistentTopic
	}
	return 0
}

// Listener collects the callbacks to install on an entity. Callbacks run on
// the runtime's dispatch goroutine of the participant's domain, one at a
// time and in the order the events were raised. They receive a borrowed
// view of the entity and must not close it.
//
// Example:
//
//	l := dds.NewListener().
//	    OnDataAvailable(func(r dds.EntityRef) { notify <- struct{}{} }).
//	    OnSubscriptionMatched(func(r dds.EntityRef, s dds.SubscriptionMatchedStatus) {
//	        log.Printf("%d writers", s.CurrentCount)
//	    })
type Listener struct {
	dataAvailable            func(EntityRef)
	dataOnReaders            func(EntityRef)
	subscriptionMatched      func(EntityRef, SubscriptionMatchedStatus)
	publicationMatched       func(EntityRef, PublicationMatchedStatus)
	livelinessChanged        func(EntityRef, LivelinessChangedStatus)
	requestedIncompatibleQos func(EntityRef, IncompatibleQosStatus)
	offeredIncompatibleQos   func(EntityRef, IncompatibleQosStatus)
	sampleRejected           func(EntityRef, SampleRejectedStatus)
	inconsistentTopic        func(EntityRef, InconsistentTopicStatus)
}

// NewListener returns a listener with no callbacks.
func NewListener() *Listener {
	return &Listener{}
}

// OnDataAvailable sets the callback for new data on a reader
func (l *Listener) OnDataAvailable(fn func(EntityRef)) *Listener {
	l.dataAvailable = fn
	return l
}

// OnDataOnReaders sets the callback for new data on any reader of a subscriber
func (l *Listener) OnDataOnReaders(fn func(EntityRef)) *Listener {
	l.dataOnReaders = fn
	return l
}

// OnSubscriptionMatched sets the callback for a writer matching or leaving a reader
func (l *Listener) OnSubscriptionMatched(fn func(EntityRef, SubscriptionMatchedStatus)) *Listener {
	l.subscriptionMatched = fn
	return l
}

// OnPublicationMatched sets the callback for a reader matching or leaving a writer
func (l *Listener) OnPublicationMatched(fn func(EntityRef, PublicationMatchedStatus)) *Listener {
	l.publicationMatched = fn
	return l
}

// OnLivelinessChanged sets the callback for matched writers becoming alive or not alive
func (l *Listener) OnLivelinessChanged(fn func(EntityRef, LivelinessChangedStatus)) *Listener {
	l.livelinessChanged = fn
	return l
}

// OnRequestedIncompatibleQos sets the callback for a reader finding a writer with incompatible policies
func (l *Listener) OnRequestedIncompatibleQos(fn func(EntityRef, IncompatibleQosStatus)) *Listener {
	l.requestedIncompatibleQos = fn
	return l
}

// OnOfferedIncompatibleQos sets the callback for a writer finding a reader with incompatible policies
func (l *Listener) OnOfferedIncompatibleQos(fn func(EntityRef, IncompatibleQosStatus)) *Listener {
	l.offeredIncompatibleQos = fn
	return l
}

// OnSampleRejected sets the callback for samples a reader had no room for
func (l *Listener) OnSampleRejected(fn func(EntityRef, SampleRejectedStatus)) *Listener {
	l.sampleRejected = fn
	return l
}

// OnInconsistentTopic sets the callback for a topic name registered with another type
func (l *Listener) OnInconsistentTopic(fn func(EntityRef, InconsistentTopicStatus)) *Listener {
	l.inconsistentTopic = fn
	return l
}

// Has reports whether a callback is set for k.
func (l *Listener) Has(k EventKind) bool {
	if l == nil {
		return false
	}
	switch k {
	case EventDataAvailable:
		return l.dataAvailable != nil
	case EventDataOnReaders:
		return l.dataOnReaders != nil
	case EventSubscriptionMatched:
		return l.subscriptionMatched != nil
	case EventPublicationMatched:
		return l.publicationMatched != nil
	case EventLivelinessChanged:
		return l.livelinessChanged != nil
	case EventRequestedIncompatibleQos:
		return l.requestedIncompatibleQos != nil
	case EventOfferedIncompatibleQos:
		return l.offeredIncompatibleQos != nil
	case EventSampleRejected:
		return l.sampleRejected != nil
	case EventInconsistentTopic:
		return l.inconsistentTopic != nil
	}
	return false
}

func (l *Listener) clone() *Listener {
	if l == nil {
		return &Listener{}
	}
	c := *l
	return &c
}

// merge copies the callbacks set in o over those of l.
func (l *Listener) merge(o *Listener) {
	if o == nil {
		return
	}
	if o.dataAvailable != nil {
		l.dataAvailable = o.dataAvailable
	}
	if o.dataOnReaders != nil {
		l.dataOnReaders = o.dataOnReaders
	}
	if o.subscriptionMatched != nil {
		l.subscriptionMatched = o.subscriptionMatched
	}
	if o.publicationMatched != nil {
		l.publicationMatched = o.publicationMatched
	}
	if o.livelinessChanged != nil {
		l.livelinessChanged = o.livelinessChanged
	}
	if o.requestedIncompatibleQos != nil {
		l.requestedIncompatibleQos = o.requestedIncompatibleQos
	}
	if o.offeredIncompatibleQos != nil {
		l.offeredIncompatibleQos = o.offeredIncompatibleQos
	}
	if o.sampleRejected != nil {
		l.sampleRejected = o.sampleRejected
	}
	if o.inconsistentTopic != nil {
		l.inconsistentTopic = o.inconsistentTopic
	}
}

func (l *Listener) clear(k EventKind) {
	switch k {
	case EventDataAvailable:
		l.dataAvailable = nil
	case EventDataOnReaders:
		l.dataOnReaders = nil
	case EventSubscriptionMatched:
		l.subscriptionMatched = nil
	case EventPublicationMatched:
		l.publicationMatched = nil
	case EventLivelinessChanged:
		l.livelinessChanged = nil
	case EventRequestedIncompatibleQos:
		l.requestedIncompatibleQos = nil
	case EventOfferedIncompatibleQos:
		l.offeredIncompatibleQos = nil
	case EventSampleRejected:
		l.sampleRejected = nil
	case EventInconsistentTopic:
		l.inconsistentTopic = nil
	}
}

// registration is what the runtime's opaque listener argument resolves to.
// It lives in the closure table from entity creation until the native
// delete of the entity returned, so a trampoline never sees it freed.
type registration struct {
	handle closureHandle
	kind   EntityKind

	mu       sync.RWMutex
	target   weak.Pointer[entity]
	cbs      *Listener // replaced, never mutated in place
	dataHook func()

	released atomic.Bool
}

func newRegistration(kind EntityKind, l *Listener) *registration {
	r := &registration{kind: kind, cbs: l.clone()}
	r.handle = newClosureHandle(r)
	return r
}

func (r *registration) bind(e *entity) {
	r.mu.Lock()
	r.target = weak.Make(e)
	r.mu.Unlock()
}

func (r *registration) release() {
	if r.released.CompareAndSwap(false, true) {
		r.handle.Delete()
	}
}

// native returns the callback table to hand to the runtime. Only events
// with a callback get a trampoline, the rest stay pollable statuses.
func (r *registration) native() *native.Listener {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nativeLocked()
}

func (r *registration) nativeLocked() *native.Listener {
	l := r.cbs
	nl := &native.Listener{Arg: uintptr(r.handle)}
	if l.dataAvailable != nil || r.dataHook != nil {
		nl.DataAvailable = dataAvailableTrampoline
	}
	if l.dataOnReaders != nil {
		nl.DataOnReaders = dataOnReadersTrampoline
	}
	if l.subscriptionMatched != nil {
		nl.SubscriptionMatched = subscriptionMatchedTrampoline
	}
	if l.publicationMatched != nil {
		nl.PublicationMatched = publicationMatchedTrampoline
	}
	if l.livelinessChanged != nil {
		nl.LivelinessChanged = livelinessChangedTrampoline
	}
	if l.requestedIncompatibleQos != nil {
		nl.RequestedIncompatibleQos = requestedIncompatibleQosTrampoline
	}
	if l.offeredIncompatibleQos != nil {
		nl.OfferedIncompatibleQos = offeredIncompatibleQosTrampoline
	}
	if l.sampleRejected != nil {
		nl.SampleRejected = sampleRejectedTrampoline
	}
	if l.inconsistentTopic != nil {
		nl.InconsistentTopic = inconsistentTopicTrampoline
	}
	return nl
}

// update edits the callbacks and reinstalls them on h.
func (r *registration) update(h native.Entity, edit func(*Listener)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.cbs.clone()
	edit(next)
	r.cbs = next
	return retError(native.SetListener(h, r.nativeLocked()), "set listener on %s", r.kind)
}

// setDataHook installs fn to run on every data-available event ahead of
// the user callback.
func (r *registration) setDataHook(h native.Entity, fn func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dataHook = fn
	return retError(native.SetListener(h, r.nativeLocked()), "set listener on %s", r.kind)
}

func (r *registration) snapshot() (*Listener, func()) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cbs, r.dataHook
}

// resolve recovers the registration behind a listener argument. It returns
// nil once the registration is released or its entity started closing.
func resolve(arg uintptr) *registration {
	r, ok := closureHandle(arg).Value().(*registration)
	if !ok || r.released.Load() {
		return nil
	}
	r.mu.RLock()
	t := r.target.Value()
	r.mu.RUnlock()
	if t != nil && t.closed.Load() {
		return nil
	}
	return r
}

// deliver runs a user callback, keeping its panics on this side.
func deliver(ev EventKind, fn func()) {
	listenerCalls.WithLabelValues(ev.String()).Inc()
	err := safeCall(func() error {
		fn()
		return nil
	})
	if err != nil {
		listenerPanics.WithLabelValues(ev.String()).Inc()
	}
}

// The trampolines below are the only functions the runtime ever calls.

func dataAvailableTrampoline(h native.Entity, arg uintptr) {
	r := resolve(arg)
	if r == nil {
		return
	}
	l, hook := r.snapshot()
	if hook != nil {
		hook()
	}
	if fn := l.dataAvailable; fn != nil {
		ref := EntityRef{handle: h, kind: r.kind}
		deliver(EventDataAvailable, func() { fn(ref) })
	}
}

func dataOnReadersTrampoline(h native.Entity, arg uintptr) {
	r := resolve(arg)
	if r == nil {
		return
	}
	l, _ := r.snapshot()
	if fn := l.dataOnReaders; fn != nil {
		ref := EntityRef{handle: h, kind: r.kind}
		deliver(EventDataOnReaders, func() { fn(ref) })
	}
}

func subscriptionMatchedTrampoline(h native.Entity, s native.SubscriptionMatchedStatus, arg uintptr) {
	r := resolve(arg)
	if r == nil {
		return
	}
	l, _ := r.snapshot()
	if fn := l.subscriptionMatched; fn != nil {
		ref := EntityRef{handle: h, kind: r.kind}
		deliver(EventSubscriptionMatched, func() { fn(ref, subscriptionMatchedFromNative(s)) })
	}
}

func publicationMatchedTrampoline(h native.Entity, s native.PublicationMatchedStatus, arg uintptr) {
	r := resolve(arg)
	if r == nil {
		return
	}
	l, _ := r.snapshot()
	if fn := l.publicationMatched; fn != nil {
		ref := EntityRef{handle: h, kind: r.kind}
		deliver(EventPublicationMatched, func() { fn(ref, publicationMatchedFromNative(s)) })
	}
}

func livelinessChangedTrampoline(h native.Entity, s native.LivelinessChangedStatus, arg uintptr) {
	r := resolve(arg)
	if r == nil {
		return
	}
	l, _ := r.snapshot()
	if fn := l.livelinessChanged; fn != nil {
		ref := EntityRef{handle: h, kind: r.kind}
		deliver(EventLivelinessChanged, func() { fn(ref, livelinessChangedFromNative(s)) })
	}
}

func requestedIncompatibleQosTrampoline(h native.Entity, s native.IncompatibleQosStatus, arg uintptr) {
	r := resolve(arg)
	if r == nil {
		return
	}
	l, _ := r.snapshot()
	if fn := l.requestedIncompatibleQos; fn != nil {
		ref := EntityRef{handle: h, kind: r.kind}
		deliver(EventRequestedIncompatibleQos, func() { fn(ref, incompatibleQosFromNative(s)) })
	}
}

func offeredIncompatibleQosTrampoline(h native.Entity, s native.IncompatibleQosStatus, arg uintptr) {
	r := resolve(arg)
	if r == nil {
		return
	}
	l, _ := r.snapshot()
	if fn := l.offeredIncompatibleQos; fn != nil {
		ref := EntityRef{handle: h, kind: r.kind}
		deliver(EventOfferedIncompatibleQos, func() { fn(ref, incompatibleQosFromNative(s)) })
	}
}

func sampleRejectedTrampoline(h native.Entity, s native.SampleRejectedStatus, arg uintptr) {
	r := resolve(arg)
	if r == nil {
		return
	}
	l, _ := r.snapshot()
	if fn := l.sampleRejected; fn != nil {
		ref := EntityRef{handle: h, kind: r.kind}
		deliver(EventSampleRejected, func() { fn(ref, sampleRejectedFromNative(s)) })
	}
}

func inconsistentTopicTrampoline(h native.Entity, s native.InconsistentTopicStatus, arg uintptr) {
	r := resolve(arg)
	if r == nil {
		return
	}
	l, _ := r.snapshot()
	if fn := l.inconsistentTopic; fn != nil {
		ref := EntityRef{handle: h, kind: r.kind}
		deliver(EventInconsistentTopic, func() { fn(ref, inconsistentTopicFromNative(s)) })
	}
}
