package dds

import (
	"runtime"

	"github.com/ZettaScaleLabs/dds-go/internal/native"
)

// Subscriber groups readers under common policies
type Subscriber struct {
	*entity
	participant *Participant
}

// SubscriberBuilder builds a Subscriber
type SubscriberBuilder struct {
	participant *Participant
	qos         *Qos
	listener    *Listener
}

// WithQos sets the subscriber policies
func (b *SubscriberBuilder) WithQos(qos *Qos) *SubscriberBuilder {
	b.qos = qos
	return b
}

// WithListener installs listener callbacks at creation. OnDataOnReaders
// fires here when any reader of the subscriber receives data.
func (b *SubscriberBuilder) WithListener(l *Listener) *SubscriberBuilder {
	b.listener = l
	return b
}

// Build creates the subscriber
func (b *SubscriberBuilder) Build() (*Subscriber, error) {
	e, err := b.participant.newChild(KindSubscriber, b.listener, func(pp native.Entity, l *native.Listener) native.Entity {
		return native.CreateSubscriber(pp, b.qos.toNative(), l)
	})
	if err != nil {
		return nil, err
	}
	sub := &Subscriber{entity: e, participant: b.participant}
	runtime.SetFinalizer(sub, (*Subscriber).Close)
	return sub, nil
}

// Participant returns the owning participant
func (s *Subscriber) Participant() *Participant {
	return s.participant
}
