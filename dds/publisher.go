package dds

import (
	"runtime"

	"github.com/ZettaScaleLabs/dds-go/internal/native"
)

// Publisher groups writers under common policies
type Publisher struct {
	*entity
	participant *Participant
}

// PublisherBuilder builds a Publisher
type PublisherBuilder struct {
	participant *Participant
	qos         *Qos
	listener    *Listener
}

// WithQos sets the publisher policies
func (b *PublisherBuilder) WithQos(qos *Qos) *PublisherBuilder {
	b.qos = qos
	return b
}

// WithListener installs listener callbacks at creation
func (b *PublisherBuilder) WithListener(l *Listener) *PublisherBuilder {
	b.listener = l
	return b
}

// Build creates the publisher
func (b *PublisherBuilder) Build() (*Publisher, error) {
	e, err := b.participant.newChild(KindPublisher, b.listener, func(pp native.Entity, l *native.Listener) native.Entity {
		return native.CreatePublisher(pp, b.qos.toNative(), l)
	})
	if err != nil {
		return nil, err
	}
	pub := &Publisher{entity: e, participant: b.participant}
	runtime.SetFinalizer(pub, (*Publisher).Close)
	return pub, nil
}

// Participant returns the owning participant
func (p *Publisher) Participant() *Participant {
	return p.participant
}
